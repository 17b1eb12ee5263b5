package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"productrag/internal/domain"
	"productrag/internal/logger"
	"productrag/internal/port"
	"productrag/internal/telemetry"
)

// NoResultsMessage is returned when retrieval finds nothing to ground an answer on.
const NoResultsMessage = "Xin lỗi, tôi không tìm thấy thông tin phù hợp với câu hỏi của bạn."

// EngineState is the lifecycle state of an Engine.
type EngineState int32

const (
	StateUninitialized EngineState = iota
	StateInitializing
	StateReady
	StateFailed
)

func (s EngineState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// EngineConfig holds query-time settings.
type EngineConfig struct {
	TopK        int
	Temperature float64
	MaxTokens   int
}

// parityChecker is implemented by indexes that remember the model they were built with.
type parityChecker interface {
	CheckParity(model string, dimension int) error
}

// modelChecker is implemented by generators that can report whether their model is pulled.
type modelChecker interface {
	HasModel(ctx context.Context) (bool, error)
}

// Engine answers questions over the product collection.
type Engine struct {
	index     port.VectorIndex
	encoder   port.Encoder
	generator port.Generator
	prompts   port.PromptSource
	builder   *ContextBuilder
	cfg       EngineConfig
	logger    *zap.Logger

	initMu  sync.Mutex
	state   atomic.Int32
	initErr error
}

// NewEngine creates an engine. Nothing is loaded until the first Init or query.
func NewEngine(
	index port.VectorIndex,
	encoder port.Encoder,
	generator port.Generator,
	prompts port.PromptSource,
	builder *ContextBuilder,
	cfg EngineConfig,
	log *zap.Logger,
) *Engine {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if builder == nil {
		builder = NewContextBuilder(nil, 0)
	}
	return &Engine{
		index:     index,
		encoder:   encoder,
		generator: generator,
		prompts:   prompts,
		builder:   builder,
		cfg:       cfg,
		logger:    logger.OrNop(log),
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() EngineState {
	return EngineState(e.state.Load())
}

// CollectionInfo returns the collection introspection.
func (e *Engine) CollectionInfo(ctx context.Context) domain.CollectionInfo {
	return e.index.Info(ctx)
}

// Init attaches the collection and loads the embedding model. It is a no-op
// once Ready. A failure is terminal: every later call returns
// domain.ErrEngineFailed and a new Engine must be built to retry.
func (e *Engine) Init(ctx context.Context) error {
	if e.State() == StateReady {
		return nil
	}

	e.initMu.Lock()
	defer e.initMu.Unlock()

	switch e.State() {
	case StateReady:
		return nil
	case StateFailed:
		return fmt.Errorf("%w: %w", domain.ErrEngineFailed, e.initErr)
	}

	e.state.Store(int32(StateInitializing))
	if err := e.initialize(ctx); err != nil {
		// A caller giving up is not an engine failure; the next caller retries.
		if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			e.state.Store(int32(StateUninitialized))
			return err
		}
		e.initErr = err
		e.state.Store(int32(StateFailed))
		e.logger.Error("engine initialization failed", zap.Error(err))
		return fmt.Errorf("%w: %w", domain.ErrEngineFailed, err)
	}
	e.state.Store(int32(StateReady))
	return nil
}

func (e *Engine) initialize(ctx context.Context) error {
	if err := e.index.CreateCollection(ctx, false); err != nil {
		return fmt.Errorf("failed to attach collection: %w", err)
	}

	info := e.index.Info(ctx)
	if info.Status != domain.StatusReady {
		return fmt.Errorf("%w: %s is %s", domain.ErrCollectionNotReady, info.Name, info.Status)
	}
	e.logger.Info("collection ready", zap.String("collection", info.Name), zap.Int("count", info.Count))

	if err := e.encoder.Load(ctx); err != nil {
		return err
	}
	e.logger.Info("embedding model ready",
		zap.String("model", e.encoder.ModelName()),
		zap.Int("dimension", e.encoder.Dimension()))

	if pc, ok := e.index.(parityChecker); ok {
		if err := pc.CheckParity(e.encoder.ModelName(), e.encoder.Dimension()); err != nil {
			return err
		}
	}

	if mc, ok := e.generator.(modelChecker); ok {
		available, err := mc.HasModel(ctx)
		switch {
		case err != nil:
			e.logger.Warn("could not check generation model", zap.String("model", e.generator.ModelName()), zap.Error(err))
		case !available:
			e.logger.Warn("generation model not available", zap.String("model", e.generator.ModelName()))
		default:
			e.logger.Info("generation model ready", zap.String("model", e.generator.ModelName()))
		}
	}
	return nil
}

// QueryVectorOnly embeds question and returns the k nearest products.
// Search is best-effort: initialization and retrieval errors yield an
// empty result and are only logged.
func (e *Engine) QueryVectorOnly(ctx context.Context, question string, k int) (domain.SearchResult, error) {
	if err := e.Init(ctx); err != nil {
		logger.WithContext(ctx, e.logger).Error("engine unavailable, returning no results", zap.Error(err))
		return emptyResult(), nil
	}

	start := time.Now()
	defer func() {
		telemetry.QueryDuration.WithLabelValues("vector").Observe(time.Since(start).Seconds())
	}()

	ctx, span := telemetry.StartSpan(ctx, "Engine.QueryVectorOnly", attribute.Int("k", k))
	defer span.End()

	if k <= 0 {
		k = e.cfg.TopK
	}
	log := logger.WithContext(ctx, e.logger)

	result, err := e.search(ctx, question, k)
	if err != nil {
		telemetry.AddSpanError(ctx, err)
		telemetry.SearchErrorsTotal.Inc()
		if domain.IsFatal(err) {
			log.Error("vector search failed", zap.Error(err))
		} else {
			log.Warn("vector search failed", zap.Error(err))
		}
		return emptyResult(), nil
	}

	span.SetAttributes(attribute.Int("hits", len(result.Hits)))
	return result, nil
}

func (e *Engine) search(ctx context.Context, question string, k int) (domain.SearchResult, error) {
	vector, err := e.encoder.EncodeOne(ctx, question)
	if err != nil {
		return domain.SearchResult{}, fmt.Errorf("failed to embed question: %w", err)
	}
	return e.index.Search(ctx, question, vector, k)
}

// QueryDegraded searches with the index-internal text encoder instead of the
// embedding model. Results live in a different embedding space and are only
// fit for smoke tests.
func (e *Engine) QueryDegraded(ctx context.Context, question string, k int) (domain.SearchResult, error) {
	if k <= 0 {
		k = e.cfg.TopK
	}
	if err := e.index.CreateCollection(ctx, false); err != nil {
		return emptyResult(), fmt.Errorf("failed to attach collection: %w", err)
	}
	e.logger.Warn("searching without the embedding model; results are not production grade")
	return e.index.Search(ctx, question, nil, k)
}

// QueryWithLLM answers question through three tiers: a generated answer over
// the retrieved products, then a plain listing of those products when
// generation fails, then a fixed apology when nothing was retrieved.
// A failed engine answers with the apology tagged engine_failed.
func (e *Engine) QueryWithLLM(ctx context.Context, question string, k int) (domain.Answer, error) {
	if err := e.Init(ctx); err != nil {
		logger.WithContext(ctx, e.logger).Error("engine unavailable, answering without retrieval", zap.Error(err))
		answer := EngineFailedAnswer()
		telemetry.AnswersTotal.WithLabelValues(string(answer.Tier)).Inc()
		return answer, nil
	}

	start := time.Now()
	defer func() {
		telemetry.QueryDuration.WithLabelValues("llm").Observe(time.Since(start).Seconds())
	}()

	ctx, span := telemetry.StartSpan(ctx, "Engine.QueryWithLLM", attribute.Int("k", k))
	defer span.End()

	log := logger.WithContext(ctx, e.logger)

	// Never fails once initialized; errors surface as an empty result.
	result, _ := e.QueryVectorOnly(ctx, question, k)

	var answer domain.Answer
	if result.Empty() {
		answer = NoResultsAnswer()
	} else {
		var err error
		answer, err = e.GeneratedAnswer(ctx, question, result.Hits)
		if err != nil {
			telemetry.AddSpanEvent(ctx, "generation_fallback", attribute.String("reason", fallbackReason(err)))
			log.Warn("generation failed, answering from vector search",
				zap.String("reason", fallbackReason(err)),
				zap.Error(err))
			answer = VectorSearchAnswer(result.Hits, err)
		}
	}

	span.SetAttributes(attribute.String("tier", string(answer.Tier)))
	telemetry.AnswersTotal.WithLabelValues(string(answer.Tier)).Inc()
	return answer, nil
}

// GeneratedAnswer asks the generator to answer question over hits. The
// question is the user turn and the rendered context is the system turn.
func (e *Engine) GeneratedAnswer(ctx context.Context, question string, hits []domain.SearchHit) (domain.Answer, error) {
	systemContext := e.builder.Build(e.prompts.ContextTemplate(), e.prompts.SystemPrompt(), hits, question)

	text, err := e.generator.Generate(ctx, port.GenerateRequest{
		Prompt:        question,
		SystemContext: systemContext,
		Temperature:   e.cfg.Temperature,
		MaxTokens:     e.cfg.MaxTokens,
	})
	if err != nil {
		return domain.Answer{}, err
	}
	if strings.TrimSpace(text) == "" {
		return domain.Answer{}, errors.New("empty response from generator")
	}
	return domain.Ok(text), nil
}

// VectorSearchAnswer lists hits without generation.
func VectorSearchAnswer(hits []domain.SearchHit, cause error) domain.Answer {
	return domain.Degraded(FormatVectorResults(hits), domain.TierVectorSearch, fallbackReason(cause))
}

// NoResultsAnswer is the terminal answer when nothing was retrieved.
func NoResultsAnswer() domain.Answer {
	return domain.Degraded(NoResultsMessage, domain.TierNoResults, "no_results")
}

// EngineFailedAnswer is the apology returned by an engine that could not initialize.
func EngineFailedAnswer() domain.Answer {
	return domain.Degraded(NoResultsMessage, domain.TierNoResults, "engine_failed")
}

func fallbackReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrLLMTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrLLMUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}

func emptyResult() domain.SearchResult {
	return domain.SearchResult{Hits: []domain.SearchHit{}}
}
