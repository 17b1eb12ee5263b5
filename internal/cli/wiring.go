package cli

import (
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"productrag/config"
	"productrag/internal/adapter/analyzer"
	"productrag/internal/adapter/cache"
	"productrag/internal/adapter/embedding"
	"productrag/internal/adapter/llm"
	"productrag/internal/adapter/prompt"
	"productrag/internal/adapter/store"
	"productrag/internal/logger"
	"productrag/internal/port"
	"productrag/internal/usecase"
)

// newBackend selects the embedding backend named by the config.
func newBackend(cfg *config.Config) (port.EmbeddingBackend, error) {
	switch cfg.Embedding.Provider {
	case "ollama":
		return embedding.NewOllamaBackend(cfg.Embedding.Model, cfg.Embedding.BaseURL), nil
	case "openai":
		return embedding.NewOpenAIBackend(cfg.Embedding.APIKeyEnv, cfg.Embedding.Model, cfg.Embedding.BaseURL)
	case "hash":
		return embedding.NewHashBackend(cfg.Embedding.Dimension), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Embedding.Provider)
	}
}

// newEmbeddingCache builds the query vector cache. The returned redis client
// is nil unless a URL is configured.
func newEmbeddingCache(cfg *config.Config, log *zap.Logger) (*cache.EmbeddingCache, *redis.Client, error) {
	rdb, err := cache.NewRedisClient(cfg.Cache.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	local := cache.NewQueryCache(cfg.Cache.Size, cfg.Cache.TTL)
	return cache.NewEmbeddingCache(local, rdb, cfg.Cache.RedisTTL, log), rdb, nil
}

func newEncoder(cfg *config.Config, c port.EmbeddingCache, log *zap.Logger) (*embedding.Client, error) {
	backend, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}
	return embedding.NewClient(backend, embedding.ClientConfig{
		BatchSize: cfg.Embedding.BatchSize,
		MaxLength: cfg.Embedding.MaxLength,
		Dimension: cfg.Embedding.Dimension,
		Normalize: cfg.Embedding.Normalize,
	}, c, log), nil
}

// openCollection opens the bbolt store and a handle on the configured collection.
func openCollection(cfg *config.Config, root, model string, log *zap.Logger) (*store.BoltStore, *store.Collection, error) {
	if err := cfg.EnsureDataDirs(root); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directories: %w", err)
	}
	st, err := store.NewBoltStore(cfg.IndexDBPath(root))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open vector store: %w", err)
	}
	collection := store.NewCollection(st, cfg.VectorStore.Collection, store.CollectionOptions{
		BatchSize: cfg.VectorStore.BatchSize,
		Model:     model,
		Fallback:  embedding.NewTFIDFEncoder(),
		Logger:    log,
	})
	return st, collection, nil
}

func newGenerator(cfg *config.Config, log *zap.Logger) *llm.OllamaClient {
	return llm.NewOllamaClient(llm.Config{
		Host:           cfg.LLM.Host,
		Model:          cfg.LLM.Model,
		Temperature:    cfg.LLM.Temperature,
		TopP:           cfg.LLM.TopP,
		TopK:           cfg.LLM.TopK,
		MaxTokens:      cfg.LLM.MaxTokens,
		Timeout:        cfg.LLM.Timeout,
		PingTimeout:    cfg.LLM.PingTimeout,
		RestartCommand: cfg.LLM.RestartCommand,
		RestartWait:    cfg.LLM.RestartWait,
		Logger:         log,
	})
}

func newPromptStore(cfg *config.Config, root string, log *zap.Logger) *prompt.Store {
	return prompt.NewStore(cfg.PromptsDir(root), cfg.Prompts.SystemPrompt, cfg.Prompts.QueryTemplates, log)
}

// runtime holds everything a query command needs.
type runtime struct {
	engine         *usecase.Engine
	contextBuilder *usecase.ContextBuilder
	store          *store.BoltStore
	collection     *store.Collection
	encoder        *embedding.Client
	cache          *cache.EmbeddingCache
	generator      *llm.OllamaClient
	prompts        *prompt.Store
	redis          *redis.Client
}

func buildRuntime(cfg *config.Config, root string) (*runtime, error) {
	log := logger.Get()

	embCache, rdb, err := newEmbeddingCache(cfg, log)
	if err != nil {
		return nil, err
	}
	encoder, err := newEncoder(cfg, embCache, log)
	if err != nil {
		return nil, err
	}
	st, collection, err := openCollection(cfg, root, encoder.ModelName(), log)
	if err != nil {
		return nil, err
	}

	generator := newGenerator(cfg, log)
	prompts := newPromptStore(cfg, root, log)
	builder := usecase.NewContextBuilder(analyzer.NewTokenizer(false), cfg.Prompts.ContextBudget)

	engine := usecase.NewEngine(collection, encoder, generator, prompts, builder, usecase.EngineConfig{
		TopK:        cfg.VectorStore.TopK,
		Temperature: cfg.LLM.AnswerTemperature,
		MaxTokens:   cfg.LLM.AnswerMaxTokens,
	}, log)

	return &runtime{
		engine:         engine,
		contextBuilder: builder,
		store:          st,
		collection:     collection,
		encoder:        encoder,
		cache:          embCache,
		generator:      generator,
		prompts:        prompts,
		redis:          rdb,
	}, nil
}

func (r *runtime) Close() {
	if r.redis != nil {
		_ = r.redis.Close()
	}
	if err := r.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to close vector store: %v\n", err)
	}
}
