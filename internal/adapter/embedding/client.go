package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"productrag/internal/domain"
	"productrag/internal/logger"
	"productrag/internal/port"
	"productrag/internal/telemetry"
)

// ClientConfig controls batching and post-processing of vectors.
type ClientConfig struct {
	BatchSize int
	// MaxLength truncates input texts, in runes. 0 disables truncation.
	MaxLength int
	// Dimension is the expected vector size. 0 accepts the backend's.
	Dimension int
	Normalize bool
}

// Client is the embedding client shared by index build and query time.
// The model is loaded once per Client; concurrent first callers share the
// load and a failed load is remembered.
type Client struct {
	backend port.EmbeddingBackend
	cache   port.EmbeddingCache
	cfg     ClientConfig
	logger  *zap.Logger

	group   singleflight.Group
	mu      sync.RWMutex
	loaded  bool
	loadErr error
	dim     int
}

var _ port.Encoder = (*Client)(nil)

// NewClient wraps backend. cache may be nil.
func NewClient(backend port.EmbeddingBackend, cfg ClientConfig, cache port.EmbeddingCache, log *zap.Logger) *Client {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	return &Client{
		backend: backend,
		cache:   cache,
		cfg:     cfg,
		logger:  logger.OrNop(log),
	}
}

// Load runs the model load once. The shared load is detached from the
// caller's cancellation; a caller that gives up returns its own ctx error
// and the load keeps going for everyone else. Cancellation is never
// remembered as a load failure.
func (c *Client) Load(ctx context.Context) error {
	c.mu.RLock()
	loaded, loadErr := c.loaded, c.loadErr
	c.mu.RUnlock()
	if loaded {
		return nil
	}
	if loadErr != nil {
		return loadErr
	}

	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan("load", func() (interface{}, error) {
		c.mu.RLock()
		done, prevErr := c.loaded, c.loadErr
		c.mu.RUnlock()
		if done || prevErr != nil {
			return nil, prevErr
		}

		err := c.load(shared)

		c.mu.Lock()
		switch {
		case err == nil:
			c.loaded = true
		case !isContextErr(err):
			c.loadErr = err
		}
		c.mu.Unlock()
		return nil, err
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

func (c *Client) load(ctx context.Context) error {
	c.logger.Info("loading embedding model", zap.String("model", c.backend.ModelName()))

	if err := c.backend.Load(ctx); err != nil {
		c.logger.Error("embedding model load failed", zap.String("model", c.backend.ModelName()), zap.Error(err))
		return fmt.Errorf("%w: %s: %w", domain.ErrModelLoad, c.backend.ModelName(), err)
	}

	dim := c.backend.Dimension()
	if dim <= 0 {
		return fmt.Errorf("%w: %s reported dimension %d", domain.ErrModelLoad, c.backend.ModelName(), dim)
	}
	if c.cfg.Dimension != 0 && dim != c.cfg.Dimension {
		return fmt.Errorf("%w: model %s produces %d, configured %d",
			domain.ErrDimensionMismatch, c.backend.ModelName(), dim, c.cfg.Dimension)
	}

	c.mu.Lock()
	c.dim = dim
	c.mu.Unlock()

	c.logger.Info("embedding model ready",
		zap.String("model", c.backend.ModelName()),
		zap.Int("dimension", dim))
	return nil
}

// Encode embeds texts in batches of the configured size.
func (c *Client) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if err := c.Load(ctx); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, nil
	}

	dim := c.Dimension()
	out := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += c.cfg.BatchSize {
		end := i + c.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := make([]string, end-i)
		for j, text := range texts[i:end] {
			batch[j] = truncate(text, c.cfg.MaxLength)
		}

		vectors, err := c.backend.Embed(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("%w: batch %d-%d: %w", domain.ErrEncode, i, end, err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("%w: backend returned %d vectors for %d texts", domain.ErrEncode, len(vectors), len(batch))
		}

		for _, v := range vectors {
			if len(v) != dim {
				return nil, fmt.Errorf("%w: got vector of size %d, expected %d", domain.ErrDimensionMismatch, len(v), dim)
			}
			if c.cfg.Normalize {
				normalize(v)
			}
			out = append(out, v)
		}
		telemetry.EmbedTextsTotal.Add(float64(len(batch)))
	}

	return out, nil
}

// EncodeOne embeds a single text into a flat vector. Query vectors go
// through the cache when one is configured.
func (c *Client) EncodeOne(ctx context.Context, text string) ([]float32, error) {
	model := c.backend.ModelName()
	if c.cache != nil {
		if v, ok := c.cache.Get(ctx, model, text); ok {
			return v, nil
		}
	}

	// Callers asking the same question share one encode; one caller
	// cancelling must not fail the others.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan("q:"+text, func() (interface{}, error) {
		vectors, err := c.Encode(shared, []string{text})
		if err != nil {
			return nil, err
		}
		return vectors[0], nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}

	v := res.Val.([]float32)
	if c.cache != nil {
		c.cache.Set(ctx, model, text, v)
	}
	return v, nil
}

// Dimension returns the loaded dimension, or the configured one before load.
func (c *Client) Dimension() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.dim > 0 {
		return c.dim
	}
	return c.cfg.Dimension
}

func (c *Client) ModelName() string {
	return c.backend.ModelName()
}

// Loaded reports whether the model is ready.
func (c *Client) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func truncate(text string, maxRunes int) string {
	if maxRunes <= 0 {
		return text
	}
	r := []rune(text)
	if len(r) <= maxRunes {
		return text
	}
	return string(r[:maxRunes])
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	n := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= n
	}
}
