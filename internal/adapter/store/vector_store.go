package store

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"productrag/internal/domain"
	"productrag/internal/logger"
	"productrag/internal/port"
	"productrag/internal/telemetry"
)

// CollectionOptions configures a Collection handle.
type CollectionOptions struct {
	// BatchSize bounds the entries written per transaction.
	BatchSize int
	// Model names the embedding model whose vectors are indexed.
	Model string
	// Fallback encodes raw query text when no vector is given. Optional.
	Fallback port.TextEncoder
	Logger   *zap.Logger
}

// Collection is a named set of entries searched by brute-force cosine
// distance. Entries are mirrored in memory in insertion order.
type Collection struct {
	store *BoltStore
	name  string
	opts  CollectionOptions
	log   *zap.Logger

	mu      sync.RWMutex
	created bool
	meta    *CollectionMeta
	entries []storedEntry
	pos     map[string]int
	version uint64

	fitMu      sync.Mutex
	fitted     bool
	fitVecs    [][]float32
	fitVersion uint64
}

var _ port.VectorIndex = (*Collection)(nil)

type storedEntry struct {
	Seq      uint64            `json:"seq"`
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Vector   []float32         `json:"vector"`
}

func NewCollection(store *BoltStore, name string, opts CollectionOptions) *Collection {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	return &Collection{
		store: store,
		name:  name,
		opts:  opts,
		log:   logger.OrNop(opts.Logger).With(zap.String("collection", name)),
		pos:   make(map[string]int),
	}
}

func (c *Collection) Name() string {
	return c.name
}

// CreateCollection attaches to the collection, creating it when absent.
// With reset every stored entry is permanently deleted first.
func (c *Collection) CreateCollection(ctx context.Context, reset bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var meta *CollectionMeta
	var entries []storedEntry

	err := c.store.db.Update(func(tx *bbolt.Tx) error {
		bucketName := entryBucket(c.name)
		if reset {
			if tx.Bucket(bucketName) != nil {
				if err := tx.DeleteBucket(bucketName); err != nil {
					return fmt.Errorf("failed to delete collection bucket: %w", err)
				}
			}
			if err := tx.Bucket(bucketCollections).Delete([]byte(c.name)); err != nil {
				return err
			}
		}

		b, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return fmt.Errorf("failed to create collection bucket: %w", err)
		}

		meta, err = getMeta(tx, c.name)
		if err != nil {
			return err
		}
		if meta == nil {
			meta = &CollectionMeta{
				Name:       c.name,
				InstanceID: uuid.NewString(),
				CreatedAt:  time.Now().UTC(),
			}
			if err := putMeta(tx, meta); err != nil {
				return err
			}
		}

		return b.ForEach(func(k, v []byte) error {
			var e storedEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("failed to decode entry %s: %w", k, err)
			}
			entries = append(entries, e)
			return nil
		})
	})
	if err != nil {
		return err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })

	c.created = true
	c.meta = meta
	c.version++
	c.entries = entries
	c.pos = make(map[string]int, len(entries))
	for i, e := range entries {
		c.pos[e.ID] = i
	}

	if reset {
		c.log.Warn("collection reset", zap.String("instance_id", meta.InstanceID))
	}
	c.log.Info("collection attached", zap.Int("count", len(entries)))
	return nil
}

// Index upserts entries in batches. Each batch is one transaction; a
// failed batch aborts the load and earlier batches stay committed.
func (c *Collection) Index(ctx context.Context, entries []domain.IndexEntry, progress func(done, total int)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.created {
		return fmt.Errorf("%w: %s", domain.ErrCollectionNotReady, c.name)
	}
	if len(entries) == 0 {
		if progress != nil {
			progress(0, 0)
		}
		return nil
	}

	dim := c.meta.Dimension
	if dim == 0 {
		dim = len(entries[0].Vector)
	}
	for _, e := range entries {
		if e.ID == "" {
			return fmt.Errorf("entry with empty id")
		}
		if len(e.Vector) != dim {
			return fmt.Errorf("%w: entry %s has %d dimensions, collection uses %d",
				domain.ErrDimensionMismatch, e.ID, len(e.Vector), dim)
		}
	}
	if err := c.meta.CheckParity(c.opts.Model, dim); err != nil {
		return err
	}

	for start := 0; start < len(entries); start += c.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := start + c.opts.BatchSize
		if end > len(entries) {
			end = len(entries)
		}
		if err := c.writeBatch(entries[start:end], dim); err != nil {
			return fmt.Errorf("failed to index batch %d-%d: %w", start, end, err)
		}
		if progress != nil {
			progress(end, len(entries))
		}
	}

	c.log.Info("indexed entries", zap.Int("entries", len(entries)), zap.Int("count", len(c.entries)))
	return nil
}

func (c *Collection) writeBatch(batch []domain.IndexEntry, dim int) error {
	written := make([]storedEntry, 0, len(batch))
	meta := *c.meta

	err := c.store.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(entryBucket(c.name))
		if b == nil {
			return fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, c.name)
		}

		for _, e := range batch {
			stored := storedEntry{
				ID:       e.ID,
				Text:     e.Text,
				Metadata: e.Metadata,
				Vector:   e.Vector,
			}
			if i, ok := c.pos[e.ID]; ok {
				stored.Seq = c.entries[i].Seq
			} else {
				seq, err := b.NextSequence()
				if err != nil {
					return err
				}
				stored.Seq = seq
			}

			data, err := json.Marshal(stored)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(e.ID), data); err != nil {
				return err
			}
			written = append(written, stored)
		}

		if meta.Fingerprint == "" {
			meta.Model = c.opts.Model
			meta.Dimension = dim
			meta.Fingerprint = Fingerprint(c.opts.Model, dim)
			return putMeta(tx, &meta)
		}
		return nil
	})
	if err != nil {
		return err
	}

	*c.meta = meta
	c.version++
	for _, e := range written {
		if i, ok := c.pos[e.ID]; ok {
			c.entries[i] = e
			continue
		}
		c.pos[e.ID] = len(c.entries)
		c.entries = append(c.entries, e)
	}
	return nil
}

// Search returns the k nearest entries by cosine distance, ascending, with
// ties in insertion order. A nil vector uses the fallback text encoder.
func (c *Collection) Search(ctx context.Context, text string, vector []float32, k int) (domain.SearchResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "Collection.Search",
		attribute.String("collection", c.name),
		attribute.Int("k", k),
		attribute.Bool("degraded", vector == nil))
	defer span.End()

	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.created {
		err := fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, c.name)
		telemetry.AddSpanError(ctx, err)
		return domain.SearchResult{}, err
	}
	if len(c.entries) == 0 {
		return domain.SearchResult{Hits: []domain.SearchHit{}}, nil
	}

	vectors := make([][]float32, len(c.entries))
	if vector == nil {
		q, fitted, err := c.fallbackVectors(text)
		if err != nil {
			telemetry.AddSpanError(ctx, err)
			return domain.SearchResult{}, err
		}
		vector = q
		vectors = fitted
		c.log.Warn("degraded text search with fallback encoder", zap.String("encoder", c.opts.Fallback.Name()))
	} else {
		if len(vector) != c.meta.Dimension {
			err := fmt.Errorf("%w: query has %d dimensions, collection uses %d",
				domain.ErrDimensionMismatch, len(vector), c.meta.Dimension)
			telemetry.AddSpanError(ctx, err)
			return domain.SearchResult{}, err
		}
		for i, e := range c.entries {
			vectors[i] = e.Vector
		}
	}

	hits := make([]domain.SearchHit, len(c.entries))
	for i, e := range c.entries {
		hits[i] = domain.SearchHit{
			ID:       e.ID,
			Text:     e.Text,
			Metadata: e.Metadata,
			Distance: cosineDistance(vector, vectors[i]),
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})

	if k <= 0 || k > len(hits) {
		k = len(hits)
	}
	return domain.SearchResult{Hits: hits[:k]}, nil
}

// fallbackVectors fits the fallback encoder on the collection texts once
// per content version and encodes the query with it. Caller holds c.mu.
func (c *Collection) fallbackVectors(text string) ([]float32, [][]float32, error) {
	if c.opts.Fallback == nil {
		return nil, nil, fmt.Errorf("%w: no query vector and no fallback encoder", domain.ErrModelNotLoaded)
	}

	c.fitMu.Lock()
	defer c.fitMu.Unlock()

	if !c.fitted || c.fitVersion != c.version {
		corpus := make([]string, len(c.entries))
		for i, e := range c.entries {
			corpus[i] = e.Text
		}
		if err := c.opts.Fallback.Fit(corpus); err != nil {
			return nil, nil, fmt.Errorf("failed to fit fallback encoder: %w", err)
		}

		vecs := make([][]float32, len(corpus))
		for i, t := range corpus {
			v, err := c.opts.Fallback.EncodeText(t)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to encode entry text: %w", err)
			}
			vecs[i] = v
		}
		c.fitVecs = vecs
		c.fitVersion = c.version
		c.fitted = true
	}

	q, err := c.opts.Fallback.EncodeText(text)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode query text: %w", err)
	}
	return q, c.fitVecs, nil
}

// Info reports status and size. It never fails.
func (c *Collection) Info(ctx context.Context) domain.CollectionInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	info := domain.CollectionInfo{
		Status: domain.StatusNotInitialized,
		Name:   c.name,
	}
	if !c.created {
		return info
	}

	info.Status = domain.StatusReady
	info.Count = len(c.entries)
	info.Model = c.meta.Model
	info.Dimension = c.meta.Dimension
	info.Fingerprint = c.meta.Fingerprint
	info.InstanceID = c.meta.InstanceID
	return info
}

// CheckParity verifies that an encoder matches the indexed vectors.
func (c *Collection) CheckParity(model string, dimension int) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.created {
		return fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, c.name)
	}
	return c.meta.CheckParity(model, dimension)
}

// Get returns a stored entry by id.
func (c *Collection) Get(id string) (domain.IndexEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.pos[id]
	if !ok {
		return domain.IndexEntry{}, false
	}
	e := c.entries[i]
	return domain.IndexEntry{ID: e.ID, Text: e.Text, Metadata: e.Metadata, Vector: e.Vector}, true
}

// cosineDistance is 1 - cosine similarity, clamped to [0, 2]. A zero
// vector is at distance 1 from everything.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		return 1
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}

	d := 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
	return math.Max(0, math.Min(2, d))
}
