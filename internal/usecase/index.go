package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"productrag/internal/adapter/store"
	"productrag/internal/domain"
	"productrag/internal/logger"
	"productrag/internal/port"
)

// IndexUseCase loads an embedding artifact into the collection.
type IndexUseCase struct {
	index  port.VectorIndex
	cache  port.EmbeddingCache
	model  string
	logger *zap.Logger
}

// NewIndexUseCase creates a new index use case. model is the embedding model
// the collection serves; cache may be nil.
func NewIndexUseCase(index port.VectorIndex, cache port.EmbeddingCache, model string, log *zap.Logger) *IndexUseCase {
	return &IndexUseCase{
		index:  index,
		cache:  cache,
		model:  model,
		logger: logger.OrNop(log),
	}
}

// IndexResult contains the results of an indexing operation.
type IndexResult struct {
	Indexed int
	Info    domain.CollectionInfo
}

// Run indexes the artifact at artifactPath. With reset every existing entry
// of the collection is discarded first.
func (u *IndexUseCase) Run(ctx context.Context, artifactPath string, reset bool, progress func(done, total int)) (*IndexResult, error) {
	artifact, err := store.LoadArtifact(artifactPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load artifact: %w", err)
	}
	return u.Index(ctx, artifact, reset, progress)
}

// Index writes an in-memory artifact.
func (u *IndexUseCase) Index(ctx context.Context, artifact *domain.EmbeddingArtifact, reset bool, progress func(done, total int)) (*IndexResult, error) {
	if err := store.ValidateArtifact(artifact); err != nil {
		return nil, fmt.Errorf("invalid artifact: %w", err)
	}
	if u.model != "" && artifact.Metadata.ModelName != u.model {
		return nil, fmt.Errorf("%w: artifact built with %s, collection serves %s",
			domain.ErrParityMismatch, artifact.Metadata.ModelName, u.model)
	}

	if err := u.index.CreateCollection(ctx, reset); err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}
	if reset {
		u.logger.Warn("collection reset, previous entries discarded")
	}

	if pc, ok := u.index.(parityChecker); ok {
		if err := pc.CheckParity(artifact.Metadata.ModelName, artifact.Metadata.EmbeddingDim); err != nil {
			return nil, err
		}
	}

	entries := store.EntriesFromArtifact(artifact)
	if err := u.index.Index(ctx, entries, progress); err != nil {
		return nil, fmt.Errorf("failed to index entries: %w", err)
	}

	if u.cache != nil {
		u.cache.Invalidate()
	}

	info := u.index.Info(ctx)
	u.logger.Info("index complete",
		zap.String("collection", info.Name),
		zap.Int("indexed", len(entries)),
		zap.Int("count", info.Count))
	return &IndexResult{Indexed: len(entries), Info: info}, nil
}
