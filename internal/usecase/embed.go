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

// EmbedUseCase encodes the chunk store into an embedding artifact.
type EmbedUseCase struct {
	encoder   port.Encoder
	batchSize int
	logger    *zap.Logger
}

// NewEmbedUseCase creates a new embed use case. batchSize bounds the texts
// handed to the encoder between progress reports.
func NewEmbedUseCase(encoder port.Encoder, batchSize int, log *zap.Logger) *EmbedUseCase {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &EmbedUseCase{
		encoder:   encoder,
		batchSize: batchSize,
		logger:    logger.OrNop(log),
	}
}

// Run embeds every chunk at chunksPath and writes the artifact to artifactPath.
func (u *EmbedUseCase) Run(ctx context.Context, chunksPath, artifactPath string, progress func(done, total int)) (*domain.EmbeddingArtifact, error) {
	chunks, err := store.LoadChunks(chunksPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %s has no chunks", domain.ErrEmptyCorpus, chunksPath)
	}

	artifact, err := u.Embed(ctx, chunks, progress)
	if err != nil {
		return nil, err
	}

	if err := store.SaveArtifact(artifactPath, artifact); err != nil {
		return nil, fmt.Errorf("failed to save artifact: %w", err)
	}
	u.logger.Info("embeddings saved",
		zap.String("path", artifactPath),
		zap.Int("documents", artifact.Metadata.NumDocuments),
		zap.Int("dimension", artifact.Metadata.EmbeddingDim))
	return artifact, nil
}

// Embed encodes chunk texts in order.
func (u *EmbedUseCase) Embed(ctx context.Context, chunks []domain.Chunk, progress func(done, total int)) (*domain.EmbeddingArtifact, error) {
	if err := u.encoder.Load(ctx); err != nil {
		return nil, err
	}

	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += u.batchSize {
		end := start + u.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}

		batch, err := u.encoder.Encode(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunks %d-%d: %w", start, end, err)
		}
		vectors = append(vectors, batch...)

		if progress != nil {
			progress(end, len(chunks))
		}
	}

	return &domain.EmbeddingArtifact{
		Embeddings: vectors,
		Documents:  chunks,
		Metadata: domain.EmbeddingManifest{
			ModelName:    u.encoder.ModelName(),
			EmbeddingDim: u.encoder.Dimension(),
			NumDocuments: len(chunks),
		},
	}, nil
}
