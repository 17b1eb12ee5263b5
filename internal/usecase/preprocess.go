package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"productrag/internal/adapter/fs"
	"productrag/internal/adapter/normalizer"
	"productrag/internal/adapter/store"
	"productrag/internal/domain"
	"productrag/internal/logger"
	"productrag/internal/port"
)

// PreprocessUseCase turns raw catalog files into documents and chunks.
type PreprocessUseCase struct {
	walker     *fs.Walker
	normalizer *normalizer.Normalizer
	chunker    port.Chunker
	logger     *zap.Logger
}

// NewPreprocessUseCase creates a new preprocess use case.
func NewPreprocessUseCase(
	walker *fs.Walker,
	normalizer *normalizer.Normalizer,
	chunker port.Chunker,
	log *zap.Logger,
) *PreprocessUseCase {
	return &PreprocessUseCase{
		walker:     walker,
		normalizer: normalizer,
		chunker:    chunker,
		logger:     logger.OrNop(log),
	}
}

// PreprocessOptions selects inputs and outputs.
type PreprocessOptions struct {
	// RawDir is searched when Files is empty.
	RawDir string
	// Files overrides discovery.
	Files []string
	// All ingests every matching file instead of the most recent one.
	All bool

	DocumentsPath string
	ChunksPath    string
}

// PreprocessResult contains the results of a preprocess run.
type PreprocessResult struct {
	Files     []string
	Records   int
	Documents int
	Skipped   int
	Chunks    int
	Errors    []string
}

// Run loads, normalizes and chunks the catalog, then writes both stores.
func (u *PreprocessUseCase) Run(ctx context.Context, opts PreprocessOptions) (*PreprocessResult, error) {
	files, err := u.inputs(opts)
	if err != nil {
		return nil, err
	}
	result := &PreprocessResult{Files: files}

	var records []domain.CatalogRecord
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		recs, err := normalizer.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		u.logger.Info("loaded catalog file", zap.String("path", path), zap.Int("records", len(recs)))
		records = append(records, recs...)
	}

	normalized := u.normalizer.NormalizeAll(records)
	result.Records = normalized.Records
	result.Skipped = normalized.Skipped
	result.Errors = normalized.Errors
	result.Documents = len(normalized.Documents)
	for _, msg := range normalized.Errors {
		u.logger.Warn("record skipped", zap.String("reason", msg))
	}

	if len(normalized.Documents) == 0 {
		return result, fmt.Errorf("%w: no documents in %d records", domain.ErrEmptyCorpus, result.Records)
	}

	if err := store.SaveDocuments(opts.DocumentsPath, normalized.Documents); err != nil {
		return nil, fmt.Errorf("failed to save documents: %w", err)
	}

	var chunks []domain.Chunk
	for _, doc := range normalized.Documents {
		docChunks, err := u.chunker.Chunk(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to chunk %s: %w", doc.ID, err)
		}
		chunks = append(chunks, docChunks...)
	}
	result.Chunks = len(chunks)

	if err := store.SaveChunks(opts.ChunksPath, chunks); err != nil {
		return nil, fmt.Errorf("failed to save chunks: %w", err)
	}

	u.logger.Info("preprocess complete",
		zap.Int("documents", result.Documents),
		zap.Int("chunks", result.Chunks),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

func (u *PreprocessUseCase) inputs(opts PreprocessOptions) ([]string, error) {
	if len(opts.Files) > 0 {
		return opts.Files, nil
	}

	if !opts.All {
		latest, err := u.walker.Latest(opts.RawDir)
		if err != nil {
			return nil, err
		}
		return []string{latest.Path}, nil
	}

	files, err := u.walker.Walk(opts.RawDir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no catalog files found in %s", opts.RawDir)
	}
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	return paths, nil
}
