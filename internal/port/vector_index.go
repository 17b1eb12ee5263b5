package port

import (
	"context"

	"productrag/internal/domain"
)

// VectorIndex persists entries in a named collection and searches them.
type VectorIndex interface {
	// CreateCollection attaches to the collection, creating it when absent.
	// With reset it first deletes every existing entry. Reset is destructive.
	CreateCollection(ctx context.Context, reset bool) error

	// Index upserts entries in bounded batches; the id is the dedup key.
	Index(ctx context.Context, entries []domain.IndexEntry, progress func(done, total int)) error

	// Search ranks entries by cosine distance. A nil vector selects the
	// index-internal default encoder, which is a degraded mode.
	Search(ctx context.Context, text string, vector []float32, k int) (domain.SearchResult, error)

	// Info returns status and count.
	Info(ctx context.Context) domain.CollectionInfo
}
