package api

import (
	"context"

	"productrag/internal/domain"
	"productrag/internal/usecase"
)

// QueryEngine is the engine surface the HTTP layer needs.
type QueryEngine interface {
	QueryVectorOnly(ctx context.Context, question string, k int) (domain.SearchResult, error)
	QueryWithLLM(ctx context.Context, question string, k int) (domain.Answer, error)
	CollectionInfo(ctx context.Context) domain.CollectionInfo
	State() usecase.EngineState
}

var _ QueryEngine = (*usecase.Engine)(nil)
