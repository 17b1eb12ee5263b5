package port

import (
	"context"
	"time"
)

// GenerateRequest carries one generation call.
type GenerateRequest struct {
	Prompt        string
	SystemContext string
	Temperature   float64
	MaxTokens     int
	Timeout       time.Duration
}

// Generator represents a language model for answer generation.
type Generator interface {
	// Generate returns the model reply. Backend-down and timeout are
	// reported as domain.ErrLLMUnavailable and domain.ErrLLMTimeout.
	Generate(ctx context.Context, req GenerateRequest) (string, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// ModelName returns the name of the model.
	ModelName() string
}
