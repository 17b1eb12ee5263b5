package port

import "context"

// EmbeddingBackend turns texts into raw vectors. It knows nothing about
// batching policy or normalization.
type EmbeddingBackend interface {
	// Load prepares the model. It may block on a download or a remote probe.
	Load(ctx context.Context) error

	// Embed returns one vector per input text.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the vector dimension. Valid after Load.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string
}

// Encoder is the embedding client used at build time and query time.
type Encoder interface {
	// Load is lazy and idempotent; concurrent first calls share one load.
	Load(ctx context.Context) error

	// Encode embeds texts in internal batches.
	Encode(ctx context.Context, texts []string) ([][]float32, error)

	// EncodeOne embeds a single text into a flat vector.
	EncodeOne(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the vector dimension shared by every output.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string
}

// TextEncoder is a corpus-fitted encoder a vector index can fall back to
// when no query vector is supplied.
type TextEncoder interface {
	Fit(corpus []string) error
	EncodeText(text string) ([]float32, error)
	Name() string
}

// EmbeddingCache stores query vectors keyed by model and text.
type EmbeddingCache interface {
	Get(ctx context.Context, model, text string) ([]float32, bool)
	Set(ctx context.Context, model, text string, vector []float32)
	Invalidate()
}
