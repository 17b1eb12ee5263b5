package embedding

import (
	"context"
	"hash/fnv"

	"productrag/internal/adapter/analyzer"
	"productrag/internal/port"
)

// HashBackend is an offline backend that hashes folded word unigrams and
// bigrams into a fixed number of buckets. Texts sharing words land close
// together, which is enough for tests and air-gapped smoke runs.
type HashBackend struct {
	dimension int
	tokenizer *analyzer.Tokenizer
}

var _ port.EmbeddingBackend = (*HashBackend)(nil)

func NewHashBackend(dimension int) *HashBackend {
	if dimension <= 0 {
		dimension = 384
	}
	return &HashBackend{
		dimension: dimension,
		tokenizer: analyzer.NewTokenizer(true),
	}
}

func (b *HashBackend) Load(ctx context.Context) error {
	return ctx.Err()
}

func (b *HashBackend) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		embeddings[i] = b.embed(text)
	}
	return embeddings, nil
}

func (b *HashBackend) embed(text string) []float32 {
	vec := make([]float32, b.dimension)
	tokens := b.tokenizer.Tokenize(text)

	for i, tok := range tokens {
		vec[b.bucket(tok)] += 1
		if i > 0 {
			vec[b.bucket(tokens[i-1]+" "+tok)] += 0.5
		}
	}
	return vec
}

func (b *HashBackend) bucket(s string) int {
	h := fnv.New32a()
	h.Write([]byte(s))
	return int(h.Sum32() % uint32(b.dimension))
}

func (b *HashBackend) Dimension() int {
	return b.dimension
}

func (b *HashBackend) ModelName() string {
	return "hash"
}
