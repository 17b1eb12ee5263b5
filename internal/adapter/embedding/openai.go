package embedding

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"

	"productrag/internal/port"
)

const probeText = "kiểm tra"

// OpenAIBackend calls an OpenAI-compatible /embeddings endpoint. Ollama
// exposes the same API under /v1, so one backend serves both providers.
type OpenAIBackend struct {
	client    *openai.Client
	model     string
	dimension int
}

var _ port.EmbeddingBackend = (*OpenAIBackend)(nil)

func NewOpenAIBackend(apiKeyEnv, model, baseURL string) (*OpenAIBackend, error) {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("API key not found in environment variable: %s", apiKeyEnv)
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &OpenAIBackend{
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		dimension: knownDimension(model),
	}, nil
}

// NewOllamaBackend talks to a local Ollama server. host is the server root,
// e.g. http://localhost:11434.
func NewOllamaBackend(model, host string) *OpenAIBackend {
	if host == "" {
		host = "http://localhost:11434"
	}
	host = strings.TrimRight(host, "/")
	if !strings.HasSuffix(host, "/v1") {
		host += "/v1"
	}

	cfg := openai.DefaultConfig("ollama")
	cfg.BaseURL = host
	return &OpenAIBackend{
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		dimension: knownDimension(model),
	}
}

// Load probes the endpoint once; the reply fixes the dimension.
func (b *OpenAIBackend) Load(ctx context.Context) error {
	vectors, err := b.Embed(ctx, []string{probeText})
	if err != nil {
		return err
	}
	b.dimension = len(vectors[0])
	return nil
}

func (b *OpenAIBackend) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := b.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(b.model),
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings request failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings API returned %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	embeddings := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(embeddings) {
			return nil, fmt.Errorf("embeddings API returned out of range index %d", data.Index)
		}
		embeddings[data.Index] = data.Embedding
	}
	return embeddings, nil
}

func (b *OpenAIBackend) Dimension() int {
	return b.dimension
}

func (b *OpenAIBackend) ModelName() string {
	return b.model
}

func knownDimension(model string) int {
	switch model {
	case string(openai.LargeEmbedding3):
		return 3072
	case string(openai.SmallEmbedding3), string(openai.AdaEmbeddingV2):
		return 1536
	case "nomic-embed-text", "paraphrase-multilingual":
		return 768
	case "mxbai-embed-large":
		return 1024
	case "all-minilm":
		return 384
	}
	return 0
}
