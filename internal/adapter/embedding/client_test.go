package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"productrag/internal/domain"
)

type fakeBackend struct {
	dim      int
	loadErr  error
	embedErr error
	loads    atomic.Int32
	batches  [][]string
	mu       sync.Mutex
}

func (f *fakeBackend) Load(ctx context.Context) error {
	f.loads.Add(1)
	return f.loadErr
}

func (f *fakeBackend) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	f.mu.Lock()
	f.batches = append(f.batches, append([]string(nil), texts...))
	f.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, f.dim)
		v[0] = float32(len([]rune(t)))
		v[1] = 1
		out[i] = v
	}
	return out, nil
}

func (f *fakeBackend) Dimension() int    { return f.dim }
func (f *fakeBackend) ModelName() string { return "fake" }

type mapCache struct {
	mu   sync.Mutex
	data map[string][]float32
	gets int
}

func (m *mapCache) Get(ctx context.Context, model, text string) ([]float32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	v, ok := m.data[model+"|"+text]
	return v, ok
}

func (m *mapCache) Set(ctx context.Context, model, text string, v []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[model+"|"+text] = v
}

func (m *mapCache) Invalidate() {}

func TestClientLoadOnce(t *testing.T) {
	backend := &fakeBackend{dim: 4}
	client := NewClient(backend, ClientConfig{BatchSize: 2}, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, client.Load(context.Background()))
		}()
	}
	wg.Wait()

	require.NoError(t, client.Load(context.Background()))
	assert.Equal(t, int32(1), backend.loads.Load())
	assert.True(t, client.Loaded())
	assert.Equal(t, 4, client.Dimension())
}

func TestClientLoadFailureIsFatal(t *testing.T) {
	backend := &fakeBackend{dim: 4, loadErr: errors.New("no such model")}
	client := NewClient(backend, ClientConfig{}, nil, nil)

	err := client.Load(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrModelLoad))
	assert.True(t, domain.IsFatal(err))

	_, err = client.Encode(context.Background(), []string{"x"})
	assert.True(t, errors.Is(err, domain.ErrModelLoad))
	assert.Equal(t, int32(1), backend.loads.Load())
}

func TestClientCancelledLoadIsNotRemembered(t *testing.T) {
	client := NewClient(NewHashBackend(16), ClientConfig{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = client.Load(ctx)

	require.NoError(t, client.Load(context.Background()))
	assert.True(t, client.Loaded())
	assert.Equal(t, 16, client.Dimension())
}

// blockingBackend holds every Embed call until release is closed.
type blockingBackend struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	embeds  atomic.Int32
}

func (b *blockingBackend) Load(ctx context.Context) error { return nil }

func (b *blockingBackend) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	b.embeds.Add(1)
	b.once.Do(func() { close(b.started) })
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.release:
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (b *blockingBackend) Dimension() int    { return 3 }
func (b *blockingBackend) ModelName() string { return "blocking" }

func TestClientEncodeOneCancelDoesNotFailOthers(t *testing.T) {
	backend := &blockingBackend{started: make(chan struct{}), release: make(chan struct{})}
	client := NewClient(backend, ClientConfig{}, nil, nil)
	require.NoError(t, client.Load(context.Background()))

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := client.EncodeOne(ctxA, "vali 20 inch")
		errA <- err
	}()
	<-backend.started

	type result struct {
		vec []float32
		err error
	}
	resB := make(chan result, 1)
	go func() {
		v, err := client.EncodeOne(context.Background(), "vali 20 inch")
		resB <- result{v, err}
	}()

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)

	close(backend.release)
	b := <-resB
	require.NoError(t, b.err)
	assert.Equal(t, []float32{1, 0, 0}, b.vec)
	assert.LessOrEqual(t, backend.embeds.Load(), int32(2))
}

func TestClientDimensionMismatch(t *testing.T) {
	client := NewClient(&fakeBackend{dim: 4}, ClientConfig{Dimension: 384}, nil, nil)

	err := client.Load(context.Background())
	assert.True(t, errors.Is(err, domain.ErrDimensionMismatch))
}

func TestClientBatchesInternally(t *testing.T) {
	backend := &fakeBackend{dim: 3}
	client := NewClient(backend, ClientConfig{BatchSize: 2}, nil, nil)

	vectors, err := client.Encode(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"})
	require.NoError(t, err)
	require.Len(t, vectors, 5)
	assert.Len(t, backend.batches, 3)
	assert.Equal(t, float32(3), vectors[2][0])
}

func TestClientSingleAndBatchDimensionsMatch(t *testing.T) {
	client := NewClient(NewHashBackend(64), ClientConfig{BatchSize: 8, Normalize: true}, nil, nil)
	ctx := context.Background()

	one, err := client.EncodeOne(ctx, "vali 20 inch")
	require.NoError(t, err)
	many, err := client.Encode(ctx, []string{"vali 20 inch", "balo laptop", "túi du lịch"})
	require.NoError(t, err)

	assert.Len(t, one, client.Dimension())
	for _, v := range many {
		assert.Len(t, v, len(one))
	}
	assert.Equal(t, one, many[0])
}

func TestClientNormalize(t *testing.T) {
	client := NewClient(&fakeBackend{dim: 2}, ClientConfig{Normalize: true}, nil, nil)

	v, err := client.EncodeOne(context.Background(), "abc")
	require.NoError(t, err)

	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-6)
}

func TestClientTruncates(t *testing.T) {
	backend := &fakeBackend{dim: 2}
	client := NewClient(backend, ClientConfig{MaxLength: 5}, nil, nil)

	v, err := client.EncodeOne(context.Background(), "Túi du lịch cỡ lớn")
	require.NoError(t, err)
	assert.Equal(t, float32(5), v[0])
	assert.Equal(t, "Túi d", backend.batches[0][0])
}

func TestClientEncodeError(t *testing.T) {
	backend := &fakeBackend{dim: 2, embedErr: errors.New("boom")}
	client := NewClient(backend, ClientConfig{}, nil, nil)

	_, err := client.Encode(context.Background(), []string{"x"})
	assert.True(t, errors.Is(err, domain.ErrEncode))
}

func TestClientUsesCache(t *testing.T) {
	backend := &fakeBackend{dim: 2}
	cache := &mapCache{data: map[string][]float32{}}
	client := NewClient(backend, ClientConfig{}, cache, nil)
	ctx := context.Background()

	first, err := client.EncodeOne(ctx, "balo")
	require.NoError(t, err)
	second, err := client.EncodeOne(ctx, "balo")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, backend.batches, 1)
	assert.Equal(t, 2, cache.gets)
}

func TestHashBackendSimilarity(t *testing.T) {
	client := NewClient(NewHashBackend(256), ClientConfig{Normalize: true}, nil, nil)
	ctx := context.Background()

	vectors, err := client.Encode(ctx, []string{"Vali 20 inch ABS", "Balo Laptop X", "Túi Du Lịch Y"})
	require.NoError(t, err)
	query, err := client.EncodeOne(ctx, "vali 20 inch")
	require.NoError(t, err)

	dot := func(a, b []float32) float32 {
		var s float32
		for i := range a {
			s += a[i] * b[i]
		}
		return s
	}
	assert.Greater(t, dot(query, vectors[0]), dot(query, vectors[1]))
	assert.Greater(t, dot(query, vectors[0]), dot(query, vectors[2]))
}

func TestTFIDFEncoder(t *testing.T) {
	enc := NewTFIDFEncoder()

	_, err := enc.EncodeText("vali")
	assert.Error(t, err)
	assert.Error(t, enc.Fit(nil))

	require.NoError(t, enc.Fit([]string{"Vali nhựa ABS 20 inch", "Balo laptop chống sốc", "Túi du lịch cỡ lớn"}))
	assert.Greater(t, enc.Dimension(), 0)

	v, err := enc.EncodeText("túi du lịch")
	require.NoError(t, err)
	assert.Len(t, v, enc.Dimension())

	empty, err := enc.EncodeText("xyz qqq")
	require.NoError(t, err)
	for _, x := range empty {
		assert.Zero(t, x)
	}
}

func TestOllamaBackend(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, "/v1/embeddings", r.URL.Path)

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)

		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		var data []item
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, item{Object: "embedding", Embedding: []float32{float32(i), 1, 0}, Index: i})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"data":   data,
			"model":  req.Model,
		})
	}))
	defer srv.Close()

	backend := NewOllamaBackend("nomic-embed-text", srv.URL)
	assert.Equal(t, 768, backend.Dimension())

	require.NoError(t, backend.Load(context.Background()))
	assert.Equal(t, 3, backend.Dimension())

	vectors, err := backend.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, float32(0), vectors[0][0])
	assert.Equal(t, float32(1), vectors[1][0])
	assert.Equal(t, int32(2), requests.Load())
}

func TestOllamaBackendUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"model not found"}}`, http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(NewOllamaBackend("missing", srv.URL), ClientConfig{}, nil, nil)
	err := client.Load(context.Background())
	assert.True(t, errors.Is(err, domain.ErrModelLoad))
}

func TestNewOpenAIBackendRequiresKey(t *testing.T) {
	t.Setenv("PRODUCTRAG_TEST_KEY", "")
	_, err := NewOpenAIBackend("PRODUCTRAG_TEST_KEY", "text-embedding-3-small", "")
	assert.Error(t, err)

	t.Setenv("PRODUCTRAG_TEST_KEY", "sk-test")
	b, err := NewOpenAIBackend("PRODUCTRAG_TEST_KEY", "text-embedding-3-small", "")
	require.NoError(t, err)
	assert.Equal(t, 1536, b.Dimension())
}
