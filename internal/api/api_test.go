package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"productrag/internal/domain"
	"productrag/internal/usecase"
)

type stubEngine struct {
	state   usecase.EngineState
	hits    []domain.SearchHit
	answer  domain.Answer
	err     error
	lastK   int
	panicky bool
}

func (s *stubEngine) QueryVectorOnly(ctx context.Context, question string, k int) (domain.SearchResult, error) {
	if s.panicky {
		panic("boom")
	}
	s.lastK = k
	return domain.SearchResult{Hits: s.hits}, s.err
}

func (s *stubEngine) QueryWithLLM(ctx context.Context, question string, k int) (domain.Answer, error) {
	s.lastK = k
	return s.answer, s.err
}

func (s *stubEngine) CollectionInfo(ctx context.Context) domain.CollectionInfo {
	return domain.CollectionInfo{Status: domain.StatusReady, Name: "hungphat_products", Count: len(s.hits)}
}

func (s *stubEngine) State() usecase.EngineState {
	return s.state
}

func newServer(engine *stubEngine, opts RouterOptions) http.Handler {
	return NewRouter(NewHandler(engine, nil), opts)
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSearch(t *testing.T) {
	engine := &stubEngine{
		state: usecase.StateReady,
		hits: []domain.SearchHit{{
			ID:       "VL001_chunk_0",
			Text:     "Tên sản phẩm: Vali 20 inch ABS",
			Metadata: map[string]string{"name": "Vali 20 inch ABS", "category": "Vali", "features": `["Khóa TSA"]`},
			Distance: 0.25,
		}},
	}
	srv := newServer(engine, RouterOptions{})

	rec := post(t, srv, "/api/v1/search", `{"question":"vali 20 inch","k":3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	var resp SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Hits, 1)
	assert.Equal(t, "Vali 20 inch ABS", resp.Hits[0].Name)
	assert.Equal(t, []string{"Khóa TSA"}, resp.Hits[0].Features)
	assert.InDelta(t, 0.75, resp.Hits[0].Similarity, 1e-9)
	assert.Equal(t, 3, engine.lastK)
}

func TestQuery(t *testing.T) {
	engine := &stubEngine{
		state:  usecase.StateReady,
		answer: domain.Degraded(usecase.NoResultsMessage, domain.TierNoResults, "no_results"),
	}
	srv := newServer(engine, RouterOptions{})

	rec := post(t, srv, "/api/v1/query", `{"question":"máy pha cà phê"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var answer domain.Answer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &answer))
	assert.Equal(t, usecase.NoResultsMessage, answer.Text)
	assert.Equal(t, domain.TierNoResults, answer.Tier)
	assert.True(t, answer.Degraded)
	assert.Equal(t, 0, engine.lastK)
}

func TestBadRequests(t *testing.T) {
	srv := newServer(&stubEngine{state: usecase.StateReady}, RouterOptions{})

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"question":`},
		{"empty question", `{"question":"   "}`},
		{"negative k", `{"question":"vali","k":-1}`},
		{"k too large", `{"question":"vali","k":500}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, srv, "/api/v1/query", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestEngineFailure(t *testing.T) {
	engine := &stubEngine{state: usecase.StateFailed, answer: usecase.EngineFailedAnswer()}
	srv := newServer(engine, RouterOptions{})

	rec := post(t, srv, "/api/v1/query", `{"question":"vali"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	var answer domain.Answer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &answer))
	assert.Equal(t, usecase.NoResultsMessage, answer.Text)
	assert.Equal(t, "engine_failed", answer.Reason)

	rec = post(t, srv, "/api/v1/search", `{"question":"vali"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "failed", health.Status)
	assert.Equal(t, "failed", health.Engine)
}

func TestEngineErrorStatus(t *testing.T) {
	srv := newServer(&stubEngine{err: fmt.Errorf("%w: not ready", domain.ErrEngineFailed)}, RouterOptions{})
	rec := post(t, srv, "/api/v1/query", `{"question":"vali"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	srv = newServer(&stubEngine{err: fmt.Errorf("disk gone")}, RouterOptions{})
	rec = post(t, srv, "/api/v1/search", `{"question":"vali"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealthAndCollection(t *testing.T) {
	srv := newServer(&stubEngine{state: usecase.StateUninitialized}, RouterOptions{})

	for _, path := range []string{"/health", "/api/v1/collection", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestRecovery(t *testing.T) {
	srv := newServer(&stubEngine{panicky: true}, RouterOptions{})

	rec := post(t, srv, "/api/v1/search", `{"question":"vali"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRateLimit(t *testing.T) {
	srv := newServer(&stubEngine{state: usecase.StateReady}, RouterOptions{RatePerMinute: 10, RateBurst: 3})

	codes := make([]int, 0, 5)
	for i := 0; i < 5; i++ {
		rec := post(t, srv, "/api/v1/search", `{"question":"vali"}`)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{200, 200, 200, 429, 429}, codes)

	// Health is not limited.
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiterPerClient(t *testing.T) {
	l := NewRateLimiter(10, 1)
	now := time.Now()
	l.nowFunc = func() time.Time { return now }

	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"))

	now = now.Add(6 * time.Second)
	assert.True(t, l.Allow("10.0.0.1"))
}
