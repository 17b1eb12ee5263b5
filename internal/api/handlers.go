package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"productrag/internal/domain"
	"productrag/internal/logger"
	"productrag/internal/usecase"
)

// MaxK caps the number of hits a client may request.
const MaxK = 50

// Handler serves the query API.
type Handler struct {
	engine QueryEngine
	logger *zap.Logger
}

// NewHandler creates a handler over engine.
func NewHandler(engine QueryEngine, log *zap.Logger) *Handler {
	return &Handler{
		engine: engine,
		logger: logger.OrNop(log),
	}
}

// QuestionRequest is the body of search and query calls.
type QuestionRequest struct {
	Question string `json:"question"`
	K        int    `json:"k"`
}

// Hit is one search result as returned to clients.
type Hit struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Category   string   `json:"category,omitempty"`
	URL        string   `json:"url,omitempty"`
	Features   []string `json:"features,omitempty"`
	Text       string   `json:"text"`
	Distance   float64  `json:"distance"`
	Similarity float64  `json:"similarity"`
}

// SearchResponse is the body returned by /api/v1/search.
type SearchResponse struct {
	Question string `json:"question"`
	Hits     []Hit  `json:"hits"`
}

// HealthResponse is the body returned by /health.
type HealthResponse struct {
	Status     string                `json:"status"`
	Engine     string                `json:"engine"`
	Collection domain.CollectionInfo `json:"collection"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	state := h.engine.State()
	resp := HealthResponse{
		Status:     "ok",
		Engine:     state.String(),
		Collection: h.engine.CollectionInfo(r.Context()),
	}

	status := http.StatusOK
	if state == usecase.StateFailed {
		resp.Status = "failed"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeQuestion(w, r)
	if !ok {
		return
	}

	result, err := h.engine.QueryVectorOnly(r.Context(), req.Question, req.K)
	if err != nil {
		h.engineError(w, r, err)
		return
	}

	hits := make([]Hit, len(result.Hits))
	for i, hit := range result.Hits {
		hits[i] = Hit{
			ID:         hit.ID,
			Name:       hit.Name(),
			Category:   hit.Metadata["category"],
			URL:        hit.Metadata["url"],
			Features:   domain.ParseFeatures(hit.Metadata),
			Text:       hit.Text,
			Distance:   hit.Distance,
			Similarity: hit.Similarity(),
		}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Question: req.Question, Hits: hits})
}

func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeQuestion(w, r)
	if !ok {
		return
	}

	answer, err := h.engine.QueryWithLLM(r.Context(), req.Question, req.K)
	if err != nil {
		h.engineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (h *Handler) Collection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.CollectionInfo(r.Context()))
}

func (h *Handler) decodeQuestion(w http.ResponseWriter, r *http.Request) (QuestionRequest, bool) {
	var req QuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return req, false
	}

	req.Question = strings.TrimSpace(req.Question)
	switch {
	case req.Question == "":
		writeError(w, http.StatusBadRequest, "question is required")
		return req, false
	case req.K < 0 || req.K > MaxK:
		writeError(w, http.StatusBadRequest, "k must be between 0 and 50")
		return req, false
	}
	return req, true
}

func (h *Handler) engineError(w http.ResponseWriter, r *http.Request, err error) {
	logger.WithContext(r.Context(), h.logger).Error("engine unavailable", zap.Error(err))
	if errors.Is(err, domain.ErrEngineFailed) {
		writeError(w, http.StatusServiceUnavailable, "engine unavailable")
		return
	}
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
