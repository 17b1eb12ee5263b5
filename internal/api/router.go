package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RouterOptions configures middleware.
type RouterOptions struct {
	RatePerMinute int
	RateBurst     int
	Logger        *zap.Logger
}

// NewRouter wires the query API. Middleware order: tracing, recovery, then
// the per-client rate limit on /api/v1 only.
func NewRouter(h *Handler, opts RouterOptions) *mux.Router {
	r := mux.NewRouter()

	r.Use(TracingMiddleware(opts.Logger))
	r.Use(RecoveryMiddleware(opts.Logger))

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	if opts.RatePerMinute > 0 {
		api.Use(NewRateLimiter(opts.RatePerMinute, opts.RateBurst).Middleware)
	}

	api.HandleFunc("/search", h.Search).Methods(http.MethodPost)
	api.HandleFunc("/query", h.Query).Methods(http.MethodPost)
	api.HandleFunc("/collection", h.Collection).Methods(http.MethodGet)

	return r
}
