package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AnswersTotal counts answers by the fallback tier that produced them.
	AnswersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "productrag_answers_total",
			Help: "Answers returned, by fallback tier",
		},
		[]string{"tier"},
	)

	// SearchErrorsTotal counts best-effort searches that returned empty on error.
	SearchErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "productrag_search_errors_total",
			Help: "Vector searches that failed and were reported as empty",
		},
	)

	// LLMRequestsTotal counts generation calls by outcome.
	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "productrag_llm_requests_total",
			Help: "Generation requests, by outcome (ok, unavailable, timeout, error)",
		},
		[]string{"outcome"},
	)

	// EmbedTextsTotal counts texts sent to the embedding backend.
	EmbedTextsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "productrag_embed_texts_total",
			Help: "Texts encoded by the embedding backend",
		},
	)

	// QueryDuration observes query latency by mode.
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "productrag_query_duration_seconds",
			Help:    "Query latency, by mode (vector, llm)",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"mode"},
	)
)
