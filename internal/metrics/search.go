package metrics

import "github.com/prometheus/client_golang/prometheus"

// Retrieval cascade Prometheus metrics.
var (
	SearchStrategyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scrapfeed",
			Name:      "search_strategy_total",
			Help:      "Retrieval strategy attempts by outcome",
		},
		[]string{"strategy", "outcome"}, // outcome: "accepted" / "insufficient" / "error"
	)

	CascadeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "scrapfeed",
			Name:      "search_cascade_duration_seconds",
			Help:      "Full retrieval cascade duration in seconds",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	IndexingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scrapfeed",
			Name:      "indexing_errors_total",
			Help:      "Total failed document indexing attempts",
		},
	)
)

// RegisterSearchMetrics registers cascade metrics with the default registry.
func RegisterSearchMetrics() {
	prometheus.MustRegister(SearchStrategyTotal)
	prometheus.MustRegister(CascadeDuration)
	prometheus.MustRegister(IndexingErrorsTotal)
}
