package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// CacheLookups counts TTL cache reads by outcome (hit, miss, expired)
	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cyberiq",
			Name:      "cache_lookups_total",
			Help:      "Total number of TTL cache lookups",
		},
		[]string{"cache", "result"},
	)

	// SourceFetches counts source adapter fetches by final state
	SourceFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cyberiq",
			Name:      "source_fetches_total",
			Help:      "Total number of source fetches by state",
		},
		[]string{"source", "state"},
	)

	// EnrichmentLookups counts external score lookups
	EnrichmentLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cyberiq",
			Name:      "enrichment_lookups_total",
			Help:      "Total number of score provider lookups",
		},
		[]string{"provider", "result"},
	)

	// IntentResolutions counts query intent resolutions per strategy
	IntentResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cyberiq",
			Name:      "intent_resolutions_total",
			Help:      "Total number of intent resolutions by strategy and result",
		},
		[]string{"strategy", "result"},
	)

	// QueryDuration observes end-to-end pipeline latency
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cyberiq",
			Name:      "query_duration_seconds",
			Help:      "Pipeline run duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"outcome"},
	)

	// Ensure metrics are only registered once
	once sync.Once
)

// InitMetrics registers all metrics with the global Prometheus registry
// This function is idempotent and can be called multiple times safely
func InitMetrics() {
	once.Do(func() {
		prometheus.DefaultRegisterer.Register(CacheLookups)
		prometheus.DefaultRegisterer.Register(SourceFetches)
		prometheus.DefaultRegisterer.Register(EnrichmentLookups)
		prometheus.DefaultRegisterer.Register(IntentResolutions)
		prometheus.DefaultRegisterer.Register(QueryDuration)
	})
}
