package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	FeedRequestsTotal    *prometheus.CounterVec
	FeedRequestDuration  prometheus.Histogram
	FeedDegradedFields   *prometheus.CounterVec
	QuotesInsertedTotal  prometheus.Counter
	QuotesPrunedTotal    prometheus.Counter
	IngestionCyclesTotal *prometheus.CounterVec
	CacheLookupsTotal    *prometheus.CounterVec
	QueryResultsTotal    *prometheus.CounterVec
}

// New registers all collectors on reg. Use prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FeedRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feed_requests_total",
				Help: "Total number of feed document requests",
			},
			[]string{"result"},
		),

		FeedRequestDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "feed_request_duration_seconds",
				Help:    "Feed document request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),

		FeedDegradedFields: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feed_degraded_fields_total",
				Help: "Feed fields that could not be parsed and were defaulted to zero",
			},
			[]string{"field"},
		),

		QuotesInsertedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "quotes_inserted_total",
				Help: "Total number of quote rows inserted",
			},
		),

		QuotesPrunedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "quotes_pruned_total",
				Help: "Total number of quote rows removed by retention pruning",
			},
		),

		IngestionCyclesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingestion_cycles_total",
				Help: "Ingestion cycles by outcome",
			},
			[]string{"outcome"},
		),

		CacheLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quote_cache_lookups_total",
				Help: "Quote cache lookups by result",
			},
			[]string{"result"},
		),

		QueryResultsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quote_query_results_total",
				Help: "Quote lookups by the stage that produced the answer",
			},
			[]string{"source"},
		),
	}
}
