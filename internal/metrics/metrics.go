// Package metrics exposes Prometheus collectors and the /metrics endpoint
// served during long scrape and batch runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TotalRequests tracks the number of storefront HTTP requests dispatched.
	TotalRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_requests_total",
		Help: "The total number of storefront HTTP requests sent, by status class.",
	}, []string{"status"})
	// TotalRateLimitHits tracks 429 responses from storefronts.
	TotalRateLimitHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_rate_limit_hits_total",
		Help: "The total number of times a storefront rate limited the crawler.",
	})
	// TotalPagesFetched tracks non-empty pages consumed by the paginator.
	TotalPagesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_pages_fetched_total",
		Help: "The total number of non-empty catalog pages fetched.",
	})
	// TotalEntitiesScraped tracks scraped records by entity kind.
	TotalEntitiesScraped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_entities_scraped_total",
		Help: "The total number of entities scraped, by kind.",
	}, []string{"kind"})
	// RateDelaySeconds observes the adaptive delay applied before requests.
	RateDelaySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalog_rate_delay_seconds",
		Help:    "Adaptive per-shop delay applied before storefront requests.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})
	// BatchRowsProcessed tracks rows consumed by the batch processors.
	BatchRowsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_batch_rows_processed_total",
		Help: "The total number of rows processed by batch jobs, by job key.",
	}, []string{"job"})
	// BatchRowsMatched tracks rows for which a derived field was produced.
	BatchRowsMatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_batch_rows_matched_total",
		Help: "The total number of rows matched by batch jobs, by job key.",
	}, []string{"job"})
)

// ObserveStatus records one finished storefront request.
func ObserveStatus(statusClass string) {
	TotalRequests.WithLabelValues(statusClass).Inc()
	if statusClass == "429" {
		TotalRateLimitHits.Inc()
	}
}

// StatusClass collapses an HTTP status code into a metrics label.
func StatusClass(code int) string {
	switch {
	case code == 429:
		return "429"
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "error"
	}
}
