package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ExportDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "seo_export_duration_seconds",
			Help:    "Time spent building a CSV export",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	ExportTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seo_export_requests_total",
			Help: "Export and debug requests by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	ExportRows = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "seo_export_rows",
			Help:    "Records per successful export",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seo_export_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seo_export_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	CacheErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seo_export_cache_backend_errors_total",
			Help: "Cache backend failures that were treated as misses",
		},
		[]string{"op"},
	)

	CacheInvalidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seo_export_cache_invalidations_total",
			Help: "Cache invalidations by scope",
		},
		[]string{"scope"},
	)

	MetricSources = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seo_export_metric_source_total",
			Help: "Which tier resolved each SEO metric",
		},
		[]string{"metric", "source"},
	)

	AuthFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seo_export_auth_failures_total",
			Help: "Rejected admin requests by reason",
		},
		[]string{"reason"},
	)
)

func Init() {
	prometheus.MustRegister(ExportDuration)
	prometheus.MustRegister(ExportTotal)
	prometheus.MustRegister(ExportRows)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(CacheErrors)
	prometheus.MustRegister(CacheInvalidations)
	prometheus.MustRegister(MetricSources)
	prometheus.MustRegister(AuthFailures)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
