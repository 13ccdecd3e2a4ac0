// Package metrics registers Prometheus instrumentation for the export
// pipeline: remote feature-service calls and finished exports.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FetchRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "landtypes_fetch_requests_total",
		Help: "Feature service query requests by layer (one per page)",
	}, []string{"layer"})
	FetchFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "landtypes_fetch_failures_total",
		Help: "Failed feature service queries by layer",
	}, []string{"layer"})
	FetchDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "landtypes_fetch_duration_seconds",
		Help:    "Feature service query duration per page",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"layer"})
	GeometrySkipsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "landtypes_geometry_skips_total",
		Help: "Candidate features skipped because their geometry was unusable",
	})
	ExportsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "landtypes_exports_total",
		Help: "Completed exports by output format",
	}, []string{"format"})
	ExportFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "landtypes_export_failures_total",
		Help: "Failed exports by failure kind",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(FetchRequestsTotal)
	prometheus.MustRegister(FetchFailuresTotal)
	prometheus.MustRegister(FetchDurationSeconds)
	prometheus.MustRegister(GeometrySkipsTotal)
	prometheus.MustRegister(ExportsTotal)
	prometheus.MustRegister(ExportFailuresTotal)
}

// Handler exposes the registered metrics for an embedding server to mount.
func Handler() http.Handler { return promhttp.Handler() }
