// Package metrics owns the Prometheus registry exposed on /metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the service.
	Registry = prometheus.NewRegistry()

	// HTTPRequests counts requests by method, route pattern, and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds.
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)
	// ThrottledRequests counts requests turned away by the rate limiter.
	ThrottledRequests = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "http_requests_throttled_total", Help: "Requests rejected by the rate limiter."},
	)

	// OptimizationRuns counts optimization runs by mode and outcome.
	OptimizationRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "optimization_runs_total", Help: "Optimization runs by mode and outcome."},
		[]string{"mode", "outcome"},
	)
	// OptimizationDuration tracks how long runs take, in seconds.
	OptimizationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "optimization_run_duration_seconds", Help: "Optimization run duration in seconds.", Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 60}},
		[]string{"mode"},
	)
	// ObjectiveValue is the objective (sum of utilization deviations) of the latest successful run.
	ObjectiveValue = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "optimization_last_objective_value", Help: "Sum of daily utilization deviations of the last successful run."},
	)
	// AvgUtilization is the horizon-average fleet utilization of the latest successful run.
	AvgUtilization = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "optimization_last_avg_utilization", Help: "Average fleet utilization of the last successful run."},
	)
)

var regOnce sync.Once

// RegisterDefault registers the collectors on Registry. It is safe to call more than once.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(ThrottledRequests)
		Registry.MustRegister(OptimizationRuns)
		Registry.MustRegister(OptimizationDuration)
		Registry.MustRegister(ObjectiveValue)
		Registry.MustRegister(AvgUtilization)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}
