package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "driverlog",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

var InstallationsCreatedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "driverlog",
		Subsystem: "installations",
		Name:      "created_total",
		Help:      "Total number of installation records created.",
	},
)

var IncidentsCreatedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "driverlog",
		Subsystem: "incidents",
		Name:      "created_total",
		Help:      "Total number of incidents created.",
	},
)

var PhotosUploadedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "driverlog",
		Subsystem: "photos",
		Name:      "uploaded_total",
		Help:      "Total number of incident photos uploaded.",
	},
	[]string{"content_type"},
)

var LoginsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "driverlog",
		Subsystem: "auth",
		Name:      "logins_total",
		Help:      "Total number of web login attempts by outcome.",
	},
	[]string{"outcome"},
)

var LoginRateLimitedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "driverlog",
		Subsystem: "auth",
		Name:      "login_rate_limited_total",
		Help:      "Total number of logins rejected by the rate limiter.",
	},
)

// All returns the service-specific collectors for registry construction.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		InstallationsCreatedTotal,
		IncidentsCreatedTotal,
		PhotosUploadedTotal,
		LoginsTotal,
		LoginRateLimitedTotal,
	}
}

// NewMetricsRegistry creates a Prometheus registry with Go/process collectors,
// the shared HTTPRequestDuration metric, and any additional service-specific
// collectors passed as arguments.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
	)
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}
