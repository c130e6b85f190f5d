package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the issuance service.
type Metrics struct {
	CredentialsIssued  prometheus.Counter
	DuplicateRequests  prometheus.Counter
	ValidationFailures prometheus.Counter
	EndpointLatency    *prometheus.HistogramVec
	StoredCredentials  prometheus.Gauge
}

// New creates and registers all issuance metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		CredentialsIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "issuance_credentials_issued_total",
			Help: "Total number of credentials issued",
		}),
		DuplicateRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "issuance_duplicate_requests_total",
			Help: "Total number of issue requests that matched an existing credential",
		}),
		ValidationFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "issuance_validation_failures_total",
			Help: "Total number of issue requests rejected at validation",
		}),
		EndpointLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "issuance_endpoint_latency_seconds",
			Help:    "Latency of endpoints in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		StoredCredentials: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "issuance_stored_credentials",
			Help: "Number of credentials reported by the most recent listing",
		}),
	}
}

// NewForTest creates metrics on a private registry so parallel tests do not
// collide on the default registerer.
func NewForTest() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		CredentialsIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "issuance_credentials_issued_total",
			Help: "Total number of credentials issued",
		}),
		DuplicateRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "issuance_duplicate_requests_total",
			Help: "Total number of issue requests that matched an existing credential",
		}),
		ValidationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "issuance_validation_failures_total",
			Help: "Total number of issue requests rejected at validation",
		}),
		EndpointLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "issuance_endpoint_latency_seconds",
			Help:    "Latency of endpoints in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		StoredCredentials: factory.NewGauge(prometheus.GaugeOpts{
			Name: "issuance_stored_credentials",
			Help: "Number of credentials reported by the most recent listing",
		}),
	}
}
