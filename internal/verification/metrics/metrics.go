package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the verification service.
type Metrics struct {
	Verifications    *prometheus.CounterVec
	IssuerFetches    *prometheus.CounterVec
	IssuerFetchTime  prometheus.Histogram
	SnapshotSize     prometheus.Gauge
	EndpointLatency  *prometheus.HistogramVec
	SnapshotCacheOps *prometheus.CounterVec
}

func newWith(factory promauto.Factory) *Metrics {
	return &Metrics{
		Verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "verification_attempts_total",
			Help: "Total verification attempts by outcome",
		}, []string{"outcome"}),
		IssuerFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "verification_issuer_fetches_total",
			Help: "Total issuer listing fetches by result",
		}, []string{"result"}),
		IssuerFetchTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "verification_issuer_fetch_seconds",
			Help:    "Latency of issuer listing fetches in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		SnapshotSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "verification_snapshot_credentials",
			Help: "Number of credentials in the most recent issuer snapshot",
		}),
		EndpointLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "verification_endpoint_latency_seconds",
			Help:    "Latency of endpoints in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		SnapshotCacheOps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "verification_snapshot_cache_ops_total",
			Help: "Snapshot cache operations by result",
		}, []string{"result"}),
	}
}

// New creates and registers all verification metrics on the default registry.
func New() *Metrics {
	return newWith(promauto.With(prometheus.DefaultRegisterer))
}

// NewForTest creates metrics on a private registry so parallel tests do not
// collide on the default registerer.
func NewForTest() *Metrics {
	return newWith(promauto.With(prometheus.NewRegistry()))
}
