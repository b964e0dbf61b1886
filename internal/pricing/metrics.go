package pricing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the price feed.
type Metrics struct {
	SourceLatency       *prometheus.HistogramVec
	SourceFailures      *prometheus.CounterVec
	CircuitBreakerState prometheus.Gauge
	CacheHits           *prometheus.CounterVec
	CacheMisses         *prometheus.CounterVec
}

// NewMetrics registers the price metrics with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SourceLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "zakat_price_source_duration_seconds",
			Help:    "Latency of price source lookups",
			Buckets: prometheus.DefBuckets,
		}, []string{"lookup"}),
		SourceFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zakat_price_source_failures_total",
			Help: "Total price source lookups that failed or timed out",
		}, []string{"lookup", "reason"}),
		CircuitBreakerState: f.NewGauge(prometheus.GaugeOpts{
			Name: "zakat_price_source_circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed/healthy, 1=open/unhealthy)",
		}),
		CacheHits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zakat_price_cache_hits_total",
			Help: "Total price lookups served from the cache",
		}, []string{"metric"}),
		CacheMisses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zakat_price_cache_misses_total",
			Help: "Total price lookups that missed the cache",
		}, []string{"metric"}),
	}
}

func (m *Metrics) observeLatency(lookup string, seconds float64) {
	if m == nil {
		return
	}
	m.SourceLatency.WithLabelValues(lookup).Observe(seconds)
}

func (m *Metrics) incFailure(lookup, reason string) {
	if m == nil {
		return
	}
	m.SourceFailures.WithLabelValues(lookup, reason).Inc()
}

func (m *Metrics) setBreakerOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.CircuitBreakerState.Set(1)
	} else {
		m.CircuitBreakerState.Set(0)
	}
}

func (m *Metrics) incCache(metric string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.WithLabelValues(metric).Inc()
	} else {
		m.CacheMisses.WithLabelValues(metric).Inc()
	}
}
