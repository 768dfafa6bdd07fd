package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts rate limit decisions. A nil *Metrics records nothing.
type Metrics struct {
	RateLimitChecks  *prometheus.CounterVec
	RateLimitDenials *prometheus.CounterVec
	StoreErrors      prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RateLimitChecks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "downloadgate_ratelimit_checks_total",
			Help: "Total number of rate limit admission checks by endpoint class",
		}, []string{"class"}),
		RateLimitDenials: f.NewCounterVec(prometheus.CounterOpts{
			Name: "downloadgate_ratelimit_denials_total",
			Help: "Total number of requests denied by rate limiting by endpoint class",
		}, []string{"class"}),
		StoreErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "downloadgate_ratelimit_store_errors_total",
			Help: "Bucket store failures during admission",
		}),
	}
}

func (m *Metrics) IncrementChecks(class string) {
	if m == nil {
		return
	}
	m.RateLimitChecks.WithLabelValues(class).Inc()
}

func (m *Metrics) IncrementDenials(class string) {
	if m == nil {
		return
	}
	m.RateLimitDenials.WithLabelValues(class).Inc()
}

func (m *Metrics) IncrementStoreErrors() {
	if m == nil {
		return
	}
	m.StoreErrors.Inc()
}
