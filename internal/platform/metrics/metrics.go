package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the gateway's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	VerifyOutcomes         *prometheus.CounterVec
	DownloadOutcomes       *prometheus.CounterVec
	SignedURLsIssued       prometheus.Counter
	SigningLatency         prometheus.Histogram
	AuditWriteFailures     prometheus.Counter
	CatalogEntries         prometheus.Gauge
	CatalogRefreshFailures prometheus.Counter
	ActiveSessions         prometheus.Gauge
}

// New creates and registers all gateway metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		VerifyOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "downloadgate_license_verifications_total",
			Help: "License verification attempts by outcome",
		}, []string{"outcome"}),
		DownloadOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "downloadgate_download_requests_total",
			Help: "Download authorization attempts by outcome",
		}, []string{"outcome"}),
		SignedURLsIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "downloadgate_signed_urls_issued_total",
			Help: "Signed download URLs handed to clients",
		}),
		SigningLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "downloadgate_sign_duration_seconds",
			Help:    "Latency of blob store URL signing",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		AuditWriteFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "downloadgate_audit_write_failures_total",
			Help: "Audit records that could not be appended",
		}),
		CatalogEntries: f.NewGauge(prometheus.GaugeOpts{
			Name: "downloadgate_catalog_entries",
			Help: "Catalog entries currently backed by a blob object",
		}),
		CatalogRefreshFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "downloadgate_catalog_refresh_failures_total",
			Help: "Failed catalog refreshes from the blob listing",
		}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "downloadgate_active_sessions",
			Help: "Sessions in the live session table after the last sweep",
		}),
	}
}

func (m *Metrics) ObserveVerify(outcome string) {
	if m == nil {
		return
	}
	m.VerifyOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveDownload(outcome string) {
	if m == nil {
		return
	}
	m.DownloadOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementSignedURLs() {
	if m == nil {
		return
	}
	m.SignedURLsIssued.Inc()
}

func (m *Metrics) ObserveSigning(seconds float64) {
	if m == nil {
		return
	}
	m.SigningLatency.Observe(seconds)
}

func (m *Metrics) IncrementAuditFailures() {
	if m == nil {
		return
	}
	m.AuditWriteFailures.Inc()
}

func (m *Metrics) SetCatalogEntries(n int) {
	if m == nil {
		return
	}
	m.CatalogEntries.Set(float64(n))
}

func (m *Metrics) IncrementCatalogRefreshFailures() {
	if m == nil {
		return
	}
	m.CatalogRefreshFailures.Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}
