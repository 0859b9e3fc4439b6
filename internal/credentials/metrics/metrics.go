package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks credential issuance and verification activity.
type Metrics struct {
	CredentialsIssued   *prometheus.CounterVec
	CredentialsRevoked  prometheus.Counter
	Verifications       *prometheus.CounterVec
	BatchSize           prometheus.Histogram
	ShadowInconsistency prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		CredentialsIssued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "credora_credentials_issued_total",
			Help: "Credentials minted and confirmed on-chain, by type",
		}, []string{"type"}),
		CredentialsRevoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credora_credentials_revoked_total",
			Help: "Credentials revoked and confirmed on-chain",
		}),
		Verifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "credora_verifications_total",
			Help: "Detailed verifications served, by outcome message",
		}, []string{"outcome"}),
		BatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "credora_issue_batch_size",
			Help:    "Recipients per batch issuance",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
		}),
		ShadowInconsistency: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credora_shadow_inconsistencies_total",
			Help: "Verifications where the shadow record disagreed with chain state",
		}),
	}
}

func (m *Metrics) IncrementIssued(credentialType string) {
	m.CredentialsIssued.WithLabelValues(credentialType).Inc()
}

func (m *Metrics) IncrementRevoked() {
	m.CredentialsRevoked.Inc()
}

func (m *Metrics) IncrementVerification(outcome string) {
	m.Verifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveBatchSize(n int) {
	m.BatchSize.Observe(float64(n))
}

func (m *Metrics) IncrementShadowInconsistency() {
	m.ShadowInconsistency.Inc()
}
