package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks transaction lifecycle outcomes.
type Metrics struct {
	TransactionsSubmitted *prometheus.CounterVec
	TransactionsResolved  *prometheus.CounterVec
	ConfirmationDuration  prometheus.Histogram
	PollAttempts          prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		TransactionsSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "credora_transactions_submitted_total",
			Help: "Total transactions submitted to the chain, by operation kind",
		}, []string{"kind"}),
		TransactionsResolved: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "credora_transactions_resolved_total",
			Help: "Total transactions resolved, by terminal status",
		}, []string{"status"}),
		ConfirmationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "credora_confirmation_duration_seconds",
			Help:    "Time from submission to confirmed at required depth",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		PollAttempts: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "credora_receipt_poll_attempts",
			Help:    "Receipt polls performed before a wait resolved",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		}),
	}
}

func (m *Metrics) IncrementSubmitted(kind string) {
	m.TransactionsSubmitted.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncrementResolved(status string) {
	m.TransactionsResolved.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveConfirmation(start time.Time) {
	m.ConfirmationDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObservePollAttempts(n int) {
	m.PollAttempts.Observe(float64(n))
}
