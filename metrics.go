package gallerykit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the workflow.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	requestsSubmitted prometheus.Counter
	requestsResolved  *prometheus.CounterVec
	roleGrants        *prometheus.CounterVec
	txDuration        *prometheus.HistogramVec
	txRetries         *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
//
// Example:
//
//	registry := prometheus.NewRegistry()
//	service := gallerykit.NewService(store, gallerykit.WithMetrics(gallerykit.NewMetrics(registry)))
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gallery",
			Name:      "artist_requests_submitted_total",
			Help:      "Artist requests created.",
		}),
		requestsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gallery",
			Name:      "artist_requests_resolved_total",
			Help:      "Artist requests resolved, by decision.",
		}, []string{"decision"}),
		roleGrants: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gallery",
			Name:      "role_grants_total",
			Help:      "Role assignments created, by role and source.",
		}, []string{"role", "source"}),
		txDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gallery",
			Name:      "store_transaction_duration_seconds",
			Help:      "Duration of store transactions.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tx", "outcome"}),
		txRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gallery",
			Name:      "store_transaction_retries_total",
			Help:      "Transactions retried after a transient failure.",
		}, []string{"tx"}),
	}
	if reg != nil {
		reg.MustRegister(m.requestsSubmitted, m.requestsResolved, m.roleGrants, m.txDuration, m.txRetries)
	}
	return m
}

func (m *Metrics) requestSubmitted() {
	if m == nil {
		return
	}
	m.requestsSubmitted.Inc()
}

func (m *Metrics) requestResolved(d Decision) {
	if m == nil {
		return
	}
	m.requestsResolved.WithLabelValues(string(d)).Inc()
}

func (m *Metrics) roleGranted(role Role, source string) {
	if m == nil {
		return
	}
	m.roleGrants.WithLabelValues(string(role), source).Inc()
}

func (m *Metrics) observeTransaction(name string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "commit"
	if err != nil {
		outcome = "rollback"
	}
	m.txDuration.WithLabelValues(name, outcome).Observe(d.Seconds())
}

func (m *Metrics) transactionRetried(name string) {
	if m == nil {
		return
	}
	m.txRetries.WithLabelValues(name).Inc()
}
