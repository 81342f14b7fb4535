// Package metrics exposes reconciliation counters to Prometheus.
//
// All methods are safe on a nil *Metrics, so components record
// unconditionally and tests may pass nil.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the reconciliation engine.
type Metrics struct {
	// Intents received by kind and outcome ("applied" or "rejected")
	Intents *prometheus.CounterVec

	// Gateway call latency and outcome by operation
	CallLatency *prometheus.HistogramVec
	CallErrors  *prometheus.CounterVec

	// Optimistic changes reverted after a failed call, by operation
	Rollbacks *prometheus.CounterVec

	// Arrivals suppressed by id de-duplication, by entity
	Duplicates *prometheus.CounterVec

	// Change notifications by table and kind, and those discarded by table
	Notifications *prometheus.CounterVec
	Discarded     *prometheus.CounterVec

	// Own vote writes recognised when echoed back
	Echoes prometheus.Counter

	// Tally counts clamped at zero
	Drift prometheus.Counter

	// Posts currently in view
	PostsInView prometheus.Gauge
}

// New creates a Metrics instance registered with reg. A nil reg registers
// with the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		Intents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "murmur_intents_total",
			Help: "Total intents handled by kind and outcome",
		}, []string{"kind", "outcome"}),

		CallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "murmur_gateway_call_duration_seconds",
			Help:    "Duration of gateway calls by operation",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"op"}),

		CallErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "murmur_gateway_call_errors_total",
			Help: "Total failed gateway calls by operation",
		}, []string{"op"}),

		Rollbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "murmur_rollbacks_total",
			Help: "Total optimistic changes reverted by operation",
		}, []string{"op"}),

		Duplicates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "murmur_duplicates_total",
			Help: "Total arrivals suppressed by id de-duplication",
		}, []string{"entity"}),

		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "murmur_notifications_total",
			Help: "Total change notifications received by table and kind",
		}, []string{"table", "kind"}),

		Discarded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "murmur_notifications_discarded_total",
			Help: "Total change notifications discarded by table",
		}, []string{"table"}),

		Echoes: f.NewCounter(prometheus.CounterOpts{
			Name: "murmur_vote_echoes_total",
			Help: "Total own vote writes matched against their change notification",
		}),

		Drift: f.NewCounter(prometheus.CounterOpts{
			Name: "murmur_tally_drift_total",
			Help: "Total tally counts clamped at zero",
		}),

		PostsInView: f.NewGauge(prometheus.GaugeOpts{
			Name: "murmur_posts_in_view",
			Help: "Number of posts currently in view",
		}),
	}
}

// IncrementIntent records an intent and whether it was applied.
func (m *Metrics) IncrementIntent(kind string, applied bool) {
	if m != nil {
		outcome := "applied"
		if !applied {
			outcome = "rejected"
		}
		m.Intents.WithLabelValues(kind, outcome).Inc()
	}
}

// ObserveCall records the duration and outcome of a gateway call.
func (m *Metrics) ObserveCall(op string, d time.Duration, err error) {
	if m != nil {
		m.CallLatency.WithLabelValues(op).Observe(d.Seconds())
		if err != nil {
			m.CallErrors.WithLabelValues(op).Inc()
		}
	}
}

// IncrementRollback records a reverted optimistic change.
func (m *Metrics) IncrementRollback(op string) {
	if m != nil {
		m.Rollbacks.WithLabelValues(op).Inc()
	}
}

// IncrementDuplicate records a suppressed duplicate arrival.
func (m *Metrics) IncrementDuplicate(entity string) {
	if m != nil {
		m.Duplicates.WithLabelValues(entity).Inc()
	}
}

// IncrementNotification records a received change notification.
func (m *Metrics) IncrementNotification(table, kind string) {
	if m != nil {
		m.Notifications.WithLabelValues(table, kind).Inc()
	}
}

// IncrementDiscarded records a discarded change notification.
func (m *Metrics) IncrementDiscarded(table string) {
	if m != nil {
		m.Discarded.WithLabelValues(table).Inc()
	}
}

// IncrementEcho records an own vote write seen on the change feed.
func (m *Metrics) IncrementEcho() {
	if m != nil {
		m.Echoes.Inc()
	}
}

// IncrementDrift records a clamped tally.
func (m *Metrics) IncrementDrift() {
	if m != nil {
		m.Drift.Inc()
	}
}

// SetPostsInView records the size of the post list.
func (m *Metrics) SetPostsInView(n int) {
	if m != nil {
		m.PostsInView.Set(float64(n))
	}
}
