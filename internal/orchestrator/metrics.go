package orchestrator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	operations     *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	creditsCharged *prometheus.CounterVec
	pollAttempts   prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scriptstudio",
			Name:      "operations_total",
			Help:      "Orchestrated operations by outcome.",
		}, []string{"operation", "outcome"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "scriptstudio",
			Name:      "operation_duration_seconds",
			Help:      "Wall time of orchestrated operations, submit through charge.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 180, 300},
		}, []string{"operation"}),
		creditsCharged: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scriptstudio",
			Name:      "credits_charged_total",
			Help:      "Credits deducted after successful operations.",
		}, []string{"operation"}),
		pollAttempts: f.NewCounter(prometheus.CounterOpts{
			Namespace: "scriptstudio",
			Name:      "agent_poll_attempts_total",
			Help:      "Status fetches issued while waiting for agent tasks.",
		}),
	}
}

func (m *Metrics) observe(op, outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

func (m *Metrics) charged(op string, amount int64) {
	if m == nil {
		return
	}
	m.creditsCharged.WithLabelValues(op).Add(float64(amount))
}

// PollAttempt counts one status fetch. It is wired as the poller's attempt hook.
func (m *Metrics) PollAttempt() {
	if m == nil {
		return
	}
	m.pollAttempts.Inc()
}
