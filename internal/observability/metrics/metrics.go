package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// ConversationMetrics counts turns, directory calls and closed sessions.
type ConversationMetrics struct {
	turnsTotal       *prometheus.CounterVec
	directoryLatency *prometheus.HistogramVec
	sessionsClosed   *prometheus.CounterVec
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "previmed",
			Subsystem: "intake",
			Name:      "turns_total",
			Help:      "Conversation turns by resolved action and outcome",
		}, []string{"action", "ok"}),
		directoryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "previmed",
			Subsystem: "intake",
			Name:      "directory_request_duration_seconds",
			Help:      "Latency of backend directory calls",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
		}, []string{"operation", "outcome"}),
		sessionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "previmed",
			Subsystem: "intake",
			Name:      "sessions_closed_total",
			Help:      "Sessions removed after a visit was created or the caller cancelled",
		}, []string{"reason"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.directoryLatency, m.sessionsClosed)
	return m
}

func (m *ConversationMetrics) ObserveTurn(action string, ok bool) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(action, strconv.FormatBool(ok)).Inc()
}

func (m *ConversationMetrics) ObserveDirectoryRequest(operation, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.directoryLatency.WithLabelValues(operation, outcome).Observe(seconds)
}

func (m *ConversationMetrics) ObserveSessionClosed(reason string) {
	if m == nil {
		return
	}
	m.sessionsClosed.WithLabelValues(reason).Inc()
}
