package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "lingcollect"

// Metrics holds the worker's collectors. A nil *Metrics is valid and records
// nothing, so components can be built without a registry in tests.
type Metrics struct {
	Jobs              *prometheus.CounterVec
	DialFailures      prometheus.Counter
	DialLatency       prometheus.Histogram
	RecordingFailures *prometheus.CounterVec
	StatusPolls       *prometheus.CounterVec
	Interruptions     prometheus.Counter
}

// New creates the collectors and registers them on reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_jobs_total",
			Help:      "Call jobs handled, by mode and outcome.",
		}, []string{"mode", "outcome"}),
		DialFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dial_failures_total",
			Help:      "Outbound dials rejected by the telephony provider.",
		}),
		DialLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dial_duration_seconds",
			Help:      "Time from dial request until the callee answered.",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 45, 60},
		}),
		RecordingFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recording_failures_total",
			Help:      "Recording start/stop failures.",
		}, []string{"phase"}),
		StatusPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_polls_total",
			Help:      "Room status checks, by observed state.",
		}, []string{"state"}),
		Interruptions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_interruptions_total",
			Help:      "Agent utterances cut short by caller speech.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Jobs, m.DialFailures, m.DialLatency, m.RecordingFailures, m.StatusPolls, m.Interruptions)
	}
	return m
}

func (m *Metrics) JobFinished(mode, outcome string) {
	if m == nil {
		return
	}
	m.Jobs.WithLabelValues(mode, outcome).Inc()
}

func (m *Metrics) DialFailed() {
	if m == nil {
		return
	}
	m.DialFailures.Inc()
}

func (m *Metrics) DialAnswered(seconds float64) {
	if m == nil {
		return
	}
	m.DialLatency.Observe(seconds)
}

// RecordingFailed phase is "start" or "stop"
func (m *Metrics) RecordingFailed(phase string) {
	if m == nil {
		return
	}
	m.RecordingFailures.WithLabelValues(phase).Inc()
}

func (m *Metrics) StatusPolled(state string) {
	if m == nil {
		return
	}
	m.StatusPolls.WithLabelValues(state).Inc()
}

func (m *Metrics) Interrupted() {
	if m == nil {
		return
	}
	m.Interruptions.Inc()
}
