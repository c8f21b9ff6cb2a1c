package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the verification pipeline.
type Metrics struct {
	// Per-stage analysis latency
	StageLatency *prometheus.HistogramVec

	// Terminal outcomes by status and rejection kind
	Outcomes *prometheus.CounterVec

	// Registry answers by status
	RegistryResults *prometheus.CounterVec

	EventPublishFailures *prometheus.CounterVec
}

// New creates a Metrics instance registered on the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers on reg; tests pass a fresh prometheus.NewRegistry().
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		StageLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "identrisk_verification_stage_duration_seconds",
			Help:    "Duration of verification pipeline stages",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"stage"}), // stage: "extract", "liveness", "face_match", "registry"

		Outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "identrisk_verification_outcomes_total",
			Help: "Verification terminal outcomes by status and rejection kind",
		}, []string{"status", "kind"}),

		RegistryResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "identrisk_registry_results_total",
			Help: "Civil registry lookups by result status",
		}, []string{"status"}),

		EventPublishFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "identrisk_verification_event_publish_failures_total",
			Help: "Verification events that could not be published",
		}, []string{"event_type"}),
	}
}

// ObserveStage records the duration of a pipeline stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m != nil {
		m.StageLatency.WithLabelValues(stage).Observe(d.Seconds())
	}
}

// IncrementOutcome records a terminal outcome.
func (m *Metrics) IncrementOutcome(status, kind string) {
	if m != nil {
		m.Outcomes.WithLabelValues(status, kind).Inc()
	}
}

// IncrementRegistryResult records a registry answer.
func (m *Metrics) IncrementRegistryResult(status string) {
	if m != nil {
		m.RegistryResults.WithLabelValues(status).Inc()
	}
}

// IncrementPublishFailure records an event that was not delivered.
func (m *Metrics) IncrementPublishFailure(eventType string) {
	if m != nil {
		m.EventPublishFailures.WithLabelValues(eventType).Inc()
	}
}
