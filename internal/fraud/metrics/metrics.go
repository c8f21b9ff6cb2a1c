package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for fraud scoring.
type Metrics struct {
	// Decisions by risk level
	Scores *prometheus.CounterVec

	RiskScores      prometheus.Histogram
	ScoringDuration prometheus.Histogram
	BatchSize       prometheus.Histogram
	BatchFailures   prometheus.Counter
	HistoryDegraded prometheus.Counter
	HistoryUpdates  *prometheus.CounterVec
	PublishFailures prometheus.Counter
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Scores: f.NewCounterVec(prometheus.CounterOpts{
			Name: "identrisk_fraud_scores_total",
			Help: "Fraud decisions by risk level",
		}, []string{"level"}),
		RiskScores: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "identrisk_fraud_risk_score",
			Help:    "Distribution of aggregated risk scores",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}),
		ScoringDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "identrisk_fraud_scoring_duration_seconds",
			Help:    "Time to score one transaction including history lookup and persistence",
			Buckets: prometheus.DefBuckets,
		}),
		BatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "identrisk_fraud_batch_size",
			Help:    "Transactions per batch request",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),
		BatchFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "identrisk_fraud_batch_item_failures_total",
			Help: "Batch items that could not be scored",
		}),
		HistoryDegraded: f.NewCounter(prometheus.CounterOpts{
			Name: "identrisk_fraud_history_unavailable_total",
			Help: "Scores computed without user history because the history store failed",
		}),
		HistoryUpdates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "identrisk_fraud_history_updates_total",
			Help: "Consumed events applied to user history by event type",
		}, []string{"event_type"}),
		PublishFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "identrisk_fraud_event_publish_failures_total",
			Help: "fraud.scored events that could not be published",
		}),
	}
}

// ObserveScore records one decision.
func (m *Metrics) ObserveScore(level string, score float64, d time.Duration) {
	if m == nil {
		return
	}
	m.Scores.WithLabelValues(level).Inc()
	m.RiskScores.Observe(score)
	m.ScoringDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveBatch(size, failures int) {
	if m == nil {
		return
	}
	m.BatchSize.Observe(float64(size))
	m.BatchFailures.Add(float64(failures))
}

func (m *Metrics) IncrementHistoryDegraded() {
	if m != nil {
		m.HistoryDegraded.Inc()
	}
}

func (m *Metrics) IncrementHistoryUpdate(eventType string) {
	if m != nil {
		m.HistoryUpdates.WithLabelValues(eventType).Inc()
	}
}

func (m *Metrics) IncrementPublishFailure() {
	if m != nil {
		m.PublishFailures.Inc()
	}
}
