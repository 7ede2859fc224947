package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "faceid"

// Enrollment result labels besides error codes
const (
	ResultSuccess = "success"
)

// Metrics holds Prometheus collectors for enrollment and recognition.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	EnrollmentsTotal     *prometheus.CounterVec
	EnrollmentRollbacks  prometheus.Counter
	RollbackFailures     prometheus.Counter
	RecognitionsTotal    *prometheus.CounterVec
	MatchSkippedRecords  prometheus.Counter
	MatchDistance        prometheus.Histogram
	MatchDurationSeconds prometheus.Histogram
	EmbeddingDuration    *prometheus.HistogramVec
	IdentitiesStored     prometheus.Gauge
}

// New registers collectors on reg. Passing a fresh registry keeps tests isolated.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		EnrollmentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrollments_total",
			Help:      "Total number of enrollment attempts by result",
		}, []string{"result"}),
		EnrollmentRollbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrollment_rollbacks_total",
			Help:      "Total number of enrollments rolled back after the identity was created",
		}),
		RollbackFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrollment_rollback_failures_total",
			Help:      "Total number of rollback steps that failed",
		}),
		RecognitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognitions_total",
			Help:      "Total number of recognition attempts by outcome",
		}, []string{"outcome"}),
		MatchSkippedRecords: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_skipped_records_total",
			Help:      "Enrolled records skipped during matching because of malformed embeddings",
		}),
		MatchDistance: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_distance",
			Help:      "Best cosine distance found per match",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.68, 0.8, 1.0, 1.5, 2.0},
		}),
		MatchDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_duration_seconds",
			Help:      "Duration of full match scans",
			Buckets:   prometheus.DefBuckets,
		}),
		EmbeddingDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "embedding_duration_seconds",
			Help:      "Duration of embedding provider calls",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"operation"}),
		IdentitiesStored: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "identities_stored",
			Help:      "Identities currently held by the store",
		}),
	}
}

func (m *Metrics) ObserveEnrollment(result string) {
	if m == nil {
		return
	}
	m.EnrollmentsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveRollback(failed bool) {
	if m == nil {
		return
	}
	m.EnrollmentRollbacks.Inc()
	if failed {
		m.RollbackFailures.Inc()
	}
}

func (m *Metrics) ObserveRecognition(outcome string) {
	if m == nil {
		return
	}
	m.RecognitionsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveSkippedRecord() {
	if m == nil {
		return
	}
	m.MatchSkippedRecords.Inc()
}

// ObserveMatch records scan duration, and the best distance when there was a candidate
func (m *Metrics) ObserveMatch(duration time.Duration, distance float64, hadCandidates bool) {
	if m == nil {
		return
	}
	m.MatchDurationSeconds.Observe(duration.Seconds())
	if hadCandidates {
		m.MatchDistance.Observe(distance)
	}
}

func (m *Metrics) ObserveEmbedding(operation string, duration time.Duration) {
	if m == nil {
		return
	}
	m.EmbeddingDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *Metrics) SetIdentitiesStored(n int) {
	if m == nil {
		return
	}
	m.IdentitiesStored.Set(float64(n))
}
