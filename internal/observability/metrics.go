package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	reviewerRequestsTotal *prometheus.CounterVec
	reviewerLatency       *prometheus.HistogramVec
	reviewerErrorsTotal   *prometheus.CounterVec
	sessionsSealedTotal   *prometheus.CounterVec
	violationsTotal       *prometheus.CounterVec
	stageTransitionsTotal *prometheus.CounterVec
	stageDuplicatesTotal  prometheus.Counter
	notificationsTotal    *prometheus.CounterVec
	sseClientsActive      prometheus.Gauge
	examSocketsActive     prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors used by the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		reviewerRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reviewer_requests_total",
			Help: "Total number of reviewer API requests served.",
		}, []string{"method", "route", "status"})

		reviewerLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reviewer_latency_seconds",
			Help:    "Latency distribution for reviewer API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		reviewerErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reviewer_errors_total",
			Help: "Total number of error responses returned by reviewer endpoints.",
		}, []string{"method", "route", "status"})

		sessionsSealedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assessment_sessions_sealed_total",
			Help: "Assessment sessions sealed, by reason.",
		}, []string{"reason"})

		violationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assessment_integrity_violations_total",
			Help: "Integrity violations reported by exam clients.",
		}, []string{"category", "after_seal"})

		stageTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_stage_transitions_total",
			Help: "Stage decisions recorded, by stage and outcome.",
		}, []string{"stage", "qualification"})

		stageDuplicatesTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_stage_duplicates_total",
			Help: "Status derivations that found duplicate stage records.",
		})

		notificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_published_total",
			Help: "Notifications delivered to subscribers, by type.",
		}, []string{"type"})

		sseClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "notifications_sse_clients_active",
			Help: "Currently connected notification stream clients.",
		})

		examSocketsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "assessment_sockets_active",
			Help: "Currently connected exam websocket clients.",
		})

		prometheus.MustRegister(
			reviewerRequestsTotal, reviewerLatency, reviewerErrorsTotal,
			sessionsSealedTotal, violationsTotal, stageTransitionsTotal, stageDuplicatesTotal,
			notificationsTotal, sseClientsActive, examSocketsActive,
		)
	})
}

// ReviewerRequests exposes the counter for reviewer requests.
func ReviewerRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return reviewerRequestsTotal
}

// ReviewerLatency exposes the latency histogram for reviewer requests.
func ReviewerLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return reviewerLatency
}

// ReviewerErrors exposes the counter for reviewer error responses.
func ReviewerErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return reviewerErrorsTotal
}

// SessionsSealed counts seals by reason.
func SessionsSealed() *prometheus.CounterVec {
	RegisterMetrics()
	return sessionsSealedTotal
}

// IntegrityViolations counts violation reports.
func IntegrityViolations() *prometheus.CounterVec {
	RegisterMetrics()
	return violationsTotal
}

// StageTransitions counts stage decisions.
func StageTransitions() *prometheus.CounterVec {
	RegisterMetrics()
	return stageTransitionsTotal
}

// StageDuplicates counts duplicate stage records seen while deriving status.
func StageDuplicates() prometheus.Counter {
	RegisterMetrics()
	return stageDuplicatesTotal
}

// NotificationsPublishedTotal counts notifications fanned out to subscribers.
func NotificationsPublishedTotal() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsTotal
}

// SSEClientsActive tracks connected notification streams.
func SSEClientsActive() prometheus.Gauge {
	RegisterMetrics()
	return sseClientsActive
}

// ExamSocketsActive tracks connected exam sockets.
func ExamSocketsActive() prometheus.Gauge {
	RegisterMetrics()
	return examSocketsActive
}
