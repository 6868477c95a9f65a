package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	queueSize    *prometheus.GaugeVec
	enqueueTotal *prometheus.CounterVec
	dequeueTotal *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec

	activeSessions      prometheus.Gauge
	sessionLoadDuration prometheus.Histogram
	sessionSaveDuration prometheus.Histogram
	sessionsPrunedTotal prometheus.Counter

	turnsTotal    *prometheus.CounterVec
	turnDuration  *prometheus.HistogramVec
	pendingRounds prometheus.Histogram

	streamEventsTotal   *prometheus.CounterVec
	classificationTotal *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
	registry    *prometheus.Registry
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			queueSize: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "queue_size",
					Help: "Current queue size by lane.",
				},
				[]string{"lane"},
			),
			enqueueTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "enqueue_total",
					Help: "Total enqueue operations by lane.",
				},
				[]string{"lane"},
			),
			dequeueTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "dequeue_total",
					Help: "Total dequeue/completion operations by lane and status.",
				},
				[]string{"lane", "status"},
			),
			taskDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "task_duration_seconds",
					Help:    "Task execution duration in seconds by lane.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"lane"},
			),
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "active_sessions",
					Help: "Current active session count.",
				},
			),
			sessionLoadDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "session_load_duration_seconds",
					Help:    "Session load duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			sessionSaveDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "session_save_duration_seconds",
					Help:    "Session save duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			sessionsPrunedTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "sessions_pruned_total",
					Help: "Total sessions removed by the retention janitor.",
				},
			),
			turnsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "turns_total",
					Help: "Total turns by kind (start/resume) and outcome.",
				},
				[]string{"kind", "outcome"},
			),
			turnDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "turn_duration_seconds",
					Help:    "Turn duration in seconds by kind.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"kind"},
			),
			pendingRounds: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "pending_action_requests",
					Help:    "Number of action requests returned by a pausing turn.",
					Buckets: []float64{1, 2, 3, 5, 8, 13},
				},
			),
			streamEventsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "stream_events_total",
					Help: "Total stream events emitted by type.",
				},
				[]string{"type"},
			),
			classificationTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "failure_classifications_total",
					Help: "Total classified upstream failures by code.",
				},
				[]string{"code"},
			),
		}

		registry = prometheus.NewRegistry()
		registry.MustRegister(
			m.queueSize,
			m.enqueueTotal,
			m.dequeueTotal,
			m.taskDuration,
			m.activeSessions,
			m.sessionLoadDuration,
			m.sessionSaveDuration,
			m.sessionsPrunedTotal,
			m.turnsTotal,
			m.turnDuration,
			m.pendingRounds,
			m.streamEventsTotal,
			m.classificationTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes the metrics registry. Safe to call from any package.
func EnsureRegistered() {
	getMetrics()
}

// Handler returns an HTTP handler serving the metrics registry.
func Handler() http.Handler {
	getMetrics()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// SetQueueSize sets the current queue size for a lane.
func SetQueueSize(lane string, size int) {
	getMetrics().queueSize.WithLabelValues(lane).Set(float64(size))
}

// RecordQueueEnqueue records an enqueue operation.
func RecordQueueEnqueue(lane string, queueSize int) {
	m := getMetrics()
	m.enqueueTotal.WithLabelValues(lane).Inc()
	m.queueSize.WithLabelValues(lane).Set(float64(queueSize))
}

// RecordQueueCompletion records a completed task.
func RecordQueueCompletion(lane string, duration time.Duration, success bool, queueSize int) {
	m := getMetrics()
	status := "ok"
	if !success {
		status = "error"
	}
	m.dequeueTotal.WithLabelValues(lane, status).Inc()
	m.taskDuration.WithLabelValues(lane).Observe(duration.Seconds())
	m.queueSize.WithLabelValues(lane).Set(float64(queueSize))
}

// SetActiveSessions sets the active session gauge.
func SetActiveSessions(n int) {
	getMetrics().activeSessions.Set(float64(n))
}

// RecordSessionLoad records a session load duration.
func RecordSessionLoad(duration time.Duration) {
	getMetrics().sessionLoadDuration.Observe(duration.Seconds())
}

// RecordSessionSave records a session save duration.
func RecordSessionSave(duration time.Duration) {
	getMetrics().sessionSaveDuration.Observe(duration.Seconds())
}

// RecordSessionsPruned records sessions removed by the retention janitor.
func RecordSessionsPruned(n int) {
	getMetrics().sessionsPrunedTotal.Add(float64(n))
}

// RecordTurn records a completed turn by kind ("start" or "resume") and outcome
// ("complete", "pending" or "error").
func RecordTurn(kind, outcome string, duration time.Duration) {
	m := getMetrics()
	m.turnsTotal.WithLabelValues(kind, outcome).Inc()
	m.turnDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordPendingRequests records how many action requests a pausing turn returned.
func RecordPendingRequests(n int) {
	getMetrics().pendingRounds.Observe(float64(n))
}

// RecordStreamEvent records an emitted stream event.
func RecordStreamEvent(eventType string) {
	getMetrics().streamEventsTotal.WithLabelValues(eventType).Inc()
}

// RecordClassification records a classified upstream failure.
func RecordClassification(code int) {
	getMetrics().classificationTotal.WithLabelValues(strconv.Itoa(code)).Inc()
}
