package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters, gauges, and histograms for the
// streaming pipeline.
type Metrics struct {
	registry               *prometheus.Registry
	requestsTotal          prometheus.Counter
	errorsTotal            prometheus.Counter
	framesProcessedTotal   prometheus.Counter
	framesFailedTotal      prometheus.Counter
	framesDroppedTotal     prometheus.Counter
	gesturesDetectedTotal  prometheus.Counter
	sessionsStartedTotal   prometheus.Counter
	sessionsCompletedTotal prometheus.Counter
	activeConnections      prometheus.Gauge
	activeSessions         prometheus.Gauge
	summariesRecorded      prometheus.Gauge
	summariesCompleted     prometheus.Gauge
	frameProcessingSeconds prometheus.Histogram
}

// New creates and registers Prometheus metrics for the pipeline.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "signstream_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "signstream_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	framesProcessedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "signstream_frames_processed_total",
		Help: "Total number of frames run through the processing pipeline",
	})
	framesFailedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "signstream_frames_failed_total",
		Help: "Total number of frames that failed at any pipeline stage",
	})
	framesDroppedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "signstream_frames_dropped_total",
		Help: "Total number of stale frames dropped by backpressure",
	})
	gesturesDetectedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "signstream_gestures_detected_total",
		Help: "Total number of completed sign gestures detected",
	})
	sessionsStartedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "signstream_practice_sessions_started_total",
		Help: "Total number of practice sessions started",
	})
	sessionsCompletedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "signstream_practice_sessions_completed_total",
		Help: "Total number of practice sessions completed",
	})
	activeConnections := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "signstream_active_connections",
		Help: "Number of open WebSocket connections",
	})
	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "signstream_active_practice_sessions",
		Help: "Number of practice sessions that are active",
	})
	summariesRecorded := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "signstream_session_summaries_recorded",
		Help: "Number of finished-session summaries held by the repository",
	})
	summariesCompleted := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "signstream_session_summaries_completed",
		Help: "Number of recorded summaries whose story was fully completed",
	})
	frameProcessingSeconds := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "signstream_frame_processing_seconds",
		Help: "Per-frame pipeline processing time in seconds",
		// Buckets around the 16.7-33.3ms frame budget of a 30-60fps stream.
		Buckets: []float64{0.005, 0.01, 0.0167, 0.025, 0.0333, 0.05, 0.1, 0.25, 0.5, 1},
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		framesProcessedTotal,
		framesFailedTotal,
		framesDroppedTotal,
		gesturesDetectedTotal,
		sessionsStartedTotal,
		sessionsCompletedTotal,
		activeConnections,
		activeSessions,
		summariesRecorded,
		summariesCompleted,
		frameProcessingSeconds,
	)

	return &Metrics{
		registry:               registry,
		requestsTotal:          requestsTotal,
		errorsTotal:            errorsTotal,
		framesProcessedTotal:   framesProcessedTotal,
		framesFailedTotal:      framesFailedTotal,
		framesDroppedTotal:     framesDroppedTotal,
		gesturesDetectedTotal:  gesturesDetectedTotal,
		sessionsStartedTotal:   sessionsStartedTotal,
		sessionsCompletedTotal: sessionsCompletedTotal,
		activeConnections:      activeConnections,
		activeSessions:         activeSessions,
		summariesRecorded:      summariesRecorded,
		summariesCompleted:     summariesCompleted,
		frameProcessingSeconds: frameProcessingSeconds,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncFramesProcessed increments the processed frames counter.
func (m *Metrics) IncFramesProcessed() {
	m.framesProcessedTotal.Inc()
}

// IncFramesFailed increments the failed frames counter.
func (m *Metrics) IncFramesFailed() {
	m.framesFailedTotal.Inc()
}

// IncFramesDropped increments the dropped frames counter.
func (m *Metrics) IncFramesDropped() {
	m.framesDroppedTotal.Inc()
}

// IncGesturesDetected increments the detected gestures counter.
func (m *Metrics) IncGesturesDetected() {
	m.gesturesDetectedTotal.Inc()
}

// IncSessionsStarted increments the practice sessions started counter.
func (m *Metrics) IncSessionsStarted() {
	m.sessionsStartedTotal.Inc()
}

// IncSessionsCompleted increments the practice sessions completed counter.
func (m *Metrics) IncSessionsCompleted() {
	m.sessionsCompletedTotal.Inc()
}

// ConnectionOpened increments the active connections gauge.
func (m *Metrics) ConnectionOpened() {
	m.activeConnections.Inc()
}

// ConnectionClosed decrements the active connections gauge.
func (m *Metrics) ConnectionClosed() {
	m.activeConnections.Dec()
}

// SessionActivated increments the active practice sessions gauge.
func (m *Metrics) SessionActivated() {
	m.activeSessions.Inc()
}

// SessionDeactivated decrements the active practice sessions gauge.
func (m *Metrics) SessionDeactivated() {
	m.activeSessions.Dec()
}

// SetSummariesRecorded sets the recorded-summaries gauge.
func (m *Metrics) SetSummariesRecorded(n int) {
	m.summariesRecorded.Set(float64(n))
}

// SetSummariesCompleted sets the completed-summaries gauge.
func (m *Metrics) SetSummariesCompleted(n int) {
	m.summariesCompleted.Set(float64(n))
}

// ObserveFrameProcessing records one frame's total pipeline time.
func (m *Metrics) ObserveFrameProcessing(d time.Duration) {
	m.frameProcessingSeconds.Observe(d.Seconds())
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values
// (e.g. active practice sessions).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
