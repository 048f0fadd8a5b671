package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	registry           *prometheus.Registry
	registryOnce       sync.Once
	defaultMetricsPath = "/metrics"
	metricsEnabled     = true

	// Session metrics
	SessionsActive   prometheus.Gauge
	SessionsStarted  *prometheus.CounterVec
	SessionDuration  prometheus.Histogram
	RoundsTotal      *prometheus.CounterVec
	RoundScore       prometheus.Histogram
	RoundSubscore    *prometheus.GaugeVec
	WebsocketClients prometheus.Gauge

	// Analyzer metrics
	FramesProcessed   prometheus.Counter
	FramesDropped     prometheus.Counter
	AnalyzerMalformed *prometheus.CounterVec

	// STT metrics
	STTEvents   *prometheus.CounterVec
	STTRestarts *prometheus.CounterVec

	// AMQP metrics
	AMQPPublishedMessages *prometheus.CounterVec
	AMQPConnectionStatus  prometheus.Gauge
)

// Init initializes all metrics and registers them with Prometheus
func Init(logger *logrus.Logger) {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()

		SessionsActive = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "interview_sessions_active",
				Help: "Number of live interview sessions",
			},
		)

		SessionsStarted = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "interview_sessions_started_total",
				Help: "Total number of sessions started",
			},
			[]string{"interview_type"},
		)

		SessionDuration = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "interview_session_duration_seconds",
				Help:    "Total session time at the point the session ended",
				Buckets: []float64{60, 180, 300, 600, 900, 1800, 3600},
			},
		)

		RoundsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "interview_rounds_total",
				Help: "Total number of completed rounds",
			},
			[]string{"outcome"},
		)

		RoundScore = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "interview_round_score",
				Help:    "Final score of saved rounds",
				Buckets: prometheus.LinearBuckets(10, 10, 10),
			},
		)

		RoundSubscore = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "interview_subscore",
				Help: "Breakdown of the most recently saved round",
			},
			[]string{"dimension"},
		)

		WebsocketClients = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "interview_websocket_clients",
				Help: "Number of connected websocket clients",
			},
		)

		FramesProcessed = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "interview_frames_processed_total",
				Help: "Total number of analyzed frames",
			},
		)

		FramesDropped = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "interview_frames_dropped_total",
				Help: "Frames dropped because the session loop was busy or stopped",
			},
		)

		AnalyzerMalformed = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "interview_analyzer_malformed_total",
				Help: "Inputs rejected by an analyzer as malformed",
			},
			[]string{"analyzer"},
		)

		STTEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "interview_stt_events_total",
				Help: "Transcription events received",
			},
			[]string{"provider", "kind"},
		)

		STTRestarts = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "interview_stt_restarts_total",
				Help: "Transcription stream restarts",
			},
			[]string{"provider", "reason"},
		)

		AMQPPublishedMessages = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "interview_amqp_published_total",
				Help: "Messages published to AMQP",
			},
			[]string{"kind", "status"},
		)

		AMQPConnectionStatus = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "interview_amqp_connection_status",
				Help: "AMQP connection status (1 = connected, 0 = disconnected)",
			},
		)

		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),

			SessionsActive,
			SessionsStarted,
			SessionDuration,
			RoundsTotal,
			RoundScore,
			RoundSubscore,
			WebsocketClients,

			FramesProcessed,
			FramesDropped,
			AnalyzerMalformed,

			STTEvents,
			STTRestarts,

			AMQPPublishedMessages,
			AMQPConnectionStatus,
		)

		logger.Info("Prometheus metrics initialized")
	})
}

// GetRegistry returns the prometheus registry
func GetRegistry() *prometheus.Registry {
	return registry
}

// SetMetricsPath sets the HTTP path for metrics endpoint
func SetMetricsPath(path string) {
	defaultMetricsPath = path
}

// EnableMetrics enables or disables metrics collection
func EnableMetrics(enabled bool) {
	metricsEnabled = enabled
}

// IsMetricsEnabled returns whether metrics are enabled and initialized
func IsMetricsEnabled() bool {
	return metricsEnabled && registry != nil
}

// RegisterHandler registers the metrics HTTP handler
func RegisterHandler(mux *http.ServeMux) {
	if !IsMetricsEnabled() {
		return
	}
	handler := promhttp.HandlerFor(
		registry,
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
			Registry:          registry,
		},
	)
	mux.Handle(defaultMetricsPath, handler)
}

// StartMetrics initializes the metrics service
func StartMetrics(logger *logrus.Logger, enabled bool) {
	if !enabled {
		EnableMetrics(false)
		logger.Info("Metrics collection is disabled")
		return
	}

	Init(logger)
	EnableMetrics(true)
	logger.WithField("metrics_path", defaultMetricsPath).Info("Metrics endpoint initialized")
}

// RecordSessionStarted records a new session
func RecordSessionStarted(interviewType string) {
	if IsMetricsEnabled() {
		SessionsStarted.WithLabelValues(interviewType).Inc()
	}
}

// SetSessionsActive sets the number of live sessions
func SetSessionsActive(count int) {
	if IsMetricsEnabled() {
		SessionsActive.Set(float64(count))
	}
}

// ObserveSessionDuration records the total time of an ended session
func ObserveSessionDuration(seconds int) {
	if IsMetricsEnabled() {
		SessionDuration.Observe(float64(seconds))
	}
}

// RecordRoundSaved records a scored round and its breakdown
func RecordRoundSaved(final int, breakdown map[string]int) {
	if !IsMetricsEnabled() {
		return
	}
	RoundsTotal.WithLabelValues("saved").Inc()
	RoundScore.Observe(float64(final))
	for dimension, value := range breakdown {
		RoundSubscore.WithLabelValues(dimension).Set(float64(value))
	}
}

// RecordRoundSkipped records a skipped round
func RecordRoundSkipped() {
	if IsMetricsEnabled() {
		RoundsTotal.WithLabelValues("skipped").Inc()
	}
}

// SetWebsocketClients sets the number of connected websocket clients
func SetWebsocketClients(count int) {
	if IsMetricsEnabled() {
		WebsocketClients.Set(float64(count))
	}
}

// RecordFrameProcessed records one analyzed frame
func RecordFrameProcessed() {
	if IsMetricsEnabled() {
		FramesProcessed.Inc()
	}
}

// RecordFrameDropped records a frame that never reached the session loop
func RecordFrameDropped() {
	if IsMetricsEnabled() {
		FramesDropped.Inc()
	}
}

// RecordMalformedInput records an input absorbed by an analyzer
func RecordMalformedInput(analyzer string) {
	if IsMetricsEnabled() {
		AnalyzerMalformed.WithLabelValues(analyzer).Inc()
	}
}

// RecordSTTEvent records a transcription event from a provider
func RecordSTTEvent(provider string, isFinal bool) {
	if !IsMetricsEnabled() {
		return
	}
	kind := "interim"
	if isFinal {
		kind = "final"
	}
	STTEvents.WithLabelValues(provider, kind).Inc()
}

// RecordSTTRestart records a supervised stream restart
func RecordSTTRestart(provider, reason string) {
	if IsMetricsEnabled() {
		STTRestarts.WithLabelValues(provider, reason).Inc()
	}
}

// RecordAMQPPublish records metrics for an AMQP publish
func RecordAMQPPublish(kind, status string) {
	if IsMetricsEnabled() {
		AMQPPublishedMessages.WithLabelValues(kind, status).Inc()
	}
}

// SetAMQPConnectionStatus sets the AMQP connection status
func SetAMQPConnectionStatus(connected bool) {
	if !IsMetricsEnabled() {
		return
	}
	if connected {
		AMQPConnectionStatus.Set(1)
	} else {
		AMQPConnectionStatus.Set(0)
	}
}
