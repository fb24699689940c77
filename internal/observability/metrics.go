// Package observability provides the Prometheus metrics of the chat and voice flows.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "hopeai"

// Metrics holds all Prometheus metrics of the client.
type Metrics struct {
	// Chat stream metrics
	StreamsTotal   prometheus.Counter
	StreamsFailed  prometheus.Counter
	StreamDuration prometheus.Histogram
	FallbacksTotal *prometheus.CounterVec

	// Realtime metrics
	RealtimeActions     *prometheus.CounterVec
	VoiceSessionsTotal  *prometheus.CounterVec
	VoiceSessionsActive prometheus.Gauge

	// Transcript metrics
	EntriesFinalized *prometheus.CounterVec

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
}

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		StreamsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_streams_total",
			Help:      "Total number of streamed chat replies started",
		}),
		StreamsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_streams_failed_total",
			Help:      "Total number of streamed chat replies that failed",
		}),
		StreamDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_stream_duration_seconds",
			Help:      "Duration of streamed chat replies in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		FallbacksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_fallbacks_total",
			Help:      "Total number of non-streaming retries after a failed stream",
		}, []string{"outcome"}),

		RealtimeActions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_actions_total",
			Help:      "Total number of classified realtime events",
		}, []string{"kind"}),
		VoiceSessionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_sessions_total",
			Help:      "Total number of voice sessions requested",
		}, []string{"outcome"}),
		VoiceSessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "voice_sessions_active",
			Help:      "Number of currently open voice sessions",
		}),

		EntriesFinalized: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_entries_finalized_total",
			Help:      "Total number of transcript entries finalized",
		}, []string{"role"}),

		KafkaPublishTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic"}),
		KafkaPublishErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic"}),
		KafkaPublishLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
	}
}

// RecordStreamStart records a streamed reply starting.
func (m *Metrics) RecordStreamStart() {
	m.StreamsTotal.Inc()
}

// RecordStreamEnd records a streamed reply ending.
func (m *Metrics) RecordStreamEnd(success bool, durationSeconds float64) {
	m.StreamDuration.Observe(durationSeconds)
	if !success {
		m.StreamsFailed.Inc()
	}
}

// RecordFallback records the outcome of a non-streaming retry.
func (m *Metrics) RecordFallback(success bool) {
	m.FallbacksTotal.WithLabelValues(outcome(success)).Inc()
}

// RecordAction records one classified realtime event.
func (m *Metrics) RecordAction(kind string) {
	m.RealtimeActions.WithLabelValues(kind).Inc()
}

// RecordVoiceSessionStart records a voice session request and, when it succeeded, the open session.
func (m *Metrics) RecordVoiceSessionStart(success bool) {
	m.VoiceSessionsTotal.WithLabelValues(outcome(success)).Inc()
	if success {
		m.VoiceSessionsActive.Inc()
	}
}

// RecordVoiceSessionEnd records an open voice session closing.
func (m *Metrics) RecordVoiceSessionEnd() {
	m.VoiceSessionsActive.Dec()
}

// RecordEntryFinalized records a transcript entry being frozen.
func (m *Metrics) RecordEntryFinalized(role string) {
	m.EntriesFinalized.WithLabelValues(role).Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic string, err error, durationSeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(durationSeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic).Inc()
	}
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
