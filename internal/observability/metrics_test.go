package observability_test

import (
	"errors"
	"testing"

	"github.com/MegaGrindStone/hopeai-web-ui/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics(t *testing.T) {
	m := observability.NewMetrics(prometheus.NewRegistry())

	m.RecordStreamStart()
	m.RecordStreamStart()
	m.RecordStreamEnd(true, 0.2)
	m.RecordStreamEnd(false, 1.5)
	m.RecordFallback(true)
	m.RecordAction("AssistantDelta")
	m.RecordAction("AssistantDelta")
	m.RecordVoiceSessionStart(true)
	m.RecordVoiceSessionStart(false)
	m.RecordEntryFinalized("assistant")
	m.RecordKafkaPublish("transcripts", nil, 0.01)
	m.RecordKafkaPublish("transcripts", errors.New("broker down"), 0.01)

	tests := []struct {
		name      string
		collector prometheus.Collector
		want      float64
	}{
		{"streams total", m.StreamsTotal, 2},
		{"streams failed", m.StreamsFailed, 1},
		{"fallback success", m.FallbacksTotal.WithLabelValues("success"), 1},
		{"fallback failure", m.FallbacksTotal.WithLabelValues("failure"), 0},
		{"assistant deltas", m.RealtimeActions.WithLabelValues("AssistantDelta"), 2},
		{"voice sessions failed", m.VoiceSessionsTotal.WithLabelValues("failure"), 1},
		{"voice sessions active", m.VoiceSessionsActive, 1},
		{"assistant entries finalized", m.EntriesFinalized.WithLabelValues("assistant"), 1},
		{"kafka publishes", m.KafkaPublishTotal.WithLabelValues("transcripts"), 2},
		{"kafka errors", m.KafkaPublishErrors.WithLabelValues("transcripts"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.ToFloat64(tt.collector); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	m.RecordVoiceSessionEnd()
	if got := testutil.ToFloat64(m.VoiceSessionsActive); got != 0 {
		t.Errorf("voice sessions active after end = %v, want 0", got)
	}
}

func TestMetricsSeparateRegistries(t *testing.T) {
	// Each registry gets its own collectors, so building twice must not panic.
	observability.NewMetrics(prometheus.NewRegistry())
	observability.NewMetrics(prometheus.NewRegistry())
}
