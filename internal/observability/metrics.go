package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	Utterances        *prometheus.CounterVec
	Segments          *prometheus.CounterVec
	IndexEvents       *prometheus.CounterVec
	SynthRequests     *prometheus.CounterVec
	VoiceFallbacks    *prometheus.CounterVec
	AudioChunks       *prometheus.CounterVec
	SinkHandoffs      prometheus.Counter
	TaskQueueDepth    prometheus.Gauge
	ActiveSessions    prometheus.Gauge
	SessionEvents     *prometheus.CounterVec
	JournalErrors     prometheus.Counter
	Downloads         *prometheus.CounterVec
	SegmentSynthSecs  *prometheus.HistogramVec
	FirstAudioSeconds prometheus.Histogram

	stages *stageWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		Utterances: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_total",
			Help:      "Utterances by outcome.",
		}, []string{"outcome"}),
		Segments: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_total",
			Help:      "Split segments by script class.",
		}, []string{"class"}),
		IndexEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_events_total",
			Help:      "Index-reached notifications by kind.",
		}, []string{"kind"}),
		SynthRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synth_requests_total",
			Help:      "Synthesis requests by backend and status.",
		}, []string{"backend", "status"}),
		VoiceFallbacks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_fallbacks_total",
			Help:      "Voice selection fallbacks by reason.",
		}, []string{"reason"}),
		AudioChunks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_total",
			Help:      "PCM chunks routed by sink.",
		}, []string{"sink"}),
		SinkHandoffs: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_handoffs_total",
			Help:      "Cross-sink synchronize-then-feed hand-offs.",
		}),
		TaskQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "task_queue_depth",
			Help:      "Tasks waiting in the engine queue.",
		}),
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of connected speech sessions.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
		JournalErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "journal_errors_total",
			Help:      "Failed utterance journal writes.",
		}),
		Downloads: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Voice downloads by outcome.",
		}, []string{"outcome"}),
		SegmentSynthSecs: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "segment_synth_seconds",
			Help:      "Per-segment synthesis wall time by backend.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"backend"}),
		FirstAudioSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "utterance_first_audio_seconds",
			Help:      "Latency from speak to first audio chunk.",
			Buckets:   []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.7, 1, 2},
		}),
		stages: newStageWindow(256),
	}
}

func (m *Metrics) ObserveFirstAudio(d time.Duration) {
	if m == nil {
		return
	}
	m.FirstAudioSeconds.Observe(d.Seconds())
	m.stages.Observe(StageFirstAudio, float64(d.Milliseconds()))
}

// ObserveStage records one utterance stage duration in the sliding window
// served by the perf endpoint.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stages.Observe(stage, float64(d.Milliseconds()))
}

func (m *Metrics) ObserveIndicator(name string) {
	if m == nil {
		return
	}
	m.stages.ObserveIndicator(name)
}

func (m *Metrics) SnapshotStages() StageSnapshot {
	if m == nil {
		return StageSnapshot{}
	}
	return m.stages.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
