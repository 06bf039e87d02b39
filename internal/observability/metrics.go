package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	InCall           prometheus.Gauge
	BotReady         prometheus.Gauge
	ConnectAttempts  *prometheus.CounterVec
	TransportEvents  *prometheus.CounterVec
	StaleEvents      prometheus.Counter
	Notices          *prometheus.CounterVec
	Commands         *prometheus.CounterVec
	WSMessages       *prometheus.CounterVec
	BotReadyLatency  prometheus.Histogram
	SessionRemaining prometheus.Gauge

	gatherer prometheus.Gatherer
	stages   *stageWindow
}

// NewMetrics registers instruments on the default registry.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(namespace, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewMetricsWith registers instruments on reg; tests pass a fresh registry.
func NewMetricsWith(namespace string, reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		InCall: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "in_call",
			Help:      "1 while the transport reports an in-call status.",
		}),
		BotReady: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bot_ready",
			Help:      "1 once the bot reported ready for the current session.",
		}),
		ConnectAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_attempts_total",
			Help:      "Connect attempts by result.",
		}, []string{"result"}),
		TransportEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_events_total",
			Help:      "Transport events applied to session state, by event.",
		}, []string{"event"}),
		StaleEvents: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_events_dropped_total",
			Help:      "Transport events dropped because their client was superseded.",
		}),
		Notices: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notices_total",
			Help:      "User-facing notices raised, by kind.",
		}, []string{"kind"}),
		Commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands issued by the presentation layer.",
		}, []string{"command", "source"}),
		WSMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		BotReadyLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bot_ready_latency_ms",
			Help:      "Latency from connect to bot ready in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 15000},
		}),
		SessionRemaining: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_remaining_seconds",
			Help:      "Seconds until the current session expires; 0 when unknown.",
		}),
		gatherer: gatherer,
		stages:   newStageWindow(256),
	}
}

func (m *Metrics) SetInCall(inCall, botReady bool) {
	if m == nil {
		return
	}
	m.InCall.Set(boolGauge(inCall))
	m.BotReady.Set(boolGauge(botReady))
}

func (m *Metrics) ObserveConnect(result string) {
	if m == nil {
		return
	}
	m.ConnectAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveEvent(event string) {
	if m == nil {
		return
	}
	m.TransportEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) ObserveStaleEvent() {
	if m == nil {
		return
	}
	m.StaleEvents.Inc()
}

func (m *Metrics) ObserveNotice(kind string) {
	if m == nil {
		return
	}
	m.Notices.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveCommand(command, source string) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(command, source).Inc()
}

func (m *Metrics) ObserveWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

func (m *Metrics) SetRemaining(seconds int) {
	if m == nil {
		return
	}
	m.SessionRemaining.Set(float64(seconds))
}

// ObserveStage records how long after connect a session reached stage.
func (m *Metrics) ObserveStage(stage string, sinceConnect time.Duration) {
	if m == nil {
		return
	}
	ms := float64(sinceConnect.Milliseconds())
	m.stages.Observe(stage, ms)
	if stage == StageBotReady {
		m.BotReadyLatency.Observe(ms)
	}
}

func (m *Metrics) SnapshotStages() StageSnapshot {
	if m == nil {
		return StageSnapshot{GeneratedAt: time.Now().UTC(), Stages: []StageStats{}}
	}
	return m.stages.Snapshot()
}

// Handler serves the registry these metrics were registered on.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
