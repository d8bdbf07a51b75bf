package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the custom Prometheus metrics for the companion.
type Metrics struct {
	Turns           *prometheus.CounterVec
	TurnLatency     prometheus.Histogram
	ToolCalls       *prometheus.CounterVec
	ModelCalls      *prometheus.CounterVec
	AlertsRouted    *prometheus.CounterVec
	AlertDeliveries *prometheus.CounterVec
	JobRuns         *prometheus.CounterVec
	LiveConnections prometheus.Gauge
}

// NewMetrics registers the metrics on reg. Pass prometheus.DefaultRegisterer
// in the server and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Turns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "amble_turns_total",
			Help: "Total number of conversation turns by outcome",
		}, []string{"outcome"}), // ok, degraded

		TurnLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "amble_turn_duration_seconds",
			Help:    "Conversation turn latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),

		ToolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "amble_tool_calls_total",
			Help: "Total number of tool dispatches by tool and status",
		}, []string{"tool", "status"}),

		ModelCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "amble_model_calls_total",
			Help: "Total number of language model calls by status",
		}, []string{"status"}),

		AlertsRouted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "amble_alerts_routed_total",
			Help: "Total number of alerts recorded by urgency and category",
		}, []string{"urgency", "category"}),

		AlertDeliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "amble_alert_deliveries_total",
			Help: "External alert deliveries by channel and result",
		}, []string{"channel", "result"}),

		JobRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "amble_job_runs_total",
			Help: "Scheduler job executions by job and result",
		}, []string{"job", "result"}),

		LiveConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "amble_live_alert_connections",
			Help: "Number of open live alert websocket connections",
		}),
	}
}

// Emit implements Sink by counting turn, model and tool outcomes.
func (m *Metrics) Emit(_ context.Context, ev Event) {
	switch ev.Kind {
	case TurnEnd:
		outcome := "ok"
		if ev.Status == "degraded" {
			outcome = "degraded"
		}
		m.Turns.WithLabelValues(outcome).Inc()
		m.TurnLatency.Observe(ev.Duration.Seconds())
	case ModelCallEnd:
		status := ev.Status
		if status == "" {
			status = "success"
		}
		m.ModelCalls.WithLabelValues(status).Inc()
	case ToolCallEnd:
		m.ToolCalls.WithLabelValues(ev.Name, ev.Status).Inc()
	}
}
