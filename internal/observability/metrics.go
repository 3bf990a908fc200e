package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting runtime metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Turn throughput and latency per agent
//   - Tool execution patterns and latencies
//   - Agent transfer attempts and denials
//   - Home Assistant request performance and reconnects
//   - Active session and WebSocket connection counts
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	metrics.ToolExecutionCounter.WithLabelValues("get_current_time", "success").Inc()
//	defer metrics.TurnDuration.WithLabelValues("main").Observe(time.Since(start).Seconds())
type Metrics struct {
	registry *prometheus.Registry

	// TurnCounter counts completed turns.
	// Labels: agent, status (success|error)
	TurnCounter *prometheus.CounterVec

	// TurnDuration measures wall time of one turn in seconds.
	// Labels: agent
	TurnDuration *prometheus.HistogramVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// TransferCounter counts transfer attempts.
	// Labels: from_agent, to_agent, status (granted|denied)
	TransferCounter *prometheus.CounterVec

	// EventCounter counts normalized events emitted to clients.
	// Labels: type
	EventCounter *prometheus.CounterVec

	// HARequestCounter counts Home Assistant WebSocket requests.
	// Labels: type, status (success|error|timeout)
	HARequestCounter *prometheus.CounterVec

	// HARequestDuration measures Home Assistant round-trip time in seconds.
	// Labels: type
	HARequestDuration *prometheus.HistogramVec

	// HAReconnectCounter counts Home Assistant connection re-establishments.
	HAReconnectCounter prometheus.Counter

	// ActiveSessions tracks live session runners.
	ActiveSessions prometheus.Gauge

	// WSConnections tracks connected WebSocket clients.
	WSConnections prometheus.Gauge
}

// NewMetrics creates a metric set on its own registry so tests and multiple
// instances never collide on the global default.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		TurnCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hearth_turns_total",
			Help: "Completed turns by agent and outcome.",
		}, []string{"agent", "status"}),
		TurnDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hearth_turn_duration_seconds",
			Help:    "Wall time of one turn.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"agent"}),
		ToolExecutionCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hearth_tool_executions_total",
			Help: "Tool invocations by tool and outcome.",
		}, []string{"tool_name", "status"}),
		ToolExecutionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hearth_tool_execution_duration_seconds",
			Help:    "Tool handler execution time.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"tool_name"}),
		TransferCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hearth_transfers_total",
			Help: "Agent transfer attempts by edge and status.",
		}, []string{"from_agent", "to_agent", "status"}),
		EventCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hearth_events_total",
			Help: "Normalized events emitted by type.",
		}, []string{"type"}),
		HARequestCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hearth_ha_requests_total",
			Help: "Home Assistant WebSocket requests by type and outcome.",
		}, []string{"type", "status"}),
		HARequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hearth_ha_request_duration_seconds",
			Help:    "Home Assistant request round-trip time.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}, []string{"type"}),
		HAReconnectCounter: factory.NewCounter(prometheus.CounterOpts{
			Name: "hearth_ha_reconnects_total",
			Help: "Home Assistant connection re-establishments.",
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hearth_sessions_active",
			Help: "Live session runners.",
		}),
		WSConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hearth_ws_connections",
			Help: "Connected WebSocket clients.",
		}),
	}
}

// Registry returns the underlying registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
