package server

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/gatherd/metric"
)

// Metrics holds Prometheus metrics for the gather server
type Metrics struct {
	connectionsAccepted prometheus.Counter
	connectionsActive   prometheus.Gauge
	connectionsRejected prometheus.Counter
	acceptErrors        prometheus.Counter
	commands            *prometheus.CounterVec
	framesSent          *prometheus.CounterVec
	bytesSent           prometheus.Counter
	sendErrors          prometheus.Counter
	commandDuration     prometheus.Histogram
}

// newMetrics creates and registers server metrics. Returns nil when no
// registry is provided; callers nil-check before every use.
func newMetrics(registry *metric.MetricsRegistry) *Metrics {
	if registry == nil {
		return nil
	}

	m := &Metrics{
		connectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gatherd",
			Subsystem: "server",
			Name:      "connections_accepted_total",
			Help:      "Total client connections accepted",
		}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gatherd",
			Subsystem: "server",
			Name:      "connections_active",
			Help:      "Client sessions currently running",
		}),
		connectionsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gatherd",
			Subsystem: "server",
			Name:      "connections_rejected_total",
			Help:      "Connections closed at accept because the session limit was reached",
		}),
		acceptErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gatherd",
			Subsystem: "server",
			Name:      "accept_errors_total",
			Help:      "Accept calls that failed",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatherd",
			Subsystem: "server",
			Name:      "commands_total",
			Help:      "Commands received, by command name (unknown input counts as \"other\")",
		}, []string{"command"}),
		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatherd",
			Subsystem: "server",
			Name:      "frames_sent_total",
			Help:      "Response frames sent, by kind",
		}, []string{"kind"}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gatherd",
			Subsystem: "server",
			Name:      "bytes_sent_total",
			Help:      "Total response bytes written to clients",
		}),
		sendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gatherd",
			Subsystem: "server",
			Name:      "send_errors_total",
			Help:      "Responses aborted by a socket write failure",
		}),
		commandDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gatherd",
			Subsystem: "server",
			Name:      "command_duration_seconds",
			Help:      "Time from command receipt to last response byte",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
	}

	component := "server"
	_ = registry.RegisterCounter(component, "connections_accepted", m.connectionsAccepted)
	_ = registry.RegisterGauge(component, "connections_active", m.connectionsActive)
	_ = registry.RegisterCounter(component, "connections_rejected", m.connectionsRejected)
	_ = registry.RegisterCounter(component, "accept_errors", m.acceptErrors)
	_ = registry.RegisterCounterVec(component, "commands", m.commands)
	_ = registry.RegisterCounterVec(component, "frames_sent", m.framesSent)
	_ = registry.RegisterCounter(component, "bytes_sent", m.bytesSent)
	_ = registry.RegisterCounter(component, "send_errors", m.sendErrors)
	_ = registry.RegisterHistogram(component, "command_duration", m.commandDuration)

	return m
}
