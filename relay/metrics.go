package relay

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/gatherd/gather"
	"github.com/c360/gatherd/metric"
)

// Metrics holds Prometheus metrics for the bus relay
type Metrics struct {
	framesPublished *prometheus.CounterVec
	publishErrors   *prometheus.CounterVec
}

// newMetrics creates and registers relay metrics. Returns nil when no
// registry is provided; callers nil-check before every use.
func newMetrics(registry *metric.MetricsRegistry) *Metrics {
	if registry == nil {
		return nil
	}

	m := &Metrics{
		framesPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatherd",
			Subsystem: "relay",
			Name:      "frames_published_total",
			Help:      "Frames published to the bus, by mode and frame kind",
		}, []string{"mode", "kind"}),
		publishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatherd",
			Subsystem: "relay",
			Name:      "publish_errors_total",
			Help:      "Publish attempts that failed, by mode",
		}, []string{"mode"}),
	}

	component := "relay"
	_ = registry.RegisterCounterVec(component, "frames_published", m.framesPublished)
	_ = registry.RegisterCounterVec(component, "publish_errors", m.publishErrors)

	return m
}

func (m *Metrics) countPublish(mode gather.Mode, kind string) {
	if m == nil {
		return
	}
	m.framesPublished.WithLabelValues(mode.String(), kind).Inc()
}

func (m *Metrics) countError(mode gather.Mode) {
	if m == nil {
		return
	}
	m.publishErrors.WithLabelValues(mode.String()).Inc()
}
