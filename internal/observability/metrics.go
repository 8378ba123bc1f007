package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dshills/brushwork/internal/plugin"
	"github.com/dshills/brushwork/internal/plugin/contrib"
	"github.com/dshills/brushwork/internal/plugin/fault"
	"github.com/dshills/brushwork/internal/plugin/security"
)

// Metrics holds the host's Prometheus metrics. It implements
// api.Observer and contrib.Recorder and consumes registry events.
type Metrics struct {
	// Lifecycle metrics
	LifecycleEventsTotal *prometheus.CounterVec
	PluginErrorsTotal    *prometheus.CounterVec

	// Invocation metrics
	InvocationsTotal   *prometheus.CounterVec
	InvocationDuration *prometheus.HistogramVec

	// Sandbox metrics
	PermissionDeniedTotal *prometheus.CounterVec
}

// NewMetrics creates and registers the metrics.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		LifecycleEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "brushwork_plugin_lifecycle_events_total",
				Help: "Total number of plugin lifecycle events",
			},
			[]string{"event"},
		),
		PluginErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "brushwork_plugin_errors_total",
				Help: "Total number of plugins that failed to enable",
			},
			[]string{"plugin", "error_type"},
		),
		InvocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "brushwork_contribution_invocations_total",
				Help: "Total number of contribution handler invocations",
			},
			[]string{"plugin", "kind", "status"},
		),
		InvocationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "brushwork_contribution_invocation_duration_seconds",
				Help:    "Contribution handler invocation duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"kind"},
		),
		PermissionDeniedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "brushwork_permission_denied_total",
				Help: "Total number of API calls rejected for a missing permission",
			},
			[]string{"plugin", "permission"},
		),
	}

	registry.MustRegister(
		m.LifecycleEventsTotal,
		m.PluginErrorsTotal,
		m.InvocationsTotal,
		m.InvocationDuration,
		m.PermissionDeniedTotal,
	)

	return m
}

// PermissionDenied implements api.Observer.
func (m *Metrics) PermissionDenied(pluginID string, perm security.Permission, function string) {
	m.PermissionDeniedTotal.WithLabelValues(pluginID, string(perm)).Inc()
}

// ObserveInvocation implements contrib.Recorder.
func (m *Metrics) ObserveInvocation(owner string, kind contrib.Kind, d time.Duration, err error) {
	m.InvocationsTotal.WithLabelValues(owner, kind.String(), status(err)).Inc()
	m.InvocationDuration.WithLabelValues(kind.String()).Observe(d.Seconds())
}

// HandleEvent counts a registry lifecycle event. Pass it to
// Registry.Subscribe.
func (m *Metrics) HandleEvent(event plugin.Event) {
	m.LifecycleEventsTotal.WithLabelValues(event.Type.String()).Inc()
	if event.Type == plugin.EventErrored {
		m.PluginErrorsTotal.WithLabelValues(event.Plugin, status(event.Error)).Inc()
	}
}

// status labels an outcome with "ok" or the error kind.
func status(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := fault.KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}

// StateCounter reports how many plugins are in each state.
type StateCounter interface {
	Counts() map[plugin.State]int
}

// stateCollector reads plugin counts at scrape time.
type stateCollector struct {
	counter StateCounter
	desc    *prometheus.Desc
}

// NewStateCollector returns a collector exporting brushwork_plugins by state.
func NewStateCollector(counter StateCounter) prometheus.Collector {
	return &stateCollector{
		counter: counter,
		desc: prometheus.NewDesc(
			"brushwork_plugins",
			"Number of installed plugins by lifecycle state",
			[]string{"state"}, nil,
		),
	}
}

func (c *stateCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *stateCollector) Collect(ch chan<- prometheus.Metric) {
	for state, n := range c.counter.Counts() {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(n), state.String())
	}
}
