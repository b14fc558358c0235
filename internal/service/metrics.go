package service

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the process-wide instrumentation for sessions and runs.
type Metrics struct {
	ActiveSessions prometheus.Gauge
	Observers      prometheus.Gauge
	RunsTotal      *prometheus.CounterVec
	StepsTotal     *prometheus.CounterVec
	ScreenUpdates  prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tnpilot_sessions_active",
			Help: "Number of registered terminal sessions.",
		}),
		Observers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tnpilot_stream_observers",
			Help: "Number of connected screen-stream observers.",
		}),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tnpilot_script_runs_total",
			Help: "Script runs by terminal status.",
		}, []string{"status"}),
		StepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tnpilot_steps_total",
			Help: "Executed automation steps by action and status.",
		}, []string{"action", "status"}),
		ScreenUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tnpilot_screen_updates_total",
			Help: "Screen snapshots delivered to stream observers.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.ActiveSessions, m.Observers, m.RunsTotal, m.StepsTotal, m.ScreenUpdates)
	}
	return m
}

// NopMetrics returns unregistered collectors for tests and library use.
func NopMetrics() *Metrics {
	return NewMetrics(nil)
}
