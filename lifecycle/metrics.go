package lifecycle

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the engine's Prometheus collectors.
type Metrics struct {
	Toggles      *prometheus.CounterVec
	Advances     *prometheus.CounterVec
	Pushes       *prometheus.CounterVec
	PushFailures *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Toggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "launchmate",
			Name:      "task_toggles_total",
			Help:      "Task toggles by result (applied, not_found, error).",
		}, []string{"result"}),
		Advances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "launchmate",
			Name:      "phase_advances_total",
			Help:      "Phase advancements by target phase.",
		}, []string{"to"}),
		Pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "launchmate",
			Name:      "remote_pushes_total",
			Help:      "Remote writes by operation and result.",
		}, []string{"op", "result"}),
		PushFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "launchmate",
			Name:      "remote_push_failures_total",
			Help:      "Failed remote writes by error kind.",
		}, []string{"op", "kind"}),
	}
	if reg != nil {
		m.Toggles = register(reg, m.Toggles)
		m.Advances = register(reg, m.Advances)
		m.Pushes = register(reg, m.Pushes)
		m.PushFailures = register(reg, m.PushFailures)
	}
	return m
}

// register returns the collector already registered under c's name, so
// several engines on one registry count into the same series.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			panic(err)
		}
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing
		}
	}
	return c
}
