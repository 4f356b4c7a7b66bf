package insight

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts backfill activity.
type Metrics struct {
	Runs               *prometheus.CounterVec
	Appends            *prometheus.CounterVec
	GenerationFailures prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg when reg is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "launchmate",
			Subsystem: "backfill",
			Name:      "runs_total",
			Help:      "Backfill runs by final state.",
		}, []string{"state"}),
		Appends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "launchmate",
			Subsystem: "backfill",
			Name:      "appends_total",
			Help:      "Insight append calls by result.",
		}, []string{"result"}),
		GenerationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "launchmate",
			Subsystem: "backfill",
			Name:      "generation_failures_total",
			Help:      "Generations replaced by the failure sentinel.",
		}),
	}
	if reg != nil {
		m.Runs = register(reg, m.Runs)
		m.Appends = register(reg, m.Appends)
		m.GenerationFailures = register(reg, m.GenerationFailures)
	}
	return m
}

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
