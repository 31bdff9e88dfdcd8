package pipeline

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	runs     *prometheus.CounterVec
	stages   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	output   prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "imgcrush",
			Name:      "runs_total",
			Help:      "Pipeline runs by terminal state.",
		}, []string{"outcome"}),
		stages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "imgcrush",
			Name:      "stage_runs_total",
			Help:      "Stages entered.",
		}, []string{"stage"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "imgcrush",
			Name:      "stage_duration_seconds",
			Help:      "Wall time spent per stage.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"stage"}),
		output: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "imgcrush",
			Name:      "output_bytes_total",
			Help:      "Encoded bytes returned to callers.",
		}),
	}
	m.runs = register(reg, m.runs)
	m.stages = register(reg, m.stages)
	m.duration = register(reg, m.duration)
	m.output = register(reg, m.output)
	return m
}

// register lets several orchestrators share one registerer: the first
// registration wins and later ones reuse its collector.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}
