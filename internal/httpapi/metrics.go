package httpapi

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the counters and histograms the Manager and Worker
// loops update, exported through a dedicated registry (never the
// global default, so tests can build one per instance).
type Metrics struct {
	registry *prometheus.Registry

	TasksCreated   prometheus.Counter
	TasksLeased    prometheus.Counter
	TasksAbandoned prometheus.Counter
	ProbesRecorded *prometheus.CounterVec

	ManagerTickDuration prometheus.Histogram
	WorkerBatchDuration prometheus.Histogram
}

// NewMetrics builds and registers the full metric set.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		TasksCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monico_tasks_created_total",
			Help: "Total tasks enqueued by the manager.",
		}),
		TasksLeased: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monico_tasks_leased_total",
			Help: "Total tasks leased by workers.",
		}),
		TasksAbandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monico_tasks_abandoned_total",
			Help: "Total tasks abandoned for exceeding the stale threshold.",
		}),
		ProbesRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monico_probes_recorded_total",
			Help: "Total probes recorded, labeled by outcome.",
		}, []string{"outcome"}),
		ManagerTickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "monico_manager_tick_duration_seconds",
			Help: "Duration of one manager scheduling pass.",
		}),
		WorkerBatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "monico_worker_batch_duration_seconds",
			Help: "Duration of one worker lease-and-probe batch.",
		}),
	}

	reg.MustRegister(
		m.TasksCreated,
		m.TasksLeased,
		m.TasksAbandoned,
		m.ProbesRecorded,
		m.ManagerTickDuration,
		m.WorkerBatchDuration,
	)

	return m
}

// Registry returns the registry metrics were registered against, for
// wiring into promhttp.HandlerFor.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
