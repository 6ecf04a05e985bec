package metrics

import "github.com/prometheus/client_golang/prometheus"

// ImportMetrics holds Prometheus metrics for the periodic task importer.
type ImportMetrics struct {
	Cycles        prometheus.Counter
	TasksImported prometheus.Counter
	FetchErrors   prometheus.Counter
	ItemErrors    prometheus.Counter
	Running       prometheus.Gauge
}

// NewImportMetrics creates and registers importer metrics on the given registry.
func NewImportMetrics(reg prometheus.Registerer) *ImportMetrics {
	m := &ImportMetrics{
		Cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "importer",
			Name:      "cycles_total",
			Help:      "Total number of import cycles run.",
		}),
		TasksImported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "importer",
			Name:      "tasks_imported_total",
			Help:      "Total number of tasks created from the external source.",
		}),
		FetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "importer",
			Name:      "fetch_errors_total",
			Help:      "Total number of failed page fetches.",
		}),
		ItemErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "importer",
			Name:      "item_errors_total",
			Help:      "Total number of source items skipped because they could not be stored.",
		}),
		Running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "importer",
			Name:      "running",
			Help:      "1 while the periodic import loop is running.",
		}),
	}

	reg.MustRegister(m.Cycles, m.TasksImported, m.FetchErrors, m.ItemErrors, m.Running)
	return m
}
