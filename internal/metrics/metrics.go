package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OptionFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "curriculum_option_fetches_total",
		Help: "Option-list fetches, labelled by cascade level and outcome (ok, error, stale).",
	}, []string{"level", "outcome"})

	GraphLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "curriculum_graph_loads_total",
		Help: "Graph snapshot loads, labelled by outcome (ok, error, stale, invalid).",
	}, []string{"outcome"})

	GraphLoadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "curriculum_graph_load_duration_ms",
		Help:    "Graph snapshot request latency in milliseconds.",
		Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	})

	Unauthorized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "curriculum_unauthorized_total",
		Help: "Responses rejected with 401/403 by the curriculum API.",
	})

	SimulationTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "curriculum_layout_ticks_total",
		Help: "Force simulation steps executed.",
	})

	SimulationRestarts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "curriculum_layout_restarts_total",
		Help: "Times the simulation was re-initialised for a new node/link identity set.",
	})

	TicksToSettle = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "curriculum_layout_ticks_to_settle",
		Help:    "Number of ticks between a restart and the Settled phase.",
		Buckets: []float64{50, 100, 200, 300, 400, 600, 1000},
	})

	NodesInLayout = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "curriculum_layout_nodes",
		Help: "Nodes in the current layout.",
	})

	PointerEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "curriculum_pointer_events_total",
		Help: "Pointer events submitted to the interaction queue, labelled by outcome (handled, dropped, timeout).",
	}, []string{"outcome"})

	Fits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "curriculum_viewport_fits_total",
		Help: "Auto-fit transitions started after a layout settled.",
	})

	QueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "curriculum_pointer_queue_utilization",
		Help: "Pointer queue used / capacity, sampled on readiness checks.",
	})
)
