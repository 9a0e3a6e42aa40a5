// Package metrics exposes Prometheus instrumentation for run and task
// throughput. Collectors are registered on the default registry and served
// by the HTTP layer at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsStarted counts start requests that created a new run.
	RunsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "missionmesh",
		Name:      "runs_started_total",
		Help:      "Number of runs started.",
	})

	// RunsFinished counts terminal runs by status.
	RunsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "missionmesh",
		Name:      "runs_finished_total",
		Help:      "Number of runs that reached a terminal status.",
	}, []string{"status"})

	// ActiveRuns tracks runs currently executing.
	ActiveRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "missionmesh",
		Name:      "active_runs",
		Help:      "Number of runs currently executing.",
	})

	// TasksFinished counts terminal tasks by status.
	TasksFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "missionmesh",
		Name:      "tasks_finished_total",
		Help:      "Number of tasks that reached a terminal status.",
	}, []string{"status"})

	// EventsPublished counts events appended to run logs by type.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "missionmesh",
		Name:      "events_published_total",
		Help:      "Number of events appended to run event logs.",
	}, []string{"type"})
)
