// Package metrics exposes Prometheus instrumentation for the run store.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsStarted counts runs created in the store.
	RunsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agentkit",
		Name:      "runs_started_total",
		Help:      "Number of runs created.",
	})

	// RunsFinished counts terminal transitions by status.
	RunsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentkit",
		Name:      "runs_finished_total",
		Help:      "Number of runs that reached a terminal status.",
	}, []string{"status"})

	// EventsAppended counts durable event appends by type.
	EventsAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentkit",
		Name:      "events_appended_total",
		Help:      "Number of events appended to run logs.",
	}, []string{"type"})

	// LiveSubscribers tracks currently registered live feed subscriptions.
	LiveSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "agentkit",
		Name:      "live_subscribers",
		Help:      "Currently connected live event subscribers.",
	})
)
