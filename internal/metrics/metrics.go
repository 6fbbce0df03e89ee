// Package metrics holds the process-wide Prometheus collectors. A
// dedicated registry keeps the exposition surface limited to what this
// module registers itself.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry is the registry served by the HTTP adapter's /metrics endpoint.
var Registry = prometheus.NewRegistry()

var (
	// TrialsTotal counts finalized trials by terminal status.
	TrialsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tunetree",
		Name:      "trials_total",
		Help:      "Trials finalized, labeled by terminal status.",
	}, []string{"status"})

	// TrialDuration observes wall-clock seconds spent per trial.
	TrialDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tunetree",
		Name:      "trial_duration_seconds",
		Help:      "Wall-clock duration of finalized trials.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
	})

	// RepositorySaves counts repository save operations by backend.
	RepositorySaves = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tunetree",
		Name:      "repository_saves_total",
		Help:      "Repository save operations, labeled by backend.",
	}, []string{"backend"})
)

func init() {
	Registry.MustRegister(
		TrialsTotal,
		TrialDuration,
		RepositorySaves,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}
