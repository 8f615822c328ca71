package metrics

import (
	"github.com/dysonhq/dyson/core/domain"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry    = prometheus.NewRegistry()
	planEntries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dyson_plan_entries_total",
			Help: "Number of plan entries by decision and reason",
		},
		[]string{"decision", "reason"},
	)
	deletions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dyson_deletions_total",
			Help: "Number of images handled by apply. Outcome is deleted, failed or skipped",
		},
		[]string{"outcome"},
	)
	probeFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dyson_probe_failures_total",
			Help: "Number of usage probes or scan target sessions that failed",
		},
		[]string{"kind"},
	)
	warnings = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dyson_warnings_total",
		Help: "Number of planning warnings",
	})
)

func init() {
	registry.MustRegister(
		planEntries,
		deletions,
		probeFailures,
		warnings,
	)
}

func ObservePlan(plan domain.Plan) {
	for _, e := range plan.Entries {
		planEntries.WithLabelValues(e.Decision().String(), e.Verdict.Reason().String()).Inc()
	}
	warnings.Add(float64(len(plan.Warnings)))
}

func ObserveResults(results []domain.DeletionResult) {
	for _, r := range results {
		deletions.WithLabelValues(r.Outcome.String()).Inc()
	}
}

// ProbeFailure counts a failed probe of the given kind, or "authentication" for a failed session.
func ProbeFailure(kind string) {
	probeFailures.WithLabelValues(kind).Inc()
}

// WriteTextfile dumps every metric to path in the Prometheus text format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, registry)
}
