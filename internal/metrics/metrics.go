// Package metrics exposes pipeline counters and timings to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tigertag/tigertag-server/internal/domain"
)

const namespace = "tigertag"

var (
	// resourcesTotal counts resources by pipeline outcome.
	// Labels: outcome (processed, skipped, deferred, failed)
	resourcesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "resources_total",
		Help:      "Resources handled by the pipeline, by outcome",
	}, []string{"outcome"})

	// resourceDuration measures one resource's trip through the pipeline.
	resourceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "resource_duration_seconds",
		Help:      "Time spent tagging, storing and syncing one resource",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})

	// runsTotal counts pipeline runs by status (ok, error).
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "runs_total",
		Help:      "Pipeline runs by status",
	}, []string{"status"})

	// engineCalls counts engine invocations.
	// Labels: engine, result (tagged, empty, deferred, error)
	engineCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "calls_total",
		Help:      "Classification engine calls by result",
	}, []string{"engine", "result"})

	// syncTags counts tags written to external systems.
	// Labels: target, op (added, removed)
	syncTags = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "tags_total",
		Help:      "Tags added to or removed from external systems",
	}, []string{"target", "op"})

	// syncErrors counts failed reconciliations per target.
	syncErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "errors_total",
		Help:      "Failed reconciliations with external systems",
	}, []string{"target"})
)

// Engine call results.
const (
	EngineTagged   = "tagged"
	EngineEmpty    = "empty"
	EngineDeferred = "deferred"
	EngineError    = "error"
)

// RecordOutcome counts one resource outcome.
func RecordOutcome(o domain.Outcome) {
	resourcesTotal.WithLabelValues(string(o)).Inc()
}

// ObserveResource records how long one resource took.
func ObserveResource(d time.Duration) {
	resourceDuration.Observe(d.Seconds())
}

// RecordRun counts a finished run.
func RecordRun(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	runsTotal.WithLabelValues(status).Inc()
}

// RecordEngineCall counts one engine invocation.
func RecordEngineCall(engine, result string) {
	engineCalls.WithLabelValues(engine, result).Inc()
}

// RecordSync counts tags added and removed on one target.
func RecordSync(target string, added, removed int) {
	if added > 0 {
		syncTags.WithLabelValues(target, "added").Add(float64(added))
	}
	if removed > 0 {
		syncTags.WithLabelValues(target, "removed").Add(float64(removed))
	}
}

// RecordSyncError counts one failed reconciliation.
func RecordSyncError(target string) {
	syncErrors.WithLabelValues(target).Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
