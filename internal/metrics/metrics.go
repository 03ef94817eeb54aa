// Package metrics defines the prometheus collectors for the recruiting workflow.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	subsystem = "recruiting"

	rpcCallsTotal        = "rpc_calls_total"
	rpcCallDuration      = "rpc_call_duration_seconds"
	workflowRunsTotal    = "workflow_runs_total"
	candidateSavesTotal  = "candidate_saves_total"
	resolverLookupsTotal = "resolver_lookups_total"

	// Labels
	methodLabel  = "method"
	outcomeLabel = "outcome"
	stateLabel   = "state"
	statusLabel  = "status"
	sourceLabel  = "source"
)

var rpcCallsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      rpcCallsTotal,
		Help:      "number of JSON-RPC calls by method and outcome",
	},
	[]string{methodLabel, outcomeLabel},
)

var rpcCallDurationMetric = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Subsystem: subsystem,
		Name:      rpcCallDuration,
		Help:      "latency of JSON-RPC calls",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20, 30},
	},
	[]string{methodLabel},
)

var workflowRunsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      workflowRunsTotal,
		Help:      "number of finished workflow runs by terminal state",
	},
	[]string{stateLabel},
)

var candidateSavesTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      candidateSavesTotal,
		Help:      "number of candidate save attempts by status",
	},
	[]string{statusLabel},
)

var resolverLookupsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      resolverLookupsTotal,
		Help:      "number of endpoint resolutions by the source that answered",
	},
	[]string{sourceLabel},
)

// ObserveRPCCall records one finished call.
func ObserveRPCCall(method, outcome string, elapsed time.Duration) {
	rpcCallsTotalMetric.With(prometheus.Labels{methodLabel: method, outcomeLabel: outcome}).Inc()
	rpcCallDurationMetric.With(prometheus.Labels{methodLabel: method}).Observe(elapsed.Seconds())
}

// IncreaseWorkflowRuns counts a run that reached the given terminal state.
func IncreaseWorkflowRuns(state string) {
	workflowRunsTotalMetric.With(prometheus.Labels{stateLabel: state}).Inc()
}

// IncreaseCandidateSaves counts one save outcome.
func IncreaseCandidateSaves(status string) {
	candidateSavesTotalMetric.With(prometheus.Labels{statusLabel: status}).Inc()
}

// IncreaseResolverLookups counts a resolution answered by source (cache, registry, static, none).
func IncreaseResolverLookups(source string) {
	resolverLookupsTotalMetric.With(prometheus.Labels{sourceLabel: source}).Inc()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(rpcCallsTotalMetric)
	prometheus.MustRegister(rpcCallDurationMetric)
	prometheus.MustRegister(workflowRunsTotalMetric)
	prometheus.MustRegister(candidateSavesTotalMetric)
	prometheus.MustRegister(resolverLookupsTotalMetric)
}
