package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Run outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeAborted   = "aborted"
)

// Capability outcomes.
const (
	CapabilityOK    = "ok"
	CapabilityEmpty = "empty"
	CapabilityError = "error"
)

// Collector holds the dialogue metrics.
type Collector struct {
	runsTotal        *prometheus.CounterVec
	runDuration      *prometheus.HistogramVec
	runSteps         prometheus.Histogram
	nodeExecutions   *prometheus.CounterVec
	abortsTotal      *prometheus.CounterVec
	capabilityCalls  *prometheus.CounterVec
	capabilityTiming *prometheus.HistogramVec
	profilesResolved prometheus.Counter
	chatRequests     *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector registers the dialogue metrics on reg.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)
	c := &Collector{logger: logger.With(zap.String("component", "metrics"))}

	c.runsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialogue_runs_total",
			Help:      "Total number of orchestrator runs",
		},
		[]string{"entry_phase", "outcome"},
	)

	c.runDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dialogue_run_duration_seconds",
			Help:      "Orchestrator run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"entry_phase"},
	)

	c.runSteps = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dialogue_run_steps",
			Help:      "Node executions per orchestrator run",
			Buckets:   []float64{1, 2, 3, 4, 6, 8, 12, 20, 35, 50},
		},
	)

	c.nodeExecutions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialogue_node_executions_total",
			Help:      "Total number of node executions by state",
		},
		[]string{"state"},
	)

	c.abortsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialogue_aborts_total",
			Help:      "Total number of aborted runs by reason",
		},
		[]string{"reason"},
	)

	c.capabilityCalls = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capability_calls_total",
			Help:      "Total number of capability invocations by outcome",
		},
		[]string{"capability", "outcome"},
	)

	c.capabilityTiming = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "capability_duration_seconds",
			Help:      "Capability invocation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"capability"},
	)

	c.profilesResolved = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profiles_resolved_total",
			Help:      "Total number of runs that resolved a profile",
		},
	)

	c.chatRequests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Total number of chat requests by phase and status",
		},
		[]string{"phase", "status"},
	)

	return c
}

// RecordRun records a finished run.
func (c *Collector) RecordRun(entryPhase, outcome string, steps int, duration time.Duration) {
	if c == nil {
		return
	}
	c.runsTotal.WithLabelValues(entryPhase, outcome).Inc()
	c.runDuration.WithLabelValues(entryPhase).Observe(duration.Seconds())
	c.runSteps.Observe(float64(steps))
}

// RecordNode records one node execution.
func (c *Collector) RecordNode(state string) {
	if c == nil {
		return
	}
	c.nodeExecutions.WithLabelValues(state).Inc()
}

// RecordAbort records why a run aborted.
func (c *Collector) RecordAbort(reason string) {
	if c == nil {
		return
	}
	c.abortsTotal.WithLabelValues(reason).Inc()
	c.logger.Debug("run aborted", zap.String("reason", reason))
}

// RecordCapability records a capability call.
func (c *Collector) RecordCapability(name, outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.capabilityCalls.WithLabelValues(name, outcome).Inc()
	c.capabilityTiming.WithLabelValues(name).Observe(duration.Seconds())
}

// RecordProfileResolved counts a run that resolved a profile.
func (c *Collector) RecordProfileResolved() {
	if c == nil {
		return
	}
	c.profilesResolved.Inc()
}

// RecordChatRequest records a handled chat request.
func (c *Collector) RecordChatRequest(phase, status string) {
	if c == nil {
		return
	}
	c.chatRequests.WithLabelValues(phase, status).Inc()
}
