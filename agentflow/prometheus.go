package agentflow

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics is an optional MetricsCollector-adjacent backend that
// exposes Flow execution metrics for scraping. It does not replace
// MetricsCollector's in-memory counters/event log; attach both to a Flow
// and use whichever fits a given caller's observability stack.
//
// Metrics exposed (namespace "agentflow"):
//
//  1. inflight_nodes (gauge): nodes currently executing concurrently.
//  2. step_latency_ms (histogram): node execution duration, labeled by
//     run_id, node_id, status (success/error).
//  3. retries_total (counter): retry attempts, labeled by run_id, node_id.
//  4. alerts_triggered_total (counter): AlertRule firings, labeled by
//     run_id, rule.
type PrometheusMetrics struct {
	mu      sync.RWMutex
	enabled bool

	inflightNodes prometheus.Gauge
	stepLatency   *prometheus.HistogramVec
	retries       *prometheus.CounterVec
	alerts        *prometheus.CounterVec
}

// NewPrometheusMetrics registers agentflow's metrics with registry (use
// prometheus.DefaultRegisterer for the global registry, or a fresh
// prometheus.NewRegistry() for isolation in tests).
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	pm := &PrometheusMetrics{enabled: true}

	pm.inflightNodes = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "agentflow",
		Name:      "inflight_nodes",
		Help:      "Current number of nodes executing concurrently",
	})

	pm.stepLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "agentflow",
		Name:      "step_latency_ms",
		Help:      "Node execution duration in milliseconds",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
	}, []string{"run_id", "node_id", "status"})

	pm.retries = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentflow",
		Name:      "retries_total",
		Help:      "Cumulative count of node retry attempts",
	}, []string{"run_id", "node_id"})

	pm.alerts = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentflow",
		Name:      "alerts_triggered_total",
		Help:      "AlertRule firings from AlertManager.CheckAlerts",
	}, []string{"run_id", "rule"})

	return pm
}

// NodeStarted increments the inflight_nodes gauge.
func (pm *PrometheusMetrics) NodeStarted() {
	if !pm.isEnabled() {
		return
	}
	pm.inflightNodes.Inc()
}

// NodeFinished decrements the inflight_nodes gauge and records latency.
func (pm *PrometheusMetrics) NodeFinished(runID, nodeID string, duration time.Duration, failed bool) {
	if !pm.isEnabled() {
		return
	}
	pm.inflightNodes.Dec()
	status := "success"
	if failed {
		status = "error"
	}
	pm.stepLatency.WithLabelValues(runID, nodeID, status).Observe(float64(duration.Milliseconds()))
}

// RetryAttempted increments retries_total for runID/nodeID.
func (pm *PrometheusMetrics) RetryAttempted(runID, nodeID string) {
	if !pm.isEnabled() {
		return
	}
	pm.retries.WithLabelValues(runID, nodeID).Inc()
}

// AlertFired increments alerts_triggered_total for runID/rule.
func (pm *PrometheusMetrics) AlertFired(runID, rule string) {
	if !pm.isEnabled() {
		return
	}
	pm.alerts.WithLabelValues(runID, rule).Inc()
}

// SetEnabled toggles whether calls record anything, without unregistering
// the underlying Prometheus collectors.
func (pm *PrometheusMetrics) SetEnabled(enabled bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = enabled
}

func (pm *PrometheusMetrics) isEnabled() bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
}
