package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(sessionsTotal, stageLatencyMs, secondaryLookups, sessionsGC)
}

var (
	sessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_sessions_total",
			Help: "Sessions reaching a terminal status.",
		},
		[]string{"status"}, // 'completed', 'failed'
	)

	stageLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "workflow_stage_latency_ms",
			Help:    "Per-stage execution latency in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 10000, 30000},
		},
		[]string{"stage", "success"},
	)

	secondaryLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_secondary_lookups_total",
			Help: "Secondary-profile fetches, labeled by path and outcome.",
		},
		[]string{"path", "outcome"}, // path: 'direct'|'fallback', outcome: 'ok'|'error'
	)

	sessionsGC = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "workflow_sessions_gc_total",
			Help: "Expired sessions removed by the retention worker.",
		},
	)
)

func IncSessionTerminal(status string) { sessionsTotal.WithLabelValues(norm(status)).Inc() }

func ObserveStageLatency(stage string, latencyMs int, success bool) {
	stageLatencyMs.WithLabelValues(norm(stage), strconv.FormatBool(success)).Observe(float64(latencyMs))
}

func IncSecondaryLookup(path, outcome string) {
	secondaryLookups.WithLabelValues(norm(path), norm(outcome)).Inc()
}

func AddSessionsGC(n int64) { sessionsGC.Add(float64(n)) }
