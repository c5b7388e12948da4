package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(queueDepth, queueLatencySeconds, workerCount, jobsProcessedTotal, jobDurationSeconds, workerHealthIssues)
}

var (
	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Number of jobs waiting in a lane.",
		},
		[]string{"lane"},
	)

	queueLatencySeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_latency_seconds",
			Help: "Age of the oldest enqueued job per lane, a proxy for latency.",
		},
		[]string{"lane"},
	)

	workerCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_worker_count",
			Help: "Number of live workers per lane.",
		},
		[]string{"lane"},
	)

	jobsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_processed_total",
			Help: "Total jobs processed, labeled by lane and terminal status.",
		},
		[]string{"lane", "status"}, // 'finished', 'failed'
	)

	jobDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queue_job_duration_seconds",
			Help:    "Job run duration from start to end.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		},
		[]string{"lane"},
	)

	workerHealthIssues = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_worker_health_issues_total",
			Help: "Health-check findings, labeled by lane and kind (stuck/unresponsive).",
		},
		[]string{"lane", "kind"},
	)
)

func SetQueueDepth(lane string, n int)              { queueDepth.WithLabelValues(norm(lane)).Set(float64(n)) }
func SetQueueLatency(lane string, seconds float64)  { queueLatencySeconds.WithLabelValues(norm(lane)).Set(seconds) }
func SetWorkerCount(lane string, n int)             { workerCount.WithLabelValues(norm(lane)).Set(float64(n)) }
func IncJobProcessed(lane, status string)           { jobsProcessedTotal.WithLabelValues(norm(lane), norm(status)).Inc() }
func ObserveJobDuration(lane string, secs float64)  { jobDurationSeconds.WithLabelValues(norm(lane)).Observe(secs) }
func IncWorkerHealthIssue(lane, kind string)        { workerHealthIssues.WithLabelValues(norm(lane), norm(kind)).Inc() }
