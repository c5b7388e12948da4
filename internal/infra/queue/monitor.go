package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"profile-enrichment/internal/domain/model"
	"profile-enrichment/internal/infra/metrics"
)

// heartbeatStaleAfter is how long a silent worker is tolerated before it is
// flagged unresponsive.
const heartbeatStaleAfter = 5 * time.Minute

// StatsSource is the slice of the broker the monitor samples.
type StatsSource interface {
	Stats(ctx context.Context, lane model.JobPriority) (LaneStats, error)
	Workers(ctx context.Context, lane model.JobPriority) ([]WorkerInfo, error)
}

// HealthIssue is one finding from a monitoring cycle. Issues are reported,
// never auto-remediated.
type HealthIssue struct {
	Lane   model.JobPriority
	Worker string
	Kind   string // "stuck" | "unresponsive"
	Detail string
}

// Monitor samples lane depth, latency and worker health on a fixed cadence
// and exports the readings as prometheus gauges.
type Monitor struct {
	source     StatsSource
	interval   time.Duration
	jobTimeout time.Duration
	now        func() time.Time
	log        *zerolog.Logger
}

func NewMonitor(source StatsSource, interval, jobTimeout time.Duration, logger *zerolog.Logger) *Monitor {
	monLog := logger.With().Str("component", "QueueMonitor").Logger()
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Monitor{
		source:     source,
		interval:   interval,
		jobTimeout: jobTimeout,
		now:        time.Now,
		log:        &monLog,
	}
}

// Run samples until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	m.log.Info().Dur("interval", m.interval).Msg("queue monitor started")
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Info().Msg("queue monitor stopped")
			return ctx.Err()
		case <-ticker.C:
			issues := m.Sample(ctx)
			for _, issue := range issues {
				m.log.Warn().
					Str("lane", string(issue.Lane)).
					Str("worker", issue.Worker).
					Str("kind", issue.Kind).
					Msg(issue.Detail)
			}
		}
	}
}

// Sample runs one monitoring cycle: update metrics for every lane and
// evaluate the health checks. Exported so cadence and checks are testable
// without wall-clock sleeps.
func (m *Monitor) Sample(ctx context.Context) []HealthIssue {
	var issues []HealthIssue
	for _, lane := range model.Priorities {
		st, err := m.source.Stats(ctx, lane)
		if err != nil {
			m.log.Error().Err(err).Str("lane", string(lane)).Msg("lane sample failed")
			continue
		}
		metrics.SetQueueDepth(string(lane), st.Depth)
		metrics.SetQueueLatency(string(lane), st.OldestAge.Seconds())
		metrics.SetWorkerCount(string(lane), st.Workers)

		workers, err := m.source.Workers(ctx, lane)
		if err != nil {
			m.log.Error().Err(err).Str("lane", string(lane)).Msg("worker sample failed")
			continue
		}
		issues = append(issues, m.checkWorkers(lane, workers)...)
	}
	return issues
}

func (m *Monitor) checkWorkers(lane model.JobPriority, workers []WorkerInfo) []HealthIssue {
	now := m.now()
	var issues []HealthIssue
	for _, w := range workers {
		if w.State == "busy" && !w.JobStartedAt.IsZero() && m.jobTimeout > 0 {
			if running := now.Sub(w.JobStartedAt); running > m.jobTimeout {
				issues = append(issues, HealthIssue{
					Lane:   lane,
					Worker: w.Name,
					Kind:   "stuck",
					Detail: fmt.Sprintf("worker %s stuck on job %s for %s", w.Name, w.CurrentJob, running.Round(time.Second)),
				})
				metrics.IncWorkerHealthIssue(string(lane), "stuck")
			}
		}
		if !w.LastHeartbeat.IsZero() {
			if age := now.Sub(w.LastHeartbeat); age > heartbeatStaleAfter {
				issues = append(issues, HealthIssue{
					Lane:   lane,
					Worker: w.Name,
					Kind:   "unresponsive",
					Detail: fmt.Sprintf("worker %s has not sent a heartbeat for %s", w.Name, age.Round(time.Second)),
				})
				metrics.IncWorkerHealthIssue(string(lane), "unresponsive")
			}
		}
	}
	return issues
}
