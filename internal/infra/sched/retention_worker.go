package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"profile-enrichment/internal/domain/ports/repository"
	"profile-enrichment/internal/infra/metrics"
)

// JobCleaner removes terminal job records older than the retention threshold.
type JobCleaner interface {
	Cleanup(ctx context.Context, olderThanDays int) (int, error)
}

// RetentionWorker periodically deletes expired session snapshots and old job
// records. Retention is the only deletion path; nothing else in the system
// removes data.
type RetentionWorker struct {
	interval      time.Duration
	retentionDays int
	store         repository.SessionStore
	jobs          JobCleaner
	log           *zerolog.Logger
}

func NewRetentionWorker(interval time.Duration, retentionDays int, store repository.SessionStore, jobs JobCleaner, logger *zerolog.Logger) *RetentionWorker {
	retLog := logger.With().Str("component", "RetentionWorker").Logger()
	if interval <= 0 {
		interval = time.Hour
	}
	return &RetentionWorker{
		interval:      interval,
		retentionDays: retentionDays,
		store:         store,
		jobs:          jobs,
		log:           &retLog,
	}
}

func (w *RetentionWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting retention worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping retention worker")
			return ctx.Err()
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *RetentionWorker) sweep(ctx context.Context) {
	sessions, err := w.store.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		w.log.Error().Err(err).Msg("session retention sweep failed")
	} else if sessions > 0 {
		metrics.AddSessionsGC(sessions)
		w.log.Info().Int64("sessions", sessions).Msg("expired sessions removed")
	}

	removed, err := w.jobs.Cleanup(ctx, w.retentionDays)
	if err != nil {
		w.log.Error().Err(err).Msg("job retention sweep failed")
	} else if removed > 0 {
		w.log.Info().Int("jobs", removed).Int("older_than_days", w.retentionDays).Msg("old job records removed")
	}
}
