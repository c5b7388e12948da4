package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"profile-enrichment/internal/config"
	"profile-enrichment/internal/domain"
	"profile-enrichment/internal/domain/model"
)

// commandBroker is the slice of the broker the manager issues commands
// against. The broker owns job state; the manager never does.
type commandBroker interface {
	Enqueue(ctx context.Context, job *model.Job) error
	Job(ctx context.Context, id string) (*model.Job, error)
	Cancel(ctx context.Context, id string) (bool, error)
	Cleanup(ctx context.Context, olderThan time.Time) (int, error)
	Stats(ctx context.Context, lane model.JobPriority) (LaneStats, error)
}

// Manager is the caller-facing job API: enqueue, status, cancel, cleanup.
type Manager struct {
	broker    commandBroker
	timeout   time.Duration
	resultTTL time.Duration
	log       *zerolog.Logger
}

func NewManager(broker *Broker, cfg config.QueueConfig, logger *zerolog.Logger) *Manager {
	mgrLog := logger.With().Str("component", "JobManager").Logger()
	return &Manager{
		broker:    broker,
		timeout:   cfg.JobTimeout,
		resultTTL: cfg.ResultTTL,
		log:       &mgrLog,
	}
}

// Enqueue places work on the chosen lane. Lane selection is caller-specified
// and final. Satisfies usecase.Enqueuer.
func (m *Manager) Enqueue(ctx context.Context, kind model.JobKind, args map[string]string, priority model.JobPriority) (*model.Job, error) {
	priority, err := model.ParsePriority(string(priority))
	if err != nil {
		return nil, fmt.Errorf("priority %q: %w", priority, domain.ErrInvalidArgument)
	}
	job := &model.Job{
		ID:        "job_" + uuid.NewString(),
		Kind:      kind,
		Args:      args,
		Priority:  priority,
		Status:    model.JobQueued,
		CreatedAt: time.Now().UTC(),
		Timeout:   m.timeout,
		ResultTTL: m.resultTTL,
	}
	if err := m.broker.Enqueue(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Status returns the broker's current job record.
func (m *Manager) Status(ctx context.Context, jobID string) (*model.Job, error) {
	return m.broker.Job(ctx, jobID)
}

// Cancel prevents a queued job from starting. Running or terminal jobs are
// left untouched and false is returned; there is no preemption.
func (m *Manager) Cancel(ctx context.Context, jobID string) (bool, error) {
	ok, err := m.broker.Cancel(ctx, jobID)
	if err != nil {
		return false, err
	}
	if ok {
		m.log.Info().Str("job_id", jobID).Msg("job cancelled")
	}
	return ok, nil
}

// Cleanup removes finished/failed job records older than the threshold.
func (m *Manager) Cleanup(ctx context.Context, olderThanDays int) (int, error) {
	if olderThanDays < 0 {
		return 0, domain.ErrInvalidArgument
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)
	removed, err := m.broker.Cleanup(ctx, cutoff)
	if err != nil {
		return removed, err
	}
	if removed > 0 {
		m.log.Info().Int("removed", removed).Int("older_than_days", olderThanDays).Msg("job cleanup done")
	}
	return removed, nil
}

// QueueInfo samples every lane, for the admin surface.
func (m *Manager) QueueInfo(ctx context.Context) (map[string]LaneStats, error) {
	out := make(map[string]LaneStats, len(model.Priorities))
	for _, lane := range model.Priorities {
		st, err := m.broker.Stats(ctx, lane)
		if err != nil {
			return nil, err
		}
		out[string(lane)] = st
	}
	return out, nil
}

// MarshalResult turns a handler's result into the stored job payload.
func MarshalResult(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal job result: %w", err)
	}
	return string(b), nil
}
