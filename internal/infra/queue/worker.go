package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"profile-enrichment/internal/domain"
	"profile-enrichment/internal/domain/model"
	"profile-enrichment/internal/infra/logging"
	"profile-enrichment/internal/infra/metrics"
)

// Handler runs one job kind. The returned value is marshalled into the job
// record once the job finishes.
type Handler func(ctx context.Context, args map[string]string) (any, error)

// Registry maps the closed set of job kinds to their handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[model.JobKind]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[model.JobKind]Handler)}
}

// Register satisfies usecase.TaskRegistry.
func (r *Registry) Register(kind model.JobKind, fn func(ctx context.Context, args map[string]string) (any, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = Handler(fn)
}

func (r *Registry) handler(kind model.JobKind) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[kind]
	return h, ok
}

// taskBroker is the slice of the broker a worker drives: job lifecycle plus
// its own registration and health reporting.
type taskBroker interface {
	Fetch(ctx context.Context, lane model.JobPriority) (*model.Job, error)
	Complete(ctx context.Context, job *model.Job, result string) error
	Fail(ctx context.Context, job *model.Job, jobErr string) error
	RegisterWorker(ctx context.Context, name string, lane model.JobPriority) error
	DeregisterWorker(ctx context.Context, name string, lane model.JobPriority) error
	Heartbeat(ctx context.Context, name string) error
	SetWorkerState(ctx context.Context, name, state, jobID string) error
}

// busyHeartbeatInterval paces the side heartbeat while a job runs; it must
// stay well under the monitor's staleness threshold.
const busyHeartbeatInterval = 30 * time.Second

// Worker pulls jobs from one lane. The loop is a cancellable ticker select:
// each tick sends a heartbeat and tries one fetch, and shutdown is a clean
// context cancellation, not a missed sleep. While a job runs, a side
// goroutine keeps heartbeating so a long job never looks like a dead worker.
type Worker struct {
	name      string
	lane      model.JobPriority
	broker    taskBroker
	registry  *Registry
	poll      time.Duration
	heartbeat time.Duration
	log       *zerolog.Logger
}

func NewWorker(lane model.JobPriority, broker *Broker, registry *Registry, poll time.Duration, logger *zerolog.Logger) *Worker {
	name := fmt.Sprintf("worker-%s-%s", lane, uuid.NewString()[:8])
	wLog := logger.With().Str("component", "Worker").Str("worker", name).Str("lane", string(lane)).Logger()
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	return &Worker{
		name:      name,
		lane:      lane,
		broker:    broker,
		registry:  registry,
		poll:      poll,
		heartbeat: busyHeartbeatInterval,
		log:       &wLog,
	}
}

func (w *Worker) Name() string { return w.name }

// Run consumes the lane until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.broker.RegisterWorker(ctx, w.name, w.lane); err != nil {
		return fmt.Errorf("register worker: %w", err)
	}
	w.log.Info().Msg("worker started")

	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Deregister with a fresh context; ctx is already dead.
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = w.broker.DeregisterWorker(stopCtx, w.name, w.lane)
			cancel()
			w.log.Info().Msg("worker stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := w.broker.Heartbeat(ctx, w.name); err != nil {
				w.log.Warn().Err(err).Msg("heartbeat failed")
			}
			w.processOne(ctx)
		}
	}
}

func (w *Worker) processOne(ctx context.Context) {
	job, err := w.broker.Fetch(ctx, w.lane)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			w.log.Error().Err(err).Msg("fetch failed")
		}
		return
	}

	jobCtx := logging.WithJobID(ctx, job.ID)
	log := logging.With(jobCtx, w.log)
	log.Info().Str("kind", string(job.Kind)).Msg("job started")
	_ = w.broker.SetWorkerState(ctx, w.name, "busy", job.ID)
	start := time.Now()

	hbStop := make(chan struct{})
	hbDone := make(chan struct{})
	go w.heartbeatWhileBusy(ctx, hbStop, hbDone)

	result, err := w.runJob(jobCtx, job)

	close(hbStop)
	<-hbDone

	duration := time.Since(start)
	if err != nil {
		if ferr := w.broker.Fail(ctx, job, err.Error()); ferr != nil {
			log.Error().Err(ferr).Msg("could not persist job failure")
		}
		metrics.IncJobProcessed(string(w.lane), string(model.JobFailed))
		log.Error().Err(err).Dur("duration", duration).Msg("job failed")
	} else {
		payload, merr := MarshalResult(result)
		if merr != nil {
			payload = ""
			log.Error().Err(merr).Msg("job result not serializable")
		}
		if cerr := w.broker.Complete(ctx, job, payload); cerr != nil {
			log.Error().Err(cerr).Msg("could not persist job completion")
		}
		metrics.IncJobProcessed(string(w.lane), string(model.JobFinished))
		log.Info().Dur("duration", duration).Msg("job finished")
	}
	metrics.ObserveJobDuration(string(w.lane), duration.Seconds())
	_ = w.broker.SetWorkerState(ctx, w.name, "idle", "")
}

// heartbeatWhileBusy keeps the worker's heartbeat fresh for the duration of
// one job, so the monitor never flags a legitimately long run unresponsive.
func (w *Worker) heartbeatWhileBusy(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(w.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.broker.Heartbeat(ctx, w.name); err != nil {
				w.log.Warn().Err(err).Msg("heartbeat failed")
			}
		}
	}
}

// runJob enforces the job timeout as wall clock from start; stages below do
// not get their own deadlines.
func (w *Worker) runJob(ctx context.Context, job *model.Job) (any, error) {
	handler, ok := w.registry.handler(job.Kind)
	if !ok {
		return nil, fmt.Errorf("no handler registered for job kind %q", job.Kind)
	}
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}
	return handler(ctx, job.Args)
}
