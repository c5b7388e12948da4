//go:build !integration

package queue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"profile-enrichment/internal/domain"
	"profile-enrichment/internal/domain/model"
)

// fakeTaskBroker satisfies taskBroker without redis.
type fakeTaskBroker struct {
	mu         sync.Mutex
	queued     []*model.Job
	heartbeats int
	completed  []string
	failed     []string
}

func (f *fakeTaskBroker) Fetch(ctx context.Context, lane model.JobPriority) (*model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queued) == 0 {
		return nil, domain.ErrNotFound
	}
	j := f.queued[0]
	f.queued = f.queued[1:]
	j.Status = model.JobStarted
	return j, nil
}

func (f *fakeTaskBroker) Complete(ctx context.Context, job *model.Job, result string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, job.ID)
	return nil
}

func (f *fakeTaskBroker) Fail(ctx context.Context, job *model.Job, jobErr string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, job.ID)
	return nil
}

func (f *fakeTaskBroker) RegisterWorker(ctx context.Context, name string, lane model.JobPriority) error {
	return nil
}

func (f *fakeTaskBroker) DeregisterWorker(ctx context.Context, name string, lane model.JobPriority) error {
	return nil
}

func (f *fakeTaskBroker) Heartbeat(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats++
	return nil
}

func (f *fakeTaskBroker) SetWorkerState(ctx context.Context, name, state, jobID string) error {
	return nil
}

func (f *fakeTaskBroker) heartbeatCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.heartbeats
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.handler(model.JobKindRunWorkflow); ok {
		t.Fatal("empty registry must not resolve handlers")
	}

	r.Register(model.JobKindRunWorkflow, func(ctx context.Context, args map[string]string) (any, error) {
		return args["session_id"], nil
	})
	h, ok := r.handler(model.JobKindRunWorkflow)
	if !ok {
		t.Fatal("registered handler not found")
	}
	out, err := h(context.Background(), map[string]string{"session_id": "s1"})
	if err != nil || out != "s1" {
		t.Fatalf("handler: %v %v", out, err)
	}
}

func TestWorker_RunJob(t *testing.T) {
	registry := NewRegistry()
	w := NewWorker(model.PriorityDefault, nil, registry, time.Millisecond, newTestLogger())

	if !strings.HasPrefix(w.Name(), "worker-default-") {
		t.Fatalf("worker name: %q", w.Name())
	}

	t.Run("unregistered kind fails", func(t *testing.T) {
		job := &model.Job{ID: "job_1", Kind: "no-such-kind"}
		if _, err := w.runJob(context.Background(), job); err == nil {
			t.Fatal("want error for unregistered kind")
		}
	})

	t.Run("timeout bounds the handler context", func(t *testing.T) {
		registry.Register(model.JobKindRunWorkflow, func(ctx context.Context, args map[string]string) (any, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Second):
				return "done", nil
			}
		})
		job := &model.Job{ID: "job_2", Kind: model.JobKindRunWorkflow, Timeout: 5 * time.Millisecond}
		if _, err := w.runJob(context.Background(), job); !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("want deadline exceeded, got %v", err)
		}
	})

	t.Run("heartbeat continues while a job is running", func(t *testing.T) {
		registry := NewRegistry()
		registry.Register(model.JobKindRunWorkflow, func(ctx context.Context, args map[string]string) (any, error) {
			time.Sleep(60 * time.Millisecond)
			return "ok", nil
		})
		broker := &fakeTaskBroker{queued: []*model.Job{
			{ID: "job_slow", Kind: model.JobKindRunWorkflow, Priority: model.PriorityDefault, Timeout: time.Second},
		}}
		w := &Worker{
			name:      "worker-default-test",
			lane:      model.PriorityDefault,
			broker:    broker,
			registry:  registry,
			poll:      time.Millisecond,
			heartbeat: 5 * time.Millisecond,
			log:       newTestLogger(),
		}

		w.processOne(context.Background())

		if got := broker.heartbeatCount(); got < 2 {
			t.Fatalf("heartbeats while busy: %d", got)
		}
		if len(broker.completed) != 1 || broker.completed[0] != "job_slow" {
			t.Fatalf("completed: %v", broker.completed)
		}
	})

	t.Run("handler result passes through", func(t *testing.T) {
		registry.Register(model.JobKindRunWorkflow, func(ctx context.Context, args map[string]string) (any, error) {
			return map[string]int{"entities": 2}, nil
		})
		job := &model.Job{ID: "job_3", Kind: model.JobKindRunWorkflow, Timeout: time.Second}
		out, err := w.runJob(context.Background(), job)
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if payload, _ := MarshalResult(out); payload != `{"entities":2}` {
			t.Fatalf("payload: %q", payload)
		}
	})
}
