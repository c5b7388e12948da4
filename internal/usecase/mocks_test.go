//go:build !integration

package usecase_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"profile-enrichment/internal/domain"
	"profile-enrichment/internal/domain/model"
)

func newTestLogger() *zerolog.Logger { l := zerolog.Nop(); return &l }

// ---------------- in-memory session store ----------------

type memSessionStore struct {
	mu        sync.Mutex
	snapshots map[string]map[int64]*model.Session

	// optional hook; runs before the conflict check
	AppendFunc func(ctx context.Context, s *model.Session) error
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{snapshots: map[string]map[int64]*model.Session{}}
}

func (m *memSessionStore) Append(ctx context.Context, s *model.Session) error {
	if m.AppendFunc != nil {
		if err := m.AppendFunc(ctx, s); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	versions, ok := m.snapshots[s.SessionID]
	if !ok {
		versions = map[int64]*model.Session{}
		m.snapshots[s.SessionID] = versions
	}
	if _, exists := versions[s.Version]; exists {
		return fmt.Errorf("session %s version %d: %w", s.SessionID, s.Version, domain.ErrVersionConflict)
	}
	cp := *s
	versions[s.Version] = &cp
	return nil
}

func (m *memSessionStore) Latest(ctx context.Context, sessionID string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	versions := m.snapshots[sessionID]
	if len(versions) == 0 {
		return nil, domain.ErrNotFound
	}
	var max int64 = -1
	for v := range versions {
		if v > max {
			max = v
		}
	}
	cp := *versions[max]
	return &cp, nil
}

func (m *memSessionStore) History(ctx context.Context, sessionID string) ([]*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	versions := m.snapshots[sessionID]
	if len(versions) == 0 {
		return nil, domain.ErrNotFound
	}
	out := make([]*model.Session, 0, len(versions))
	for _, s := range versions {
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

func (m *memSessionStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, versions := range m.snapshots {
		for _, s := range versions {
			if s.ExpiresAt.Before(cutoff) {
				delete(m.snapshots, id)
				n++
				break
			}
		}
	}
	return n, nil
}

// ---------------- stage adapter mocks ----------------

type mockResolver struct {
	ResolveFunc func(ctx context.Context, taskDescription string) (string, error)
}

func (m *mockResolver) Resolve(ctx context.Context, taskDescription string) (string, error) {
	return m.ResolveFunc(ctx, taskDescription)
}

type mockCodeHost struct {
	ValidateFunc func(ctx context.Context, repo string) (bool, error)
	FetchFunc    func(ctx context.Context, repo string, limit int) ([]model.Contributor, error)
}

func (m *mockCodeHost) ValidateRepository(ctx context.Context, repo string) (bool, error) {
	if m.ValidateFunc != nil {
		return m.ValidateFunc(ctx, repo)
	}
	return true, nil
}

func (m *mockCodeHost) FetchContributors(ctx context.Context, repo string, limit int) ([]model.Contributor, error) {
	return m.FetchFunc(ctx, repo, limit)
}

type mockSocial struct {
	FetchByURLFunc   func(ctx context.Context, profileURL string) (*model.SocialProfile, error)
	SearchByNameFunc func(ctx context.Context, name string) (*model.SocialProfile, error)

	mu          sync.Mutex
	fetchCalls  []string
	searchCalls []string
}

func (m *mockSocial) FetchByURL(ctx context.Context, profileURL string) (*model.SocialProfile, error) {
	m.mu.Lock()
	m.fetchCalls = append(m.fetchCalls, profileURL)
	m.mu.Unlock()
	if m.FetchByURLFunc != nil {
		return m.FetchByURLFunc(ctx, profileURL)
	}
	return &model.SocialProfile{ProfileURL: profileURL, Name: "someone"}, nil
}

func (m *mockSocial) SearchByName(ctx context.Context, name string) (*model.SocialProfile, error) {
	m.mu.Lock()
	m.searchCalls = append(m.searchCalls, name)
	m.mu.Unlock()
	if m.SearchByNameFunc != nil {
		return m.SearchByNameFunc(ctx, name)
	}
	return &model.SocialProfile{ProfileURL: "https://linkedin.com/in/" + name, Name: name}, nil
}

type mockNotifier struct {
	mu        sync.Mutex
	completed []string
	failed    []string
	category  string
}

func (m *mockNotifier) NotifyCompleted(ctx context.Context, sessionID string, result *model.MergedResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = append(m.completed, sessionID)
	return nil
}

func (m *mockNotifier) NotifyFailed(ctx context.Context, sessionID string, category string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, sessionID)
	m.category = category
	return nil
}

type mockEnqueuer struct {
	EnqueueFunc func(ctx context.Context, kind model.JobKind, args map[string]string, priority model.JobPriority) (*model.Job, error)

	jobs []*model.Job
}

func (m *mockEnqueuer) Enqueue(ctx context.Context, kind model.JobKind, args map[string]string, priority model.JobPriority) (*model.Job, error) {
	if m.EnqueueFunc != nil {
		return m.EnqueueFunc(ctx, kind, args, priority)
	}
	job := &model.Job{
		ID:        fmt.Sprintf("job_%d", len(m.jobs)+1),
		Kind:      kind,
		Args:      args,
		Priority:  priority,
		Status:    model.JobQueued,
		CreatedAt: time.Now().UTC(),
	}
	m.jobs = append(m.jobs, job)
	return job, nil
}
