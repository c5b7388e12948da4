//go:build !integration

package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"profile-enrichment/internal/config"
	"profile-enrichment/internal/domain"
	"profile-enrichment/internal/domain/model"
	"profile-enrichment/internal/infra/queue"
	"profile-enrichment/internal/infra/web"
)

func newTestLogger() *zerolog.Logger { l := zerolog.Nop(); return &l }

//
// ---------------- fakes ----------------
//

type fakeEngine struct {
	sessions map[string][]*model.Session

	errSubmit error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{sessions: map[string][]*model.Session{}}
}

func (f *fakeEngine) Submit(ctx context.Context, taskDescription string, limit int, priority model.JobPriority) (*model.Session, *model.Job, error) {
	if f.errSubmit != nil {
		return nil, nil, f.errSubmit
	}
	if limit < 1 || limit > 100 {
		return nil, nil, fmt.Errorf("limit %d out of range: %w", limit, domain.ErrInvalidArgument)
	}
	s, err := model.NewSession(fmt.Sprintf("sess-%d", len(f.sessions)+1), taskDescription, limit, time.Hour)
	if err != nil {
		return nil, nil, err
	}
	f.sessions[s.SessionID] = []*model.Session{s}
	job := &model.Job{ID: "job_1", Kind: model.JobKindRunWorkflow, Priority: priority, Status: model.JobQueued}
	return s, job, nil
}

func (f *fakeEngine) RunSession(ctx context.Context, sessionID string) (*model.MergedResult, error) {
	return nil, nil
}

func (f *fakeEngine) Latest(ctx context.Context, sessionID string) (*model.Session, error) {
	hist := f.sessions[sessionID]
	if len(hist) == 0 {
		return nil, domain.ErrNotFound
	}
	return hist[len(hist)-1], nil
}

func (f *fakeEngine) History(ctx context.Context, sessionID string) ([]*model.Session, error) {
	hist := f.sessions[sessionID]
	if len(hist) == 0 {
		return nil, domain.ErrNotFound
	}
	out := make([]*model.Session, 0, len(hist))
	for i := len(hist) - 1; i >= 0; i-- {
		out = append(out, hist[i])
	}
	return out, nil
}

type fakeJobs struct {
	jobs map[string]*model.Job

	cleanedDays int
}

func newFakeJobs() *fakeJobs { return &fakeJobs{jobs: map[string]*model.Job{}} }

func (f *fakeJobs) Status(ctx context.Context, jobID string) (*model.Job, error) {
	j, ok := f.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return j, nil
}

func (f *fakeJobs) Cancel(ctx context.Context, jobID string) (bool, error) {
	j, ok := f.jobs[jobID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if !j.Cancellable() {
		return false, nil
	}
	j.Status = model.JobCancelled
	return true, nil
}

func (f *fakeJobs) Cleanup(ctx context.Context, olderThanDays int) (int, error) {
	if olderThanDays < 0 {
		return 0, domain.ErrInvalidArgument
	}
	f.cleanedDays = olderThanDays
	return 2, nil
}

func (f *fakeJobs) QueueInfo(ctx context.Context) (map[string]queue.LaneStats, error) {
	return map[string]queue.LaneStats{
		"high": {}, "default": {Depth: 1}, "low": {},
	}, nil
}

//
// ---------------- helpers ----------------
//

func newTestServer(engine *fakeEngine, jobs *fakeJobs) http.Handler {
	auth := web.NewAuthManager("test-secret", false, 30*time.Minute)
	srv := web.NewServer(
		engine, jobs, auth,
		config.ServerConfig{},
		config.AdminConfig{Password: "hunter2"},
		config.WorkflowConfig{DefaultLimit: 50},
		newTestLogger(),
	)
	return srv.Router()
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func adminToken(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/v1/admin/login", `{"password":"hunter2"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: %d body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.Token == "" {
		t.Fatalf("token: %v %s", err, rec.Body.String())
	}
	return resp.Token
}

//
// ---------------- tests ----------------
//

func TestSubmit_AllPaths(t *testing.T) {
	t.Run("202 accepted with session and job ids", func(t *testing.T) {
		h := newTestServer(newFakeEngine(), newFakeJobs())
		rec := doJSON(t, h, http.MethodPost, "/api/v1/enrichments",
			`{"task_description":"enrich acme/widgets contributors","limit":10,"priority":"high"}`)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("want 202, got %d body=%s", rec.Code, rec.Body.String())
		}
		var resp struct {
			SessionID string `json:"session_id"`
			JobID     string `json:"job_id"`
			Status    string `json:"status"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.SessionID == "" || resp.JobID == "" || resp.Status != "processing" {
			t.Fatalf("response: %+v", resp)
		}
	})

	t.Run("empty description -> 400 with validation category", func(t *testing.T) {
		h := newTestServer(newFakeEngine(), newFakeJobs())
		rec := doJSON(t, h, http.MethodPost, "/api/v1/enrichments", `{"task_description":"  "}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("want 400, got %d body=%s", rec.Code, rec.Body.String())
		}
		var resp struct {
			Category string `json:"category"`
		}
		_ = json.Unmarshal(rec.Body.Bytes(), &resp)
		if resp.Category != "validation" {
			t.Fatalf("category: %q", resp.Category)
		}
	})

	t.Run("missing body -> 400", func(t *testing.T) {
		h := newTestServer(newFakeEngine(), newFakeJobs())
		rec := doJSON(t, h, http.MethodPost, "/api/v1/enrichments", "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("want 400, got %d", rec.Code)
		}
	})

	t.Run("omitted limit uses the configured default", func(t *testing.T) {
		engine := newFakeEngine()
		h := newTestServer(engine, newFakeJobs())
		rec := doJSON(t, h, http.MethodPost, "/api/v1/enrichments", `{"task_description":"enrich acme/widgets"}`)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("want 202, got %d body=%s", rec.Code, rec.Body.String())
		}
		for _, hist := range engine.sessions {
			if hist[0].Limit != 50 {
				t.Fatalf("limit: %d", hist[0].Limit)
			}
		}
	})

	t.Run("explicit zero limit -> 400, no session created", func(t *testing.T) {
		engine := newFakeEngine()
		h := newTestServer(engine, newFakeJobs())
		rec := doJSON(t, h, http.MethodPost, "/api/v1/enrichments",
			`{"task_description":"enrich acme/widgets","limit":0}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("want 400, got %d body=%s", rec.Code, rec.Body.String())
		}
		var resp struct {
			Category string `json:"category"`
		}
		_ = json.Unmarshal(rec.Body.Bytes(), &resp)
		if resp.Category != "validation" {
			t.Fatalf("category: %q", resp.Category)
		}
		if len(engine.sessions) != 0 {
			t.Fatalf("rejected submission created %d sessions", len(engine.sessions))
		}
	})

	t.Run("limit out of range -> 400", func(t *testing.T) {
		h := newTestServer(newFakeEngine(), newFakeJobs())
		rec := doJSON(t, h, http.MethodPost, "/api/v1/enrichments",
			`{"task_description":"enrich acme/widgets","limit":500}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("want 400, got %d", rec.Code)
		}
	})

	t.Run("unknown priority -> 400", func(t *testing.T) {
		h := newTestServer(newFakeEngine(), newFakeJobs())
		rec := doJSON(t, h, http.MethodPost, "/api/v1/enrichments",
			`{"task_description":"enrich acme/widgets","priority":"urgent"}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("want 400, got %d", rec.Code)
		}
	})
}

func TestSessionEndpoints(t *testing.T) {
	engine := newFakeEngine()
	h := newTestServer(engine, newFakeJobs())
	rec := doJSON(t, h, http.MethodPost, "/api/v1/enrichments", `{"task_description":"enrich acme/widgets"}`)
	var created struct {
		SessionID string `json:"session_id"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &created)

	t.Run("latest 200", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodGet, "/api/v1/enrichments/"+created.SessionID, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("want 200, got %d body=%s", rec.Code, rec.Body.String())
		}
		var s model.Session
		if err := json.Unmarshal(rec.Body.Bytes(), &s); err != nil || s.SessionID != created.SessionID {
			t.Fatalf("session: %v %+v", err, s)
		}
	})

	t.Run("latest 404 with not_found category", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodGet, "/api/v1/enrichments/sess-missing", "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("want 404, got %d", rec.Code)
		}
		var resp struct {
			Category string `json:"category"`
		}
		_ = json.Unmarshal(rec.Body.Bytes(), &resp)
		if resp.Category != "not_found" {
			t.Fatalf("category: %q", resp.Category)
		}
	})

	t.Run("history 200 wraps snapshots", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodGet, "/api/v1/enrichments/"+created.SessionID+"/history", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("want 200, got %d", rec.Code)
		}
		var resp struct {
			SessionID string           `json:"session_id"`
			Versions  int              `json:"versions"`
			Snapshots []*model.Session `json:"snapshots"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Versions != 1 || len(resp.Snapshots) != 1 {
			t.Fatalf("history: %+v", resp)
		}
	})
}

func TestJobEndpoints(t *testing.T) {
	jobs := newFakeJobs()
	jobs.jobs["job_q"] = &model.Job{ID: "job_q", Status: model.JobQueued}
	jobs.jobs["job_run"] = &model.Job{ID: "job_run", Status: model.JobStarted}
	h := newTestServer(newFakeEngine(), jobs)

	t.Run("status 200", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodGet, "/api/v1/jobs/job_q", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("want 200, got %d", rec.Code)
		}
	})

	t.Run("status 404", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodGet, "/api/v1/jobs/job_missing", "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("want 404, got %d", rec.Code)
		}
	})

	t.Run("cancel queued -> 200", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodDelete, "/api/v1/jobs/job_q", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("want 200, got %d body=%s", rec.Code, rec.Body.String())
		}
	})

	t.Run("cancel started -> 409 conflict, job keeps running", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodDelete, "/api/v1/jobs/job_run", "")
		if rec.Code != http.StatusConflict {
			t.Fatalf("want 409, got %d body=%s", rec.Code, rec.Body.String())
		}
		var resp struct {
			Category string `json:"category"`
		}
		_ = json.Unmarshal(rec.Body.Bytes(), &resp)
		if resp.Category != "conflict" {
			t.Fatalf("category: %q", resp.Category)
		}
		if jobs.jobs["job_run"].Status != model.JobStarted {
			t.Fatalf("status: %s", jobs.jobs["job_run"].Status)
		}
	})
}

func TestAdminEndpoints(t *testing.T) {
	jobs := newFakeJobs()
	h := newTestServer(newFakeEngine(), jobs)

	t.Run("wrong password -> 401", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodPost, "/api/v1/admin/login", `{"password":"wrong"}`)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("want 401, got %d", rec.Code)
		}
	})

	t.Run("guarded routes reject missing token", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodGet, "/api/v1/admin/queues", "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("want 401, got %d", rec.Code)
		}
	})

	t.Run("queues with bearer token", func(t *testing.T) {
		token := adminToken(t, h)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/queues", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("want 200, got %d body=%s", rec.Code, rec.Body.String())
		}
		var info map[string]queue.LaneStats
		if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil || len(info) != 3 {
			t.Fatalf("info: %v %+v", err, info)
		}
	})

	t.Run("cleanup parses days", func(t *testing.T) {
		token := adminToken(t, h)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/cleanup?days=3", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("want 200, got %d body=%s", rec.Code, rec.Body.String())
		}
		if jobs.cleanedDays != 3 {
			t.Fatalf("cleaned days: %d", jobs.cleanedDays)
		}
	})

	t.Run("cleanup rejects junk days", func(t *testing.T) {
		token := adminToken(t, h)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/cleanup?days=soon", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("want 400, got %d", rec.Code)
		}
	})
}

func TestAPIKeyGuard(t *testing.T) {
	auth := web.NewAuthManager("test-secret", false, 30*time.Minute)
	srv := web.NewServer(
		newFakeEngine(), newFakeJobs(), auth,
		config.ServerConfig{APIKey: "sekrit"},
		config.AdminConfig{Password: "hunter2"},
		config.WorkflowConfig{DefaultLimit: 50},
		newTestLogger(),
	)
	h := srv.Router()

	t.Run("missing key -> 401", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodGet, "/api/v1/enrichments/x", "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("want 401, got %d", rec.Code)
		}
	})

	t.Run("correct key passes through", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/enrichments/x", nil)
		req.Header.Set("Authorization", "Bearer sekrit")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("want 404 after auth, got %d", rec.Code)
		}
	})

	t.Run("health stays open", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodGet, "/health", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("want 200, got %d", rec.Code)
		}
	})
}
