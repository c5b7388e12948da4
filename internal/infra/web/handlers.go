package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"profile-enrichment/internal/domain"
	"profile-enrichment/internal/domain/model"
	"profile-enrichment/internal/infra/logging"
)

type submitRequest struct {
	TaskDescription string `json:"task_description"`
	Limit           *int   `json:"limit"` // nil means "use the default"; an explicit 0 is invalid
	Priority        string `json:"priority"`
}

type submitResponse struct {
	SessionID string `json:"session_id"`
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
}

// submitHandler accepts an enrichment request and answers 202 immediately;
// the workflow itself runs on a queue worker.
func (s *Server) submitHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, fmt.Errorf("invalid request body: %w", domain.ErrInvalidArgument))
			return
		}
		if strings.TrimSpace(req.TaskDescription) == "" {
			writeError(w, fmt.Errorf("task_description is required: %w", domain.ErrInvalidArgument))
			return
		}
		limit := s.defaultLimit
		if req.Limit != nil {
			limit = *req.Limit
		}
		priority, err := model.ParsePriority(req.Priority)
		if err != nil {
			writeError(w, fmt.Errorf("priority %q: %w", req.Priority, domain.ErrInvalidArgument))
			return
		}

		session, job, err := s.engine.Submit(ctx, req.TaskDescription, limit, priority)
		if err != nil {
			writeError(w, err)
			return
		}

		logging.With(ctx, s.log).Info().
			Str("session_id", session.SessionID).
			Str("job_id", job.ID).
			Msg("enrichment accepted")
		writeJSON(w, http.StatusAccepted, submitResponse{
			SessionID: session.SessionID,
			JobID:     job.ID,
			Status:    "processing",
		})
	}
}

// sessionHandler returns the latest snapshot of a session.
func (s *Server) sessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")
		session, err := s.engine.Latest(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, session)
	}
}

// historyHandler returns the session's full audit trail, newest first.
func (s *Server) historyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")
		snapshots, err := s.engine.History(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		response := struct {
			SessionID string           `json:"session_id"`
			Versions  int              `json:"versions"`
			Snapshots []*model.Session `json:"snapshots"`
		}{
			SessionID: id,
			Versions:  len(snapshots),
			Snapshots: snapshots,
		}
		writeJSON(w, http.StatusOK, response)
	}
}

func (s *Server) jobHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "jobID")
		job, err := s.jobs.Status(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

// jobCancelHandler cancels a queued job. Jobs already picked up keep running;
// the response says which outcome the caller got.
func (s *Server) jobCancelHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "jobID")
		cancelled, err := s.jobs.Cancel(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		if !cancelled {
			writeError(w, fmt.Errorf("job %s: %w", id, domain.ErrJobNotCancellable))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(model.JobCancelled)})
	}
}

type adminLoginRequest struct {
	Password string `json:"password"`
}

func (s *Server) adminLoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req adminLoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, fmt.Errorf("invalid request body: %w", domain.ErrInvalidArgument))
			return
		}
		if s.adminPass == "" || req.Password != s.adminPass {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		token, err := s.auth.Mint(w)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"token": token})
	}
}

func (s *Server) adminLogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.auth.Clear(w)
		w.WriteHeader(http.StatusNoContent)
	}
}

// queueInfoHandler reports depth, latency and worker counts per lane.
func (s *Server) queueInfoHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := s.jobs.QueueInfo(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}

// cleanupHandler removes terminal job records older than ?days=N.
func (s *Server) cleanupHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days := 7
		if raw := r.URL.Query().Get("days"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, fmt.Errorf("days %q: %w", raw, domain.ErrInvalidArgument))
				return
			}
			days = n
		}
		removed, err := s.jobs.Cleanup(r.Context(), days)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
	}
}
