package web

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"profile-enrichment/internal/config"
	"profile-enrichment/internal/domain/model"
	"profile-enrichment/internal/infra/logging"
	"profile-enrichment/internal/infra/queue"
	"profile-enrichment/internal/usecase"
)

// JobService is the slice of the job manager the HTTP surface needs.
type JobService interface {
	Status(ctx context.Context, jobID string) (*model.Job, error)
	Cancel(ctx context.Context, jobID string) (bool, error)
	Cleanup(ctx context.Context, olderThanDays int) (int, error)
	QueueInfo(ctx context.Context) (map[string]queue.LaneStats, error)
}

type Server struct {
	engine       usecase.WorkflowEngine
	jobs         JobService
	auth         *AuthManager
	apiKey       string
	adminPass    string
	defaultLimit int
	log          *zerolog.Logger
}

func NewServer(
	engine usecase.WorkflowEngine,
	jobs JobService,
	auth *AuthManager,
	serverCfg config.ServerConfig,
	adminCfg config.AdminConfig,
	workflowCfg config.WorkflowConfig,
	logger *zerolog.Logger,
) *Server {
	srvLog := logger.With().Str("component", "WebServer").Logger()
	return &Server{
		engine:       engine,
		jobs:         jobs,
		auth:         auth,
		apiKey:       serverCfg.APIKey,
		adminPass:    adminCfg.Password,
		defaultLimit: workflowCfg.DefaultLimit,
		log:          &srvLog,
	}
}

// Router wires the full HTTP surface.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(s.traceMiddleware)

	r.Get("/health", s.healthHandler())
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.apiKeyMiddleware)
			r.Post("/enrichments", s.submitHandler())
			r.Get("/enrichments/{sessionID}", s.sessionHandler())
			r.Get("/enrichments/{sessionID}/history", s.historyHandler())
			r.Get("/jobs/{jobID}", s.jobHandler())
			r.Delete("/jobs/{jobID}", s.jobCancelHandler())
		})

		r.Post("/admin/login", s.adminLoginHandler())
		r.Group(func(r chi.Router) {
			r.Use(s.adminMiddleware)
			r.Post("/admin/logout", s.adminLogoutHandler())
			r.Get("/admin/queues", s.queueInfoHandler())
			r.Post("/admin/cleanup", s.cleanupHandler())
		})
	})
	return r
}

// traceMiddleware assigns every request a trace id and a request-scoped
// logger derived from it.
func (s *Server) traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Request-Id")
		if traceID == "" {
			traceID = uuid.NewString()
		}
		ctx := logging.WithTraceID(r.Context(), traceID)
		w.Header().Set("X-Request-Id", traceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// apiKeyMiddleware guards the public API with a bearer key when one is
// configured; an empty key leaves the API open.
func (s *Server) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		hdr := r.Header.Get("Authorization")
		if hdr != "Bearer "+s.apiKey {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.auth.ParseFromRequest(r); err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
