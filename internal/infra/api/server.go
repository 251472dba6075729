package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"tenant-ai-agents/internal/config"
	"tenant-ai-agents/internal/domain"
	"tenant-ai-agents/internal/domain/model"
	"tenant-ai-agents/internal/domain/ports/repository"
	"tenant-ai-agents/internal/infra/worker"
	"tenant-ai-agents/internal/usecase"
)

// Server is the operator and ingestion surface: health, metrics, queue
// control, billing reads, task creation, conversation turns and workflow
// runs. Everything under /api/v1 requires a bearer token.
type Server struct {
	cfg      *config.OpsServerConfig
	queue    *worker.Queue
	enqueue  usecase.TaskQueue
	tasks    repository.TaskRepository
	cron     CronRegistrar
	turns    ConversationService
	workflow WorkflowRunner
	billing  repository.BillingRepository
	log      *zerolog.Logger
	srv      *http.Server
}

func NewServer(
	cfg *config.OpsServerConfig,
	queue *worker.Queue,
	tasks repository.TaskRepository,
	cron CronRegistrar,
	turns ConversationService,
	workflow WorkflowRunner,
	billing repository.BillingRepository,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "OpsServer").Logger()
	return &Server{
		cfg:      cfg,
		queue:    queue,
		enqueue:  queue,
		tasks:    tasks,
		cron:     cron,
		turns:    turns,
		workflow: workflow,
		billing:  billing,
		log:      &l,
	}
}

func (s *Server) Start() error {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(JWTAuth(s.cfg.JWTSecret))
		r.Get("/queue/stats", s.handleQueueStats)
		r.Post("/queue/pause", s.handleQueuePause)
		r.Post("/queue/resume", s.handleQueueResume)
		r.Post("/jobs/{id}/retry", s.handleJobRetry)
		r.Delete("/jobs/{id}", s.handleJobRemove)
		r.Post("/tasks", s.handleTaskCreate)
		r.Post("/conversations/{id}/messages", s.handleConversationTurn)
		r.Post("/workflows/run", s.handleWorkflowRun)
		r.Get("/billing/{tenantID}", s.handleBilling)
	})

	handler := Chain(r, TraceID(), Recover(s.log), RequestLog(s.log), Timeout(30*time.Second))
	s.srv = &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Info().Str("listen", s.cfg.Listen).Msg("ops server starting")
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.queue.Stats())
}

func (s *Server) handleQueuePause(w http.ResponseWriter, r *http.Request) {
	s.queue.Pause()
	s.log.Info().Str("operator", Subject(r.Context())).Msg("queue paused via ops api")
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (s *Server) handleQueueResume(w http.ResponseWriter, r *http.Request) {
	s.queue.Resume()
	s.log.Info().Str("operator", Subject(r.Context())).Msg("queue resumed via ops api")
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

func (s *Server) handleJobRetry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.queue.Retry(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": id, "status": "requeued"})
}

func (s *Server) handleJobRemove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.queue.Remove(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": id, "status": "removed"})
}

func (s *Server) handleBilling(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	months := 1
	if v := r.URL.Query().Get("months"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			months = n
		}
	}

	if months == 1 {
		entry, err := s.billing.CurrentMonth(r.Context(), repository.NoTX, tenantID, model.Period(time.Now(), nil))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entry)
		return
	}

	history, err := s.billing.History(r.Context(), repository.NoTX, tenantID, months)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrJobNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrAccessDenied):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrRateLimited):
		http.Error(w, err.Error(), http.StatusTooManyRequests)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
