// Package api exposes the HTTP interface: submit crawl and audit jobs,
// poll their progress, and read stored opportunities.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Echoandelementwebsites/rfp-scraper/internal/jobs"
	"github.com/Echoandelementwebsites/rfp-scraper/internal/metrics"
	"github.com/Echoandelementwebsites/rfp-scraper/internal/orchestrator"
	"github.com/Echoandelementwebsites/rfp-scraper/internal/procure"
	"github.com/Echoandelementwebsites/rfp-scraper/internal/qa"
	"github.com/Echoandelementwebsites/rfp-scraper/internal/registry"
)

// Runner is the work the API can kick off as jobs.
type Runner interface {
	Scrape(ctx context.Context, state string, report orchestrator.Reporter) (orchestrator.Summary, error)
	DiscoverAgencies(ctx context.Context, state string, report orchestrator.Reporter) (orchestrator.SeedSummary, error)
	Audit(ctx context.Context, state string) (qa.Report, error)
	SyncRegistry(ctx context.Context, state string) (registry.SyncStats, error)
}

// OpportunityReader serves the read side.
type OpportunityReader interface {
	ListOpportunities(ctx context.Context, state string) ([]procure.Opportunity, error)
}

// Server wires HTTP handlers to the job manager and runner.
type Server struct {
	router  chi.Router
	manager *jobs.Manager
	runner  Runner
	reader  OpportunityReader
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(manager *jobs.Manager, runner Runner, reader OpportunityReader, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		manager: manager,
		runner:  runner,
		reader:  reader,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.listActiveJobs)
			r.Post("/scrape", s.submitScrape)
			r.Post("/discover", s.submitDiscover)
			r.Post("/audit", s.submitAudit)
			r.Post("/sync-registry", s.submitSync)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/", s.getJob)
				r.Get("/logs", s.getJobLogs)
				r.Post("/cancel", s.cancelJob)
			})
		})
		r.Get("/opportunities", s.listOpportunities)
	})

	s.router = r
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe runs the server until ctx is canceled, then drains.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("http server listening", zap.Int("port", port))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.manager.Wait()
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type stateRequest struct {
	State string `json:"state"`
}

func (s *Server) decodeState(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req stateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "request body must be JSON with a state field")
		return "", false
	}
	state := strings.ToUpper(strings.TrimSpace(req.State))
	if len(state) != 2 {
		writeError(w, http.StatusBadRequest, "state must be a two-letter abbreviation")
		return "", false
	}
	return state, true
}

func (s *Server) submitScrape(w http.ResponseWriter, r *http.Request) {
	state, ok := s.decodeState(w, r)
	if !ok {
		return
	}
	s.submitJob(w, r, "scrape", func(ctx context.Context, job *jobs.Job) (any, error) {
		return s.runner.Scrape(ctx, state, job)
	})
}

func (s *Server) submitDiscover(w http.ResponseWriter, r *http.Request) {
	state, ok := s.decodeState(w, r)
	if !ok {
		return
	}
	s.submitJob(w, r, "discover", func(ctx context.Context, job *jobs.Job) (any, error) {
		return s.runner.DiscoverAgencies(ctx, state, job)
	})
}

func (s *Server) submitAudit(w http.ResponseWriter, r *http.Request) {
	state, ok := s.decodeState(w, r)
	if !ok {
		return
	}
	s.submitJob(w, r, "audit", func(ctx context.Context, _ *jobs.Job) (any, error) {
		return s.runner.Audit(ctx, state)
	})
}

func (s *Server) submitSync(w http.ResponseWriter, r *http.Request) {
	state, ok := s.decodeState(w, r)
	if !ok {
		return
	}
	s.submitJob(w, r, "sync-registry", func(ctx context.Context, _ *jobs.Job) (any, error) {
		return s.runner.SyncRegistry(ctx, state)
	})
}

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request, kind string, work jobs.WorkFunc) {
	id, err := s.manager.Submit(r.Context(), kind, work)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to start job")
		s.logger.Error("job submit failed", zap.String("kind", kind), zap.Error(err))
		return
	}
	metrics.JobsSubmitted.WithLabelValues(kind).Inc()
	writeJSON(w, http.StatusAccepted, map[string]string{"jobId": id, "kind": kind})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.manager.Get(chi.URLParam(r, "job_id"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) getJobLogs(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.manager.Get(chi.URLParam(r, "job_id"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobId": snap.ID, "logs": snap.Logs})
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "job_id")
	if !s.manager.Cancel(id) {
		writeError(w, http.StatusConflict, "job is not running")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"jobId": id, "status": "canceling"})
}

func (s *Server) listActiveJobs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"jobs": s.manager.Active()})
}

func (s *Server) listOpportunities(w http.ResponseWriter, r *http.Request) {
	state := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("state")))
	if len(state) != 2 {
		writeError(w, http.StatusBadRequest, "state query parameter is required")
		return
	}
	items, err := s.reader.ListOpportunities(r.Context(), state)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to list opportunities")
		s.logger.Error("list opportunities failed", zap.String("state", state), zap.Error(err))
		return
	}
	if items == nil {
		items = []procure.Opportunity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": state, "opportunities": items})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
