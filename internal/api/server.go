package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-pipeline/internal/config"
	"github.com/JakeFAU/crawl-pipeline/internal/jobs"
	"github.com/JakeFAU/crawl-pipeline/internal/logging"
	"github.com/JakeFAU/crawl-pipeline/internal/metrics"
)

// OwnerHeader carries the caller's owner id.
const OwnerHeader = "X-Owner-ID"

// Starter starts crawl jobs.
type Starter interface {
	Start(ctx context.Context, url string, depth int, ownerID *int64) (int64, error)
}

// JobReader serves job reads and deletion requests.
type JobReader interface {
	Get(ctx context.Context, id int64) (jobs.View, error)
	List(ctx context.Context, ownerID int64, offset, limit int) ([]jobs.View, int, error)
	Results(ctx context.Context, id int64) ([]jobs.PageResult, error)
	Delete(ctx context.Context, id, requesterID int64) (bool, error)
}

// ReadyFunc reports whether downstream dependencies can serve traffic.
type ReadyFunc func(ctx context.Context) error

// Server wires HTTP handlers to the dispatcher and the state reader.
type Server struct {
	router  chi.Router
	starter Starter
	reader  JobReader
	ready   ReadyFunc
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes. ready may be nil.
func NewServer(starter Starter, reader JobReader, ready ReadyFunc, cfg config.ServerConfig, logger *zap.Logger) *Server {
	logger = logging.OrNop(logger)
	s := &Server{
		starter: starter,
		reader:  reader,
		ready:   ready,
		logger:  logger.Named("api"),
	}
	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1/jobs", func(r chi.Router) {
		r.Post("/", s.startJob)
		r.Get("/", s.listJobs)
		r.Route("/{job_id}", func(r chi.Router) {
			r.Get("/", s.getJob)
			r.Get("/results", s.getResults)
			r.Delete("/", s.deleteJob)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type startJobRequest struct {
	URL   string `json:"url"`
	Depth int    `json:"depth"`
}

func (s *Server) startJob(w http.ResponseWriter, r *http.Request) {
	var req startJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	ownerID, _, err := ownerFromHeader(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	jobID, err := s.starter.Start(r.Context(), req.URL, req.Depth, ownerID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int64{"job_id": jobID})
}

type listJobsResponse struct {
	Jobs   []jobs.View `json:"jobs"`
	Total  int         `json:"total"`
	Offset int         `json:"offset"`
	Limit  int         `json:"limit"`
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	views, total, err := s.reader.List(r.Context(), ownerID, offset, limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listJobsResponse{Jobs: views, Total: total, Offset: offset, Limit: limit})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := jobIDParam(w, r)
	if !ok {
		return
	}
	view, err := s.reader.Get(r.Context(), jobID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) getResults(w http.ResponseWriter, r *http.Request) {
	jobID, ok := jobIDParam(w, r)
	if !ok {
		return
	}
	pages, err := s.reader.Results(r.Context(), jobID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job_id": jobID, "pages": pages})
}

func (s *Server) deleteJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := jobIDParam(w, r)
	if !ok {
		return
	}
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}
	enqueued, err := s.reader.Delete(r.Context(), jobID, ownerID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if !enqueued {
		writeError(w, http.StatusServiceUnavailable, "deletion is not configured")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"job_id": jobID, "status": "deletion_requested"})
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, jobs.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, "not authorized")
	case errors.Is(err, jobs.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusRequestTimeout, "request timed out")
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// ownerFromHeader parses the owner header. present is false when it is absent.
func ownerFromHeader(r *http.Request) (owner *int64, present bool, err error) {
	raw := strings.TrimSpace(r.Header.Get(OwnerHeader))
	if raw == "" {
		return nil, false, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, true, errors.New("invalid " + OwnerHeader + " header")
	}
	return &id, true, nil
}

func requireOwner(w http.ResponseWriter, r *http.Request) (int64, bool) {
	owner, present, err := ownerFromHeader(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	if !present {
		writeError(w, http.StatusUnauthorized, "missing "+OwnerHeader+" header")
		return 0, false
	}
	return *owner, true
}

func jobIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "job_id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("invalid " + key)
	}
	return v, nil
}
