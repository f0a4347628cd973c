// Package api exposes the HTTP interface for the crawler service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/JakeFAU/product-url-crawler/internal/config"
	"github.com/JakeFAU/product-url-crawler/internal/crawler"
	"github.com/JakeFAU/product-url-crawler/internal/metrics"
)

const requestTimeout = 60 * time.Second

// JobService submits crawl jobs and reports their status.
type JobService interface {
	Submit(ctx context.Context, domains []string) ([]string, error)
	Status(ctx context.Context, jobID string) (crawler.JobStatus, error)
}

// Server wires HTTP handlers to the job service and result store.
type Server struct {
	router   chi.Router
	jobs     JobService
	store    crawler.ResultStore
	validate *validator.Validate
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes. store may be nil,
// in which case the domain lookup route answers 404.
func NewServer(jobs JobService, store crawler.ResultStore, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		jobs:     jobs,
		store:    store,
		validate: newValidator(),
		logger:   logger.Named("api"),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)
	r.Use(corsMiddleware)
	r.Use(timeoutMiddleware(requestTimeout))

	r.NotFound(s.invalidEndpoint)
	r.MethodNotAllowed(s.invalidEndpoint)

	r.Get("/ping", s.ping)
	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/crawler", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Post("/product", s.submitCrawl)
		r.Get("/job-status", s.jobStatus)
		r.Get("/products", s.domainProducts)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) ping(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := io.WriteString(w, "Hello World!"); err != nil {
		s.logger.Debug("ping write failed", zap.Error(err))
	}
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ok"})
}

type submitRequest struct {
	URLs []string `json:"urls" validate:"required,min=1,dive,notnull"`
}

type submitResponse struct {
	Message   string   `json:"message"`
	TotalJobs int      `json:"totalJobs"`
	JobIDs    []string `json:"jobIds"`
}

func (s *Server) submitCrawl(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeFailure(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}
	if !s.validRequest(w, req) {
		return
	}

	ids, err := s.jobs.Submit(r.Context(), req.URLs)
	if err != nil {
		if len(ids) > 0 {
			s.logger.Warn("submit failed after queueing some jobs", zap.Strings("job_ids", ids), zap.Error(err))
		}
		s.writeServiceError(w, err)
		return
	}
	s.logger.Info("crawl jobs queued", zap.Int("total_jobs", len(ids)), zap.Strings("job_ids", ids))
	s.writeSuccess(w, submitResponse{
		Message:   "Crawling jobs queued successfully",
		TotalJobs: len(ids),
		JobIDs:    ids,
	})
}

type jobStatusQuery struct {
	JobID string `json:"jobId" validate:"notnull"`
}

func (s *Server) jobStatus(w http.ResponseWriter, r *http.Request) {
	query := jobStatusQuery{JobID: r.URL.Query().Get("jobId")}
	if !s.validRequest(w, query) {
		return
	}
	status, err := s.jobs.Status(r.Context(), query.JobID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeSuccess(w, status)
}

type domainQuery struct {
	Domain string `json:"domain" validate:"notnull"`
}

func (s *Server) domainProducts(w http.ResponseWriter, r *http.Request) {
	query := domainQuery{Domain: strings.TrimSpace(r.URL.Query().Get("domain"))}
	if !s.validRequest(w, query) {
		return
	}
	if s.store == nil {
		s.writeNotFound(w, "Domain not found")
		return
	}
	record, err := s.store.GetDomain(r.Context(), query.Domain)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeSuccess(w, record)
}

func (s *Server) invalidEndpoint(w http.ResponseWriter, _ *http.Request) {
	s.writeFailure(w, http.StatusNotFound, "Invalid Endpoint!", nil)
}

// validRequest writes the 400 envelope and returns false when req fails validation.
func (s *Server) validRequest(w http.ResponseWriter, req any) bool {
	err := s.validate.Struct(req)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		s.logger.Error("request validation failed", zap.Error(err))
		s.writeFailure(w, http.StatusInternalServerError, "Server Error", nil)
		return false
	}
	s.writeMissing(w, missingParameters(verrs))
	return false
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	var verr *crawler.ValidationError
	switch {
	case errors.As(err, &verr):
		s.writeMissing(w, verr.Missing)
	case errors.Is(err, crawler.ErrJobNotFound):
		s.writeNotFound(w, "Job not found")
	case errors.Is(err, crawler.ErrDomainNotFound):
		s.writeNotFound(w, "Domain not found")
	case errors.Is(err, context.DeadlineExceeded):
		s.writeFailure(w, http.StatusRequestTimeout, "Request Timeout", nil)
	default:
		s.logger.Error("request failed", zap.Error(err))
		s.writeFailure(w, http.StatusInternalServerError, "Server Error", nil)
	}
}
