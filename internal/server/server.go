// Package server exposes the document status polling API, the OCR worker
// result intake, upload intake and the invoice export.
package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/faktulove/ocrsync/internal/export"
	"github.com/faktulove/ocrsync/internal/pipeline"
	"github.com/faktulove/ocrsync/internal/repository"
	"github.com/faktulove/ocrsync/internal/statussync"
)

// Server wires repositories and services into the HTTP surface.
type Server struct {
	documents   repository.DocumentRepository
	sync        *statussync.Service
	processor   *pipeline.Processor
	export      *export.Service
	identity    IdentityResolver
	limiter     RateLimiter
	workerToken string
	uploadDir   string
	logger      *slog.Logger
}

// Options collects the injected capabilities.
type Options struct {
	Documents   repository.DocumentRepository
	Sync        *statussync.Service
	Processor   *pipeline.Processor
	Export      *export.Service
	Identity    IdentityResolver
	Limiter     RateLimiter // nil disables limiting (tests)
	WorkerToken string
	UploadDir   string
	Logger      *slog.Logger
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		documents:   opts.Documents,
		sync:        opts.Sync,
		processor:   opts.Processor,
		export:      opts.Export,
		identity:    opts.Identity,
		limiter:     opts.Limiter,
		workerToken: opts.WorkerToken,
		uploadDir:   opts.UploadDir,
		logger:      logger,
	}
}

// Router builds the chi router with all routes and middleware attached.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.collectMetrics)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		// user-facing routes
		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)
			r.Use(s.rateLimit)

			r.Post("/ocr/documents", s.handleUpload)
			r.Get("/ocr/documents/{id}/status", s.handleStatus)
			r.Get("/ocr/documents/{id}/status/display", s.handleDisplayStatus)
			r.Get("/ocr/documents/{id}/progress", s.handleProgress)
			r.Post("/ocr/documents/status/bulk", s.handleBulkStatus)
			r.Get("/invoices/export", s.handleExport)
		})

		// OCR worker intake
		r.Group(func(r chi.Router) {
			r.Use(s.authenticateWorker)
			r.Post("/ocr/documents/{id}/result", s.handleResult)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ok", "timestamp": nowISO()})
}
