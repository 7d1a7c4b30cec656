package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Izone425/allowancev2/internal/assignment"
	"github.com/Izone425/allowancev2/internal/criteria"
	"github.com/Izone425/allowancev2/internal/domain"
	"github.com/Izone425/allowancev2/internal/template"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server and wires the template, assignment and
// preview services over the given backends.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, previewDebounce time.Duration, version string) (*Server, error) {
	templates, err := template.NewService(repo, bus)
	if err != nil {
		return nil, fmt.Errorf("failed to create template service: %w", err)
	}
	assignments := assignment.NewService(repo, bus)
	previewer := criteria.NewPreviewer(&cachedEmployeeSource{repo: repo, cache: cache}, previewDebounce)

	handler := NewHandler(templates, assignments, previewer, repo, cache, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (tenant required)
	router.Route("/", func(r chi.Router) {
		r.Use(TenantMiddleware)

		r.Route("/allowance-templates", func(r chi.Router) {
			r.Get("/", handler.ListTemplates)
			r.Post("/", handler.CreateTemplate)
			r.Get("/check-code", handler.CheckCode)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", handler.GetTemplate)
				r.Put("/", handler.UpdateTemplate)
				r.Delete("/", handler.DeleteTemplate)
				r.Post("/archive", handler.ArchiveTemplate)
				r.Post("/unarchive", handler.UnarchiveTemplate)
				r.Post("/duplicate", handler.DuplicateTemplate)
				r.Post("/criteria/preview", handler.PreviewTemplateCriteria)
				r.Get("/audit", handler.ListAudit)

				r.Route("/assignments", func(r chi.Router) {
					r.Get("/", handler.ListAssignments)
					r.Post("/", handler.BulkAssign)
					r.Post("/bulk-remove", handler.BulkRemoveAssignments)
					r.Delete("/{assignmentId}", handler.RemoveAssignment)
				})
			})
		})

		// Ad-hoc preview for templates that do not exist yet
		r.Post("/criteria/preview", handler.PreviewCriteria)

		r.Get("/lookups", handler.GetLookups)
		r.Put("/lookups/sync", handler.SyncLookups)

		r.Get("/users", handler.ListUsers)
		r.Put("/users/sync", handler.SyncUsers)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}, nil
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.handler.Close()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
