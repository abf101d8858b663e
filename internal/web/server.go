// Package web provides the JSON HTTP API for patient records and bulk import.
package web

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"

	"github.com/cocaresync/cocaresync/internal/config"
	"github.com/cocaresync/cocaresync/internal/core"
	"github.com/cocaresync/cocaresync/internal/web/middleware"
)

// Service is the part of *core.Service the handlers use.
type Service interface {
	Ping(ctx context.Context) error
	ImportLimiterStatus() core.ImportLimiterStatus
	CurrentUser(ctx context.Context, id string) (*core.User, error)

	ListPatients(ctx context.Context, filter core.PatientFilter, page int) (*core.PatientPage, error)
	GetPatientDetail(ctx context.Context, id uuid.UUID) (*core.PatientDetail, error)
	CreatePatient(ctx context.Context, in core.PatientInput, userID string) (*core.Patient, error)
	UpdatePatient(ctx context.Context, id uuid.UUID, upd core.PatientUpdate, userID string) (*core.Patient, error)
	DeletePatient(ctx context.Context, id uuid.UUID, userID string) error
	CreateTreatment(ctx context.Context, patientID uuid.UUID, in core.TreatmentInput, userID string) (*core.Treatment, error)
	CreateLabResult(ctx context.Context, patientID uuid.UUID, in core.LabResultInput, userID string) (*core.LabResult, error)

	ImportPatients(ctx context.Context, data []byte, fileName, userID string) (*core.ImportBatchResult, error)
	ExportPatients(ctx context.Context, w io.Writer, format core.ExportFormat, userID string) error

	ListIntegrations(ctx context.Context) ([]core.Integration, error)
	ListQualityIssues(ctx context.Context, filter core.QualityIssueFilter, page int) (*core.QualityIssuePage, error)
	ResolveQualityIssue(ctx context.Context, id uuid.UUID, userID string) (*core.QualityIssue, error)
	DashboardMetrics(ctx context.Context) (*core.DashboardMetrics, error)
	CoInfectionTrends(ctx context.Context) ([]core.TrendPoint, error)
	ProvincialDistribution(ctx context.Context) ([]core.ProvinceCount, error)

	ListAuditLogs(ctx context.Context, filter core.AuditFilter, page int) (*core.AuditPage, error)
	FHIRPatients(ctx context.Context) (*core.FHIRBundle, error)
}

var _ Service = (*core.Service)(nil)

// Server is the HTTP server.
type Server struct {
	service Service
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server
	now     func() time.Time
}

// NewServer creates a Server with middleware and routes installed.
func NewServer(service Service, cfg *config.Config) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		router:  chi.NewRouter(),
		now:     time.Now,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes. Timeouts are set
// per route group because the import route needs a longer one.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.Compress(5))
	s.router.Use(s.securityHeaders)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.Security.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if s.cfg.Rate.Enabled {
		s.router.Use(s.rateLimit(s.cfg.Rate.RequestsPerMinute))
	}
	s.router.Use(middleware.RequestMetadata)
}

func (s *Server) setupRoutes() {
	s.router.With(chimw.Timeout(s.cfg.Server.RequestTimeout)).Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(s.cfg.Auth))

		// Imports get their own timeout and a stricter per-IP limit.
		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(s.cfg.Import.Timeout))
			if s.cfg.Rate.Enabled {
				r.Use(s.rateLimit(s.cfg.Rate.ImportLimit))
			}
			r.Post("/import/patients", s.handleImportPatients)
		})

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))

			r.Get("/auth/user", s.handleCurrentUser)

			r.Get("/patients", s.handleListPatients)
			r.Post("/patients", s.handleCreatePatient)
			r.Get("/patients/{id}", s.handleGetPatient)
			r.Put("/patients/{id}", s.handleUpdatePatient)
			r.Delete("/patients/{id}", s.handleDeletePatient)
			r.Post("/patients/{id}/treatments", s.handleCreateTreatment)
			r.Post("/patients/{id}/lab-results", s.handleCreateLabResult)

			r.Get("/import/template", s.handleImportTemplate)
			r.Get("/export/patients", s.handleExportPatients)

			r.Get("/integrations", s.handleListIntegrations)
			r.Get("/data-quality/issues", s.handleListQualityIssues)
			r.Put("/data-quality/issues/{id}/resolve", s.handleResolveQualityIssue)

			r.Get("/dashboard/metrics", s.handleDashboardMetrics)
			r.Get("/dashboard/co-infection-trends", s.handleCoInfectionTrends)
			r.Get("/dashboard/provincial-distribution", s.handleProvincialDistribution)

			r.Get("/audit-logs", s.handleListAuditLogs)
		})
	})

	s.router.With(
		middleware.Auth(s.cfg.Auth),
		chimw.Timeout(s.cfg.Server.RequestTimeout),
	).Get("/fhir/Patient", s.handleFHIRPatients)
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	writeTimeout := s.cfg.Server.WriteTimeout
	if s.cfg.Import.Timeout > writeTimeout {
		writeTimeout = s.cfg.Import.Timeout
	}
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// rateLimit limits requests per client IP per minute. TrustedRealIP has
// already resolved RemoteAddr.
func (s *Server) rateLimit(perMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(perMinute, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "60")
			s.respondError(w, r, errRateLimited, http.StatusTooManyRequests)
		}),
	)
}

// securityHeaders adds security headers to all responses.
func (s *Server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if s.cfg.Security.EnableCSP {
			// JSON only; nothing here should ever render as a page.
			w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		}
		next.ServeHTTP(w, r)
	})
}
