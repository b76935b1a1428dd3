package api

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/walletreel/walletreel/config"
	"github.com/walletreel/walletreel/metrics"
	"github.com/walletreel/walletreel/middleware"
	"github.com/walletreel/walletreel/models"
	"github.com/walletreel/walletreel/repository"
	"github.com/walletreel/walletreel/validation"
)

// VideoService is the request pipeline as seen by the HTTP layer.
type VideoService interface {
	Create(ctx context.Context, req models.CreateVideoRequest) (*models.VideoRequest, error)
	Get(ctx context.Context, id string) (*models.VideoRequest, error)
	List(ctx context.Context, params repository.ListParams) ([]*models.VideoRequest, error)
	ListByOwner(ctx context.Context, owner string, params repository.ListParams) ([]*models.VideoRequest, error)
	Acknowledge(ctx context.Context, id string) (*models.VideoRequest, error)
	Refund(ctx context.Context, id string) (*models.VideoRequest, error)
	GenerateReport(ctx context.Context, req models.GenerateReportRequest) (*models.Report, error)
}

type RenderService interface {
	Render(ctx context.Context, id string) (*models.RenderResult, error)
}

// JobCounter reports queued or running generation jobs.
type JobCounter interface {
	Active() int
}

type Server struct {
	videos    *VideoHandler
	reports   *ReportHandler
	jobs      JobCounter
	config    *config.Config
	logger    *logrus.Logger
	server    *http.Server
	startTime time.Time
}

type ServerOption func(*Server)

// NewServer creates a new API server with the provided services and options
func NewServer(cfg *config.Config, opts ...ServerOption) *Server {
	s := &Server{
		config:    cfg,
		logger:    logrus.StandardLogger(),
		startTime: time.Now(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.server = &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// WithServices wires the handlers. renderSvc may be nil when no rendering
// backend is configured; the render endpoint then answers 503.
func WithServices(videoSvc VideoService, renderSvc RenderService, validator *validation.Validator) ServerOption {
	return func(s *Server) {
		s.videos = NewVideoHandler(videoSvc, renderSvc, validator, s.logger)
		s.reports = NewReportHandler(videoSvc, validator, s.logger)
	}
}

// WithJobs adds the generation backlog to /health.
func WithJobs(jobs JobCounter) ServerOption {
	return func(s *Server) {
		s.jobs = jobs
	}
}

// WithLogger must come before WithServices for the handlers to pick it up.
func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// Handler exposes the routed middleware stack, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Start() error {
	s.logger.WithField("port", s.config.ServerPort).Info("Starting server")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	if s.videos != nil {
		s.addV1Routes(mux)
	}

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())

	return s.middleware(mux)
}

func (s *Server) addV1Routes(mux *http.ServeMux) {
	const v1Prefix = "/api/v1"

	mux.HandleFunc("POST "+v1Prefix+"/videos", s.videos.HandleCreate)
	mux.HandleFunc("GET "+v1Prefix+"/videos", s.videos.HandleList)
	mux.HandleFunc("GET "+v1Prefix+"/videos/{id}", s.videos.HandleGet)
	mux.HandleFunc("POST "+v1Prefix+"/videos/{id}/acknowledge", s.videos.HandleAcknowledge)
	mux.HandleFunc("POST "+v1Prefix+"/videos/{id}/refund", s.videos.HandleRefund)
	mux.HandleFunc("POST "+v1Prefix+"/videos/{id}/render", s.videos.HandleRender)
	mux.HandleFunc("GET "+v1Prefix+"/owners/{owner}/videos", s.videos.HandleListByOwner)

	mux.HandleFunc("POST "+v1Prefix+"/reports", s.reports.HandleGenerate)
}

func (s *Server) middleware(handler http.Handler) http.Handler {
	mw := s.config.Middleware

	var middlewares []func(http.Handler) http.Handler
	if mw.EnableRequestID {
		middlewares = append(middlewares, middleware.RequestID())
	}
	if mw.EnableRecover {
		middlewares = append(middlewares, middleware.Recovery(s.logger))
	}
	if mw.EnableLogger {
		middlewares = append(middlewares, middleware.Logging(s.logger))
	}
	if mw.EnableCORS {
		middlewares = append(middlewares, middleware.CORS(s.config.CORS))
	}
	if mw.EnableRateLimit && s.config.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(
			s.config.RateLimit.RequestsPerMinute,
			s.config.RateLimit.BurstSize,
		)
		middlewares = append(middlewares, limiter.Middleware)
	}
	if mw.EnableTimeout {
		middlewares = append(middlewares, middleware.Timeout(s.config.RequestTimeout))
	}
	// Metrics reads the pattern the mux stores on the request, so it goes last.
	if mw.EnableMetrics {
		middlewares = append(middlewares, middleware.Metrics())
	}

	return middleware.Chain(handler, middlewares...)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"version":   s.config.Version,
		"uptime":    time.Since(s.startTime).String(),
	}
	if s.jobs != nil {
		status["active_jobs"] = s.jobs.Active()
	}

	if s.config.Debug {
		status["debug"] = true
		status["goroutines"] = runtime.NumGoroutine()
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		status["memory"] = map[string]interface{}{
			"allocated": m.Alloc,
			"total":     m.TotalAlloc,
			"system":    m.Sys,
			"gc_cycles": m.NumGC,
		}
	}

	respondJSON(w, r, http.StatusOK, status)
}
