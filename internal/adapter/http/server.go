package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/couchcryptid/temperature-anomaly-service/internal/anomaly"
	"github.com/couchcryptid/temperature-anomaly-service/internal/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Analyzer is the analysis session the API serves from.
type Analyzer interface {
	sharedobs.ReadinessChecker
	Baselines() (*anomaly.Baselines, error)
	ClassifySeason(temperature float64, city string, season domain.Season) (bool, error)
	ClassifyReading(reading domain.LiveReading) (domain.Verdict, error)
	Scan(ctx context.Context, workers int) (anomaly.ScanResult, domain.Dataset, error)
	Rolling(city string, window int) ([]anomaly.RollingPoint, error)
	CheckLive(ctx context.Context, city string) (domain.Verdict, error)
}

// Options tunes API defaults.
type Options struct {
	ScanWorkers   int
	RollingWindow int
	// WriteTimeout must cover the longest scan.
	WriteTimeout time.Duration
}

// Server exposes the analysis API alongside health, readiness, and metrics
// endpoints.
type Server struct {
	httpServer *http.Server
	analyzer   Analyzer
	opts       Options
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and the
// /api/v1 routes.
func NewServer(addr string, analyzer Analyzer, opts Options, logger *slog.Logger) *Server {
	if opts.ScanWorkers < 1 {
		opts.ScanWorkers = 4
	}
	if opts.RollingWindow < 1 {
		opts.RollingWindow = anomaly.DefaultRollingWindow
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}

	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: opts.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		},
		analyzer: analyzer,
		opts:     opts,
		logger:   logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(analyzer))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/v1/cities", s.handleCities)
	mux.HandleFunc("GET /api/v1/baselines", s.handleBaselines)
	mux.HandleFunc("GET /api/v1/classify", s.handleClassify)
	mux.HandleFunc("POST /api/v1/scan", s.handleScan)
	mux.HandleFunc("GET /api/v1/rolling", s.handleRolling)
	mux.HandleFunc("GET /api/v1/live", s.handleLive)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
