// Package server exposes the workspace and analyses over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/abramin/callrisk/internal/analysis"
	"github.com/abramin/callrisk/internal/config"
	"github.com/abramin/callrisk/internal/ingest"
	"github.com/abramin/callrisk/internal/metrics"
)

// maxBodyBytes bounds upload bodies.
const maxBodyBytes = 8 << 20

// Server is the callrisk HTTP server.
type Server struct {
	cfg       *config.Config
	workspace *ingest.Workspace
	analyzer  *analysis.Analyzer
	logger    *zap.Logger
	metrics   *metrics.Collector
	limiter   *rate.Limiter
	router    chi.Router
	started   time.Time
}

// Deps are the collaborators of a Server. Config and Workspace are required.
type Deps struct {
	Config    *config.Config
	Workspace *ingest.Workspace
	Analyzer  *analysis.Analyzer
	Logger    *zap.Logger
	Metrics   *metrics.Collector
}

// New creates a new server instance.
func New(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	if d.Analyzer == nil {
		d.Analyzer = analysis.New(
			analysis.WithMaxStates(d.Config.Analysis.MaxStates),
			analysis.WithScoringFactors(d.Config.ScoringFactors()),
			analysis.WithLogger(d.Logger),
			analysis.WithObserver(d.Metrics),
		)
	}

	s := &Server{
		cfg:       d.Config,
		workspace: d.Workspace,
		analyzer:  d.Analyzer,
		logger:    d.Logger,
		metrics:   d.Metrics,
		started:   time.Now(),
	}
	if rl := d.Config.Server.RateLimit; rl.RPS > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(rl.RPS), rl.Burst)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(s.instrument)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Post("/graph", s.handleLoadGraph)
	r.Get("/graph", s.handleGetGraph)
	r.Post("/vulns", s.handleLoadVulns)
	r.Get("/vulns", s.handleGetVulns)

	r.Group(func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Get("/risks", s.handleRisks)
		r.Get("/functions/{id}/trace", s.handleFunctionTrace)
		r.Get("/functions/{id}/graph", s.handleFunctionGraph)
		r.Get("/vulns/{id}/trace", s.handleVulnTrace)
		r.Get("/analytics/components", s.handleComponents)
		r.Get("/analytics/attack-paths", s.handleAttackPaths)
	})

	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on the configured port and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Server.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("server starting", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		s.logger.Info("server stopped")
		return nil
	})
	return g.Wait()
}
