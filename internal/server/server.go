// Package server provides feedhue's web interface and JSON API.
package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-hclog"

	"github.com/jmylchreest/feedhue/internal/metrics"
	"github.com/jmylchreest/feedhue/internal/pipeline"
	"github.com/jmylchreest/feedhue/internal/session"
)

// Runner executes palette requests.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Config configures a Server.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration

	// DefaultRange is used when a request omits since.
	DefaultRange time.Duration

	SessionTTL    time.Duration
	SweepInterval time.Duration
}

// Server serves the web form, the JSON API and stored profile pictures.
type Server struct {
	cfg       Config
	runner    Runner
	sessions  *session.Manager
	metrics   *metrics.Metrics
	logger    hclog.Logger
	templates *template.Template
	now       func() time.Time

	httpServer *http.Server
	stopOnce   sync.Once
	stop       chan struct{}
	sweeperWG  sync.WaitGroup
}

// New creates a Server. m may be nil, in which case /metrics is not served.
func New(cfg Config, runner Runner, sessions *session.Manager, m *metrics.Metrics, logger hclog.Logger) (*Server, error) {
	if runner == nil || sessions == nil {
		return nil, errors.New("server requires a runner and a session manager")
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if cfg.DefaultRange <= 0 {
		cfg.DefaultRange = 30 * 24 * time.Hour
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}

	tmpl, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	return &Server{
		cfg:       cfg,
		runner:    runner,
		sessions:  sessions,
		metrics:   m,
		logger:    logger,
		templates: tmpl,
		now:       time.Now,
		stop:      make(chan struct{}),
	}, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Post("/palette", s.handlePaletteForm)
	r.Get("/sessions/{id}/avatar", s.handleAvatar)
	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/palette", s.handlePaletteAPI)
	})

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	return r
}

// ListenAndServe serves on cfg.Addr until ctx is cancelled, then shuts down
// gracefully and tears down scratch storage.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		if tdErr := s.sessions.Teardown(); tdErr != nil {
			s.logger.Error("failed to remove scratch storage", "error", tdErr)
		}
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.startSweeper()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(ln)
	}()
	s.logger.Info("listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		shutdownErr := s.Shutdown(context.Background())
		if errors.Is(err, http.ErrServerClosed) {
			return shutdownErr
		}
		return errors.Join(err, shutdownErr)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown stops the HTTP server and the sweeper, then removes all scratch
// storage. It is safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	s.stopOnce.Do(func() {
		close(s.stop)
		s.sweeperWG.Wait()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("http shutdown: %w", err))
			}
		}
		if err := s.sessions.Teardown(); err != nil {
			errs = append(errs, err)
		}
		s.logger.Info("server stopped")
	})
	return errors.Join(errs...)
}

func (s *Server) startSweeper() {
	if s.cfg.SweepInterval <= 0 || s.cfg.SessionTTL <= 0 {
		return
	}
	s.sweeperWG.Add(1)
	go func() {
		defer s.sweeperWG.Done()
		ticker := time.NewTicker(s.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

func (s *Server) sweep() {
	if n := s.sessions.Sweep(s.cfg.SessionTTL); n > 0 {
		s.logger.Debug("expired sessions removed", "count", n)
	}
	s.reportSessions()
}

func (s *Server) reportSessions() {
	if s.metrics != nil {
		s.metrics.SetActiveSessions(s.sessions.Len())
	}
}

// requestLogger logs each request through hclog.
func requestLogger(logger hclog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Debug("request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
					"request_id", middleware.GetReqID(r.Context()),
					"remote", r.RemoteAddr,
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
