// Package server exposes the toolkit over HTTP: the catalog, the process
// endpoint and downloads of single files and packaged folders.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	gocache "github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/wudi/pdftools/dispatch"
	"github.com/wudi/pdftools/intake"
	"github.com/wudi/pdftools/registry"
	"github.com/wudi/pdftools/store"
)

const (
	DefaultAddr         = ":8000"
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 120 * time.Second
	DefaultRateLimit    = 20
	DefaultRateBurst    = 40
)

type Server struct {
	registry   *registry.Registry
	intake     *intake.Intake
	dispatcher *dispatch.Dispatcher
	store      *store.Store
	logger     *zap.Logger

	// archives remembers folder id -> archive path for as long as the
	// archive lives, so a repeated download is served without repacking.
	archives   *gocache.Cache
	archiveTTL time.Duration
	packing    *folderLocks

	limiter  *rate.Limiter
	metrics  *metrics
	gatherer prometheus.Gatherer

	router     chi.Router
	httpServer *http.Server
}

type Option func(*Server)

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

func WithAddr(addr string) Option {
	return func(s *Server) {
		if addr != "" {
			s.httpServer.Addr = addr
		}
	}
}

func WithTimeouts(read, write time.Duration) Option {
	return func(s *Server) {
		if read > 0 {
			s.httpServer.ReadTimeout = read
		}
		if write > 0 {
			s.httpServer.WriteTimeout = write
		}
	}
}

// WithRateLimit bounds requests per second across all clients. A
// non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

// WithArchiveTTL sets how long a packaged folder archive lives.
func WithArchiveTTL(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.archiveTTL = d
		}
	}
}

// WithMetrics registers the request metrics with reg and serves reg on
// /metrics.
func WithMetrics(reg *prometheus.Registry) Option {
	return func(s *Server) {
		if reg != nil {
			s.metrics.register(reg)
			s.gatherer = reg
		}
	}
}

func New(reg *registry.Registry, in *intake.Intake, d *dispatch.Dispatcher, st *store.Store, opts ...Option) *Server {
	s := &Server{
		registry:   reg,
		intake:     in,
		dispatcher: d,
		store:      st,
		logger:     zap.NewNop(),
		archiveTTL: dispatch.DefaultDeleteAfter,
		packing:    newFolderLocks(),
		limiter:    rate.NewLimiter(DefaultRateLimit, DefaultRateBurst),
		metrics:    newMetrics(),
		gatherer:   prometheus.DefaultGatherer,
		httpServer: &http.Server{
			Addr:         DefaultAddr,
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: DefaultWriteTimeout,
			IdleTimeout:  120 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.archives = gocache.New(s.archiveTTL, s.archiveTTL)
	s.setupRoutes()
	s.httpServer.Handler = s.router
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(s.rateLimitMiddleware)
		r.Get("/", s.handleIndex)
		r.Get("/tool/{id}", s.handleTool)
		r.Post("/process/{id}", s.handleProcess)
		r.Get("/download/{filename}", s.handleDownload)
		r.Get("/download-folder/{id}", s.handleDownloadFolder)
	})
	s.router = r
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
