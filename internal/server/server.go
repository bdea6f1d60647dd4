package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/KaramelBytes/datalens/internal/config"
	"github.com/KaramelBytes/datalens/internal/logging"
	"github.com/KaramelBytes/datalens/internal/pipeline"
)

// shutdownTimeout bounds how long Run waits for pending requests.
const shutdownTimeout = 15 * time.Second

// Server exposes the pipeline over HTTP.
type Server struct {
	cfg    *config.Global
	logger *zap.Logger
	opts   pipeline.Options

	// mu serializes access to the default processor.
	mu        sync.Mutex
	processor *pipeline.Processor

	router chi.Router
}

// New builds a server with one default processor bound to cfg.SourceURL.
func New(cfg *config.Global, logger *zap.Logger) *Server {
	logger = logging.OrNop(logger)
	opts := pipeline.OptionsFromConfig(cfg, logger)
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		opts:      opts,
		processor: pipeline.New(cfg.SourceURL, opts),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.instrument)
	r.Use(cors(s.cfg.CORSOrigins))

	r.Get("/api/data", s.handleData)
	r.Get("/api/process", s.handleProcess)
	r.Get("/api/summary", s.handleSummary)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/*", s.handleStatic)
	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	s.logger.Info("serving API", zap.String("addr", "http://"+ln.Addr().String()))

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("waiting for pending requests to complete")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// withProcessor runs fn against the processor for locator. An empty locator or
// the configured source uses the shared default under the lock; any other
// locator gets a fresh processor for this request only.
func (s *Server) withProcessor(ctx context.Context, locator string, fn func(context.Context, *pipeline.Processor) error) error {
	if locator != "" && locator != s.processor.Source() {
		return fn(ctx, pipeline.New(locator, s.opts))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// A client disconnect must not leave the shared cache holding demo data.
	return fn(context.WithoutCancel(ctx), s.processor)
}
