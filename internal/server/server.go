// Package server exposes drive connectors over HTTP. The service is
// stateless: every request carries the credentials it should run with,
// and the server only resolves connector names through the registry.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/cirrushq/cirrus/internal/config"
	"github.com/cirrushq/cirrus/internal/connector"
	"github.com/cirrushq/cirrus/internal/server/handlers"
	"github.com/cirrushq/cirrus/internal/server/middleware"
)

// Server is the HTTP connector service.
type Server struct {
	cfg      config.ServerConfig
	version  string
	registry *connector.Registry
	logger   *zap.Logger
	router   chi.Router
}

// New builds the server and its routes.
func New(cfg config.ServerConfig, registry *connector.Registry, logger *zap.Logger, version string) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:      cfg,
		version:  version,
		registry: registry,
		logger:   logger,
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.cfg.Addr()
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(middleware.Recoverer(s.logger))

	r.NotFound(handlers.NotFound)
	r.MethodNotAllowed(handlers.MethodNotAllowed)

	r.Get("/healthz", handlers.Health(s.version))

	ds := handlers.NewDatasources(s.registry, s.logger)
	r.Route("/v1/datasources/{name}", func(r chi.Router) {
		r.Method(http.MethodPost, "/browse", handlers.Adapt(s.logger, ds.Browse))
		r.Method(http.MethodPost, "/download", handlers.Adapt(s.logger, ds.Download))
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully within
// the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("Server listening", zap.String("addr", httpSrv.Addr))
		errc <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Server shutting down")
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
