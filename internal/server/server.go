// Package server is the HTTP surface: index, TileJSON and tile routes for
// table and function sources.
//
// Requests are spread round-robin over a fixed set of lanes. Each lane reads
// only its own registry, so handlers never lock: they load the lane's current
// catalog snapshot and work from it for the rest of the request.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/klauspost/compress/gzhttp"

	"github.com/hlop3z/tilehouse/internal/alerr"
	"github.com/hlop3z/tilehouse/internal/auth"
	"github.com/hlop3z/tilehouse/internal/registry"
	"github.com/hlop3z/tilehouse/internal/source"
	"github.com/hlop3z/tilehouse/internal/tile"
)

// Executor runs database work for handlers. *executor.Executor implements it.
type Executor interface {
	ScanTableSources(ctx context.Context) (*source.Catalog, error)
	ScanFunctionSources(ctx context.Context) (*source.Catalog, error)
	FetchTile(ctx context.Context, src source.Source, xyz tile.XYZ, params source.Params) ([]byte, error)
}

// Publisher broadcasts replacement catalogs to every lane.
// *coordinator.Coordinator implements it.
type Publisher interface {
	PublishTables(cat *source.Catalog) (uint64, error)
	PublishFunctions(cat *source.Catalog) (uint64, error)
}

// Config wires a Server.
type Config struct {
	Executor Executor
	Lanes    []*registry.Registry

	// Watch rescans the database on every index request and publishes the
	// result through Publisher.
	Watch     bool
	Publisher Publisher

	// Auth guards every route except /healthz. Nil disables authentication.
	Auth   auth.Authenticator
	Logger *slog.Logger
}

// Server handles tile requests.
type Server struct {
	exec      Executor
	lanes     []*registry.Registry
	watch     bool
	publisher Publisher
	auth      auth.Authenticator
	logger    *slog.Logger

	next    atomic.Uint64
	handler http.Handler
}

// New validates cfg and builds the router.
func New(cfg Config) (*Server, error) {
	if cfg.Executor == nil {
		return nil, alerr.New(alerr.ErrConfig, "server needs an executor")
	}
	if len(cfg.Lanes) == 0 {
		return nil, alerr.New(alerr.ErrConfig, "server needs at least one lane")
	}
	if cfg.Watch && cfg.Publisher == nil {
		return nil, alerr.New(alerr.ErrConfig, "watch mode needs a publisher")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		exec:      cfg.Executor,
		lanes:     cfg.Lanes,
		watch:     cfg.Watch,
		publisher: cfg.Publisher,
		auth:      cfg.Auth,
		logger:    cfg.Logger,
	}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.handler }

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// lane picks the registry for the next request.
func (s *Server) lane() *registry.Registry {
	n := s.next.Add(1) - 1
	return s.lanes[n%uint64(len(s.lanes))]
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.CleanPath)
	r.Use(accessLog(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "If-None-Match"},
		ExposedHeaders: []string{"ETag"},
		MaxAge:         300,
	}))
	r.Use(func(next http.Handler) http.Handler { return gzhttp.GzipHandler(next) })

	r.Get("/healthz", s.handleHealth)

	r.Group(func(r chi.Router) {
		if s.auth != nil {
			r.Use(auth.Middleware(s.auth, s.logger))
		}

		r.Get("/index.json", s.handleTableIndex)
		r.Get("/{source_id}", s.handleTableTileJSON)
		r.Get("/{source_id}/{z}/{x}/{y}", s.handleTableTile)

		r.Route("/rpc", func(r chi.Router) {
			r.Get("/index.json", s.handleFunctionIndex)
			r.Get("/{source_id}", s.handleFunctionTileJSON)
			r.Get("/{source_id}/{z}/{x}/{y}", s.handleFunctionTile)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})

	return r
}

// ListenAndServe serves s on addr until ctx ends, then shuts down
// gracefully. keepAlive bounds idle keep-alive connections.
func (s *Server) ListenAndServe(ctx context.Context, addr string, keepAlive time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		IdleTimeout:       keepAlive,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelError),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr, "lanes", len(s.lanes), "watch", s.watch)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return alerr.Wrap(alerr.ErrConfig, err, "failed to listen").With("addr", addr)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return alerr.Wrap(alerr.EInternalError, err, "graceful shutdown failed")
	}
	return nil
}
