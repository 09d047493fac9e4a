// Package api provides the admin HTTP API for the tigertag server.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/tigertag/tigertag-server/internal/domain"
	"github.com/tigertag/tigertag-server/internal/metrics"
	"github.com/tigertag/tigertag-server/internal/scanner"
)

// Version is reported in the OpenAPI document.
const Version = "1.0.0"

// Catalog is the read/rescan surface of the store the API needs.
type Catalog interface {
	Ping(ctx context.Context) error
	GetResource(ctx context.Context, idOrLocation string) (*domain.Resource, error)
	GetTagsForResource(ctx context.Context, resourceID string) ([]domain.AssignedTag, error)
	ForceRescan(ctx context.Context, location string) error
	ListResources(ctx context.Context, limit, offset int) ([]*domain.Resource, error)
	ListTagsByEngine(ctx context.Context, engine string) ([]*domain.Tag, error)
	GetTag(ctx context.Context, name, engine string) (*domain.Tag, error)
}

// Runner starts pipeline runs.
type Runner interface {
	Running() bool
	Run(ctx context.Context, sources ...scanner.Source) (*domain.RunSummary, error)
}

// Deps holds the collaborators of the API server.
type Deps struct {
	Catalog     Catalog
	Runner      Runner
	Sources     []scanner.Source
	CORSOrigins []string
	Logger      *slog.Logger
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	catalog Catalog
	runner  Runner
	sources []scanner.Source
	router  *chi.Mux
	api     huma.API
	logger  *slog.Logger

	// Background runs outlive the request that started them.
	runCtx    context.Context
	cancelRun context.CancelFunc
	runs      sync.WaitGroup

	mu      sync.RWMutex
	lastRun *domain.RunSummary
	lastErr error
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger(logger))
	router.Use(middleware.Recoverer)
	if len(deps.CORSOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins: deps.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	humaConfig := huma.DefaultConfig("TigerTag API", Version)
	api := humachi.New(router, humaConfig)
	RegisterErrorHandler()

	runCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		catalog:   deps.Catalog,
		runner:    deps.Runner,
		sources:   deps.Sources,
		router:    router,
		api:       api,
		logger:    logger.With("component", "api"),
		runCtx:    runCtx,
		cancelRun: cancel,
	}

	s.registerHealthRoutes()
	s.registerResourceRoutes()
	s.registerTagRoutes()
	s.registerRunRoutes()
	router.Handle("/metrics", metrics.Handler())

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API returns the underlying huma API.
func (s *Server) API() huma.API {
	return s.api
}

// Close cancels runs started through the API and waits for them to return.
func (s *Server) Close() error {
	s.cancelRun()
	s.runs.Wait()
	return nil
}
