// Package server wires the portal's HTTP surface: the chi router and its
// middleware, the Huma API with hypermedia links, the Datastar portal
// endpoints and the Prometheus metrics endpoint.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-hazard/internal/api"
	"github.com/joeblew999/plat-hazard/internal/api/portal"
	"github.com/joeblew999/plat-hazard/internal/auth"
	"github.com/joeblew999/plat-hazard/internal/cache"
	"github.com/joeblew999/plat-hazard/internal/config"
	"github.com/joeblew999/plat-hazard/internal/humastar"
	"github.com/joeblew999/plat-hazard/internal/metrics"
	"github.com/joeblew999/plat-hazard/internal/populate"
	"github.com/joeblew999/plat-hazard/internal/query"
	"github.com/joeblew999/plat-hazard/internal/service"
	"github.com/joeblew999/plat-hazard/internal/state"
	"github.com/joeblew999/plat-hazard/internal/store"
	"github.com/joeblew999/plat-hazard/internal/templates"
)

// Config holds the server configuration.
type Config struct {
	Host string
	Port string
	// WebDir is an optional directory with static/ assets, an index.html
	// page and templates/fragments overriding the embedded fragments.
	WebDir string
	// SecureCookies marks the session cookie Secure.
	SecureCookies bool
	Portal        *config.Config
}

// Server is the hazard portal HTTP server.
type Server struct {
	config   Config
	router   chi.Router
	humaAPI  huma.API
	links    *humastar.Links
	services *api.Services
	sessions *state.Registry
	store    store.Store
	cache    cache.Cache
	renderer *templates.Renderer
	logger   *zap.Logger
}

// New creates the portal server. st and c may be nil: without a store every
// load reports the store as unavailable, without a cache snapshots are
// rebuilt on every request.
func New(cfg Config, st store.Store, c cache.Cache, logger *zap.Logger) (*Server, error) {
	if cfg.Portal == nil {
		return nil, fmt.Errorf("server: portal configuration is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	pc := cfg.Portal

	renderer, err := newRenderer(cfg.WebDir, logger)
	if err != nil {
		return nil, err
	}

	bus := state.NewBus()
	s := &Server{
		config:   cfg,
		router:   chi.NewRouter(),
		links:    humastar.NewLinks(portal.Tag),
		sessions: state.NewRegistry(bus, pc.Session.TTL),
		store:    st,
		cache:    c,
		renderer: renderer,
		logger:   logger,
	}
	s.services = &api.Services{
		Executor: query.NewExecutor(st, pc.Query.Timeout, logger),
		Populate: populate.NewBuilder(st, c, pc.Cache.TTL, logger),
		Palettes: service.NewPaletteService(pc.DataDir, bus),
		Bus:      bus,
		Export:   pc.Export,
		Logger:   logger,
	}

	s.router.Use(recoverer(logger))
	s.router.Use(chiMiddleware.RequestID)
	s.router.Use(requestLogger(logger))
	s.router.Use(metrics.Middleware())
	s.router.Use(auth.Middleware(pc.Auth.APIKeys))
	s.router.Use(s.sessions.Middleware(cfg.SecureCookies))

	humaConfig := huma.DefaultConfig("plat-hazard API", api.Version)
	humaConfig.Info.Description = "Geohazard data portal: filter, load, style and download geohazard datasets."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, s.links.Transformer())
	s.humaAPI = humachi.New(s.router, humaConfig)

	s.routes()
	return s, nil
}

func newRenderer(webDir string, logger *zap.Logger) (*templates.Renderer, error) {
	if webDir != "" {
		dir := filepath.Join(webDir, "templates", "fragments")
		if _, err := os.Stat(dir); err == nil {
			logger.Info("loading fragment templates", zap.String("dir", dir))
			return templates.NewFromDir(dir)
		}
	}
	return templates.New()
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Services exposes the handler dependencies, e.g. for warming the populate
// cache at startup.
func (s *Server) Services() *api.Services {
	return s.services
}

// Run evicts idle sessions until ctx is done.
func (s *Server) Run(ctx context.Context) {
	s.sessions.Run(ctx, s.config.Portal.Session.SweepInterval)
}

// Close closes the store and the cache.
func (s *Server) Close() error {
	if s.cache != nil {
		s.cache.Close()
	}
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

func (s *Server) routes() {
	// Register Huma REST API routes (OpenAPI-documented JSON endpoints)
	huma.AutoRegister(s.humaAPI, api.NewAPIHandler(s.services))
	api.NewInfoHandler(s.config.Portal.DataDir, s.store).RegisterRoutes(s.humaAPI)

	// Portal SSE routes using Huma + Datastar SDK
	portal.NewHandler(s.services, s.renderer).RegisterRoutes(s.humaAPI)

	// Links are derived from the finished OpenAPI document.
	s.links.Build(s.humaAPI)

	s.router.Handle("/metrics", promhttp.Handler())

	if s.config.WebDir != "" {
		staticDir := filepath.Join(s.config.WebDir, "static")
		s.router.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
	}
	s.router.Get("/", s.handleRoot)
}

// handleRoot serves the portal page when a web directory provides one and
// points at the API docs otherwise.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if s.config.WebDir != "" {
		index := filepath.Join(s.config.WebDir, "index.html")
		if _, err := os.Stat(index); err == nil {
			http.ServeFile(w, r, index)
			return
		}
	}
	http.Redirect(w, r, "/docs", http.StatusFound)
}
