// Package web provides the HTTP server and JSON handlers for material search.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/JonMunkholm/material-finder/internal/config"
	"github.com/JonMunkholm/material-finder/internal/core"
	mw "github.com/JonMunkholm/material-finder/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Cache is the record store as seen by the admin endpoints.
type Cache interface {
	Info() core.CacheInfo
	Clear()
	Refresh(ctx context.Context) (core.Result, error)
}

// CSVProxy fetches the raw spreadsheet CSV for forwarding.
type CSVProxy interface {
	FetchForProxy(ctx context.Context) (string, error)
}

// Server is the HTTP server for the material search API.
type Server struct {
	engine *core.Engine
	cache  Cache
	proxy  CSVProxy
	slots  *ProxyLimiter
	cfg    *config.Config
	router *chi.Mux
	server *http.Server
}

// NewServer creates a new Server instance.
func NewServer(engine *core.Engine, cache Cache, proxy CSVProxy, cfg *config.Config) *Server {
	s := &Server{
		engine: engine,
		cache:  cache,
		proxy:  proxy,
		slots:  NewProxyLimiter(cfg.Source.ProxyConcurrency, cfg.Source.ProxyMaxWait),
		cfg:    cfg,
		router: chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))

	if s.cfg.Rate.Enabled {
		limiter := newRateLimiter(s.cfg.Rate.RequestsPerMinute, s.cfg.Rate.Burst)
		s.router.Use(limiter.middleware(s))
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/materials", s.handleMaterials)
		r.Get("/filters", s.handleFilters)
		r.Get("/options", s.handleOptions)
		r.Get("/cache", s.handleCacheInfo)

		// Raw CSV for clients that filter on their own
		r.With(s.cors).HandleFunc("/sheet.csv", s.handleSheetCSV)

		r.Group(func(r chi.Router) {
			r.Use(mw.APIKeyAuth(&s.cfg.Security))
			r.Post("/cache/clear", s.handleCacheClear)
			r.Post("/cache/refresh", s.handleCacheRefresh)
		})
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("server listening", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// ProxyStatus reports CSV download slot usage.
func (s *Server) ProxyStatus() ProxyLimiterStatus {
	return s.slots.Status()
}

// WaitForProxies blocks until running CSV downloads finish or ctx is done.
func (s *Server) WaitForProxies(ctx context.Context) error {
	return s.slots.WaitForDrain(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(enableCSP bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if enableCSP {
				// JSON and small HTML fragments only; nothing to load.
				h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			}
			if strings.HasPrefix(r.URL.Path, "/api/") {
				h.Set("X-Robots-Tag", "noindex, nofollow")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// cors allows cross-origin GETs of the raw CSV.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", s.cfg.Security.AllowedOrigin)
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		h.Set("Access-Control-Allow-Methods", "GET")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON and writes it to w.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error",
			"error", err,
			"request_id", middleware.GetReqID(r.Context()),
		)
	}
}
