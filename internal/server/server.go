package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/prismkeys/prism/internal/config"
	"github.com/prismkeys/prism/internal/handler"
	"github.com/prismkeys/prism/internal/metrics"
	"github.com/prismkeys/prism/internal/server/middleware"
	"github.com/prismkeys/prism/internal/service"
	"github.com/prismkeys/prism/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	PublicURL       string
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	// RateLimit is requests per minute per IP on the validation routes.
	RateLimit     int
	SecureCookies bool
	Version       string
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return ConfigFrom(config.Default(), "dev")
}

// ConfigFrom derives the server configuration from the application config.
func ConfigFrom(cfg *config.Config, version string) Config {
	return Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		PublicURL:       cfg.Server.PublicURL,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		CORSOrigins:     cfg.Server.CORSOrigins,
		RateLimit:       cfg.Server.RateLimit,
		SecureCookies:   cfg.Session.Secure,
		Version:         version,
	}
}

// Deps are the services the HTTP surface is built on.
type Deps struct {
	Store     *store.Store
	Auth      *service.AuthService
	Validator *service.Validator
	Stats     *service.StatsService
	// Status reports the command front-end; nil reports offline.
	Status handler.StatusReporter
}

// Server is the top-level HTTP server. It owns the Chi router and serves the
// dashboard API, the public validation routes and the operational endpoints.
type Server struct {
	cfg        Config
	deps       Deps
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimw.Compress(5))

	// --- Operational endpoints (no auth required) ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/openapi.json", handler.NewOpenAPIHandler(s.cfg.PublicURL, s.cfg.Version).ServeSpec)

	authHandler := handler.NewAuthHandler(s.deps.Auth, s.cfg.SecureCookies, s.logger)
	dashHandler := handler.NewDashboardHandler(s.deps.Store, s.deps.Stats, s.logger)
	keyHandler := handler.NewKeyHandler(s.deps.Validator)
	statusHandler := handler.NewStatusHandler(s.deps.Status)

	r.Route("/api", func(r chi.Router) {
		// Sign-in flow
		r.Get("/login", authHandler.Login)
		r.Get("/callback", authHandler.Callback)
		r.Get("/logout", authHandler.Logout)

		// Public
		r.Get("/bot/status", statusHandler.BotStatus)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(s.cfg.RateLimit))
			r.Get("/keys/validate/{keyCode}/{discordUserId}", keyHandler.Validate)
			r.Get("/keys/validate/{keyCode}", keyHandler.ValidateLegacy)
		})

		// Dashboard (VIP only)
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(s.deps.Auth))
			r.Use(middleware.RequireVIP(s.deps.Auth))

			r.Get("/auth/user", authHandler.CurrentUser)
			r.Get("/stats", dashHandler.Stats)
			r.Get("/keys/recent", dashHandler.RecentKeys)
			r.Get("/cooldowns", dashHandler.Cooldowns)
			r.Get("/logs", dashHandler.Logs)
		})
	})

	s.router = r
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 when the store answers a
// ping, or 503 otherwise.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK
	checks := map[string]string{"store": "ok"}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.deps.Store.Ping(ctx); err != nil {
		checks["store"] = "error: " + err.Error()
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// ListenAndServe starts the HTTP server and blocks until ctx is cancelled.
// It then performs a graceful shutdown, draining in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in background goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
