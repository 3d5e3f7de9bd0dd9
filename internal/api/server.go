package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/better-wallet/signing-gateway/internal/config"
	"github.com/better-wallet/signing-gateway/internal/logger"
	"github.com/better-wallet/signing-gateway/internal/metrics"
	"github.com/better-wallet/signing-gateway/internal/middleware"
	apperrors "github.com/better-wallet/signing-gateway/pkg/errors"
)

// HealthChecker reports whether a backing dependency is reachable.
// *storage.Store satisfies it.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	config     *config.Config
	signing    SigningService
	auth       *middleware.AuthMiddleware
	limiter    *middleware.RateLimiter
	health     HealthChecker
	httpServer *http.Server
}

// NewServer creates a new API server
func NewServer(
	cfg *config.Config,
	signing SigningService,
	auth *middleware.AuthMiddleware,
	limiter *middleware.RateLimiter,
	health HealthChecker,
) *Server {
	return &Server{
		config:  cfg,
		signing: signing,
		auth:    auth,
		limiter: limiter,
		health:  health,
	}
}

// Handler returns the routed handler wrapped in the middleware chain
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health and metrics (no auth required)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())

	// Signing routes; bearer auth is applied per variant after the config check
	mux.HandleFunc("/wallets/sign/", s.handleSign)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, apperrors.ErrNotFound)
	})

	// Chain: RequestID -> Instrument -> RateLimit -> LimitBody -> Routes
	return middleware.RequestID(
		middleware.Instrument(
			s.limiter.Limit(
				middleware.LimitBody(mux))))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.config.ExternalCallTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info(context.Background(), "starting server", "port", s.config.Port)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// handleHealth handles health check requests. A nil health checker means
// the process has no backing store to probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, apperrors.ErrMethodNotAllowed)
		return
	}

	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			logger.Warn(r.Context(), "health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
