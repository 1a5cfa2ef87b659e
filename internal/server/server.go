// Package server assembles the HTTP surface of the gateway: route
// registration, the middleware chain, and graceful shutdown.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/opipolix/webgate/internal/server/handler"
	"github.com/opipolix/webgate/internal/server/middleware"
	"github.com/opipolix/webgate/internal/server/ws"
	"github.com/opipolix/webgate/internal/store/memory"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port          int
	CORSOrigins   []string
	UIDir         string // static UI mount; empty disables it
	CookieName    string
	AuthRateMax   int
	AuthRateWindw time.Duration
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health *handler.HealthHandler
	Auth   *handler.AuthHandler
	Market *handler.MarketHandler
	Order  *handler.OrderHandler
	Tp     *handler.TpHandler
}

// Server is the HTTP + WebSocket front of the gateway.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer registers all routes on a ServeMux and wires the middleware
// chain: CORS and request logging wrap everything, the auth rate limit
// wraps only the handshake endpoints, and the session middleware wraps
// every route that acts on behalf of a user.
func NewServer(cfg Config, store *memory.Store, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	session := middleware.Session(store, cfg.CookieName)
	nonceLimit := middleware.AuthRateLimit(store, "nonce", cfg.AuthRateMax, cfg.AuthRateWindw)
	verifyLimit := middleware.AuthRateLimit(store, "verify", cfg.AuthRateMax, cfg.AuthRateWindw)

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.Health)

	// Auth handshake. Rate limited per client IP; everything else on these
	// routes is stateless until the session cookie is minted.
	mux.Handle("POST /api/auth/nonce", nonceLimit(http.HandlerFunc(handlers.Auth.Nonce)))
	mux.Handle("POST /api/auth/verify", verifyLimit(http.HandlerFunc(handlers.Auth.Verify)))
	mux.HandleFunc("POST /api/auth/logout", handlers.Auth.Logout)
	mux.Handle("GET /api/me", session(http.HandlerFunc(handlers.Auth.Me)))

	// Market discovery and token metadata.
	mux.Handle("GET /api/search", session(http.HandlerFunc(handlers.Market.Search)))
	mux.Handle("GET /api/token/meta", session(http.HandlerFunc(handlers.Market.TokenMeta)))
	mux.Handle("GET /api/token/allowance", session(http.HandlerFunc(handlers.Market.TokenAllowance)))

	// Order endpoints.
	mux.Handle("POST /api/order/limit", session(http.HandlerFunc(handlers.Order.PlaceLimit)))
	mux.Handle("DELETE /api/order/{id}", session(http.HandlerFunc(handlers.Order.Cancel)))
	mux.Handle("GET /api/orders", session(http.HandlerFunc(handlers.Order.ListOpen)))

	// Take-profit endpoints.
	mux.Handle("POST /api/tp/arm", session(http.HandlerFunc(handlers.Tp.Arm)))
	mux.Handle("GET /api/tp/status", session(http.HandlerFunc(handlers.Tp.Status)))
	mux.Handle("POST /api/tp/cancel/{arm_id}", session(http.HandlerFunc(handlers.Tp.Cancel)))

	// WebSocket event stream. Session-gated like the REST routes.
	if wsHub != nil {
		mux.Handle("GET /ws", session(http.HandlerFunc(wsHub.HandleWS)))
	}

	// Static UI mount.
	if cfg.UIDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(cfg.UIDir)))
	}

	// Build the middleware chain.
	var h http.Handler = mux
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
