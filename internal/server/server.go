package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zmartlabs/zmart-sync/internal/domain"
	"github.com/zmartlabs/zmart-sync/internal/server/handler"
	"github.com/zmartlabs/zmart-sync/internal/server/middleware"
)

// Config holds the HTTP listener and webhook gate settings.
type Config struct {
	Port          int
	WebhookSecret string
	RateLimit     int
	RateWindow    time.Duration
}

// Handlers aggregates the HTTP handlers the server registers. Webhook and
// Consensus are nil in the modes that do not run them, and their routes
// are then not registered.
type Handlers struct {
	Health    *handler.HealthHandler
	Webhook   *handler.WebhookHandler
	Markets   *handler.MarketHandler
	Consensus *handler.ConsensusHandler
}

// Server is the HTTP surface: the webhook ingestion endpoint, the ops API
// and the Prometheus metrics listener, all on one port.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New registers all routes and builds the middleware chains. The webhook
// route gets signature verification and rate limiting; the ops API is
// deliberately unauthenticated and expected to be reachable only inside
// the deployment perimeter.
func New(cfg Config, handlers Handlers, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	if handlers.Webhook != nil {
		// The rate limit runs before signature verification: an over-limit
		// origin gets 429 regardless of whether its batch is signed.
		webhook := http.Handler(http.HandlerFunc(handlers.Webhook.Receive))
		webhook = middleware.WebhookAuth(cfg.WebhookSecret, logger)(webhook)
		if limiter != nil {
			webhook = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(webhook)
		}
		mux.Handle("POST /webhooks/chain", webhook)
	}

	mux.HandleFunc("GET /api/health", handlers.Health.Check)
	mux.HandleFunc("GET /api/markets", handlers.Markets.List)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.Get)

	if handlers.Consensus != nil {
		mux.HandleFunc("POST /api/consensus/trigger", handlers.Consensus.Trigger)
		mux.HandleFunc("GET /api/consensus/status", handlers.Consensus.Status)
	}

	mux.Handle("GET /metrics", promhttp.Handler())

	h := middleware.Logging(logger)(mux)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      h,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the fully assembled root handler, routes and middleware
// included.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start blocks serving requests until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
