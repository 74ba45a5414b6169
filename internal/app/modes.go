package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zmartlabs/zmart-sync/internal/server"
	"github.com/zmartlabs/zmart-sync/internal/server/handler"
)

// shutdownGrace bounds how long in-flight HTTP requests may drain.
const shutdownGrace = 10 * time.Second

// FullMode runs the webhook gateway, the consensus scheduler and, when
// configured, the event archiver in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.Info("full mode: gateway + consensus")

	if deps.Archiver != nil {
		if err := deps.Archiver.Start(a.cfg.Archive.Cron); err != nil {
			return err
		}
		defer deps.Archiver.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.serveHTTP(gctx, deps, true) })
	g.Go(func() error { return ignoreCancel(deps.Scheduler.Run(gctx)) })
	return g.Wait()
}

// IngestMode runs only the webhook gateway. No signing key is loaded and
// no settlement transactions are submitted.
func (a *App) IngestMode(ctx context.Context, deps *Dependencies) error {
	a.logger.Info("ingest mode: gateway only")
	return a.serveHTTP(ctx, deps, true)
}

// ConsensusMode runs only the aggregation scheduler, plus the ops API for
// triggering and inspecting it.
func (a *App) ConsensusMode(ctx context.Context, deps *Dependencies) error {
	a.logger.Info("consensus mode: aggregators only")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.serveHTTP(gctx, deps, false) })
	g.Go(func() error { return ignoreCancel(deps.Scheduler.Run(gctx)) })
	return g.Wait()
}

// serveHTTP assembles the handler set for the mode and runs the HTTP
// server until ctx is cancelled.
func (a *App) serveHTTP(ctx context.Context, deps *Dependencies, withGateway bool) error {
	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(deps.Pingers),
		Markets: handler.NewMarketHandler(deps.Markets, a.logger),
	}
	if withGateway {
		handlers.Webhook = handler.NewWebhookHandler(deps.Parser, deps.Router, a.cfg.Webhook.MaxConcurrency, a.logger)
	}
	if deps.Scheduler != nil {
		handlers.Consensus = handler.NewConsensusHandler(deps.Scheduler, a.logger)
	}

	srv := server.New(server.Config{
		Port:          a.cfg.Server.Port,
		WebhookSecret: a.cfg.Webhook.Secret,
		RateLimit:     a.cfg.Webhook.RateLimit,
		RateWindow:    a.cfg.Webhook.RateWindow.Duration,
	}, handlers, deps.RateLimiter, a.logger)

	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown failed", slog.String("error", err.Error()))
		}
		return <-errc
	}
}

// ignoreCancel maps context cancellation to a clean exit so an orderly
// shutdown is not reported as a mode failure.
func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
