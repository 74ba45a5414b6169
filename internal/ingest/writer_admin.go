package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zmartlabs/zmart-sync/internal/domain"
)

// AdminWriter handles protocol-level governance events. Pause toggles fan
// out to every ACTIVE market atomically with the triggering event's audit
// row; config updates refresh the local mirror of the on-chain globals.
type AdminWriter struct {
	admin  domain.AdminStore
	cfg    domain.ChainConfigStore
	events domain.EventStore
	logger *slog.Logger
}

func NewAdminWriter(admin domain.AdminStore, cfg domain.ChainConfigStore, events domain.EventStore, logger *slog.Logger) *AdminWriter {
	return &AdminWriter{
		admin:  admin,
		cfg:    cfg,
		events: events,
		logger: logger.With(slog.String("writer", "admin")),
	}
}

func (w *AdminWriter) Handle(ctx context.Context, evt domain.ChainEvent, meta domain.EventMeta) domain.WriteResult {
	res := startResult(evt, meta)

	switch e := evt.(type) {
	case domain.EmergencyPauseToggled:
		rec, err := eventRecord(evt, meta)
		if err != nil {
			return res.fail(err)
		}
		touched, err := w.admin.PauseBroadcast(ctx, rec, e.Paused)
		if errors.Is(err, domain.ErrDuplicate) {
			return res.dup()
		}
		if err != nil {
			return res.fail(fmt.Errorf("ingest: broadcast pause=%t: %w", e.Paused, err))
		}
		w.logger.Info("pause flag broadcast",
			slog.Bool("paused", e.Paused),
			slog.String("authority", e.Authority),
			slog.Int64("markets", touched),
		)
		return res.ok()

	case domain.ConfigUpdated:
		duplicate, err := recordEvent(ctx, w.events, evt, meta)
		if err != nil {
			return res.fail(err)
		}
		if duplicate {
			return res.dup()
		}
		cfg := domain.ChainConfig{
			ProposalThresholdBps: e.ProposalThresholdBps,
			DisputeThresholdBps:  e.DisputeThresholdBps,
			DisputeWindow:        time.Duration(e.DisputeWindowSecs) * time.Second,
			UpdatedAt:            time.Unix(e.Timestamp, 0).UTC(),
		}
		if err := w.cfg.Upsert(ctx, cfg); err != nil {
			return res.fail(fmt.Errorf("ingest: mirror config update: %w", err))
		}
		w.logger.Info("chain config mirrored",
			slog.Int("proposal_threshold_bps", e.ProposalThresholdBps),
			slog.Int("dispute_threshold_bps", e.DisputeThresholdBps),
		)
		return res.ok()

	default:
		return res.fail(fmt.Errorf("ingest: admin writer cannot handle %s", evt.Type()))
	}
}
