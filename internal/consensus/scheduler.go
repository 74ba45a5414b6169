package consensus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zmartlabs/zmart-sync/internal/domain"
)

// SchedulerConfig holds scheduler timing and the optional distributed
// single-flight settings.
type SchedulerConfig struct {
	Interval time.Duration
	// Locks enables cross-instance single-flight when non-nil. A single
	// instance relies on the aggregators' in-process running guard.
	Locks   domain.LockManager
	LockTTL time.Duration
}

// Status is the scheduler snapshot served by the ops endpoint.
type Status struct {
	Interval         string   `json:"interval"`
	ProposalRunning  bool     `json:"proposalRunning"`
	DisputeRunning   bool     `json:"disputeRunning"`
	ProposalLastRun  *Summary `json:"proposalLastRun,omitempty"`
	DisputeLastRun   *Summary `json:"disputeLastRun,omitempty"`
	ProposalBpsFloor int      `json:"proposalThresholdBps"`
	DisputeBpsFloor  int      `json:"disputeThresholdBps"`
}

// Scheduler fires both aggregation phases on a fixed interval and exposes
// manual triggering for operators. The two phases touch disjoint market
// states, so they run concurrently.
type Scheduler struct {
	cfg      SchedulerConfig
	proposal *Aggregator
	dispute  *Aggregator
	logger   *slog.Logger
}

func NewScheduler(cfg SchedulerConfig, proposal, dispute *Aggregator, logger *slog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 4 * time.Minute
	}
	return &Scheduler{
		cfg:      cfg,
		proposal: proposal,
		dispute:  dispute,
		logger:   logger.With(slog.String("component", "scheduler")),
	}
}

// Run blocks, firing both aggregators every interval until ctx is
// cancelled. The first pass runs immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started",
		slog.Duration("interval", s.cfg.Interval),
		slog.Bool("distributed_lock", s.cfg.Locks != nil),
	)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.fire(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.fire(ctx)
		}
	}
}

// fire runs both phases concurrently and waits for both to finish.
func (s *Scheduler) fire(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { s.runOne(gctx, s.proposal); return nil })
	g.Go(func() error { s.runOne(gctx, s.dispute); return nil })
	_ = g.Wait()
}

// RunNow triggers the named phase ("proposal", "dispute" or "all")
// immediately, from the operator endpoint.
func (s *Scheduler) RunNow(ctx context.Context, kind string) error {
	switch kind {
	case string(KindProposal):
		s.runOne(ctx, s.proposal)
	case string(KindDispute):
		s.runOne(ctx, s.dispute)
	case "all", "":
		s.fire(ctx)
	default:
		return fmt.Errorf("consensus: unknown aggregator %q", kind)
	}
	return nil
}

// Status reports both phases' running flags and last run summaries.
func (s *Scheduler) Status() Status {
	return Status{
		Interval:         s.cfg.Interval.String(),
		ProposalRunning:  s.proposal.Running(),
		DisputeRunning:   s.dispute.Running(),
		ProposalLastRun:  s.proposal.LastRun(),
		DisputeLastRun:   s.dispute.LastRun(),
		ProposalBpsFloor: s.proposal.cfg.ThresholdBps,
		DisputeBpsFloor:  s.dispute.cfg.ThresholdBps,
	}
}

// runOne executes a single aggregator pass, holding the distributed lock
// when configured. A pass already running here or on a peer instance is a
// quiet skip, not an error.
func (s *Scheduler) runOne(ctx context.Context, agg *Aggregator) {
	if s.cfg.Locks != nil {
		unlock, err := s.cfg.Locks.Acquire(ctx, "consensus:"+string(agg.cfg.Kind), s.cfg.LockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			s.logger.Debug("pass held by peer instance",
				slog.String("kind", string(agg.cfg.Kind)),
			)
			return
		}
		if err != nil {
			s.logger.Error("lock acquisition failed",
				slog.String("kind", string(agg.cfg.Kind)),
				slog.String("error", err.Error()),
			)
			return
		}
		defer unlock()
	}

	_, err := agg.Run(ctx)
	if errors.Is(err, domain.ErrAlreadyRunning) {
		s.logger.Debug("pass already in flight",
			slog.String("kind", string(agg.cfg.Kind)),
		)
		return
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("aggregation pass failed",
			slog.String("kind", string(agg.cfg.Kind)),
			slog.String("error", err.Error()),
		)
	}
}
