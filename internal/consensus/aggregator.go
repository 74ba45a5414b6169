package consensus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zmartlabs/zmart-sync/internal/domain"
	"github.com/zmartlabs/zmart-sync/internal/metrics"
	"github.com/zmartlabs/zmart-sync/internal/retry"
)

// Kind names an aggregation phase.
type Kind string

const (
	KindProposal Kind = "proposal"
	KindDispute  Kind = "dispute"
)

// Summary is the accounting of one aggregator run.
type Summary struct {
	Kind      Kind          `json:"kind"`
	Processed int           `json:"processed"`
	Settled   int           `json:"settled"`
	Skipped   int           `json:"skipped"`
	Errored   int           `json:"errored"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
}

// Config parameterizes one aggregator.
type Config struct {
	Kind         Kind
	ThresholdBps int
	// DisputeWindow gates dispute settlement: a disputed market is not
	// finalized until the window has elapsed since the dispute opened.
	// Ignored for proposal aggregation.
	DisputeWindow time.Duration
	BatchSize     int
	Retry         retry.Policy
}

// Aggregator runs one settlement phase: it walks markets sitting in the
// phase's source state, tallies their votes and commits the decision
// on-chain through the authority signer. Markets are processed one at a
// time; the backend holds the single signing authority, so there is
// nothing to gain from submitting settlements concurrently and reordering
// to lose.
type Aggregator struct {
	cfg     Config
	markets domain.MarketStore
	votes   domain.VoteStore
	chain   domain.ChainClient
	logger  *slog.Logger
	clock   func() time.Time

	running atomic.Bool

	mu      sync.Mutex
	lastRun *Summary
}

func NewAggregator(cfg Config, markets domain.MarketStore, votes domain.VoteStore, chain domain.ChainClient, logger *slog.Logger) *Aggregator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Aggregator{
		cfg:     cfg,
		markets: markets,
		votes:   votes,
		chain:   chain,
		logger:  logger.With(slog.String("aggregator", string(cfg.Kind))),
		clock:   time.Now,
	}
}

// Running reports whether a run is in flight.
func (a *Aggregator) Running() bool { return a.running.Load() }

// LastRun returns the most recent completed run summary, if any.
func (a *Aggregator) LastRun() *Summary {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastRun
}

// Run executes one aggregation pass. Only one run may be in flight; an
// overlapping call returns domain.ErrAlreadyRunning without doing any
// work. Per-market failures are isolated and counted, they never abort the
// pass; only context cancellation does.
func (a *Aggregator) Run(ctx context.Context) (Summary, error) {
	if !a.running.CompareAndSwap(false, true) {
		return Summary{Kind: a.cfg.Kind}, domain.ErrAlreadyRunning
	}
	defer a.running.Store(false)

	sum := Summary{Kind: a.cfg.Kind, StartedAt: a.clock().UTC()}

	source := domain.MarketStateProposed
	if a.cfg.Kind == KindDispute {
		source = domain.MarketStateDisputed
	}
	candidates, err := a.markets.ListByState(ctx, source, domain.ListOpts{Limit: a.cfg.BatchSize})
	if err != nil {
		metrics.AggregatorRuns.WithLabelValues(string(a.cfg.Kind), "error").Inc()
		return sum, fmt.Errorf("consensus: list %s markets: %w", source, err)
	}

	for i := range candidates {
		if err := ctx.Err(); err != nil {
			return sum, fmt.Errorf("consensus: %s run interrupted after %d markets: %w", a.cfg.Kind, sum.Processed, err)
		}
		m := &candidates[i]
		sum.Processed++

		var settled bool
		switch a.cfg.Kind {
		case KindProposal:
			settled, err = a.settleProposal(ctx, m)
		case KindDispute:
			settled, err = a.settleDispute(ctx, m)
		default:
			err = fmt.Errorf("consensus: unknown aggregator kind %q", a.cfg.Kind)
		}
		switch {
		case err != nil:
			sum.Errored++
			a.logger.Error("market settlement failed",
				slog.String("market", m.ChainAddress),
				slog.String("error", err.Error()),
			)
		case settled:
			sum.Settled++
		default:
			sum.Skipped++
		}
	}

	sum.Duration = time.Since(sum.StartedAt)
	metrics.AggregatorRuns.WithLabelValues(string(a.cfg.Kind), "ok").Inc()
	a.mu.Lock()
	a.lastRun = &sum
	a.mu.Unlock()

	a.logger.Info("aggregation run complete",
		slog.Int("processed", sum.Processed),
		slog.Int("settled", sum.Settled),
		slog.Int("skipped", sum.Skipped),
		slog.Int("errored", sum.Errored),
		slog.Duration("duration", sum.Duration),
	)
	return sum, nil
}

// settleProposal approves a proposed market whose vote tally clears the
// approval threshold. Markets below threshold are left as-is; a later run
// picks them up again once more votes arrive.
func (a *Aggregator) settleProposal(ctx context.Context, m *domain.Market) (bool, error) {
	raw, err := a.votes.TallyProposal(ctx, m.ID)
	if err != nil {
		return false, fmt.Errorf("tally proposal votes for %s: %w", m.ChainAddress, err)
	}
	tally := Aggregate(raw)
	if !tally.MeetsThreshold(a.cfg.ThresholdBps) {
		a.logger.Debug("proposal below threshold",
			slog.String("market", m.ChainAddress),
			slog.Int("bps", tally.Bps),
			slog.Int("threshold_bps", a.cfg.ThresholdBps),
		)
		return false, nil
	}

	var sig string
	err = a.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		var callErr error
		sig, callErr = a.chain.ApproveProposal(ctx, m.ChainAddress, tally.Likes, tally.Dislikes)
		return callErr
	})
	if err != nil {
		metrics.SettlementAttempts.WithLabelValues(string(KindProposal), "error").Inc()
		return false, fmt.Errorf("approve proposal for %s: %w", m.ChainAddress, err)
	}
	metrics.SettlementAttempts.WithLabelValues(string(KindProposal), "ok").Inc()

	now := a.clock().UTC()
	mut := domain.MarketMutation{
		ProposalLikes:    &tally.Likes,
		ProposalDislikes: &tally.Dislikes,
		ProposalTotal:    &tally.Total,
		ApprovedAt:       &now,
	}
	if err := a.markets.Transition(ctx, m.ID, domain.MarketStateApproved, mut); err != nil && !converged(err) {
		// The on-chain approval landed; the emitted ProposalAggregated
		// event converges the replica on the next delivery.
		a.logger.Warn("local approval update failed after on-chain settlement",
			slog.String("market", m.ChainAddress),
			slog.String("tx", sig),
			slog.String("error", err.Error()),
		)
	}

	a.logger.Info("proposal approved",
		slog.String("market", m.ChainAddress),
		slog.Int("likes", tally.Likes),
		slog.Int("dislikes", tally.Dislikes),
		slog.Int("bps", tally.Bps),
		slog.String("tx", sig),
	)
	return true, nil
}

// settleDispute finalizes a disputed market once its dispute window has
// closed. The window gates settlement, the threshold picks the outcome: a
// successful dispute flips the proposed outcome, a failed one confirms it.
// An INVALID (absent) proposed outcome stays INVALID either way.
func (a *Aggregator) settleDispute(ctx context.Context, m *domain.Market) (bool, error) {
	if !m.DisputeWindowClosed(a.cfg.DisputeWindow, a.clock()) {
		a.logger.Debug("dispute window still open",
			slog.String("market", m.ChainAddress),
		)
		return false, nil
	}

	raw, err := a.votes.TallyDispute(ctx, m.ID, m.DisputeRound)
	if err != nil {
		return false, fmt.Errorf("tally dispute votes for %s round %d: %w", m.ChainAddress, m.DisputeRound, err)
	}
	tally := Aggregate(raw)
	succeeded := tally.MeetsThreshold(a.cfg.ThresholdBps)

	finalOutcome := m.ProposedOutcome
	if succeeded && m.ProposedOutcome != nil {
		flipped := !*m.ProposedOutcome
		finalOutcome = &flipped
	}

	var sig string
	err = a.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		var callErr error
		sig, callErr = a.chain.FinalizeMarket(ctx, m.ChainAddress, finalOutcome, tally.Likes, tally.Dislikes)
		return callErr
	})
	if err != nil {
		metrics.SettlementAttempts.WithLabelValues(string(KindDispute), "error").Inc()
		return false, fmt.Errorf("finalize market %s: %w", m.ChainAddress, err)
	}
	metrics.SettlementAttempts.WithLabelValues(string(KindDispute), "ok").Inc()

	now := a.clock().UTC()
	mut := domain.MarketMutation{
		FinalOutcome:    &finalOutcome,
		DisputeAgree:    &tally.Likes,
		DisputeDisagree: &tally.Dislikes,
		DisputeTotal:    &tally.Total,
		FinalizedAt:     &now,
	}
	if err := a.markets.Transition(ctx, m.ID, domain.MarketStateFinalized, mut); err != nil && !converged(err) {
		a.logger.Warn("local finalize update failed after on-chain settlement",
			slog.String("market", m.ChainAddress),
			slog.String("tx", sig),
			slog.String("error", err.Error()),
		)
	}

	a.logger.Info("dispute settled",
		slog.String("market", m.ChainAddress),
		slog.Bool("dispute_succeeded", succeeded),
		slog.Int("agrees", tally.Likes),
		slog.Int("disagrees", tally.Dislikes),
		slog.Int("bps", tally.Bps),
		slog.String("tx", sig),
	)
	return true, nil
}

// converged reports whether a transition error means another path (the
// event ingestion reconciler) already applied the same state change.
func converged(err error) bool {
	return errors.Is(err, domain.ErrDuplicate) || errors.Is(err, domain.ErrInvalidTransition)
}
