package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zmartlabs/zmart-sync/internal/domain"
)

// VoteWriter persists governance votes and converges local market state
// with on-chain aggregation results. The aggregated-event paths double as
// recovery: if our own settlement call landed on-chain but the local update
// afterwards failed, the emitted event brings the replica back in line.
type VoteWriter struct {
	votes   domain.VoteStore
	markets domain.MarketStore
	events  domain.EventStore
	logger  *slog.Logger
}

func NewVoteWriter(votes domain.VoteStore, markets domain.MarketStore, events domain.EventStore, logger *slog.Logger) *VoteWriter {
	return &VoteWriter{
		votes:   votes,
		markets: markets,
		events:  events,
		logger:  logger.With(slog.String("writer", "vote")),
	}
}

func (w *VoteWriter) Handle(ctx context.Context, evt domain.ChainEvent, meta domain.EventMeta) domain.WriteResult {
	res := startResult(evt, meta)

	duplicate, err := recordEvent(ctx, w.events, evt, meta)
	if err != nil {
		return res.fail(err)
	}
	if duplicate {
		return res.dup()
	}

	switch e := evt.(type) {
	case domain.ProposalVoteSubmitted:
		err = w.insertVote(ctx, e.Market, domain.Vote{
			Voter:     e.Voter,
			Choice:    e.Approve,
			Phase:     domain.VotePhaseProposal,
			Weight:    e.Weight,
			CreatedAt: time.Unix(e.Timestamp, 0).UTC(),
		})
	case domain.DisputeVoteSubmitted:
		err = w.insertVote(ctx, e.Market, domain.Vote{
			Voter:     e.Voter,
			Choice:    e.Agree,
			Phase:     domain.VotePhaseDispute,
			Round:     e.Round,
			Weight:    e.Weight,
			CreatedAt: time.Unix(e.Timestamp, 0).UTC(),
		})
	case domain.ProposalAggregated:
		err = w.reconcileProposal(ctx, e)
	case domain.DisputeAggregated:
		err = w.reconcileDispute(ctx, e)
	default:
		err = fmt.Errorf("ingest: vote writer cannot handle %s", evt.Type())
	}
	if err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return res.dup()
		}
		return res.fail(err)
	}
	return res.ok()
}

// insertVote resolves the market and stores the vote. A repeat vote from
// the same wallet is absorbed: the chain program already rejected or
// deduplicated it, we just mirror the first one.
func (w *VoteWriter) insertVote(ctx context.Context, addr string, v domain.Vote) error {
	m, err := w.markets.GetByChainAddress(ctx, addr)
	if err != nil {
		return fmt.Errorf("ingest: lookup market %s: %w", addr, err)
	}
	v.MarketID = m.ID
	if v.Weight == 0 {
		v.Weight = 1
	}
	err = w.votes.Insert(ctx, v)
	if errors.Is(err, domain.ErrDuplicate) {
		w.logger.Debug("absorbing repeat vote",
			slog.String("market", addr),
			slog.String("voter", v.Voter),
			slog.String("phase", string(v.Phase)),
		)
		return domain.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("ingest: insert %s vote for market %s: %w", v.Phase, addr, err)
	}
	return nil
}

func (w *VoteWriter) reconcileProposal(ctx context.Context, e domain.ProposalAggregated) error {
	if !e.Approved {
		// The program emits aggregation results only for approvals today;
		// tolerate a rejection event by leaving the market in PROPOSED.
		w.logger.Debug("proposal aggregation without approval",
			slog.String("market", e.Market),
			slog.Int("likes", e.Likes),
			slog.Int("dislikes", e.Dislikes),
		)
		return nil
	}
	m, err := w.markets.GetByChainAddress(ctx, e.Market)
	if err != nil {
		return fmt.Errorf("ingest: lookup market %s: %w", e.Market, err)
	}
	total := e.Likes + e.Dislikes
	approvedAt := time.Unix(e.Timestamp, 0).UTC()
	err = w.markets.Transition(ctx, m.ID, domain.MarketStateApproved, domain.MarketMutation{
		ProposalLikes:    &e.Likes,
		ProposalDislikes: &e.Dislikes,
		ProposalTotal:    &total,
		ApprovedAt:       &approvedAt,
	})
	if errors.Is(err, domain.ErrInvalidTransition) {
		// Already converged (our own settlement path got there first).
		return domain.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("ingest: approve market %s: %w", e.Market, err)
	}
	return nil
}

func (w *VoteWriter) reconcileDispute(ctx context.Context, e domain.DisputeAggregated) error {
	m, err := w.markets.GetByChainAddress(ctx, e.Market)
	if err != nil {
		return fmt.Errorf("ingest: lookup market %s: %w", e.Market, err)
	}
	total := e.Agrees + e.Disagrees
	finalizedAt := time.Unix(e.Timestamp, 0).UTC()
	err = w.markets.Transition(ctx, m.ID, domain.MarketStateFinalized, domain.MarketMutation{
		FinalOutcome:    &e.FinalOutcome,
		DisputeAgree:    &e.Agrees,
		DisputeDisagree: &e.Disagrees,
		DisputeTotal:    &total,
		FinalizedAt:     &finalizedAt,
	})
	if errors.Is(err, domain.ErrInvalidTransition) {
		return domain.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("ingest: finalize market %s: %w", e.Market, err)
	}
	return nil
}
