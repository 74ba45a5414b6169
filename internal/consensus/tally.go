package consensus

import "github.com/zmartlabs/zmart-sync/internal/domain"

// Tally is the aggregate of one market's votes in one phase, with the
// derived approval figures used for threshold checks.
type Tally struct {
	Likes        int
	Dislikes     int
	Total        int
	ApprovalRate float64 // 0-100
	Bps          int     // basis points, floor(ApprovalRate * 100)
}

// Aggregate derives the approval figures from a raw vote tally. An empty
// tally yields a zero rate, never a division by zero.
func Aggregate(t domain.VoteTally) Tally {
	out := Tally{
		Likes:    t.Likes,
		Dislikes: t.Dislikes,
		Total:    t.Total,
	}
	if t.Total == 0 {
		return out
	}
	out.ApprovalRate = float64(t.Likes) / float64(t.Total) * 100
	// Integer math keeps the threshold comparison exact: 2/3 approval is
	// 6666 bps, never 6667.
	out.Bps = t.Likes * 10_000 / t.Total
	return out
}

// MeetsThreshold reports whether the tally clears a basis-point threshold.
// The comparison is inclusive: exactly at-threshold passes.
func (t Tally) MeetsThreshold(thresholdBps int) bool {
	return t.Bps >= thresholdBps
}
