package domain

import "time"

// ChainConfig is the local mirror of the on-chain global governance config.
// It is refreshed by the admin writer whenever a ConfigUpdated event is
// ingested; aggregators read their thresholds from service config but the
// mirror is kept for operational visibility and reconciliation.
type ChainConfig struct {
	ProposalThresholdBps int
	DisputeThresholdBps  int
	DisputeWindow        time.Duration
	Paused               bool
	UpdatedAt            time.Time
}
