package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// The pause flag is owned by the pause broadcast. A governance upsert
// driven by ConfigUpdated must not mention the column at all, otherwise
// every config event would reset an operator-visible pause to false.
func TestGovernanceUpsertNeverTouchesPauseFlag(t *testing.T) {
	assert.NotContains(t, upsertChainConfigSQL, "paused")
}

func TestPauseBroadcastMaintainsMirrorFlag(t *testing.T) {
	assert.Contains(t, pauseMirrorSQL, "chain_config")
	assert.Contains(t, pauseMirrorSQL, "paused     = EXCLUDED.paused")
}
