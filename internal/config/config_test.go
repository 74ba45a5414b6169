package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validBase returns a configuration that passes validation in full mode.
func validBase() Config {
	cfg := Defaults()
	cfg.Database.DSN = "postgres://zsync:pw@localhost:5432/zsync"
	cfg.Chain.RPCURL = "http://localhost:8899"
	cfg.Chain.ProgramID = "ZmartMarket111111111111111111111111111111111"
	cfg.Chain.AuthorityKey = "aa" // hex seed stub, checked at wire time
	cfg.Webhook.Secret = "secret"
	return cfg
}

func TestValidateFullMode(t *testing.T) {
	cfg := validBase()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	cfg := validBase()
	cfg.Mode = "turbo"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown mode "turbo"`)
}

func TestValidateProductionRequiresWebhookSecret(t *testing.T) {
	cfg := validBase()
	cfg.Environment = "production"
	cfg.Webhook.Secret = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secret required in production")
}

func TestValidateDevelopmentAllowsEmptySecret(t *testing.T) {
	cfg := validBase()
	cfg.Webhook.Secret = ""
	assert.NoError(t, cfg.Validate())
}

func TestValidateConsensusRequiresChainCredentials(t *testing.T) {
	cfg := validBase()
	cfg.Mode = "consensus"
	cfg.Chain.RPCURL = ""
	cfg.Chain.AuthorityKey = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpc_url required")
	assert.Contains(t, err.Error(), "authority_key or encrypted_key_path required")
}

func TestValidateIngestModeSkipsChainCredentials(t *testing.T) {
	cfg := validBase()
	cfg.Mode = "ingest"
	cfg.Chain.RPCURL = ""
	cfg.Chain.AuthorityKey = ""
	assert.NoError(t, cfg.Validate(), "ingest mode never signs transactions")
}

func TestValidateProgramIDAlwaysRequired(t *testing.T) {
	cfg := validBase()
	cfg.Mode = "ingest"
	cfg.Chain.ProgramID = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "program_id required")
}

func TestValidateEncryptedKeyNeedsPassword(t *testing.T) {
	cfg := validBase()
	cfg.Chain.AuthorityKey = ""
	cfg.Chain.EncryptedKeyPath = "/etc/zsync/authority.json"
	cfg.Chain.KeyPassword = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key_password required")
}

func TestValidateThresholdBounds(t *testing.T) {
	cfg := validBase()
	cfg.Consensus.ProposalThresholdBps = 10001
	cfg.Consensus.DisputeThresholdBps = -1
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "proposal_threshold_bps")
	assert.Contains(t, err.Error(), "dispute_threshold_bps")
}

func TestValidateArchiveNeedsBucket(t *testing.T) {
	cfg := validBase()
	cfg.Archive.Enabled = true
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3 bucket required")
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Database.DSN = ""
	cfg.Database.Host = ""
	cfg.Redis.Addr = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database:")
	assert.Contains(t, err.Error(), "redis:")
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, 7000, cfg.Consensus.ProposalThresholdBps)
	assert.Equal(t, 6000, cfg.Consensus.DisputeThresholdBps)
	assert.Equal(t, 48*time.Hour, cfg.Consensus.DisputeWindow.Duration)
	assert.Equal(t, 5*time.Minute, cfg.Consensus.Interval.Duration)
	assert.Equal(t, 100, cfg.Webhook.RateLimit)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestDurationTextRoundTrip(t *testing.T) {
	var d duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Duration)

	out, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(out))
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := validBase()
	cfg.Database.Password = "dbpw"
	cfg.Redis.Password = "redispw"
	cfg.S3.SecretKey = "s3secret"
	cfg.Chain.KeyPassword = "keypw"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Database.Password)
	assert.Equal(t, "***", red.Redis.Password)
	assert.Equal(t, "***", red.S3.SecretKey)
	assert.Equal(t, "***", red.Webhook.Secret)
	assert.Equal(t, "***", red.Chain.AuthorityKey)
	assert.Equal(t, "***", red.Chain.KeyPassword)
	// The original is untouched.
	assert.Equal(t, "dbpw", cfg.Database.Password)
}
