package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ZSYNC_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ZSYNC_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Mode, "ZSYNC_MODE")
	setStr(&cfg.Environment, "ZSYNC_ENVIRONMENT")
	setStr(&cfg.LogLevel, "ZSYNC_LOG_LEVEL")

	// ── Database ──
	setStr(&cfg.Database.DSN, "ZSYNC_DATABASE_DSN")
	setStr(&cfg.Database.Host, "ZSYNC_DATABASE_HOST")
	setInt(&cfg.Database.Port, "ZSYNC_DATABASE_PORT")
	setStr(&cfg.Database.Database, "ZSYNC_DATABASE_NAME")
	setStr(&cfg.Database.User, "ZSYNC_DATABASE_USER")
	setStr(&cfg.Database.Password, "ZSYNC_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "ZSYNC_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "ZSYNC_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "ZSYNC_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "ZSYNC_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "ZSYNC_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ZSYNC_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ZSYNC_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ZSYNC_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ZSYNC_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ZSYNC_REDIS_TLS_ENABLED")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "ZSYNC_CHAIN_RPC_URL")
	setStr(&cfg.Chain.ProgramID, "ZSYNC_CHAIN_PROGRAM_ID")
	setStr(&cfg.Chain.AuthorityKey, "ZSYNC_CHAIN_AUTHORITY_KEY")
	setStr(&cfg.Chain.EncryptedKeyPath, "ZSYNC_CHAIN_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Chain.KeyPassword, "ZSYNC_CHAIN_KEY_PASSWORD")
	setStr(&cfg.Chain.Commitment, "ZSYNC_CHAIN_COMMITMENT")
	setDuration(&cfg.Chain.ConfirmTimeout, "ZSYNC_CHAIN_CONFIRM_TIMEOUT")
	setDuration(&cfg.Chain.ConfirmInterval, "ZSYNC_CHAIN_CONFIRM_INTERVAL")

	// ── Webhook ──
	setStr(&cfg.Webhook.Secret, "ZSYNC_WEBHOOK_SECRET")
	setInt(&cfg.Webhook.RateLimit, "ZSYNC_WEBHOOK_RATE_LIMIT")
	setDuration(&cfg.Webhook.RateWindow, "ZSYNC_WEBHOOK_RATE_WINDOW")
	setInt(&cfg.Webhook.MaxConcurrency, "ZSYNC_WEBHOOK_MAX_CONCURRENCY")

	// ── Consensus ──
	setDuration(&cfg.Consensus.Interval, "ZSYNC_CONSENSUS_INTERVAL")
	setInt(&cfg.Consensus.ProposalThresholdBps, "ZSYNC_CONSENSUS_PROPOSAL_THRESHOLD_BPS")
	setInt(&cfg.Consensus.DisputeThresholdBps, "ZSYNC_CONSENSUS_DISPUTE_THRESHOLD_BPS")
	setDuration(&cfg.Consensus.DisputeWindow, "ZSYNC_CONSENSUS_DISPUTE_WINDOW")
	setInt(&cfg.Consensus.BatchSize, "ZSYNC_CONSENSUS_BATCH_SIZE")
	setBool(&cfg.Consensus.DistributedLock, "ZSYNC_CONSENSUS_DISTRIBUTED_LOCK")
	setDuration(&cfg.Consensus.LockTTL, "ZSYNC_CONSENSUS_LOCK_TTL")

	// ── Retry ──
	setInt(&cfg.Retry.MaxAttempts, "ZSYNC_RETRY_MAX_ATTEMPTS")
	setDuration(&cfg.Retry.InitialDelay, "ZSYNC_RETRY_INITIAL_DELAY")
	setDuration(&cfg.Retry.MaxDelay, "ZSYNC_RETRY_MAX_DELAY")
	setFloat64(&cfg.Retry.Factor, "ZSYNC_RETRY_FACTOR")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "ZSYNC_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ZSYNC_S3_REGION")
	setStr(&cfg.S3.Bucket, "ZSYNC_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ZSYNC_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ZSYNC_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ZSYNC_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ZSYNC_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "ZSYNC_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Cron, "ZSYNC_ARCHIVE_CRON")
	setInt(&cfg.Archive.RetentionDays, "ZSYNC_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setInt(&cfg.Server.Port, "ZSYNC_SERVER_PORT")
}

func setStr(dst *string, env string) {
	if v, ok := os.LookupEnv(env); ok && strings.TrimSpace(v) != "" {
		*dst = v
	}
}

func setInt(dst *int, env string) {
	if v, ok := os.LookupEnv(env); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, env string) {
	if v, ok := os.LookupEnv(env); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, env string) {
	if v, ok := os.LookupEnv(env); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, env string) {
	if v, ok := os.LookupEnv(env); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			dst.Duration = d
		}
	}
}
