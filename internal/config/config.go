// Package config defines the top-level configuration for the zmart sync
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by ZSYNC_* environment variables.
type Config struct {
	Database  DatabaseConfig  `toml:"database"`
	Redis     RedisConfig     `toml:"redis"`
	Chain     ChainConfig     `toml:"chain"`
	Webhook   WebhookConfig   `toml:"webhook"`
	Consensus ConsensusConfig `toml:"consensus"`
	Retry     RetryConfig     `toml:"retry"`
	S3        S3Config        `toml:"s3"`
	Archive   ArchiveConfig   `toml:"archive"`
	Server    ServerConfig    `toml:"server"`

	// Mode selects which subsystems run: "full", "ingest", or "consensus".
	Mode string `toml:"mode"`
	// Environment is "production" or "development". Production refuses to
	// start the gateway without a webhook secret.
	Environment string `toml:"environment"`
	LogLevel    string `toml:"log_level"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// ChainConfig holds RPC endpoint and signing-authority parameters.
type ChainConfig struct {
	RPCURL    string `toml:"rpc_url"`
	ProgramID string `toml:"program_id"`
	// AuthorityKey is the hex-encoded ed25519 seed of the backend
	// authority. Prefer EncryptedKeyPath in production.
	AuthorityKey     string   `toml:"authority_key"`
	EncryptedKeyPath string   `toml:"encrypted_key_path"`
	KeyPassword      string   `toml:"key_password"`
	Commitment       string   `toml:"commitment"`
	ConfirmTimeout   duration `toml:"confirm_timeout"`
	ConfirmInterval  duration `toml:"confirm_interval"`
}

// WebhookConfig holds gateway authentication and rate-limit parameters.
type WebhookConfig struct {
	// Secret is the shared HMAC secret for inbound webhook batches. Empty
	// means signature verification is bypassed (non-production only).
	Secret string `toml:"secret"`
	// RateLimit is the fixed-window request budget per origin.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
	// MaxConcurrency bounds the per-batch transaction fan-out.
	MaxConcurrency int `toml:"max_concurrency"`
}

// ConsensusConfig holds vote-aggregation parameters.
type ConsensusConfig struct {
	Interval             duration `toml:"interval"`
	ProposalThresholdBps int      `toml:"proposal_threshold_bps"`
	DisputeThresholdBps  int      `toml:"dispute_threshold_bps"`
	DisputeWindow        duration `toml:"dispute_window"`
	BatchSize            int      `toml:"batch_size"`
	// DistributedLock enables the Redis single-flight lock for
	// multi-instance deployments. The in-process guard always applies.
	DistributedLock bool     `toml:"distributed_lock"`
	LockTTL         duration `toml:"lock_ttl"`
}

// RetryConfig holds the settlement-call retry policy.
type RetryConfig struct {
	MaxAttempts  int      `toml:"max_attempts"`
	InitialDelay duration `toml:"initial_delay"`
	MaxDelay     duration `toml:"max_delay"`
	Factor       float64  `toml:"factor"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig holds event-audit retention parameters.
type ArchiveConfig struct {
	Enabled       bool   `toml:"enabled"`
	Cron          string `toml:"cron"`
	RetentionDays int    `toml:"retention_days"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port int `toml:"port"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns the built-in configuration defaults.
func Defaults() Config {
	return Config{
		Mode:        "full",
		Environment: "development",
		LogLevel:    "info",
		Database: DatabaseConfig{
			Port:         5432,
			SSLMode:      "disable",
			PoolMaxConns: 10,
			PoolMinConns: 2,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Chain: ChainConfig{
			Commitment:      "confirmed",
			ConfirmTimeout:  duration{30 * time.Second},
			ConfirmInterval: duration{2 * time.Second},
		},
		Webhook: WebhookConfig{
			RateLimit:      100,
			RateWindow:     duration{time.Minute},
			MaxConcurrency: 16,
		},
		Consensus: ConsensusConfig{
			Interval:             duration{5 * time.Minute},
			ProposalThresholdBps: 7000,
			DisputeThresholdBps:  6000,
			DisputeWindow:        duration{48 * time.Hour},
			BatchSize:            100,
			LockTTL:              duration{4 * time.Minute},
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: duration{time.Second},
			MaxDelay:     duration{10 * time.Second},
			Factor:       2,
		},
		Archive: ArchiveConfig{
			Cron:          "0 3 * * *",
			RetentionDays: 90,
		},
		Server: ServerConfig{
			Port: 8080,
		},
	}
}

// needsGateway reports whether the mode runs the webhook gateway.
func needsGateway(mode string) bool {
	return mode == "full" || mode == "ingest"
}

// needsChain reports whether the mode submits settlement transactions.
func needsChain(mode string) bool {
	return mode == "full" || mode == "consensus"
}

// Validate checks the configuration for the selected mode. A failure here
// is fatal: the process must refuse to start rather than run partially
// configured.
func (c *Config) Validate() error {
	var problems []string

	switch c.Mode {
	case "full", "ingest", "consensus":
	default:
		problems = append(problems, fmt.Sprintf("unknown mode %q", c.Mode))
	}

	switch c.Environment {
	case "production", "development":
	default:
		problems = append(problems, fmt.Sprintf("unknown environment %q", c.Environment))
	}

	if c.Database.DSN == "" && (c.Database.Host == "" || c.Database.Database == "" || c.Database.User == "") {
		problems = append(problems, "database: dsn or host/database/user required")
	}
	if c.Redis.Addr == "" {
		problems = append(problems, "redis: addr required")
	}

	if needsGateway(c.Mode) && c.Environment == "production" && c.Webhook.Secret == "" {
		problems = append(problems, "webhook: secret required in production")
	}
	// The parser attributes log lines by program ID, so every mode needs
	// it even when no transactions are signed.
	if c.Chain.ProgramID == "" {
		problems = append(problems, "chain: program_id required")
	}
	if c.Webhook.RateLimit <= 0 {
		problems = append(problems, "webhook: rate_limit must be positive")
	}

	if needsChain(c.Mode) {
		if c.Chain.RPCURL == "" {
			problems = append(problems, "chain: rpc_url required")
		}
		if c.Chain.AuthorityKey == "" && c.Chain.EncryptedKeyPath == "" {
			problems = append(problems, "chain: authority_key or encrypted_key_path required")
		}
		if c.Chain.EncryptedKeyPath != "" && c.Chain.KeyPassword == "" {
			problems = append(problems, "chain: key_password required with encrypted_key_path")
		}
	}

	if c.Consensus.ProposalThresholdBps < 0 || c.Consensus.ProposalThresholdBps > 10000 {
		problems = append(problems, "consensus: proposal_threshold_bps must be within [0, 10000]")
	}
	if c.Consensus.DisputeThresholdBps < 0 || c.Consensus.DisputeThresholdBps > 10000 {
		problems = append(problems, "consensus: dispute_threshold_bps must be within [0, 10000]")
	}
	if c.Consensus.Interval.Duration <= 0 {
		problems = append(problems, "consensus: interval must be positive")
	}

	if c.Archive.Enabled {
		if c.S3.Bucket == "" {
			problems = append(problems, "archive: s3 bucket required when archiving is enabled")
		}
		if c.Archive.RetentionDays <= 0 {
			problems = append(problems, "archive: retention_days must be positive")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}
