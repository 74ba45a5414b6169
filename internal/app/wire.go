package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/zmartlabs/zmart-sync/internal/blob/s3"
	"github.com/zmartlabs/zmart-sync/internal/cache/redis"
	"github.com/zmartlabs/zmart-sync/internal/chain"
	"github.com/zmartlabs/zmart-sync/internal/config"
	"github.com/zmartlabs/zmart-sync/internal/consensus"
	"github.com/zmartlabs/zmart-sync/internal/domain"
	"github.com/zmartlabs/zmart-sync/internal/ingest"
	"github.com/zmartlabs/zmart-sync/internal/retry"
	"github.com/zmartlabs/zmart-sync/internal/server/handler"
	"github.com/zmartlabs/zmart-sync/internal/store/postgres"
)

// Dependencies bundles everything the modes need, constructed by Wire once
// per process and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	Markets     domain.MarketStore
	Votes       domain.VoteStore
	Events      domain.EventStore
	Trades      domain.TradeStore
	Admin       domain.AdminStore
	ChainConfig domain.ChainConfigStore

	// Cache
	RateLimiter domain.RateLimiter
	Locks       domain.LockManager

	// Ingestion
	Parser *ingest.Parser
	Router *ingest.Router

	// Consensus
	Scheduler *consensus.Scheduler

	// Archival; nil unless archiving is enabled.
	Archiver *s3blob.Archiver

	// Health probes by dependency name.
	Pingers map[string]handler.Pinger
}

// modeRunsGateway reports whether the mode ingests webhooks.
func modeRunsGateway(mode string) bool {
	return mode == "full" || mode == "ingest"
}

// modeRunsConsensus reports whether the mode settles votes on-chain.
func modeRunsConsensus(mode string) bool {
	return mode == "full" || mode == "consensus"
}

// Wire constructs the concrete dependency graph for the configured mode.
// Subsystems a mode does not run are left nil and their credentials are
// never touched.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Pingers: map[string]handler.Pinger{}}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)
	deps.Pingers["postgres"] = pgClient

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.Markets = postgres.NewMarketStore(pool)
	deps.Votes = postgres.NewVoteStore(pool)
	deps.Events = postgres.NewEventStore(pool)
	deps.Trades = postgres.NewTradeStore(pool)
	deps.Admin = postgres.NewAdminStore(pool)
	deps.ChainConfig = postgres.NewChainConfigStore(pool)

	// --- Redis ---
	rdClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = rdClient.Close() })
	deps.Pingers["redis"] = rdClient
	deps.RateLimiter = redis.NewRateLimiter(rdClient)
	deps.Locks = redis.NewLockManager(rdClient)

	// --- Ingestion pipeline ---
	if modeRunsGateway(cfg.Mode) {
		deps.Parser = ingest.NewParser(cfg.Chain.ProgramID, logger)
		market := ingest.NewMarketWriter(deps.Markets, deps.Events, logger)
		trade := ingest.NewTradeWriter(deps.Trades, deps.Markets, deps.Events, logger)
		vote := ingest.NewVoteWriter(deps.Votes, deps.Markets, deps.Events, logger)
		admin := ingest.NewAdminWriter(deps.Admin, deps.ChainConfig, deps.Events, logger)
		deps.Router = ingest.NewRouter(market, trade, vote, admin, logger)
	}

	// --- Chain client and consensus ---
	if modeRunsConsensus(cfg.Mode) {
		seed, err := chain.LoadAuthorityKey(chain.KeyConfig{
			RawKey:           cfg.Chain.AuthorityKey,
			EncryptedKeyPath: cfg.Chain.EncryptedKeyPath,
			KeyPassword:      cfg.Chain.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: authority key: %w", err)
		}
		signer, err := chain.NewSigner(seed)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: signer: %w", err)
		}
		chainClient := chain.NewClient(chain.ClientConfig{
			RPCURL:          cfg.Chain.RPCURL,
			ProgramID:       cfg.Chain.ProgramID,
			Commitment:      cfg.Chain.Commitment,
			ConfirmTimeout:  cfg.Chain.ConfirmTimeout.Duration,
			ConfirmInterval: cfg.Chain.ConfirmInterval.Duration,
		}, signer, logger)
		logger.Info("settlement authority loaded",
			slog.String("authority", chainClient.Authority()),
		)

		policy := retry.Policy{
			MaxAttempts:  cfg.Retry.MaxAttempts,
			InitialDelay: cfg.Retry.InitialDelay.Duration,
			MaxDelay:     cfg.Retry.MaxDelay.Duration,
			Factor:       cfg.Retry.Factor,
		}
		proposal := consensus.NewAggregator(consensus.Config{
			Kind:         consensus.KindProposal,
			ThresholdBps: cfg.Consensus.ProposalThresholdBps,
			BatchSize:    cfg.Consensus.BatchSize,
			Retry:        policy,
		}, deps.Markets, deps.Votes, chainClient, logger)
		dispute := consensus.NewAggregator(consensus.Config{
			Kind:          consensus.KindDispute,
			ThresholdBps:  cfg.Consensus.DisputeThresholdBps,
			DisputeWindow: cfg.Consensus.DisputeWindow.Duration,
			BatchSize:     cfg.Consensus.BatchSize,
			Retry:         policy,
		}, deps.Markets, deps.Votes, chainClient, logger)

		schedCfg := consensus.SchedulerConfig{
			Interval: cfg.Consensus.Interval.Duration,
			LockTTL:  cfg.Consensus.LockTTL.Duration,
		}
		if cfg.Consensus.DistributedLock {
			schedCfg.Locks = deps.Locks
		}
		deps.Scheduler = consensus.NewScheduler(schedCfg, proposal, dispute, logger)
	}

	// --- Event archival ---
	if cfg.Archive.Enabled && cfg.Mode == "full" {
		blobClient, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		retention := time.Duration(cfg.Archive.RetentionDays) * 24 * time.Hour
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(blobClient), deps.Events, retention, 0, logger)
	}

	return deps, cleanup, nil
}
