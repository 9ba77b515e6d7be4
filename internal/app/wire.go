package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/fundingfarm/fundingbot/internal/blob/s3"
	"github.com/fundingfarm/fundingbot/internal/config"
	"github.com/fundingfarm/fundingbot/internal/domain"
	"github.com/fundingfarm/fundingbot/internal/executor"
	"github.com/fundingfarm/fundingbot/internal/monitor"
	"github.com/fundingfarm/fundingbot/internal/notify"
	"github.com/fundingfarm/fundingbot/internal/scanner"
	"github.com/fundingfarm/fundingbot/internal/scanner/cache"
	"github.com/fundingfarm/fundingbot/internal/server/ws"
	"github.com/fundingfarm/fundingbot/internal/store/postgres"
	"github.com/fundingfarm/fundingbot/internal/venue"
	"github.com/fundingfarm/fundingbot/internal/venue/extended"
	"github.com/fundingfarm/fundingbot/internal/venue/hyperliquid"
	"github.com/fundingfarm/fundingbot/internal/venue/lighter"
	"github.com/fundingfarm/fundingbot/internal/venue/paradex"
)

// Dependencies bundles every component the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Registry  *venue.Registry
	Scanner   *scanner.Scanner
	Executor  *executor.Executor
	Portfolio *monitor.Portfolio

	// Optional; nil when the corresponding backend is not configured.
	Strategies domain.StrategyStore
	Notifier   *notify.Notifier
	Hub        *ws.Hub
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Venue adapters ---
	// A factory failure excludes its venue and degrades the scan; it is
	// never fatal.
	factories := map[string]venue.Factory{}
	if cfg.Hyperliquid.Enabled {
		factories["hyperliquid"] = func() (venue.Adapter, error) {
			return hyperliquid.New(cfg.Hyperliquid.BaseURL, cfg.Hyperliquid.PrivateKey)
		}
	}
	if cfg.Paradex.Enabled {
		factories["paradex"] = func() (venue.Adapter, error) {
			return paradex.New(cfg.Paradex.BaseURL, cfg.Paradex.Wallet, cfg.Paradex.JWTToken)
		}
	}
	if cfg.Lighter.Enabled {
		factories["lighter"] = func() (venue.Adapter, error) {
			return lighter.New(cfg.Lighter.BaseURL, cfg.Lighter.APIKey, cfg.Lighter.AccountIndex, cfg.Lighter.APIKeyIndex)
		}
	}
	if cfg.Extended.Enabled {
		factories["extended"] = func() (venue.Adapter, error) {
			c, err := extended.New(cfg.Extended.BaseURL, cfg.Extended.APIKey, cfg.Extended.APISecret, cfg.Extended.VaultID)
			if err != nil {
				return nil, err
			}
			if err := c.SyncClock(ctx); err != nil {
				logger.Warn("extended clock sync failed, using local time",
					slog.String("error", err.Error()),
				)
			}
			return c, nil
		}
	}
	deps.Registry = venue.NewRegistry(factories, logger)

	// --- Scan cache and guard ---
	var scanCache domain.ScanCache
	var scanGuard domain.ScanGuard
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedisClient(ctx, cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		scanCache = cache.NewRedisCache(redisClient, cfg.Redis.ScanTTL.Duration)
		scanGuard = cache.NewRedisGuard(redisClient)
	} else {
		scanCache = cache.NewMemoryCache()
		scanGuard = cache.NewMemoryGuard()
	}

	// --- PostgreSQL archives ---
	var execStore domain.ExecutionStore
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.Strategies = postgres.NewStrategyStore(pool)
		execStore = postgres.NewExecutionStore(pool)
	}

	// --- S3 snapshot archive ---
	var archiver domain.SnapshotArchiver
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		archiver = s3blob.NewArchiver(s3Client, cfg.S3.Prefix)
	}

	// --- Core components ---
	agg := scanner.NewAggregator(deps.Registry, logger)
	deps.Scanner = scanner.New(agg, scanGuard, scanCache, archiver, logger)

	deps.Executor = executor.New(deps.Registry, deps.Strategies, execStore, logger)
	if cfg.Executor.OrderTimeout.Duration > 0 {
		deps.Executor.SetOrderTimeout(cfg.Executor.OrderTimeout.Duration)
	}

	deps.Portfolio = monitor.NewPortfolio(logger)
	closers = append(closers, deps.Portfolio.StopAll)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	}

	// --- Event surface ---
	if cfg.Server.Enabled {
		deps.Hub = ws.NewHub(logger)
	}

	return deps, cleanup, nil
}
