package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	goutils "github.com/jkaninda/go-utils"

	"github.com/omnilypro/omnily/internal/audit"
	"github.com/omnilypro/omnily/internal/cache"
	"github.com/omnilypro/omnily/internal/config"
	"github.com/omnilypro/omnily/internal/gateway/httpapi"
	"github.com/omnilypro/omnily/internal/observability"
	"github.com/omnilypro/omnily/internal/permissions"
	"github.com/omnilypro/omnily/internal/ratelimit"
	"github.com/omnilypro/omnily/internal/scheduler"
	"github.com/omnilypro/omnily/internal/storage"
	pgstore "github.com/omnilypro/omnily/internal/storage/postgres"
	sqlitestore "github.com/omnilypro/omnily/internal/storage/sqlite"
	"github.com/omnilypro/omnily/internal/team"
	"github.com/omnilypro/omnily/internal/wallet"
)

var (
	serveConfigPath string
	servePort       string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Omnily server (HTTP API, scheduler)",
	RunE:  runServe,
}

func init() {
	// Register flags on both root and serve so that
	// `omnily --config path` and `omnily serve --config path` both work.
	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().StringVar(&serveConfigPath, "config", config.DefaultConfigPath(), "path to config file")
		cmd.Flags().StringVar(&servePort, "port", "", "override HTTP listen address (e.g. :8080)")
	}
}

// runServe starts the Omnily server: storage, ledger, resolver, audit trail,
// optional cache and scheduler, and the HTTP API gateway.
func runServe(_ *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(goutils.Env("OMNILY_CONFIG", serveConfigPath))
	if err != nil {
		return err
	}

	// Apply CLI overrides.
	if servePort != "" {
		if cfg.HTTP == nil {
			cfg.HTTP = &config.HTTPConfig{Enabled: true}
		}
		cfg.HTTP.ListenAddr = servePort
	}

	if cfg.HTTP == nil || !cfg.HTTP.Enabled {
		return fmt.Errorf("http api disabled in config")
	}

	logger.Info("starting omnily server", slog.String("config", serveConfigPath))

	// Ensure data directory exists.
	dataDir := cfg.ResolvedDataDir()
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return fmt.Errorf("creating data directory %s: %w", dataDir, err)
	}

	// Signal-aware context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Observability.
	obs, err := observability.New(cfg.Observability, logger)
	if err != nil {
		return fmt.Errorf("initializing observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		obs.Shutdown(shutdownCtx)
	}()

	// Storage (unified: SQLite default, PostgreSQL optional).
	store, err := initStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("closing store", slog.String("error", err.Error()))
		}
	}()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	orgName := cfg.Org.OrgName()
	orgID, err := store.EnsureOrg(ctx, orgName)
	if err != nil {
		return fmt.Errorf("ensuring org %q: %w", orgName, err)
	}
	logger.Info("org initialized",
		slog.String("org_name", orgName),
		slog.String("org_id", orgID.String()),
	)

	// Wallet ledger, with the store wrapped for metrics/tracing when enabled.
	walletStore := store.Wallets()
	if obs != nil && obs.Metrics != nil {
		walletStore = observability.NewInstrumentedWalletStore(
			walletStore, obs.Metrics, obs.TracerOrNil(), obs.Monitor,
		)
	}
	ledger := wallet.NewLedger(walletStore, orgID, logger)

	// Permission resolver and team service.
	resolver := permissions.NewResolver(store.Permissions(), orgID, logger)
	teamSvc := team.NewService(store.Staff(), resolver, orgID, logger)

	// Audit trail (database + append-only JSONL file).
	recorder, err := audit.NewRecorder(store.Audit(), orgID, cfg.AuditLogPath(), logger)
	if err != nil {
		return fmt.Errorf("initializing audit recorder: %w", err)
	}
	defer recorder.Close()

	// Redis stats cache (optional).
	var statsCache *cache.Cache
	if cfg.Cache != nil && cfg.Cache.Enabled {
		statsCache, err = cache.New(ctx, cache.Config{
			Addr:     cfg.Cache.CacheAddr(),
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
			TTL:      cfg.Cache.TTL(),
			Prefix:   cfg.Cache.Prefix(),
		}, logger)
		if err != nil {
			// Cache is an optimization, not a dependency: run without it.
			logger.Error("redis cache unavailable, stats served from database",
				slog.String("error", err.Error()),
			)
			statsCache = nil
		} else {
			defer func() {
				if err := statsCache.Close(); err != nil {
					logger.Error("closing cache", slog.String("error", err.Error()))
				}
			}()
		}
	}

	// Dependency health checks for /readyz.
	if obs != nil && obs.Health != nil && cfg.Observability != nil && cfg.Observability.Health != nil {
		if cfg.Observability.Health.IncludeDB {
			obs.Health.AddCheck("database", store.Ping)
		}
		if cfg.Observability.Health.IncludeCache && statsCache != nil {
			obs.Health.AddCheck("cache", statsCache.Ping)
		}
	}

	// Background jobs (optional).
	if cfg.Scheduler != nil && cfg.Scheduler.Enabled {
		var schedMetrics *observability.MetricsCollector
		if obs != nil {
			schedMetrics = obs.Metrics
		}
		sched := scheduler.New(ledger, statsCache, orgID, cfg.Scheduler, schedMetrics, logger)
		stopScheduler, err := sched.Start(ctx)
		if err != nil {
			return fmt.Errorf("starting scheduler: %w", err)
		}
		defer stopScheduler()
	}

	// HTTP API gateway.
	limiter := ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: cfg.HTTP.RateLimit.RequestsPerMinute,
		BurstSize:         cfg.HTTP.RateLimit.BurstSize,
	})

	gwCfg := httpapi.Config{
		ListenAddr:     cfg.HTTP.Addr(),
		EnableDocs:     cfg.HTTP.EnableDocs,
		APIKeys:        cfg.HTTP.APIKeyStaffMapping,
		MaxRequestSize: cfg.HTTP.MaxRequestSize(),
	}
	if obs != nil {
		gwCfg.HealthChecker = obs.Health
		if obs.Metrics != nil {
			gwCfg.Metrics = obs.Metrics
			gwCfg.MetricsRegistry = obs.Metrics.Registry
			if cfg.Observability.Metrics != nil {
				gwCfg.MetricsPath = cfg.Observability.Metrics.Path
			}
		}
		if obs.Tracer != nil {
			gwCfg.Tracer = obs.Tracer.Tracer()
		}
	}

	gw := httpapi.NewGateway(gwCfg, ledger, store.Customers(), resolver, teamSvc, recorder, limiter, orgID, logger)
	if statsCache != nil {
		gw.WithStatsCache(statsCache)
	}

	// Start the gateway in a goroutine and wait for signal or server error.
	errs := make(chan error, 1)
	go func() {
		errs <- gw.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errs:
		if err != nil {
			logger.Error("http gateway exited with error", slog.String("error", err.Error()))
		}
	}

	// Graceful shutdown with deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := gw.Stop(shutdownCtx); err != nil {
		logger.Error("stopping http gateway", slog.String("error", err.Error()))
	}

	return nil
}

// initStore creates the storage backend selected by config.
func initStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	switch driver := cfg.StorageDriverName(); driver {
	case storage.DriverPostgres:
		return initPostgresStore(cfg, logger)
	case storage.DriverSQLite:
		return initSQLiteStore(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown storage driver: %q", driver)
	}
}

func initSQLiteStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	sqliteCfg := sqlitestore.Config{Path: cfg.DatabasePath()}
	if cfg.Storage != nil && cfg.Storage.SQLite != nil {
		if cfg.Storage.SQLite.Path != "" {
			sqliteCfg.Path = cfg.Storage.SQLite.Path
		}
		sqliteCfg.JournalMode = cfg.Storage.SQLite.JournalMode
	}
	return sqlitestore.Open(sqliteCfg, logger)
}

func initPostgresStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	if cfg.Storage == nil || cfg.Storage.Postgres == nil || cfg.Storage.Postgres.DSN == "" {
		return nil, fmt.Errorf("postgres driver selected but storage.postgres.dsn is not set")
	}
	pg := cfg.Storage.Postgres

	db, err := pgstore.Open(pgstore.Config{
		DSN:             pg.DSN,
		MaxOpenConns:    pg.MaxOpenConns,
		MaxIdleConns:    pg.MaxIdleConns,
		ConnMaxLifetime: time.Duration(pg.ConnMaxLifetimeS) * time.Second,
	}, logger)
	if err != nil {
		return nil, err
	}
	return pgstore.NewStore(db), nil
}
