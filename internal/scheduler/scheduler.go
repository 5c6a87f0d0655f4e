// Package scheduler runs Omnily's background maintenance jobs on cron
// schedules: periodic wallet stats snapshots into the cache, and a nightly
// sweep that suspends wallets with no activity inside the dormancy window.
//
// Jobs are best effort. A failed run logs and waits for the next tick;
// nothing here is on a request path.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/omnilypro/omnily/internal/cache"
	"github.com/omnilypro/omnily/internal/config"
	"github.com/omnilypro/omnily/internal/observability"
	"github.com/omnilypro/omnily/internal/wallet"
)

const sweepPageSize = 200

// Scheduler owns the cron runner and the job implementations.
type Scheduler struct {
	ledger  *wallet.Ledger
	cache   *cache.Cache
	orgID   uuid.UUID
	cfg     *config.SchedulerConfig
	metrics *observability.MetricsCollector
	logger  *slog.Logger
	cron    *cron.Cron
}

// New creates a Scheduler for one organization's wallets.
// The cache may be nil; the stats snapshot job then degrades to a no-op.
func New(
	ledger *wallet.Ledger,
	statsCache *cache.Cache,
	orgID uuid.UUID,
	cfg *config.SchedulerConfig,
	metrics *observability.MetricsCollector,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		ledger:  ledger,
		cache:   statsCache,
		orgID:   orgID,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
		cron:    cron.New(),
	}
}

// Start registers the jobs and starts the cron runner.
// Returns a stop function that blocks until in-flight jobs finish.
func (s *Scheduler) Start(ctx context.Context) (func(), error) {
	if _, err := s.cron.AddFunc(s.cfg.StatsCron(), func() {
		s.runJob(ctx, "stats_snapshot", s.refreshStats)
	}); err != nil {
		return nil, fmt.Errorf("registering stats snapshot job: %w", err)
	}

	if _, err := s.cron.AddFunc(s.cfg.SweepCron(), func() {
		s.runJob(ctx, "dormant_sweep", s.sweepDormant)
	}); err != nil {
		return nil, fmt.Errorf("registering dormant sweep job: %w", err)
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "scheduler started",
		slog.String("stats_cron", s.cfg.StatsCron()),
		slog.String("sweep_cron", s.cfg.SweepCron()),
		slog.Duration("dormant_after", s.cfg.DormantAfter()),
	)

	return func() {
		stopCtx := s.cron.Stop()
		<-stopCtx.Done()
		s.logger.Info("scheduler stopped")
	}, nil
}

func (s *Scheduler) runJob(ctx context.Context, name string, job func(ctx context.Context) error) {
	start := time.Now()
	err := job(ctx)
	s.metrics.RecordSchedulerRun(name, err)
	if err != nil {
		s.logger.WarnContext(ctx, "scheduled job failed",
			slog.String("job", name),
			slog.String("error", err.Error()),
			slog.Duration("elapsed", time.Since(start)),
		)
		return
	}
	s.logger.DebugContext(ctx, "scheduled job completed",
		slog.String("job", name),
		slog.Duration("elapsed", time.Since(start)),
	)
}

// refreshStats recomputes the wallet stats aggregate and pushes it into the
// cache so dashboard reads stay warm even between invalidations.
func (s *Scheduler) refreshStats(ctx context.Context) error {
	stats, err := s.ledger.Stats(ctx)
	if err != nil {
		return fmt.Errorf("computing wallet stats: %w", err)
	}
	s.cache.SetStats(ctx, s.orgID, stats)
	return nil
}

// sweepDormant suspends active wallets whose last balance change is older
// than the dormancy window. Suspension is reversible through the status
// endpoint, so a returning customer is one support action away from
// spending again.
func (s *Scheduler) sweepDormant(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-s.cfg.DormantAfter())
	var suspended, scanned int

	for offset := 0; ; offset += sweepPageSize {
		wallets, err := s.ledger.List(ctx, sweepPageSize, offset)
		if err != nil {
			return fmt.Errorf("listing wallets at offset %d: %w", offset, err)
		}
		if len(wallets) == 0 {
			break
		}
		scanned += len(wallets)

		for _, w := range wallets {
			if w.Status != wallet.StatusActive || !w.UpdatedAt.Before(cutoff) {
				continue
			}
			if err := s.ledger.SetStatus(ctx, w.ID, wallet.StatusSuspended); err != nil {
				s.logger.WarnContext(ctx, "suspending dormant wallet",
					slog.String("wallet_id", w.ID.String()),
					slog.String("error", err.Error()),
				)
				continue
			}
			suspended++
		}

		if len(wallets) < sweepPageSize {
			break
		}
	}

	if suspended > 0 {
		s.logger.InfoContext(ctx, "dormant wallet sweep finished",
			slog.Int("scanned", scanned),
			slog.Int("suspended", suspended),
			slog.Time("cutoff", cutoff),
		)
		// The aggregate changed; active_wallets is now stale.
		s.cache.InvalidateStats(ctx, s.orgID)
	}
	return nil
}
