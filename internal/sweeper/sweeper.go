package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	bundledomain "github.com/smallbiznis/mealsub/internal/bundle/domain"
	"github.com/smallbiznis/mealsub/internal/clock"
	"github.com/smallbiznis/mealsub/internal/config"
	obsmetrics "github.com/smallbiznis/mealsub/internal/observability/metrics"
	subscriptiondomain "github.com/smallbiznis/mealsub/internal/subscription/domain"
	sweeperdomain "github.com/smallbiznis/mealsub/internal/sweeper/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	jobExpireSubscriptions = "expire_subscriptions"
	jobExpireBundles       = "expire_bundles"

	resourceSubscription = "meal_subscription"
	resourceBundle       = "monthly_subscription"
)

var ErrInvalidConfig = errors.New("invalid_sweeper_config")

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	GenID           *snowflake.Node
	Clock           clock.Clock
	Config          *config.SweeperConfigHolder
	Repo            sweeperdomain.Repository
	Guard           DayGuard
	SubscriptionSvc subscriptiondomain.Service
	BundleSvc       bundledomain.Service
}

// Sweeper expires ACTIVE subscriptions and bundles whose end date has passed.
type Sweeper struct {
	db              *gorm.DB
	log             *zap.Logger
	genID           *snowflake.Node
	clock           clock.Clock
	cfg             *config.SweeperConfigHolder
	repo            sweeperdomain.Repository
	guard           DayGuard
	subscriptionSvc subscriptiondomain.Service
	bundleSvc       bundledomain.Service
}

func New(p Params) (*Sweeper, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.Config == nil || p.Repo == nil || p.Guard == nil || p.SubscriptionSvc == nil || p.BundleSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Sweeper{
		db:              p.DB,
		log:             p.Log.Named("sweeper").With(zap.String("component", "sweeper")),
		genID:           p.GenID,
		clock:           p.Clock,
		cfg:             p.Config,
		repo:            p.Repo,
		guard:           p.Guard,
		subscriptionSvc: p.SubscriptionSvc,
		bundleSvc:       p.BundleSvc,
	}, nil
}

// Sweep expires everything that ended before the calendar day of now. It is
// safe to repeat: only ACTIVE rows are selected, and a record that changed
// state concurrently is counted as skipped. Per-record failures are collected
// in Report.Err; the returned error is reserved for failures that stopped the
// selection itself.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (sweeperdomain.Report, error) {
	cfg := s.cfg.Get()
	report := sweeperdomain.Report{RunDate: clock.DateOf(now)}

	err := s.runJob(ctx, jobExpireSubscriptions, cfg.BatchSize, cfg.Timeout, func(ctx context.Context) error {
		part, err := s.expireSubscriptions(ctx, now, cfg.BatchSize)
		report.Add(part)
		return err
	})
	if err != nil {
		return report, err
	}

	err = s.runJob(ctx, jobExpireBundles, cfg.BatchSize, cfg.Timeout, func(ctx context.Context) error {
		part, err := s.expireBundles(ctx, now, cfg.BatchSize)
		report.Add(part)
		return err
	})
	return report, err
}

// RunDaily sweeps today unless another run already claimed the day.
func (s *Sweeper) RunDaily(ctx context.Context) (sweeperdomain.Report, error) {
	metrics := obsmetrics.Sweeper()
	if !s.cfg.Get().Enabled {
		metrics.IncRunSkipped(obsmetrics.SweeperSkipDisabled)
		return sweeperdomain.Report{}, sweeperdomain.ErrDisabled
	}

	now := s.clock.Now()
	day := clock.DateOf(now)
	claimed, err := s.guard.Claim(ctx, day, now)
	if err != nil {
		return sweeperdomain.Report{RunDate: day}, fmt.Errorf("claim sweep day: %w", err)
	}
	if !claimed {
		reason := s.guard.SkipReason()
		metrics.IncRunSkipped(reason)
		s.logger(ctx).Info("sweeper.run.skipped",
			zap.String("run_date", day.Format(time.DateOnly)),
			zap.String("reason", reason),
		)
		if reason == obsmetrics.SweeperSkipLockHeld {
			return sweeperdomain.Report{RunDate: day}, sweeperdomain.ErrSweepLocked
		}
		return sweeperdomain.Report{RunDate: day}, sweeperdomain.ErrAlreadySwept
	}

	report, err := s.Sweep(ctx, now)
	if err != nil {
		s.releaseDay(ctx, day)
		return report, err
	}

	// The sweep already happened; record it even if the caller went away.
	finishedAt := s.clock.Now()
	run := sweeperdomain.SweepRun{
		RunDate:    day,
		StartedAt:  now,
		FinishedAt: &finishedAt,
		Selected:   report.Selected,
		Expired:    report.Expired,
		Skipped:    report.Skipped,
		Failed:     report.Failed,
	}
	if err := s.repo.Record(context.WithoutCancel(ctx), s.db, run); err != nil {
		s.releaseDay(ctx, day)
		return report, fmt.Errorf("record sweep run: %w", err)
	}
	metrics.MarkSuccess(finishedAt)
	return report, nil
}

// releaseDay hands a claimed day back so a later run can retry it.
func (s *Sweeper) releaseDay(ctx context.Context, day time.Time) {
	if err := s.guard.Release(context.WithoutCancel(ctx), day); err != nil {
		s.logger(ctx).Warn("sweeper.release.failed",
			zap.String("run_date", day.Format(time.DateOnly)),
			zap.Error(err),
		)
	}
}

func (s *Sweeper) expireSubscriptions(ctx context.Context, now time.Time, batchSize int) (sweeperdomain.Report, error) {
	run := jobRunFromContext(ctx)
	today := clock.DateOf(now)
	report := sweeperdomain.Report{RunDate: today}

	var afterID snowflake.ID
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		batch, err := s.subscriptionSvc.ListExpirable(ctx, today, afterID, batchSize)
		if err != nil {
			return report, err
		}
		report.Selected += len(batch)

		for _, item := range batch {
			afterID = item.ID
			if err := ctx.Err(); err != nil {
				return report, err
			}
			err := s.subscriptionSvc.Expire(ctx, item.ID, now)
			s.countOutcome(ctx, run, &report, resourceSubscription, item.ID, err)
		}
		run.AddProcessed(len(batch))

		if len(batch) < batchSize {
			return report, nil
		}
	}
}

func (s *Sweeper) expireBundles(ctx context.Context, now time.Time, batchSize int) (sweeperdomain.Report, error) {
	run := jobRunFromContext(ctx)
	today := clock.DateOf(now)
	report := sweeperdomain.Report{RunDate: today}

	var afterID snowflake.ID
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		batch, err := s.bundleSvc.ListExpirable(ctx, today, afterID, batchSize)
		if err != nil {
			return report, err
		}
		report.Selected += len(batch)

		for _, item := range batch {
			afterID = item.ID
			if err := ctx.Err(); err != nil {
				return report, err
			}
			err := s.bundleSvc.ExpireBundle(ctx, item.ID, now)
			s.countOutcome(ctx, run, &report, resourceBundle, item.ID, err)
		}
		run.AddProcessed(len(batch))

		if len(batch) < batchSize {
			return report, nil
		}
	}
}

func (s *Sweeper) countOutcome(ctx context.Context, run *jobRun, report *sweeperdomain.Report, resource string, id snowflake.ID, err error) {
	metrics := obsmetrics.Sweeper()
	switch {
	case err == nil:
		report.Expired++
		metrics.AddRecords(resource, obsmetrics.SweeperOutcomeExpired, 1)
	case errors.Is(err, subscriptiondomain.ErrInvalidTransition):
		// Cancelled or expired by someone else since it was selected.
		report.Skipped++
		metrics.AddRecords(resource, obsmetrics.SweeperOutcomeSkipped, 1)
		s.logger(ctx).Debug("sweeper.record.skipped",
			zap.String("resource", resource),
			zap.String("id", idString(id)),
		)
	default:
		report.Failed++
		report.Err = errors.Join(report.Err, fmt.Errorf("expire %s %s: %w", resource, id, err))
		metrics.AddRecords(resource, obsmetrics.SweeperOutcomeFailed, 1)
		s.logSweeperError(ctx, run, "sweeper.record.failed", resource, id, err)
	}
}
