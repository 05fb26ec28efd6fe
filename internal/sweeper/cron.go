package sweeper

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/mealsub/internal/config"
	sweeperdomain "github.com/smallbiznis/mealsub/internal/sweeper/domain"
	"go.uber.org/zap"
)

// Runner triggers RunDaily on the configured cron schedule and follows
// schedule changes from the config file.
type Runner struct {
	sweeper *Sweeper
	holder  *config.SweeperConfigHolder
	log     *zap.Logger
	cron    *cron.Cron

	mu       sync.Mutex
	ctx      context.Context
	entryID  cron.EntryID
	schedule string
}

func NewRunner(sweeper *Sweeper, holder *config.SweeperConfigHolder, log *zap.Logger) *Runner {
	log = log.Named("sweeper.cron")
	cronLogger := cron.PrintfLogger(zap.NewStdLog(log))
	return &Runner{
		sweeper: sweeper,
		holder:  holder,
		log:     log,
		cron:    cron.New(cron.WithChain(cron.Recover(cronLogger)), cron.WithLocation(time.UTC)),
		ctx:     context.Background(),
	}
}

func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()

	if err := r.apply(r.holder.Get()); err != nil {
		return err
	}
	r.holder.OnChange(func(cfg config.SweeperConfig) {
		if err := r.apply(cfg); err != nil {
			r.log.Warn("sweeper.schedule.rejected", zap.String("schedule", cfg.Schedule), zap.Error(err))
		}
	})
	r.cron.Start()
	return nil
}

func (r *Runner) Stop(ctx context.Context) error {
	done := r.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// apply swaps the cron entry when the schedule changed.
func (r *Runner) apply(cfg config.SweeperConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.entryID != 0 && cfg.Schedule == r.schedule {
		return nil
	}
	id, err := r.cron.AddFunc(cfg.Schedule, r.tick)
	if err != nil {
		return err
	}
	if r.entryID != 0 {
		r.cron.Remove(r.entryID)
	}
	r.entryID = id
	r.schedule = cfg.Schedule
	r.log.Info("sweeper.schedule.applied", zap.String("schedule", cfg.Schedule))
	return nil
}

func (r *Runner) tick() {
	r.mu.Lock()
	ctx := r.ctx
	r.mu.Unlock()

	report, err := r.sweeper.RunDaily(ctx)
	switch {
	case err == nil:
		fields := []zap.Field{
			zap.String("run_date", report.RunDate.Format(time.DateOnly)),
			zap.Int("selected", report.Selected),
			zap.Int("expired", report.Expired),
			zap.Int("skipped", report.Skipped),
			zap.Int("failed", report.Failed),
		}
		if report.Err != nil {
			r.log.Warn("sweeper.run.finished", append(fields, zap.Error(report.Err))...)
			return
		}
		r.log.Info("sweeper.run.finished", fields...)
	case errors.Is(err, sweeperdomain.ErrAlreadySwept),
		errors.Is(err, sweeperdomain.ErrSweepLocked),
		errors.Is(err, sweeperdomain.ErrDisabled):
		r.log.Debug("sweeper.run.skipped", zap.Error(err))
	default:
		r.log.Error("sweeper.run.failed", zap.Error(err))
	}
}
