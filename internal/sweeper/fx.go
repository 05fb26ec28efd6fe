package sweeper

import (
	"context"

	"github.com/smallbiznis/mealsub/internal/config"
	"github.com/smallbiznis/mealsub/internal/redislock"
	sweeperdomain "github.com/smallbiznis/mealsub/internal/sweeper/domain"
	"github.com/smallbiznis/mealsub/internal/sweeper/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("sweeper",
	fx.Provide(repository.Provide),
	fx.Provide(provideDayGuard),
	fx.Provide(New),
)

// CronModule schedules the daily run; only the scheduler binary installs it.
var CronModule = fx.Module("sweeper.cron",
	fx.Provide(NewRunner),
	fx.Invoke(startRunner),
)

type guardParams struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Holder *config.SweeperConfigHolder
	Repo   sweeperdomain.Repository
	Locker *redislock.Locker `optional:"true"`
}

func provideDayGuard(p guardParams) DayGuard {
	if p.Locker == nil {
		return NewDBGuard(p.DB, p.Repo)
	}
	p.Log.Named("sweeper").Info("sweeper day guard uses redis leases")
	return NewRedisGuard(p.Locker, p.Holder)
}

func startRunner(lc fx.Lifecycle, runner *Runner) {
	var cancel context.CancelFunc
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			return runner.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			return runner.Stop(ctx)
		},
	})
}
