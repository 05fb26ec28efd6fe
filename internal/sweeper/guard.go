package sweeper

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/mealsub/internal/config"
	obsmetrics "github.com/smallbiznis/mealsub/internal/observability/metrics"
	"github.com/smallbiznis/mealsub/internal/redislock"
	sweeperdomain "github.com/smallbiznis/mealsub/internal/sweeper/domain"
	"gorm.io/gorm"
)

const keySweepDay = "sweep:day:"

// DayGuard makes sure a calendar day is swept at most once across instances.
type DayGuard interface {
	Claim(ctx context.Context, day, now time.Time) (bool, error)
	// Release hands the day back after a run that could not complete.
	Release(ctx context.Context, day time.Time) error
	// SkipReason labels runs refused by Claim.
	SkipReason() string
}

// dbGuard claims the day by inserting its sweep_runs row.
type dbGuard struct {
	db   *gorm.DB
	repo sweeperdomain.Repository
}

func NewDBGuard(db *gorm.DB, repo sweeperdomain.Repository) DayGuard {
	return &dbGuard{db: db, repo: repo}
}

func (g *dbGuard) Claim(ctx context.Context, day, now time.Time) (bool, error) {
	return g.repo.Claim(ctx, g.db, day, now)
}

func (g *dbGuard) Release(ctx context.Context, day time.Time) error {
	return g.repo.Release(ctx, g.db, day)
}

func (g *dbGuard) SkipReason() string { return obsmetrics.SweeperSkipAlreadySwept }

// redisGuard leases a per-day key for the configured TTL. After a successful
// run the lease is left to lapse so other instances keep skipping the day.
type redisGuard struct {
	locker *redislock.Locker
	cfg    *config.SweeperConfigHolder

	mu     sync.Mutex
	leases map[string]redislock.Lease
}

func NewRedisGuard(locker *redislock.Locker, cfg *config.SweeperConfigHolder) DayGuard {
	return &redisGuard{locker: locker, cfg: cfg, leases: map[string]redislock.Lease{}}
}

func (g *redisGuard) Claim(ctx context.Context, day, _ time.Time) (bool, error) {
	key := dayKey(day)
	lease, ok, err := g.locker.Acquire(ctx, key, g.cfg.Get().LockTTL)
	if err != nil || !ok {
		return false, err
	}
	g.mu.Lock()
	g.leases[key] = lease
	g.mu.Unlock()
	return true, nil
}

func (g *redisGuard) Release(ctx context.Context, day time.Time) error {
	key := dayKey(day)
	g.mu.Lock()
	lease := g.leases[key]
	delete(g.leases, key)
	g.mu.Unlock()
	_, err := g.locker.Release(ctx, lease)
	return err
}

func (g *redisGuard) SkipReason() string { return obsmetrics.SweeperSkipLockHeld }

func dayKey(day time.Time) string {
	return keySweepDay + day.UTC().Format(time.DateOnly)
}
