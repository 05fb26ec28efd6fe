package service

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mealsub/internal/redislock"
	"go.uber.org/zap"
)

// targetLocker serializes charges and refunds per subscription or bundle id.
// ok is false when another caller holds the target.
type targetLocker interface {
	TryLock(ctx context.Context, id snowflake.ID) (unlock func(), ok bool, err error)
}

// targetLocks is the in-process locker. Entries are dropped once released so
// the map only holds in-flight targets.
type targetLocks struct {
	mu   sync.Mutex
	held map[snowflake.ID]struct{}
}

func newTargetLocks() *targetLocks {
	return &targetLocks{held: map[snowflake.ID]struct{}{}}
}

func (l *targetLocks) TryLock(_ context.Context, id snowflake.ID) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[id]; busy {
		return nil, false, nil
	}
	l.held[id] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, id)
			l.mu.Unlock()
		})
	}, true, nil
}

// leaseLocks shares the lock across instances through Redis leases. A holder
// that dies leaves the lease to lapse after ttl.
type leaseLocks struct {
	locker *redislock.Locker
	ttl    time.Duration
	log    *zap.Logger
}

func newLeaseLocks(locker *redislock.Locker, ttl time.Duration, log *zap.Logger) *leaseLocks {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &leaseLocks{locker: locker, ttl: ttl, log: log}
}

func (l *leaseLocks) TryLock(ctx context.Context, id snowflake.ID) (func(), bool, error) {
	lease, ok, err := l.locker.Acquire(ctx, "charge:"+id.String(), l.ttl)
	if err != nil || !ok {
		return nil, false, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if _, err := l.locker.Release(context.WithoutCancel(ctx), lease); err != nil {
				l.log.Warn("release charge lease", zap.String("target_id", id.String()), zap.Error(err))
			}
		})
	}, true, nil
}
