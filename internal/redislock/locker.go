// Package redislock holds short-lived leases on Redis keys. A lease can only
// be given back by the holder that took it; otherwise it lapses with its TTL.
package redislock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

var (
	ErrEmptyKey   = errors.New("lease_key_empty")
	ErrInvalidTTL = errors.New("lease_ttl_invalid")
)

// releaseIfHeld deletes the key only while it still carries our token, so a
// lease that lapsed and was taken by someone else is left alone.
var releaseIfHeld = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lease is a held key. The zero Lease holds nothing.
type Lease struct {
	Key   string
	Token string
}

func (l Lease) Held() bool { return l.Key != "" && l.Token != "" }

type Locker struct {
	client redis.UniversalClient
	prefix string
}

// NewLocker returns nil for a nil client so callers can treat a missing
// Redis as "no distributed locking".
func NewLocker(client redis.UniversalClient, prefix string) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: client, prefix: prefix}
}

// Acquire takes key for ttl. It reports false without error when another
// holder has it.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, bool, error) {
	if key == "" {
		return Lease{}, false, ErrEmptyKey
	}
	if ttl <= 0 {
		return Lease{}, false, ErrInvalidTTL
	}

	lease := Lease{Key: l.prefix + key, Token: uuid.NewString()}
	ok, err := l.client.SetNX(ctx, lease.Key, lease.Token, ttl).Result()
	if err != nil || !ok {
		return Lease{}, false, err
	}
	return lease, true, nil
}

// Release gives the lease back. It reports whether the key was still ours.
func (l *Locker) Release(ctx context.Context, lease Lease) (bool, error) {
	if !lease.Held() {
		return false, nil
	}
	deleted, err := releaseIfHeld.Run(ctx, l.client, []string{lease.Key}, lease.Token).Int64()
	if err != nil {
		return false, err
	}
	return deleted == 1, nil
}
