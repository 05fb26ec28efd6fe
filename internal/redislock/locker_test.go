package redislock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLocker(client, "test:"), mr
}

func TestAcquireIsExclusiveUntilReleased(t *testing.T) {
	ctx := context.Background()
	locker, mr := newLocker(t)

	lease, ok, err := locker.Acquire(ctx, "charge:1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "test:charge:1", lease.Key)
	assert.True(t, mr.Exists("test:charge:1"))

	_, ok, err = locker.Acquire(ctx, "charge:1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	released, err := locker.Release(ctx, lease)
	require.NoError(t, err)
	assert.True(t, released)
	assert.False(t, mr.Exists("test:charge:1"))

	_, ok, err = locker.Acquire(ctx, "charge:1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLeaseLapsesWithTTL(t *testing.T) {
	ctx := context.Background()
	locker, mr := newLocker(t)

	stale, ok, err := locker.Acquire(ctx, "sweep:2025-03-01", 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, mr.TTL("test:sweep:2025-03-01"))

	mr.FastForward(31 * time.Second)

	fresh, ok, err := locker.Acquire(ctx, "sweep:2025-03-01", 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	// The lapsed holder must not delete the new holder's key.
	released, err := locker.Release(ctx, stale)
	require.NoError(t, err)
	assert.False(t, released)
	assert.True(t, mr.Exists("test:sweep:2025-03-01"))

	released, err = locker.Release(ctx, fresh)
	require.NoError(t, err)
	assert.True(t, released)
}

func TestAcquireValidatesArguments(t *testing.T) {
	ctx := context.Background()
	locker, _ := newLocker(t)

	_, _, err := locker.Acquire(ctx, "", time.Minute)
	assert.ErrorIs(t, err, ErrEmptyKey)
	_, _, err = locker.Acquire(ctx, "k", 0)
	assert.ErrorIs(t, err, ErrInvalidTTL)

	released, err := locker.Release(ctx, Lease{})
	require.NoError(t, err)
	assert.False(t, released)

	assert.Nil(t, NewLocker(nil, ""))
}

func TestAcquireSurfacesConnectionErrors(t *testing.T) {
	locker, mr := newLocker(t)
	mr.Close()

	_, ok, err := locker.Acquire(context.Background(), "charge:2", time.Minute)
	require.Error(t, err)
	assert.False(t, ok)
}
