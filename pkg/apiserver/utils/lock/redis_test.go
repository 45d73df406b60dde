package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) *Locker {
	t.Helper()
	mr := miniredis.RunT(t)
	cli := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cli.Close() })
	return NewRedisLocker(cli)
}

func TestRedisLockLockUnlock(t *testing.T) {
	ctx := context.Background()
	locker := newTestLocker(t)

	l := locker.NewLock("copy:run-1")
	require.NoError(t, l.Lock(ctx))
	require.NoError(t, l.Unlock(ctx))

	// Reacquirable after release.
	l2 := locker.NewLock("copy:run-1")
	require.NoError(t, l2.Lock(ctx))
	require.NoError(t, l2.Unlock(ctx))
}

func TestRedisLockTryLockContention(t *testing.T) {
	ctx := context.Background()
	locker := newTestLocker(t)

	held := locker.NewLock("copy:run-1")
	require.NoError(t, held.Lock(ctx))

	contender := locker.NewLock("copy:run-1")
	assert.Error(t, contender.TryLock(ctx))

	require.NoError(t, held.Unlock(ctx))
	assert.NoError(t, contender.TryLock(ctx))
	require.NoError(t, contender.Unlock(ctx))
}

func TestRedisLockLockRespectsContext(t *testing.T) {
	locker := newTestLocker(t)

	held := locker.NewLock("copy:run-1")
	require.NoError(t, held.Lock(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	contender := locker.NewLock("copy:run-1")
	assert.Error(t, contender.Lock(ctx))
}

func TestRedisLockWithExpiry(t *testing.T) {
	ctx := context.Background()
	locker := newTestLocker(t)

	l := locker.NewLockWithExpiry("copy:run-1", time.Minute)
	require.NoError(t, l.Lock(ctx))
	require.NoError(t, l.Unlock(ctx))
}
