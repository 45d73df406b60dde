package lock

import (
	"context"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"
	goredis "github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"k8s.io/klog/v2"
)

// Locker hands out redis-backed distributed mutexes on a shared client.
type Locker struct {
	rs *redsync.Redsync
}

func NewRedisLocker(cli *redis.Client) *Locker {
	return &Locker{rs: redsync.New(goredis.NewPool(cli))}
}

type RedisLock struct {
	key   string
	mutex *redsync.Mutex
}

func (l *Locker) NewLock(key string) *RedisLock {
	return &RedisLock{
		key:   key,
		mutex: l.rs.NewMutex(key, redsync.WithRetryDelay(time.Millisecond*500)),
	}
}

func (l *Locker) NewLockWithExpiry(key string, expiry time.Duration) *RedisLock {
	return &RedisLock{
		key:   key,
		mutex: l.rs.NewMutex(key, redsync.WithRetryDelay(time.Millisecond*500), redsync.WithExpiry(expiry)),
	}
}

func (lock *RedisLock) Lock(ctx context.Context) error {
	err := lock.mutex.LockContext(ctx)
	if err != nil {
		if !strings.Contains(err.Error(), "lock already taken") {
			klog.Errorf("failed to acquire redis lock: %s, err: %s", lock.key, err)
		}
	}
	return err
}

func (lock *RedisLock) TryLock(ctx context.Context) error {
	err := lock.mutex.TryLockContext(ctx)
	if err != nil {
		if strings.Contains(err.Error(), "lock already taken") {
			klog.Errorf("failed to try acquire redis lock: %s, err: %s", lock.key, err)
		}
	}
	return err
}

func (lock *RedisLock) Unlock(ctx context.Context) error {
	_, err := lock.mutex.UnlockContext(ctx)
	return err
}
