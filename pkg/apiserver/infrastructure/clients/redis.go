package clients

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"streamq/pkg/apiserver/config"
)

var (
	redisMu sync.Mutex
	rClient *redis.Client
)

// EnsureRedis returns a process-wide redis client built from cfg if not yet
// initialized. Subsequent calls reuse the same client instance.
func EnsureRedis(cfg config.RedisCacheConfig) (*redis.Client, error) {
	if rClient != nil {
		return rClient, nil
	}
	redisMu.Lock()
	defer redisMu.Unlock()
	if rClient != nil {
		return rClient, nil
	}
	addr := fmt.Sprintf("%s:%d", cfg.CacheHost, cfg.CachePort)
	cli := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: cfg.UserName,
		Password: cfg.Password,
		DB:       int(cfg.CacheDB),
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := cli.Ping(ctx).Err(); err != nil {
		_ = cli.Close()
		return nil, err
	}
	rClient = cli
	return rClient, nil
}
