package config

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
)

// Config holds everything necessary to run the stream queue service.
type Config struct {
	// InstanceID identifies this process in logs and diagnostics.
	InstanceID string

	// Cache is the redis connection used by the shared queue backend.
	Cache RedisCacheConfig

	// Queue configures the stream queue subsystem.
	Queue QueueConfig

	// EnableTracing enables distributed tracing.
	EnableTracing bool

	// OTLPEndpoint is the endpoint of the OTLP trace collector. Empty means
	// traces are generated but not exported.
	OTLPEndpoint string
}

type RedisCacheConfig struct {
	CacheHost string
	CachePort int
	CacheDB   int64
	UserName  string
	Password  string
}

// QueueConfig holds the stream queue defaults applied to newly created queues.
type QueueConfig struct {
	// Backend selects the queue backend: local|redis.
	Backend string
	// CompressMessages stores entries through the compressing codec.
	CompressMessages bool
	// TTL is the idle lifetime of a queue in the shared backend.
	TTL time.Duration
	// KeyPrefix namespaces the redis keys and channels of this deployment.
	KeyPrefix string
}

func NewConfig() *Config {
	return &Config{
		InstanceID: uuid.New().String(),
		Cache: RedisCacheConfig{
			CacheHost: "localhost",
			CachePort: 6379,
			CacheDB:   0,
			UserName:  "",
			Password:  "",
		},
		Queue: QueueConfig{
			Backend:          "redis",
			CompressMessages: true,
			TTL:              300 * time.Second,
			KeyPrefix:        "streamq:queue:",
		},
		EnableTracing: false,
		OTLPEndpoint:  "",
	}
}

func (c *Config) Validate() []error {
	var errs []error
	switch c.Queue.Backend {
	case "local", "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown queue backend %q (expected local or redis)", c.Queue.Backend))
	}
	if c.Queue.TTL <= 0 {
		errs = append(errs, fmt.Errorf("queue ttl must be positive, got %s", c.Queue.TTL))
	}
	return errs
}

// AddFlags adds flags to the specified FlagSet
func (c *Config) AddFlags(fs *pflag.FlagSet, configParameter *Config) {
	fs.StringVar(&c.Cache.CacheHost, "redis-host", configParameter.Cache.CacheHost, "The redis host used by the shared queue backend.")
	fs.IntVar(&c.Cache.CachePort, "redis-port", configParameter.Cache.CachePort, "The redis port used by the shared queue backend.")
	fs.Int64Var(&c.Cache.CacheDB, "redis-db", configParameter.Cache.CacheDB, "The redis database index.")
	fs.StringVar(&c.Cache.UserName, "redis-username", configParameter.Cache.UserName, "The redis username.")
	fs.StringVar(&c.Cache.Password, "redis-password", configParameter.Cache.Password, "The redis password.")
	fs.StringVar(&c.Queue.Backend, "queue-backend", configParameter.Queue.Backend, "queue backend: local|redis")
	fs.BoolVar(&c.Queue.CompressMessages, "queue-compress", configParameter.Queue.CompressMessages, "Store queue entries through the compressing codec.")
	fs.DurationVar(&c.Queue.TTL, "queue-ttl", configParameter.Queue.TTL, "Idle lifetime of a queue in the shared backend (e.g. 300s).")
	fs.StringVar(&c.Queue.KeyPrefix, "queue-key-prefix", configParameter.Queue.KeyPrefix, "Prefix for redis keys and notification channels.")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", configParameter.EnableTracing, "Enable distributed tracing.")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", configParameter.OTLPEndpoint, "The endpoint of the OTLP trace collector.")
}
