package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"streamq/cmd/app/options"
	"streamq/pkg/apiserver/config"
	"streamq/pkg/apiserver/infrastructure/clients"
	"streamq/pkg/apiserver/messaging"
	"streamq/pkg/apiserver/streamqueue"
	"streamq/pkg/apiserver/utils/lock"
	"streamq/pkg/apiserver/utils/profiling"
	"streamq/pkg/tracing"
	"streamq/version"
)

// NewStreamQCommand creates the root *cobra.Command with default parameters.
func NewStreamQCommand() *cobra.Command {
	o := options.NewRunOptions()
	var tracingShutdown func(context.Context) error

	cmd := &cobra.Command{
		Use:          "streamqctl",
		Long:         `Administrative CLI for the streamq run-event queues: inspect, tail, push, copy and cancel per-run event streams.`,
		Version:      version.StreamQVersion,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Validate(); err != nil {
				return err
			}
			if o.GenericOptions.EnableTracing {
				shutdown, err := tracing.InitTracerProvider("streamq", o.GenericOptions.OTLPEndpoint)
				if err != nil {
					return fmt.Errorf("failed to init tracer provider: %w", err)
				}
				tracingShutdown = shutdown
			}
			go profiling.StartProfilingServer()
			klog.V(2).InfoS("streamq starting", "version", version.StreamQVersion, "instance", o.GenericOptions.InstanceID)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if tracingShutdown != nil {
				if err := tracingShutdown(context.Background()); err != nil {
					klog.ErrorS(err, "Failed to shutdown tracer provider")
				}
			}
			klog.Flush()
		},
	}

	o.AddFlags(cmd.PersistentFlags())
	addQueueCommands(cmd, o)
	return cmd
}

// queueEnv bundles the manager with the backend handles the commands need.
type queueEnv struct {
	manager *streamqueue.Manager
	// redisFactory is non-nil only for the redis backend; the ids command
	// uses it to scan the store for queues this process never attached to.
	redisFactory *streamqueue.RedisFactory
}

// buildQueueEnv wires the configured backend: either an in-process factory or
// the shared redis store with its pub/sub broker and copy lock.
func buildQueueEnv(cfg *config.Config) (*queueEnv, error) {
	defaults := streamqueue.Options{
		CompressMessages: cfg.Queue.CompressMessages,
		TTL:              cfg.Queue.TTL,
	}
	switch cfg.Queue.Backend {
	case "local":
		return &queueEnv{manager: streamqueue.NewManager(streamqueue.NewLocalFactory(), defaults)}, nil
	case "redis":
		cli, err := clients.EnsureRedis(cfg.Cache)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		broker, err := messaging.NewRedisBrokerWithClient(cli)
		if err != nil {
			return nil, err
		}
		factory, err := streamqueue.NewRedisFactory(cli, broker, lock.NewRedisLocker(cli), cfg.Queue.KeyPrefix)
		if err != nil {
			return nil, err
		}
		return &queueEnv{
			manager:      streamqueue.NewManager(factory, defaults),
			redisFactory: factory,
		}, nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Queue.Backend)
	}
}
