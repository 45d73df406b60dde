package messaging

import (
	"context"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisBroker implements Broker using Redis Pub/Sub on a shared client.
// The caller owns the client's lifecycle (creation and Close); this avoids
// creating one connection pool per broker.
type RedisBroker struct {
	cli *redis.Client
}

func NewRedisBrokerWithClient(cli *redis.Client) (*RedisBroker, error) {
	if cli == nil {
		return nil, errors.New("redis client is nil")
	}
	return &RedisBroker{cli: cli}, nil
}

func (b *RedisBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	return b.cli.Publish(ctx, topic, payload).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	sub := b.cli.Subscribe(ctx, topic)
	ch := sub.Channel() // receives *redis.Message
	s := &redisSub{
		sub:  sub,
		out:  make(chan []byte, 128),
		done: make(chan struct{}),
	}

	// The forwarder must never outlive the subscription: every send is
	// guarded so an unsubscribe with a full, undrained buffer still lets
	// the goroutine exit.
	go func() {
		defer close(s.out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if msg == nil {
					continue
				}
				select {
				case s.out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				case <-s.done:
					return
				}
			}
		}
	}()

	return s, nil
}

// Close is a no-op: the shared client is owned by the caller.
func (b *RedisBroker) Close(ctx context.Context) error { return nil }

type redisSub struct {
	sub  *redis.PubSub
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func (s *redisSub) C() <-chan []byte { return s.out }

// Err returns nil; terminal errors surface through the closed payload channel.
func (s *redisSub) Err() <-chan error { return nil }

func (s *redisSub) Unsubscribe(ctx context.Context) error {
	s.once.Do(func() { close(s.done) })
	return s.sub.Close()
}
