package streamqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"k8s.io/klog/v2"

	"streamq/pkg/apiserver/messaging"
	"streamq/pkg/apiserver/utils/lock"
)

// DefaultKeyPrefix namespaces every redis key and channel owned by the
// stream queue subsystem.
const DefaultKeyPrefix = "streamq:queue:"

// RedisFactory builds queues backed by a durable redis list plus a pub/sub
// notification channel, visible to every server process sharing the store.
// The caller owns the client's lifecycle.
type RedisFactory struct {
	cli       *redis.Client
	broker    messaging.Broker
	locker    *lock.Locker
	keyPrefix string
}

func NewRedisFactory(cli *redis.Client, broker messaging.Broker, locker *lock.Locker, keyPrefix string) (*RedisFactory, error) {
	if cli == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if broker == nil {
		return nil, fmt.Errorf("broker is nil")
	}
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &RedisFactory{cli: cli, broker: broker, locker: locker, keyPrefix: keyPrefix}, nil
}

func (f *RedisFactory) dataKey(id string) string { return f.keyPrefix + "data:" + id }
func (f *RedisFactory) channel(id string) string { return f.keyPrefix + "events:" + id }
func (f *RedisFactory) copyLock(id string) string { return f.keyPrefix + "lock:copy:" + id }

func (f *RedisFactory) New(id string, opts Options) (Queue, error) {
	opts = opts.withDefaults()
	return &RedisQueue{
		id:    id,
		opts:  opts,
		f:     f,
		codec: codecFor(opts.CompressMessages),
		sig:   newCancelSignal(),
	}, nil
}

// Exists reports whether the backend still holds data for id. A queue that
// idled past its TTL expires out of the store and stops existing.
func (f *RedisFactory) Exists(ctx context.Context, id string) (bool, error) {
	n, err := f.cli.Exists(ctx, f.dataKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("check queue %s: %w: %v", id, ErrBackendUnavailable, err)
	}
	return n == 1, nil
}

// ListIDs scans the backend for every run id under this factory's prefix,
// including queues no local process has attached to. For many queues this can
// be expensive; it is meant for administrative introspection, not hot paths.
func (f *RedisFactory) ListIDs(ctx context.Context) ([]string, error) {
	var (
		cursor uint64
		out    []string
	)
	pattern := f.keyPrefix + "data:*"
	for {
		keys, next, err := f.cli.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan queues: %w: %v", ErrBackendUnavailable, err)
		}
		cursor = next
		for _, k := range keys {
			out = append(out, k[len(f.keyPrefix)+len("data:"):])
		}
		if cursor == 0 {
			break
		}
	}
	return out, nil
}

// RedisQueue maps the log onto an append-only redis list with a per-push
// expiry refresh, and fans out wake-up notifications over pub/sub so
// already-subscribed consumers in other processes resume immediately.
type RedisQueue struct {
	id    string
	opts  Options
	f     *RedisFactory
	codec Codec
	sig   *cancelSignal
}

func (q *RedisQueue) ID() string { return q.id }

func (q *RedisQueue) dataKey() string { return q.f.dataKey(q.id) }
func (q *RedisQueue) channel() string { return q.f.channel(q.id) }

// Push appends the encoded entry and refreshes the expiry in one transaction,
// so the log never exposes a partially-written entry, then publishes the same
// bytes on the notification channel.
func (q *RedisQueue) Push(ctx context.Context, msg EventMessage) error {
	if msg.Event == "" {
		return fmt.Errorf("push to queue %s: %w: empty event discriminant", q.id, ErrInvalidMessage)
	}
	if msg.Event == EventStreamCancel {
		q.sig.trip()
	}
	data, err := q.codec.Encode(msg)
	if err != nil {
		return fmt.Errorf("encode message for queue %s: %w", q.id, err)
	}
	pipe := q.f.cli.TxPipeline()
	pipe.RPush(ctx, q.dataKey(), data)
	pipe.Expire(ctx, q.dataKey(), q.opts.TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push to queue %s: %w: %v", q.id, ErrBackendUnavailable, err)
	}
	if err := q.f.broker.Publish(ctx, q.channel(), data); err != nil {
		// The entry is durably appended at this point; only the wake-up was
		// lost. Suspended tails resume on the next publish, late joiners
		// reconcile from the list.
		klog.Warningf("queue %s: publish notification: %v", q.id, err)
	}
	return nil
}

func (q *RedisQueue) GetAll(ctx context.Context) ([]EventMessage, error) {
	return q.fetchFrom(ctx, 0)
}

func (q *RedisQueue) fetchFrom(ctx context.Context, pos int) ([]EventMessage, error) {
	vals, err := q.f.cli.LRange(ctx, q.dataKey(), int64(pos), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read queue %s: %w: %v", q.id, ErrBackendUnavailable, err)
	}
	out := make([]EventMessage, 0, len(vals))
	for _, v := range vals {
		m, err := q.codec.Decode([]byte(v))
		if err != nil {
			return nil, fmt.Errorf("queue %s: %w", q.id, err)
		}
		out = append(out, m)
	}
	return out, nil
}

func (q *RedisQueue) Clear(ctx context.Context) error {
	if err := q.f.cli.Del(ctx, q.dataKey()).Err(); err != nil {
		return fmt.Errorf("clear queue %s: %w: %v", q.id, ErrBackendUnavailable, err)
	}
	return nil
}

func (q *RedisQueue) Cancel(ctx context.Context) error {
	if !q.sig.trip() {
		return nil
	}
	return q.Push(ctx, NewCancelEvent())
}

func (q *RedisQueue) Cancelled() bool { return q.sig.fired() }

// CopyTo duplicates the list server-side under the new key and re-applies the
// expiry. COPY and EXPIRE are two commands, so the destination key is guarded
// by a distributed lock against a concurrent copy from another process. The
// notification channel is not duplicated: a copy is a snapshot, not a live
// mirror.
func (q *RedisQueue) CopyTo(ctx context.Context, newID string, ttl time.Duration) (Queue, error) {
	if ttl <= 0 {
		ttl = q.opts.TTL
	}
	if q.f.locker != nil {
		l := q.f.locker.NewLock(q.f.copyLock(newID))
		if err := l.Lock(ctx); err != nil {
			return nil, fmt.Errorf("lock copy target %s: %w: %v", newID, ErrBackendUnavailable, err)
		}
		defer func() {
			if err := l.Unlock(ctx); err != nil {
				klog.Warningf("queue %s: release copy lock for %s: %v", q.id, newID, err)
			}
		}()
	}
	copied, err := q.f.cli.Copy(ctx, q.dataKey(), q.f.dataKey(newID), q.f.cli.Options().DB, true).Result()
	if err != nil {
		return nil, fmt.Errorf("copy queue %s to %s: %w: %v", q.id, newID, ErrBackendUnavailable, err)
	}
	if copied == 1 {
		if err := q.f.cli.Expire(ctx, q.f.dataKey(newID), ttl).Err(); err != nil {
			return nil, fmt.Errorf("expire copied queue %s: %w: %v", newID, ErrBackendUnavailable, err)
		}
	}
	opts := q.opts
	opts.TTL = ttl
	dst, err := q.f.New(newID, opts)
	if err != nil {
		return nil, err
	}
	if q.sig.fired() {
		dst.(*RedisQueue).sig.trip()
	}
	return dst, nil
}

func (q *RedisQueue) OnDataReceive(ctx context.Context) (<-chan EventMessage, error) {
	out := make(chan EventMessage, 16)
	if q.sig.fired() {
		// The run finished before this consumer attached.
		close(out)
		return out, nil
	}
	sub, err := q.f.broker.Subscribe(ctx, q.channel())
	if err != nil {
		return nil, fmt.Errorf("subscribe queue %s: %w: %v", q.id, ErrBackendUnavailable, err)
	}
	// The marker observed by the tail is already durable in the list; only
	// the process-local signal needs raising so sibling consumers unblock.
	go runTail(ctx, q.id, out, q.sig, sub, q.fetchFrom, func() { q.sig.trip() })
	return out, nil
}
