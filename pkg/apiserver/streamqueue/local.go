package streamqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"streamq/pkg/apiserver/messaging"
)

// LocalQueue holds the log as an in-process ordered collection and notifies
// live tails through an in-process broker. Visibility is limited to the
// owning process. There is no timer-driven TTL; growth is bounded only by the
// manager's removal policy.
type LocalQueue struct {
	id     string
	opts   Options
	codec  Codec // non-nil when entries are stored encoded
	broker messaging.Broker
	sig    *cancelSignal

	mu      sync.Mutex
	items   []EventMessage // plain entries, CompressMessages off
	encoded [][]byte       // codec-encoded entries, CompressMessages on
}

// NewLocalQueue builds a process-local queue. All local queues of one process
// share the broker so the manager can hand out independent tails per consumer.
func NewLocalQueue(id string, opts Options, broker messaging.Broker) *LocalQueue {
	opts = opts.withDefaults()
	q := &LocalQueue{id: id, opts: opts, broker: broker, sig: newCancelSignal()}
	if opts.CompressMessages {
		q.codec = ZstdCodec{}
	}
	return q
}

func (q *LocalQueue) ID() string { return q.id }

func (q *LocalQueue) Push(ctx context.Context, msg EventMessage) error {
	if msg.Event == "" {
		return fmt.Errorf("push to queue %s: %w: empty event discriminant", q.id, ErrInvalidMessage)
	}
	// The cancel marker permanently raises the signal, whether it arrives
	// through Cancel or is pushed directly by a producer.
	if msg.Event == EventStreamCancel {
		q.sig.trip()
	}
	var data []byte
	if q.codec != nil {
		var err error
		if data, err = q.codec.Encode(msg); err != nil {
			return fmt.Errorf("encode message for queue %s: %w", q.id, err)
		}
	}
	q.mu.Lock()
	if q.codec != nil {
		q.encoded = append(q.encoded, data)
	} else {
		q.items = append(q.items, msg)
	}
	q.mu.Unlock()
	return q.broker.Publish(ctx, q.id, data)
}

func (q *LocalQueue) GetAll(ctx context.Context) ([]EventMessage, error) {
	return q.itemsFrom(ctx, 0)
}

// itemsFrom snapshots the entries at positions >= pos. Registration of a tail
// and its first read both go through the same mutex, so no append can fall
// between a subscribe and the backlog it reconciles against.
func (q *LocalQueue) itemsFrom(_ context.Context, pos int) ([]EventMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.codec != nil {
		if pos >= len(q.encoded) {
			return nil, nil
		}
		out := make([]EventMessage, 0, len(q.encoded)-pos)
		for _, data := range q.encoded[pos:] {
			m, err := q.codec.Decode(data)
			if err != nil {
				return nil, fmt.Errorf("queue %s: %w", q.id, err)
			}
			out = append(out, m)
		}
		return out, nil
	}
	if pos >= len(q.items) {
		return nil, nil
	}
	return append([]EventMessage(nil), q.items[pos:]...), nil
}

func (q *LocalQueue) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
	q.encoded = nil
	return nil
}

func (q *LocalQueue) Cancel(ctx context.Context) error {
	if !q.sig.trip() {
		return nil
	}
	return q.Push(ctx, NewCancelEvent())
}

func (q *LocalQueue) Cancelled() bool { return q.sig.fired() }

func (q *LocalQueue) CopyTo(ctx context.Context, newID string, ttl time.Duration) (Queue, error) {
	opts := q.opts
	if ttl > 0 {
		opts.TTL = ttl
	}
	dst := NewLocalQueue(newID, opts, q.broker)
	q.mu.Lock()
	dst.items = append([]EventMessage(nil), q.items...)
	dst.encoded = append([][]byte(nil), q.encoded...)
	q.mu.Unlock()
	// A copy of a cancelled queue carries the cancel marker in its log; its
	// signal starts raised to match.
	if q.sig.fired() {
		dst.sig.trip()
	}
	return dst, nil
}

// LocalFactory builds process-local queues sharing one in-process broker.
type LocalFactory struct {
	broker *messaging.LocalBroker
}

func NewLocalFactory() *LocalFactory {
	return &LocalFactory{broker: messaging.NewLocalBroker()}
}

func (f *LocalFactory) New(id string, opts Options) (Queue, error) {
	return NewLocalQueue(id, opts, f.broker), nil
}

// Exists always answers false: a local queue has no storage outside the
// manager's registry, so an unregistered id does not exist.
func (f *LocalFactory) Exists(ctx context.Context, id string) (bool, error) {
	return false, nil
}

func (q *LocalQueue) OnDataReceive(ctx context.Context) (<-chan EventMessage, error) {
	out := make(chan EventMessage, 16)
	if q.sig.fired() {
		// The run finished before this consumer attached.
		close(out)
		return out, nil
	}
	sub, err := q.broker.Subscribe(ctx, q.id)
	if err != nil {
		return nil, fmt.Errorf("subscribe queue %s: %w", q.id, err)
	}
	// The marker observed by the tail is already in the log; only the local
	// signal needs raising so sibling consumers unblock too.
	go runTail(ctx, q.id, out, q.sig, sub, q.itemsFrom, func() { q.sig.trip() })
	return out, nil
}
