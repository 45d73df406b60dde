package streamqueue

import (
	"context"
	"time"
)

const (
	// DefaultTTL is how long an undrained queue may sit idle in the shared
	// backend before it is allowed to expire.
	DefaultTTL = 300 * time.Second

	// graceDelay is the fixed wait after a terminal control event (or a
	// cancellation signal) before a live-tail consumer actually stops, so
	// that messages already in flight can still be drained.
	graceDelay = 300 * time.Millisecond

	// tailPollInterval is the fallback reconcile cadence of a suspended
	// live tail, covering a notification lost between subscribe and publish.
	tailPollInterval = time.Second

	// removeDebounce delays registry deregistration so a cancel or removal
	// racing with an in-flight read does not yank the handle out from under it.
	removeDebounce = 500 * time.Millisecond
)

// Options configures a single queue.
type Options struct {
	// CompressMessages selects whether entries pass through the compressing
	// codec or are stored in their plain form.
	CompressMessages bool
	// TTL is the idle lifetime of the queue in the shared backend. It is
	// refreshed on every push. Zero or negative values fall back to DefaultTTL.
	TTL time.Duration
}

// DefaultOptions returns the per-queue defaults: compression on, DefaultTTL.
func DefaultOptions() Options {
	return Options{CompressMessages: true, TTL: DefaultTTL}
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	return o
}

// Queue is the per-run ordered event log. Append order equals read order for
// both snapshot reads and live tails; the log is never mutated by a read, and
// every live-tail consumer receives its own copy of every entry.
type Queue interface {
	// ID returns the run identifier this queue is addressed by.
	ID() string

	// Push appends a message to the end of the log and refreshes the
	// backend's expiry window. The entry is visible to every subsequent
	// snapshot read and to every live-tail consumer, including ones in other
	// processes for the shared backend. A message with an empty event
	// discriminant is rejected with ErrInvalidMessage; the log only accepts
	// entries it can decode back.
	Push(ctx context.Context, msg EventMessage) error

	// GetAll returns the full ordered snapshot of the log at call time. It
	// never blocks waiting for more data and never consumes entries.
	GetAll(ctx context.Context) ([]EventMessage, error)

	// Clear discards all stored entries. Items already buffered by live-tail
	// consumers are unaffected; future snapshot reads see no history.
	Clear(ctx context.Context) error

	// Cancel trips the local cancellation signal, unblocking in-process live
	// tails, and durably appends the cancel control event so consumers in
	// other processes and late joiners also observe termination. Cancelling
	// an already-cancelled queue is a no-op.
	Cancel(ctx context.Context) error

	// Cancelled reports whether the cancellation signal has been raised in
	// this process.
	Cancelled() bool

	// CopyTo snapshots the current contents into a new, independently-lived
	// queue under newID with its own TTL (the source's when ttl <= 0).
	// Subsequent writes to either queue are not observed by the other.
	CopyTo(ctx context.Context, newID string, ttl time.Duration) (Queue, error)

	// OnDataReceive live-tails the queue: a single-pass, non-restartable
	// sequence that replays history from the start and then yields new
	// entries as they arrive, bounded by a control event, cancellation, or
	// ctx. The channel is closed on termination; cancelling ctx is the
	// caller-initiated early stop.
	OnDataReceive(ctx context.Context) (<-chan EventMessage, error)
}

// Factory builds queues for one backend kind and answers backend existence
// checks. The manager is written against this capability set so local and
// shared backends stay interchangeable.
type Factory interface {
	New(id string, opts Options) (Queue, error)
	// Exists reports whether the backend holds data for id. The local backend
	// has no storage outside the registry and always answers false.
	Exists(ctx context.Context, id string) (bool, error)
}
