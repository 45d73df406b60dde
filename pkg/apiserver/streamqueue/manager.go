package streamqueue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/klog/v2"
)

var tracer = otel.Tracer("streamq/pkg/apiserver/streamqueue")

// Manager is the per-process registry mapping run id to queue instance. It is
// populated on demand and never persisted; the shared backend may hold queues
// this process has not attached to, which the bulk operations do not cover.
// The backend kind is fixed at construction through the Factory.
type Manager struct {
	factory  Factory
	defaults Options

	mu     sync.RWMutex
	queues map[string]Queue
	timers map[string]*time.Timer // pending debounced removals
}

func NewManager(factory Factory, defaults Options) *Manager {
	return &Manager{
		factory:  factory,
		defaults: defaults.withDefaults(),
		queues:   make(map[string]Queue),
		timers:   make(map[string]*time.Timer),
	}
}

func (m *Manager) startSpan(ctx context.Context, op, id string) (context.Context, trace.Span) {
	return tracer.Start(ctx, op, trace.WithAttributes(attribute.String("queue.id", id)))
}

// CreateQueue always builds a fresh queue and registers it, overwriting any
// existing registry entry for the id. A non-positive ttl falls back to the
// manager's default.
func (m *Manager) CreateQueue(ctx context.Context, id string, ttl time.Duration) (Queue, error) {
	_, span := m.startSpan(ctx, "streamqueue.CreateQueue", id)
	defer span.End()
	opts := m.defaults
	if ttl > 0 {
		opts.TTL = ttl
	}
	q, err := m.factory.New(id, opts)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	m.register(id, q)
	return q, nil
}

// GetQueue returns the locally registered queue, or lazily attaches a handle
// when the backend confirms the id exists. Otherwise ErrQueueNotFound.
func (m *Manager) GetQueue(ctx context.Context, id string) (Queue, error) {
	m.mu.RLock()
	q, ok := m.queues[id]
	m.mu.RUnlock()
	if ok {
		return q, nil
	}
	exists, err := m.factory.Exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("queue %s: %w", id, ErrQueueNotFound)
	}
	q, err = m.factory.New(id, m.defaults)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	if cur, registered := m.queues[id]; registered {
		// Lost a race with another attach; keep the first handle.
		q = cur
	} else {
		m.queues[id] = q
	}
	m.mu.Unlock()
	return q, nil
}

// PushToQueue appends one message to the queue registered (or attachable)
// under id.
func (m *Manager) PushToQueue(ctx context.Context, id string, msg EventMessage) error {
	ctx, span := m.startSpan(ctx, "streamqueue.PushToQueue", id)
	defer span.End()
	q, err := m.GetQueue(ctx, id)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if err := q.Push(ctx, msg); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// GetQueueData returns the point-in-time snapshot for id.
func (m *Manager) GetQueueData(ctx context.Context, id string) ([]EventMessage, error) {
	q, err := m.GetQueue(ctx, id)
	if err != nil {
		return nil, err
	}
	return q.GetAll(ctx)
}

// CancelQueue terminates the run's stream for all observers and schedules the
// local handle for removal. Removal is debounced, not immediate, so a read or
// copy already in flight keeps a valid handle.
func (m *Manager) CancelQueue(ctx context.Context, id string) error {
	ctx, span := m.startSpan(ctx, "streamqueue.CancelQueue", id)
	defer span.End()
	q, err := m.GetQueue(ctx, id)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if err := q.Cancel(ctx); err != nil {
		span.RecordError(err)
		return err
	}
	m.RemoveQueue(id)
	return nil
}

// ClearQueue discards all stored entries for id.
func (m *Manager) ClearQueue(ctx context.Context, id string) error {
	q, err := m.GetQueue(ctx, id)
	if err != nil {
		return err
	}
	return q.Clear(ctx)
}

// RemoveQueue deregisters the local handle after a debounce delay. The timer
// only removes the exact instance it was armed for, so a queue re-created
// under the same id in the meantime is left alone.
func (m *Manager) RemoveQueue(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[id]
	if !ok {
		return
	}
	if t, pending := m.timers[id]; pending {
		t.Stop()
	}
	m.timers[id] = time.AfterFunc(removeDebounce, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if cur, registered := m.queues[id]; registered && cur == q {
			delete(m.queues, id)
			klog.V(4).Infof("stream queue %s deregistered", id)
		}
		delete(m.timers, id)
	})
}

// CopyQueue snapshots fromID into a new queue under toID and registers it.
func (m *Manager) CopyQueue(ctx context.Context, fromID, toID string, ttl time.Duration) (Queue, error) {
	ctx, span := m.startSpan(ctx, "streamqueue.CopyQueue", fromID)
	span.SetAttributes(attribute.String("queue.copy_id", toID))
	defer span.End()
	src, err := m.GetQueue(ctx, fromID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	dst, err := src.CopyTo(ctx, toID, ttl)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	m.register(toID, dst)
	return dst, nil
}

// GetAllQueueIDs lists the locally registered run ids, sorted.
func (m *Manager) GetAllQueueIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.queues))
	for id := range m.queues {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GetAllQueuesData snapshots every locally registered queue.
func (m *Manager) GetAllQueuesData(ctx context.Context) (map[string][]EventMessage, error) {
	out := make(map[string][]EventMessage)
	for _, id := range m.GetAllQueueIDs() {
		data, err := m.GetQueueData(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("queue %s: %w", id, err)
		}
		out[id] = data
	}
	return out, nil
}

// ClearAllQueues clears every locally registered queue.
func (m *Manager) ClearAllQueues(ctx context.Context) error {
	for _, id := range m.GetAllQueueIDs() {
		if err := m.ClearQueue(ctx, id); err != nil {
			return fmt.Errorf("queue %s: %w", id, err)
		}
	}
	return nil
}

// Close stops pending removal timers. Queues themselves hold no process-level
// resources beyond the shared client and broker, which the caller owns.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.timers {
		t.Stop()
		delete(m.timers, id)
	}
}

func (m *Manager) register(id string, q Queue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, pending := m.timers[id]; pending {
		t.Stop()
		delete(m.timers, id)
	}
	m.queues[id] = q
}
