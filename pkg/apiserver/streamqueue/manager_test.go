package streamqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocalManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(NewLocalFactory(), DefaultOptions())
	t.Cleanup(m.Close)
	return m
}

func TestManagerCreateAndGet(t *testing.T) {
	ctx := context.Background()
	m := newLocalManager(t)

	q, err := m.CreateQueue(ctx, "run-1", 0)
	require.NoError(t, err)
	assert.Equal(t, "run-1", q.ID())

	got, err := m.GetQueue(ctx, "run-1")
	require.NoError(t, err)
	assert.Same(t, q, got)

	_, err = m.GetQueue(ctx, "missing")
	assert.True(t, errors.Is(err, ErrQueueNotFound))
}

func TestManagerCreateOverwritesRegistration(t *testing.T) {
	ctx := context.Background()
	m := newLocalManager(t)

	q1, err := m.CreateQueue(ctx, "run-1", 0)
	require.NoError(t, err)
	require.NoError(t, q1.Push(ctx, EventMessage{Event: "token", Payload: "old"}))

	q2, err := m.CreateQueue(ctx, "run-1", 0)
	require.NoError(t, err)
	assert.NotSame(t, q1, q2)

	data, err := m.GetQueueData(ctx, "run-1")
	require.NoError(t, err)
	assert.Empty(t, data, "a re-created queue starts empty")
}

func TestManagerPushAndRead(t *testing.T) {
	ctx := context.Background()
	m := newLocalManager(t)
	_, err := m.CreateQueue(ctx, "run-1", 0)
	require.NoError(t, err)

	require.NoError(t, m.PushToQueue(ctx, "run-1", EventMessage{Event: "token", Payload: "a"}))
	require.NoError(t, m.PushToQueue(ctx, "run-1", EventMessage{Event: "token", Payload: "b"}))

	data, err := m.GetQueueData(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, data, 2)
	assert.Equal(t, "a", data[0].Payload)

	err = m.PushToQueue(ctx, "missing", EventMessage{Event: "token"})
	assert.True(t, errors.Is(err, ErrQueueNotFound))
}

func TestManagerRemoveQueueIsDebounced(t *testing.T) {
	ctx := context.Background()
	m := newLocalManager(t)
	q, err := m.CreateQueue(ctx, "run-1", 0)
	require.NoError(t, err)
	require.NoError(t, q.Push(ctx, EventMessage{Event: "token", Payload: "a"}))

	m.RemoveQueue("run-1")

	// Within the debounce window the handle is still live.
	got, err := m.GetQueue(ctx, "run-1")
	require.NoError(t, err)
	assert.Same(t, q, got)

	assert.Eventually(t, func() bool {
		_, err := m.GetQueue(ctx, "run-1")
		return errors.Is(err, ErrQueueNotFound)
	}, 3*time.Second, 50*time.Millisecond)
}

func TestManagerRemoveDebounceSparesRecreatedQueue(t *testing.T) {
	ctx := context.Background()
	m := newLocalManager(t)
	_, err := m.CreateQueue(ctx, "run-1", 0)
	require.NoError(t, err)

	m.RemoveQueue("run-1")
	q2, err := m.CreateQueue(ctx, "run-1", 0)
	require.NoError(t, err)

	// Well past the debounce the re-created instance must still be there.
	time.Sleep(removeDebounce + 300*time.Millisecond)
	got, err := m.GetQueue(ctx, "run-1")
	require.NoError(t, err)
	assert.Same(t, q2, got)
}

func TestManagerCancelQueue(t *testing.T) {
	ctx := context.Background()
	m := newLocalManager(t)
	q, err := m.CreateQueue(ctx, "run-1", 0)
	require.NoError(t, err)
	require.NoError(t, q.Push(ctx, EventMessage{Event: "token", Payload: "a"}))

	require.NoError(t, m.CancelQueue(ctx, "run-1"))
	assert.True(t, q.Cancelled())

	// The durable marker is readable until the debounced removal lands.
	data, err := m.GetQueueData(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, EventStreamCancel, data[len(data)-1].Event)

	assert.Eventually(t, func() bool {
		_, err := m.GetQueue(ctx, "run-1")
		return errors.Is(err, ErrQueueNotFound)
	}, 3*time.Second, 50*time.Millisecond)
}

func TestManagerCopyQueueRegistersCopy(t *testing.T) {
	ctx := context.Background()
	m := newLocalManager(t)
	_, err := m.CreateQueue(ctx, "run-1", 0)
	require.NoError(t, err)
	require.NoError(t, m.PushToQueue(ctx, "run-1", EventMessage{Event: "token", Payload: "a"}))

	dst, err := m.CopyQueue(ctx, "run-1", "run-2", 0)
	require.NoError(t, err)
	assert.Equal(t, "run-2", dst.ID())

	got, err := m.GetQueue(ctx, "run-2")
	require.NoError(t, err)
	assert.Same(t, dst, got)

	data, err := m.GetQueueData(ctx, "run-2")
	require.NoError(t, err)
	require.Len(t, data, 1)

	_, err = m.CopyQueue(ctx, "missing", "run-3", 0)
	assert.True(t, errors.Is(err, ErrQueueNotFound))
}

func TestManagerBulkOperations(t *testing.T) {
	ctx := context.Background()
	m := newLocalManager(t)
	for _, id := range []string{"run-b", "run-a", "run-c"} {
		_, err := m.CreateQueue(ctx, id, 0)
		require.NoError(t, err)
		require.NoError(t, m.PushToQueue(ctx, id, EventMessage{Event: "token", Payload: id}))
	}

	assert.Equal(t, []string{"run-a", "run-b", "run-c"}, m.GetAllQueueIDs())

	all, err := m.GetAllQueuesData(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "run-b", all["run-b"][0].Payload)

	require.NoError(t, m.ClearAllQueues(ctx))
	all, err = m.GetAllQueuesData(ctx)
	require.NoError(t, err)
	for id, data := range all {
		assert.Empty(t, data, "queue %s should be empty", id)
	}
}

func TestManagerClearQueue(t *testing.T) {
	ctx := context.Background()
	m := newLocalManager(t)
	_, err := m.CreateQueue(ctx, "run-1", 0)
	require.NoError(t, err)
	require.NoError(t, m.PushToQueue(ctx, "run-1", EventMessage{Event: "token"}))

	require.NoError(t, m.ClearQueue(ctx, "run-1"))
	data, err := m.GetQueueData(ctx, "run-1")
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestManagerCloseStopsPendingRemovals(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewLocalFactory(), DefaultOptions())
	q, err := m.CreateQueue(ctx, "run-1", 0)
	require.NoError(t, err)

	m.RemoveQueue("run-1")
	m.Close()

	time.Sleep(removeDebounce + 300*time.Millisecond)
	got, err := m.GetQueue(ctx, "run-1")
	require.NoError(t, err)
	assert.Same(t, q, got)
}
