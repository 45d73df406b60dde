package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recvPayload(t *testing.T, sub Subscription, timeout time.Duration) []byte {
	t.Helper()
	select {
	case p, ok := <-sub.C():
		require.True(t, ok, "subscription channel closed")
		return p
	case <-time.After(timeout):
		t.Fatalf("no payload within %v", timeout)
		return nil
	}
}

func TestLocalBrokerFanOut(t *testing.T) {
	ctx := context.Background()
	b := NewLocalBroker()
	defer b.Close(ctx)

	sub1, err := b.Subscribe(ctx, "topic-a")
	require.NoError(t, err)
	sub2, err := b.Subscribe(ctx, "topic-a")
	require.NoError(t, err)
	other, err := b.Subscribe(ctx, "topic-b")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "topic-a", []byte("hello")))

	assert.Equal(t, []byte("hello"), recvPayload(t, sub1, time.Second))
	assert.Equal(t, []byte("hello"), recvPayload(t, sub2, time.Second))
	select {
	case p := <-other.C():
		t.Fatalf("unrelated topic received payload %q", p)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLocalBrokerUnsubscribe(t *testing.T) {
	ctx := context.Background()
	b := NewLocalBroker()
	defer b.Close(ctx)

	sub, err := b.Subscribe(ctx, "topic-a")
	require.NoError(t, err)
	require.NoError(t, sub.Unsubscribe(ctx))

	// Channel is closed and publishing no longer reaches it.
	_, ok := <-sub.C()
	assert.False(t, ok)
	require.NoError(t, b.Publish(ctx, "topic-a", []byte("late")))

	// Unsubscribing twice is a no-op.
	require.NoError(t, sub.Unsubscribe(ctx))
}

func TestLocalBrokerSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	ctx := context.Background()
	b := NewLocalBroker()
	defer b.Close(ctx)

	sub, err := b.Subscribe(ctx, "topic-a")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < defaultSubscriberBuffer+10; i++ {
			_ = b.Publish(ctx, "topic-a", []byte("n"))
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	_ = sub.Unsubscribe(ctx)
}

func TestLocalBrokerClose(t *testing.T) {
	ctx := context.Background()
	b := NewLocalBroker()

	sub, err := b.Subscribe(ctx, "topic-a")
	require.NoError(t, err)
	require.NoError(t, b.Close(ctx))

	_, ok := <-sub.C()
	assert.False(t, ok)

	assert.Error(t, b.Publish(ctx, "topic-a", []byte("x")))
	_, err = b.Subscribe(ctx, "topic-a")
	assert.Error(t, err)
	require.NoError(t, b.Close(ctx))
}
