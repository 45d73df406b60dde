package messaging

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisBroker(t *testing.T, mr *miniredis.Miniredis) *RedisBroker {
	t.Helper()
	cli := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cli.Close() })
	b, err := NewRedisBrokerWithClient(cli)
	require.NoError(t, err)
	return b
}

func TestRedisBrokerPublishSubscribe(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	b := newTestRedisBroker(t, mr)

	sub, err := b.Subscribe(ctx, "topic-a")
	require.NoError(t, err)
	defer sub.Unsubscribe(ctx)

	// Give the subscription time to register with the server.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, b.Publish(ctx, "topic-a", []byte("hello")))

	assert.Equal(t, []byte("hello"), recvPayload(t, sub, 5*time.Second))
}

func TestRedisBrokerCrossClientDelivery(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	pub := newTestRedisBroker(t, mr)
	con := newTestRedisBroker(t, mr)

	sub, err := con.Subscribe(ctx, "topic-a")
	require.NoError(t, err)
	defer sub.Unsubscribe(ctx)

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, pub.Publish(ctx, "topic-a", []byte("cross")))

	assert.Equal(t, []byte("cross"), recvPayload(t, sub, 5*time.Second))
}

func TestRedisBrokerUnsubscribeClosesChannel(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	b := newTestRedisBroker(t, mr)

	sub, err := b.Subscribe(ctx, "topic-a")
	require.NoError(t, err)
	require.NoError(t, sub.Unsubscribe(ctx))

	select {
	case _, ok := <-sub.C():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after unsubscribe")
	}
}

func TestRedisBrokerUnsubscribeReleasesForwarder(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	b := newTestRedisBroker(t, mr)

	// Warm the client pool so its goroutines do not skew the baseline.
	require.NoError(t, b.Publish(ctx, "topic-a", []byte("warm")))
	base := runtime.NumGoroutine()

	sub, err := b.Subscribe(ctx, "topic-a")
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	// Overflow the subscriber buffer without draining it, so the forwarder
	// is parked on a send when the subscription goes away.
	for i := 0; i < 140; i++ {
		require.NoError(t, b.Publish(ctx, "topic-a", []byte("n")))
	}
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, sub.Unsubscribe(ctx))

	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= base
	}, 5*time.Second, 50*time.Millisecond, "forwarder goroutine still running after unsubscribe")
}

func TestNewRedisBrokerWithClientNil(t *testing.T) {
	_, err := NewRedisBrokerWithClient(nil)
	assert.Error(t, err)
}
