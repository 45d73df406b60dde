package messaging

import (
	"context"
)

// Broker is a pub/sub abstraction to decouple stream queue notification fan-out
// from the underlying messaging system.
// Implementations: Redis (cross-process), Local (in-process).
type Broker interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe subscribes to a topic and returns a subscription.
	Subscribe(ctx context.Context, topic string) (Subscription, error)
	// Close releases any underlying resources.
	Close(ctx context.Context) error
}

// Subscription wraps a streaming subscription to a topic.
type Subscription interface {
	// C returns a channel that yields message payloads.
	C() <-chan []byte
	// Err returns a channel delivering terminal errors (optional; may be nil).
	Err() <-chan error
	// Unsubscribe cancels the subscription and frees resources.
	Unsubscribe(ctx context.Context) error
}

// MessageCodec defines encode/decode for strongly-typed messages.
// The stream queue uses a shared codec for its event records.
type MessageCodec[T any] interface {
	Encode(T) ([]byte, error)
	Decode([]byte) (T, error)
}
