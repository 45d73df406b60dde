package messaging

import (
	"context"
	"errors"
	"sync"

	"k8s.io/klog/v2"
)

// defaultSubscriberBuffer is the channel buffer size per subscription.
const defaultSubscriberBuffer = 128

// LocalBroker implements Broker with in-process fan-out. Visibility is limited
// to the owning process; every subscriber on a topic receives its own copy of
// each published payload.
type LocalBroker struct {
	mu     sync.RWMutex
	subs   map[string]map[*localSub]struct{} // topic -> subscribers
	closed bool
}

func NewLocalBroker() *LocalBroker {
	return &LocalBroker{subs: make(map[string]map[*localSub]struct{})}
}

func (b *LocalBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return errors.New("local broker is closed")
	}
	for sub := range b.subs[topic] {
		select {
		case sub.out <- payload:
		default:
			// Slow subscriber; payloads here are wake-up notifications, so
			// dropping one while the buffer is full loses nothing.
			klog.V(4).Infof("local broker: subscriber buffer full on topic %s, notification dropped", topic)
		}
	}
	return nil
}

func (b *LocalBroker) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errors.New("local broker is closed")
	}
	sub := &localSub{
		broker: b,
		topic:  topic,
		out:    make(chan []byte, defaultSubscriberBuffer),
	}
	if _, ok := b.subs[topic]; !ok {
		b.subs[topic] = make(map[*localSub]struct{})
	}
	b.subs[topic][sub] = struct{}{}
	return sub, nil
}

func (b *LocalBroker) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, subs := range b.subs {
		for sub := range subs {
			close(sub.out)
		}
	}
	b.subs = nil
	return nil
}

type localSub struct {
	broker *LocalBroker
	topic  string
	out    chan []byte
	once   sync.Once
}

func (s *localSub) C() <-chan []byte  { return s.out }
func (s *localSub) Err() <-chan error { return nil }

func (s *localSub) Unsubscribe(ctx context.Context) error {
	s.once.Do(func() {
		s.broker.mu.Lock()
		defer s.broker.mu.Unlock()
		if s.broker.closed {
			return
		}
		if subs, ok := s.broker.subs[s.topic]; ok {
			delete(subs, s)
			if len(subs) == 0 {
				delete(s.broker.subs, s.topic)
			}
		}
		close(s.out)
	})
	return nil
}
