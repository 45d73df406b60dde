package streamqueue

import "sync"

// cancelSignal is a single-fire broadcast flag: an observable boolean plus
// notify-on-set. It is safe to trip and observe from multiple goroutines.
type cancelSignal struct {
	once sync.Once
	ch   chan struct{}
}

func newCancelSignal() *cancelSignal {
	return &cancelSignal{ch: make(chan struct{})}
}

// trip raises the signal. It returns true only for the caller that actually
// fired it, so the cancel marker is appended exactly once per process.
func (s *cancelSignal) trip() bool {
	fired := false
	s.once.Do(func() {
		close(s.ch)
		fired = true
	})
	return fired
}

// fired reports whether the signal has been raised.
func (s *cancelSignal) fired() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

// done returns a channel closed when the signal fires.
func (s *cancelSignal) done() <-chan struct{} {
	return s.ch
}
