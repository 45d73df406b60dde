package streamqueue

import (
	"context"
	"time"

	"k8s.io/klog/v2"

	"streamq/pkg/apiserver/messaging"
)

// tailFetch returns the log entries at positions >= pos, in order.
type tailFetch func(ctx context.Context, pos int) ([]EventMessage, error)

// runTail drives one live-tail consumer. Both backends share it: the caller
// subscribes to its notification source BEFORE runTail performs the first
// backlog read, and notifications are treated as wake-ups only; entries are
// always read from the log by offset. Subscribing first and reading by
// position closes both the publish/subscribe miss window and the duplicate
// window between a backlog read and the first wait.
//
// Termination: a control event (or the cancellation signal) arms a fixed
// grace timer; draining continues until it fires so entries already in flight
// are not lost. Observing the cancel control event additionally invokes
// onCancel so sibling consumers, including cross-process ones, are signalled.
// Every exit path unsubscribes and closes out.
func runTail(ctx context.Context, id string, out chan<- EventMessage, sig *cancelSignal, sub messaging.Subscription, fetch tailFetch, onCancel func()) {
	defer close(out)
	defer func() {
		unsubCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := sub.Unsubscribe(unsubCtx); err != nil {
			klog.Warningf("stream queue %s: unsubscribe live tail: %v", id, err)
		}
	}()

	var (
		pos    int
		grace  *time.Timer
		graceC <-chan time.Time
	)
	defer func() {
		if grace != nil {
			grace.Stop()
		}
	}()
	armGrace := func() {
		if grace == nil {
			grace = time.NewTimer(graceDelay)
			graceC = grace.C
		}
	}

	// drain emits every entry not yet seen by this consumer, in order.
	// It reports false when the tail must stop (consumer gone, backend read
	// failed).
	drain := func() bool {
		msgs, err := fetch(ctx, pos)
		if err != nil {
			if ctx.Err() == nil {
				klog.ErrorS(err, "stream queue live tail read failed", "queue", id)
			}
			return false
		}
		for _, m := range msgs {
			select {
			case out <- m:
			case <-ctx.Done():
				return false
			}
			pos++
			if m.IsControl() {
				if m.Event == EventStreamCancel && onCancel != nil {
					onCancel()
				}
				armGrace()
			}
		}
		return true
	}

	if !drain() {
		return
	}

	// The notification channel can lose a publish that lands while the
	// subscription is still being established; a slow reconcile read keeps a
	// suspended consumer from being stranded by it.
	poll := time.NewTicker(tailPollInterval)
	defer poll.Stop()

	sigC := sig.done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
			if !drain() {
				return
			}
		case <-graceC:
			// Final reconcile: admit anything already in flight, then stop.
			drain()
			return
		case <-sigC:
			sigC = nil // fires once; avoid spinning on the closed channel
			armGrace()
			if !drain() {
				return
			}
		case _, ok := <-sub.C():
			if !ok {
				return
			}
			if !drain() {
				return
			}
		}
	}
}
