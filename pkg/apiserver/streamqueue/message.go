package streamqueue

// Reserved event discriminants. A message carrying one of these is a control
// event that bounds a live-tail sequence; every other value is a payload event
// whose semantics are owned by the producer and consumer.
const (
	EventStreamEnd    = "__stream_end__"
	EventStreamError  = "__stream_error__"
	EventStreamCancel = "__stream_cancel__"
)

// EventMessage is the unit of data flowing through a stream queue. It is
// treated as immutable after it has been pushed. The queue never inspects
// Payload; only Event is matched against the reserved discriminants.
type EventMessage struct {
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

// IsControl reports whether the message is a lifecycle control event.
func (m EventMessage) IsControl() bool {
	switch m.Event {
	case EventStreamEnd, EventStreamError, EventStreamCancel:
		return true
	}
	return false
}

// NewCancelEvent builds the control message that terminates a run's stream
// for all observers.
func NewCancelEvent() EventMessage {
	return EventMessage{Event: EventStreamCancel}
}

// NewEndEvent builds the control message marking normal completion.
func NewEndEvent() EventMessage {
	return EventMessage{Event: EventStreamEnd}
}

// NewErrorEvent builds the control message marking abnormal completion.
func NewErrorEvent(reason string) EventMessage {
	return EventMessage{Event: EventStreamError, Payload: reason}
}
