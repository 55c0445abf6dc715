package stream

import "github.com/papercomputeco/chatstream/pkg/sse"

// State is the phase of the decoding loop.
//
//	Buffering ──frame──▶ Dispatching ──token/unknown──▶ Buffering
//	                          │
//	                          ├──done──▶ Done
//	                          └──error─▶ Errored
//	Buffering/Dispatching ──cancel──▶ Cancelled
//	Buffering ──eof──▶ Closed
//
// Done, Errored, Cancelled and Closed are terminal and absorb any input.
type State int

const (
	// StateBuffering waits for the next complete frame.
	StateBuffering State = iota

	// StateDispatching holds a decoded event that is being delivered.
	StateDispatching

	// StateDone was reached through a done event.
	StateDone

	// StateErrored was reached through an error event.
	StateErrored

	// StateCancelled was reached through cancellation.
	StateCancelled

	// StateClosed was reached when the source ended without a terminal event.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateBuffering:
		return "buffering"
	case StateDispatching:
		return "dispatching"
	case StateDone:
		return "done"
	case StateErrored:
		return "errored"
	case StateCancelled:
		return "cancelled"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the loop must stop.
func (s State) Terminal() bool {
	return s >= StateDone
}

// InputKind distinguishes the inputs of Step.
type InputKind int

const (
	// InputFrame carries a complete frame from the decoder.
	InputFrame InputKind = iota

	// InputDelivered reports that the dispatching event reached the handler.
	InputDelivered

	// InputCancel reports that cancellation was observed.
	InputCancel

	// InputEOF reports that the source is exhausted.
	InputEOF
)

// Input is one stimulus for the state machine.
type Input struct {
	Kind  InputKind
	Frame sse.Event

	// Event is the event that was delivered, for InputDelivered.
	Event Event
}

// Step is the pure transition function of the decoding loop. It returns the
// next state and, when the transition produces one, the event to deliver.
func Step(s State, in Input) (State, *Event) {
	if s.Terminal() {
		return s, nil
	}

	switch in.Kind {
	case InputCancel:
		return StateCancelled, nil

	case InputEOF:
		if s == StateBuffering {
			return StateClosed, nil
		}
		return s, nil

	case InputFrame:
		if s != StateBuffering {
			return s, nil
		}
		kind, ok := KindFor(in.Frame.Type)
		if !ok {
			return StateBuffering, nil
		}
		return StateDispatching, &Event{Kind: kind, Payload: in.Frame.Data}

	case InputDelivered:
		if s != StateDispatching {
			return s, nil
		}
		switch in.Event.Kind {
		case KindDone:
			return StateDone, nil
		case KindError:
			return StateErrored, nil
		default:
			return StateBuffering, nil
		}
	}

	return s, nil
}
