// Package stream consumes a chat completion event stream and dispatches
// typed events to a caller supplied Handler.
//
// Consume owns the decoding loop for exactly one response body. It stops at
// the first terminal event, when the body is exhausted, or as soon as its
// context is cancelled, whichever comes first. Cancellation is a clean stop,
// not a failure: Consume returns nil and never "undoes" events it already
// delivered.
package stream

// Kind is the application-level type of a decoded event.
type Kind int

const (
	// KindToken carries an incremental piece of assistant text.
	KindToken Kind = iota + 1

	// KindDone signals successful completion. It is terminal.
	KindDone

	// KindError signals a server-side failure. It is terminal and its
	// payload is a human readable message.
	KindError
)

// kinds maps wire event names to kinds. Names that are not present are
// ignored by Consume so new server events never break old clients.
var kinds = map[string]Kind{
	"token": KindToken,
	"done":  KindDone,
	"error": KindError,
}

// KindFor returns the Kind registered for an SSE event name.
func KindFor(name string) (Kind, bool) {
	k, ok := kinds[name]
	return k, ok
}

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindToken:
		return "token"
	case KindDone:
		return "done"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether the kind ends the stream.
func (k Kind) Terminal() bool {
	return k == KindDone || k == KindError
}

// Event is one fully decoded stream event. Events are values and are only
// ever built from complete frames.
type Event struct {
	Kind    Kind
	Payload string
}

// Handler receives events in arrival order. It is called synchronously from
// the decoding loop.
type Handler func(Event)
