package chat

import (
	"github.com/papercomputeco/chatstream/pkg/conversation"
	"github.com/papercomputeco/chatstream/pkg/stream"
)

// Outcome is how a turn ended.
type Outcome int

const (
	// OutcomeCompleted means the server sent done. The reply was committed.
	OutcomeCompleted Outcome = iota

	// OutcomeFailed means the stream could not be opened, the server sent an
	// error event, or reading the body failed.
	OutcomeFailed

	// OutcomeCancelled means the turn was aborted locally.
	OutcomeCancelled

	// OutcomeTruncated means the body ended without done. It is not an
	// error, but the reply is unconfirmed and is not kept.
	OutcomeTruncated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeTruncated:
		return "truncated"
	default:
		return "unknown"
	}
}

// Result describes a finished turn.
type Result struct {
	Outcome Outcome

	// Message is the committed assistant reply for OutcomeCompleted.
	Message conversation.Message

	// Partial is the text that was discarded with the placeholder.
	Partial string

	// Err is set for OutcomeFailed. It is a *stream.ProtocolError when the
	// server sent an error event.
	Err error
}

// Turn is one submitted message and its streaming reply.
type Turn struct {
	session *stream.Session
	result  Result
}

// ID identifies the turn's stream session.
func (t *Turn) ID() string {
	return t.session.ID()
}

// Cancel aborts the reply. It is safe to call repeatedly.
func (t *Turn) Cancel() {
	t.session.Cancel()
}

// Done is closed once Result is available.
func (t *Turn) Done() <-chan struct{} {
	return t.session.Done()
}

// Wait blocks until the turn ends and returns its result.
func (t *Turn) Wait() Result {
	<-t.session.Done()
	return t.result
}
