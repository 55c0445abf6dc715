// Package sse provides a minimal, purpose-built incremental decoder for
// text/event-stream bodies. Bytes are fed to a Decoder in whatever chunks
// the transport delivers them and complete events are pulled back out once
// their terminating blank line has arrived.
//
// This package intentionally does NOT provide SSE writer or server
// capabilities.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

// DefaultEventType is the event type used when a frame carries no "event:"
// field.
const DefaultEventType = "message"

// Event represents a single parsed SSE event, delimited by a blank line
// in the upstream byte stream.
type Event struct {
	// Type is the SSE event type from the "event:" field, trimmed.
	// Frames without an "event:" field get DefaultEventType.
	Type string

	// Data is the concatenated contents of all "data:" lines for this event,
	// joined with "\n" (per the SSE spec, multiple data fields are joined
	// with a single newline).
	Data string

	// ID is the last event ID from the "id:" field, if present.
	ID string
}
