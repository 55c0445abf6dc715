package stream

// ProtocolError is returned by Consume when the server sent an explicit
// error event. Payload is the event's data, suitable for display.
type ProtocolError struct {
	Payload string
}

func (e *ProtocolError) Error() string {
	if e.Payload == "" {
		return "stream error"
	}
	return "stream error: " + e.Payload
}
