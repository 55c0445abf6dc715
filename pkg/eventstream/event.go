package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/chatstream/pkg/conversation"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeTurnCompleted is emitted after an assistant reply is persisted.
	EventTypeTurnCompleted = "chatstream.turn.completed"
)

// TurnCompletedEvent is a transport-neutral event payload for a finished turn.
type TurnCompletedEvent struct {
	SchemaVersion  int             `json:"schema_version"`
	EventType      string          `json:"event_type"`
	EventID        string          `json:"event_id"`
	EmittedAt      time.Time       `json:"emitted_at"`
	Source         EventSource     `json:"source"`
	ConversationID string          `json:"conversation_id"`
	RequestMeta    TurnRequestMeta `json:"request_meta"`

	User      conversation.Message `json:"user"`
	Assistant conversation.Message `json:"assistant"`
}

// EventSource identifies where the turn was generated.
type EventSource struct {
	Service   string `json:"service"`
	Generator string `json:"generator"`
}

// TurnRequestMeta captures request lifecycle metadata for the event.
type TurnRequestMeta struct {
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
	Tokens      int       `json:"tokens"`
}

// NewTurnCompletedEvent fills in the envelope fields of an event.
func NewTurnCompletedEvent(source EventSource, user, assistant conversation.Message, meta TurnRequestMeta) *TurnCompletedEvent {
	if meta.DurationMs == 0 && !meta.CompletedAt.IsZero() {
		meta.DurationMs = meta.CompletedAt.Sub(meta.StartedAt).Milliseconds()
	}

	return &TurnCompletedEvent{
		SchemaVersion:  SchemaVersionV1,
		EventType:      EventTypeTurnCompleted,
		EventID:        uuid.NewString(),
		EmittedAt:      time.Now().UTC(),
		Source:         source,
		ConversationID: assistant.ConversationID,
		RequestMeta:    meta,
		User:           user,
		Assistant:      assistant,
	}
}
