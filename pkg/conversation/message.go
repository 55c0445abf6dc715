// Package conversation holds the chat data model shared by the client, the
// completion server and storage: messages, conversation summaries, and the
// client side Transcript with its pending assistant placeholder.
package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Message is one entry of a conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`

	// Pending marks the transient assistant placeholder. It is never
	// persisted or sent over the wire.
	Pending bool `json:"-"`
}

// NewMessage builds a finalized message with a fresh ID.
func NewMessage(conversationID string, role Role, content string) Message {
	return Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
}

// Conversation is the summary of a conversation as listed by the backend.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewConversation builds a conversation with a fresh ID.
func NewConversation(title string) Conversation {
	now := time.Now().UTC()
	return Conversation{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
