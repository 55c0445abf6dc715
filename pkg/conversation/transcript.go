package conversation

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrPending is returned by Begin when a placeholder already exists.
var ErrPending = errors.New("an assistant reply is already pending")

// Transcript is the ordered, append-only message list of one conversation,
// plus at most one pending assistant placeholder. It is safe for concurrent
// use; the streaming goroutine appends tokens while a UI reads snapshots.
type Transcript struct {
	mu             sync.Mutex
	conversationID string
	messages       []Message
	pending        *placeholder
}

type placeholder struct {
	id        string
	createdAt time.Time
	text      strings.Builder
}

// NewTranscript starts a transcript from already persisted history.
func NewTranscript(conversationID string, history []Message) *Transcript {
	msgs := make([]Message, 0, len(history))
	for _, m := range history {
		m.Pending = false
		msgs = append(msgs, m)
	}

	return &Transcript{
		conversationID: conversationID,
		messages:       msgs,
	}
}

// ConversationID returns the conversation this transcript belongs to.
func (t *Transcript) ConversationID() string {
	return t.conversationID
}

// AppendUser appends a finalized user message and returns it.
func (t *Transcript) AppendUser(content string) Message {
	m := NewMessage(t.conversationID, RoleUser, content)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.messages = append(t.messages, m)
	return m
}

// Begin installs the pending assistant placeholder.
func (t *Transcript) Begin() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pending != nil {
		return ErrPending
	}

	t.pending = &placeholder{
		id:        uuid.NewString(),
		createdAt: time.Now().UTC(),
	}
	return nil
}

// AppendToken extends the placeholder. It reports false when there is no
// placeholder, which happens for a token that raced a cancellation.
func (t *Transcript) AppendToken(text string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pending == nil {
		return false
	}
	t.pending.text.WriteString(text)
	return true
}

// Commit removes the placeholder and appends its accumulated text as a
// finalized assistant message.
func (t *Transcript) Commit() (Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pending == nil {
		return Message{}, false
	}

	m := Message{
		ID:             t.pending.id,
		ConversationID: t.conversationID,
		Role:           RoleAssistant,
		Content:        t.pending.text.String(),
		CreatedAt:      t.pending.createdAt,
	}
	t.pending = nil
	t.messages = append(t.messages, m)
	return m, true
}

// Discard removes the placeholder without keeping it and returns whatever
// partial text it held.
func (t *Transcript) Discard() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pending == nil {
		return "", false
	}

	partial := t.pending.text.String()
	t.pending = nil
	return partial, true
}

// Pending returns the text of the placeholder.
func (t *Transcript) Pending() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pending == nil {
		return "", false
	}
	return t.pending.text.String(), true
}

// Messages returns a copy of the transcript. When a placeholder exists it is
// the last element, with Pending set.
func (t *Transcript) Messages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Message, len(t.messages), len(t.messages)+1)
	copy(out, t.messages)

	if t.pending != nil {
		out = append(out, Message{
			ID:             t.pending.id,
			ConversationID: t.conversationID,
			Role:           RoleAssistant,
			Content:        t.pending.text.String(),
			CreatedAt:      t.pending.createdAt,
			Pending:        true,
		})
	}
	return out
}

// Len is the number of finalized messages.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}
