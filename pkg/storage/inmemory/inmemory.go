// Package inmemory is a map-backed storage.Driver for tests and ephemeral
// servers.
package inmemory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/papercomputeco/chatstream/pkg/conversation"
	"github.com/papercomputeco/chatstream/pkg/storage"
)

// Driver implements storage.Driver using in-memory maps.
type Driver struct {
	// mu is a read write sync mutex guarding every map below
	mu sync.RWMutex

	conversations map[string]conversation.Conversation

	// messages holds each conversation's messages in append order
	messages map[string][]conversation.Message

	// seen indexes message IDs for idempotent appends
	seen map[string]struct{}
}

// NewDriver creates a new in-memory driver.
func NewDriver() *Driver {
	return &Driver{
		conversations: make(map[string]conversation.Conversation),
		messages:      make(map[string][]conversation.Message),
		seen:          make(map[string]struct{}),
	}
}

// CreateConversation stores a new conversation.
func (d *Driver) CreateConversation(_ context.Context, conv conversation.Conversation) error {
	if conv.ID == "" {
		return errors.New("cannot store conversation without an id")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.conversations[conv.ID]; ok {
		return errors.New("conversation already exists: " + conv.ID)
	}
	d.conversations[conv.ID] = conv
	return nil
}

// GetConversation retrieves a conversation by ID.
func (d *Driver) GetConversation(_ context.Context, id string) (conversation.Conversation, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	conv, ok := d.conversations[id]
	if !ok {
		return conversation.Conversation{}, storage.NotFoundError{ID: id}
	}
	return conv, nil
}

// ListConversations returns every conversation, most recently updated first.
func (d *Driver) ListConversations(_ context.Context) ([]conversation.Conversation, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	convs := make([]conversation.Conversation, 0, len(d.conversations))
	for _, c := range d.conversations {
		convs = append(convs, c)
	}

	sort.Slice(convs, func(i, j int) bool {
		if !convs[i].UpdatedAt.Equal(convs[j].UpdatedAt) {
			return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
		}
		return convs[i].ID < convs[j].ID
	})
	return convs, nil
}

// AppendMessage adds a message to its conversation.
func (d *Driver) AppendMessage(_ context.Context, msg conversation.Message) error {
	if msg.ID == "" {
		return errors.New("cannot store message without an id")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	conv, ok := d.conversations[msg.ConversationID]
	if !ok {
		return storage.NotFoundError{ID: msg.ConversationID}
	}

	// Idempotent insert
	if _, dup := d.seen[msg.ID]; dup {
		return nil
	}

	msg.Pending = false
	d.seen[msg.ID] = struct{}{}
	d.messages[msg.ConversationID] = append(d.messages[msg.ConversationID], msg)

	if msg.CreatedAt.After(conv.UpdatedAt) {
		conv.UpdatedAt = msg.CreatedAt
		d.conversations[conv.ID] = conv
	}
	return nil
}

// Messages returns the messages of a conversation in append order.
func (d *Driver) Messages(_ context.Context, conversationID string) ([]conversation.Message, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if _, ok := d.conversations[conversationID]; !ok {
		return nil, storage.NotFoundError{ID: conversationID}
	}

	msgs := d.messages[conversationID]
	out := make([]conversation.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}
