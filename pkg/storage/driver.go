// Package storage
package storage

import (
	"context"

	"github.com/papercomputeco/chatstream/pkg/conversation"
)

// Driver defines the interface for persisting conversations and their
// messages. Messages are append-only: there is no update or delete.
type Driver interface {
	// CreateConversation stores a new conversation.
	CreateConversation(ctx context.Context, conv conversation.Conversation) error

	// GetConversation retrieves a conversation by ID.
	GetConversation(ctx context.Context, id string) (conversation.Conversation, error)

	// ListConversations returns every conversation, most recently updated first.
	ListConversations(ctx context.Context) ([]conversation.Conversation, error)

	// AppendMessage adds a message to its conversation and bumps the
	// conversation's UpdatedAt. Appending a message whose ID already exists
	// is a no-op. Returns NotFoundError when the conversation does not exist.
	AppendMessage(ctx context.Context, msg conversation.Message) error

	// Messages returns the messages of a conversation in append order.
	Messages(ctx context.Context, conversationID string) ([]conversation.Message, error)

	// Close closes the store and releases any resources.
	Close() error
}
