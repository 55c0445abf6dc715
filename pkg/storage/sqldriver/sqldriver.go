// Package sqldriver implements storage.Driver over database/sql. The sqlite
// and postgres packages open the connection and the schema and embed Driver.
package sqldriver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/papercomputeco/chatstream/pkg/conversation"
	"github.com/papercomputeco/chatstream/pkg/storage"
)

// Dialect captures how SQL differs between backends.
type Dialect struct {
	// Name is used in error messages.
	Name string

	// Schema is executed once on open. Every statement must be idempotent.
	Schema []string

	// Numbered switches "?" placeholders to "$1", "$2", ...
	Numbered bool
}

// Driver implements storage.Driver with portable SQL.
type Driver struct {
	DB      *sql.DB
	dialect Dialect
}

// New runs the dialect's schema on db and returns the driver. The driver
// takes ownership of db.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Driver, error) {
	for _, stmt := range dialect.Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create %s schema: %w", dialect.Name, err)
		}
	}
	return &Driver{DB: db, dialect: dialect}, nil
}

// Rebind rewrites "?" placeholders for numbered dialects.
func (d *Driver) Rebind(query string) string {
	if !d.dialect.Numbered {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const (
	insertConversation = `INSERT INTO conversations (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)`
	selectConversation = `SELECT id, title, created_at, updated_at FROM conversations WHERE id = ?`
	listConversations  = `SELECT id, title, created_at, updated_at FROM conversations ORDER BY updated_at DESC, id ASC`
	touchConversation  = `UPDATE conversations SET updated_at = ? WHERE id = ? AND updated_at < ?`
	existsConversation = `SELECT 1 FROM conversations WHERE id = ?`
	insertMessage      = `INSERT INTO messages (id, conversation_id, role, content, created_at) VALUES (?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`
	selectMessages     = `SELECT id, conversation_id, role, content, created_at FROM messages WHERE conversation_id = ? ORDER BY seq ASC`
)

// CreateConversation stores a new conversation.
func (d *Driver) CreateConversation(ctx context.Context, conv conversation.Conversation) error {
	if conv.ID == "" {
		return errors.New("cannot store conversation without an id")
	}

	_, err := d.DB.ExecContext(ctx, d.Rebind(insertConversation),
		conv.ID, conv.Title, conv.CreatedAt.UTC(), conv.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("inserting conversation %s: %w", conv.ID, err)
	}
	return nil
}

// GetConversation retrieves a conversation by ID.
func (d *Driver) GetConversation(ctx context.Context, id string) (conversation.Conversation, error) {
	row := d.DB.QueryRowContext(ctx, d.Rebind(selectConversation), id)

	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return conversation.Conversation{}, storage.NotFoundError{ID: id}
	}
	if err != nil {
		return conversation.Conversation{}, fmt.Errorf("getting conversation %s: %w", id, err)
	}
	return conv, nil
}

// ListConversations returns every conversation, most recently updated first.
func (d *Driver) ListConversations(ctx context.Context) ([]conversation.Conversation, error) {
	rows, err := d.DB.QueryContext(ctx, listConversations)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	convs := []conversation.Conversation{}
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// AppendMessage adds a message and bumps the conversation's UpdatedAt in
// one transaction.
func (d *Driver) AppendMessage(ctx context.Context, msg conversation.Message) error {
	if msg.ID == "" {
		return errors.New("cannot store message without an id")
	}

	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var one int
	err = tx.QueryRowContext(ctx, d.Rebind(existsConversation), msg.ConversationID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.NotFoundError{ID: msg.ConversationID}
	}
	if err != nil {
		return fmt.Errorf("checking conversation %s: %w", msg.ConversationID, err)
	}

	createdAt := msg.CreatedAt.UTC()
	if _, err := tx.ExecContext(ctx, d.Rebind(insertMessage),
		msg.ID, msg.ConversationID, string(msg.Role), msg.Content, createdAt); err != nil {
		return fmt.Errorf("inserting message %s: %w", msg.ID, err)
	}

	if _, err := tx.ExecContext(ctx, d.Rebind(touchConversation),
		createdAt, msg.ConversationID, createdAt); err != nil {
		return fmt.Errorf("updating conversation %s: %w", msg.ConversationID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing message %s: %w", msg.ID, err)
	}
	return nil
}

// Messages returns the messages of a conversation in append order.
func (d *Driver) Messages(ctx context.Context, conversationID string) ([]conversation.Message, error) {
	if _, err := d.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	rows, err := d.DB.QueryContext(ctx, d.Rebind(selectMessages), conversationID)
	if err != nil {
		return nil, fmt.Errorf("listing messages of %s: %w", conversationID, err)
	}
	defer rows.Close()

	msgs := []conversation.Message{}
	for rows.Next() {
		var (
			m         conversation.Message
			role      string
			createdAt time.Time
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.Role = conversation.Role(role)
		m.CreatedAt = createdAt.UTC()
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// Close closes the database.
func (d *Driver) Close() error {
	return d.DB.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(s scanner) (conversation.Conversation, error) {
	var c conversation.Conversation
	if err := s.Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return conversation.Conversation{}, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}
