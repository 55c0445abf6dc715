// Package completion defines the Generator contract the completion server
// uses to produce assistant replies one token at a time.
package completion

import (
	"context"

	"github.com/papercomputeco/chatstream/pkg/conversation"
)

// Request is the input of one reply.
type Request struct {
	ConversationID string

	// History holds the persisted messages, oldest first. It ends with the
	// user message being answered.
	History []conversation.Message
}

// Last returns the content of the final message in History.
func (r Request) Last() string {
	if len(r.History) == 0 {
		return ""
	}
	return r.History[len(r.History)-1].Content
}

// EmitFunc receives incremental reply text. A non-nil error stops the
// generation and is returned by Generate.
type EmitFunc func(token string) error

// Generator produces the assistant reply for a request.
type Generator interface {
	// Name identifies the generator in logs and configuration.
	Name() string

	// Generate calls emit for every piece of the reply, in order. It must
	// return promptly once ctx is cancelled.
	Generate(ctx context.Context, req Request, emit EmitFunc) error
}
