// Package echo is a deterministic Generator that replays the user message
// word by word. It needs no model and backs tests and local demos.
package echo

import (
	"context"
	"strings"
	"time"

	"github.com/papercomputeco/chatstream/pkg/completion"
)

// Generator echoes the last message of a request.
type Generator struct {
	prefix string
	delay  time.Duration
}

// Option configures the echo generator.
type Option func(*Generator)

// WithPrefix emits prefix as the first token.
func WithPrefix(prefix string) Option {
	return func(g *Generator) {
		g.prefix = prefix
	}
}

// WithDelay waits d before each token.
func WithDelay(d time.Duration) Option {
	return func(g *Generator) {
		g.delay = d
	}
}

// New creates an echo generator.
func New(opts ...Option) *Generator {
	g := &Generator{}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Generator) Name() string {
	return "echo"
}

// Generate emits the last message split after each space, so the tokens
// concatenate back to the original text.
func (g *Generator) Generate(ctx context.Context, req completion.Request, emit completion.EmitFunc) error {
	tokens := Tokens(req.Last())
	if g.prefix != "" {
		tokens = append([]string{g.prefix}, tokens...)
	}

	for _, tok := range tokens {
		if g.delay > 0 {
			timer := time.NewTimer(g.delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(tok); err != nil {
			return err
		}
	}
	return nil
}

// Tokens splits text after every space.
func Tokens(text string) []string {
	if text == "" {
		return nil
	}
	return strings.SplitAfter(text, " ")
}
