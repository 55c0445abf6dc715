// Package ollama is a Generator backed by a local Ollama server. It streams
// the NDJSON response of /api/chat and emits each content delta.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/chatstream/pkg/completion"
	"github.com/papercomputeco/chatstream/pkg/logger"
)

const (
	DefaultTarget = "http://localhost:11434"
	DefaultModel  = "gemma3:latest"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// chatChunk is one NDJSON line of a streaming /api/chat response.
type chatChunk struct {
	Model      string      `json:"model"`
	CreatedAt  time.Time   `json:"created_at"`
	Message    chatMessage `json:"message"`
	Done       bool        `json:"done"`
	DoneReason string      `json:"done_reason,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Generator calls Ollama.
type Generator struct {
	target string
	model  string
	http   *http.Client
	logger *slog.Logger
}

// Option configures the Ollama generator.
type Option func(*Generator)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Generator) {
		g.http = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) {
		g.logger = l
	}
}

// New creates a generator for model at target. Empty values fall back to
// DefaultTarget and DefaultModel.
func New(target, model string, opts ...Option) *Generator {
	if target == "" {
		target = DefaultTarget
	}
	if model == "" {
		model = DefaultModel
	}

	g := &Generator{
		target: strings.TrimRight(target, "/"),
		model:  model,
		// No client timeout: replies can be slow and they are bounded by
		// the request context.
		http:   &http.Client{},
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Generator) Name() string {
	return "ollama"
}

// Generate sends the conversation history to Ollama and emits the reply.
func (g *Generator) Generate(ctx context.Context, req completion.Request, emit completion.EmitFunc) error {
	msgs := make([]chatMessage, 0, len(req.History))
	for _, m := range req.History {
		msgs = append(msgs, chatMessage{Role: string(m.Role), Content: m.Content})
	}

	payload, err := json.Marshal(chatRequest{Model: g.model, Messages: msgs, Stream: true})
	if err != nil {
		return fmt.Errorf("marshal ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.target+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	g.logger.Debug("sending ollama request",
		"target", g.target,
		"model", g.model,
		"message_count", len(msgs),
	)

	resp, err := g.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send ollama request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("ollama status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var chunk chatChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			g.logger.Debug("failed to parse stream chunk",
				"error", err,
				"line", string(line),
			)
			continue
		}

		if chunk.Error != "" {
			return fmt.Errorf("ollama error: %s", chunk.Error)
		}

		if chunk.Message.Content != "" {
			if err := emit(chunk.Message.Content); err != nil {
				return err
			}
		}

		if chunk.Done {
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading ollama stream: %w", err)
	}
	return fmt.Errorf("ollama stream ended before done")
}
