package api

import (
	"context"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"

	"github.com/papercomputeco/chatstream/api/worker"
	"github.com/papercomputeco/chatstream/pkg/completion"
	"github.com/papercomputeco/chatstream/pkg/conversation"
	"github.com/papercomputeco/chatstream/pkg/eventstream"
)

// handleStream appends the user message and streams the assistant reply.
func (s *Server) handleStream(c *fiber.Ctx) error {
	var req conversation.StreamRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(conversation.ErrorResponse{Error: "invalid request body"})
	}
	if req.ConversationID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(conversation.ErrorResponse{Error: "conversation_id is required"})
	}
	if strings.TrimSpace(req.Message) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(conversation.ErrorResponse{Error: "message is required"})
	}

	ctx := c.Context()
	if _, err := s.driver.GetConversation(ctx, req.ConversationID); err != nil {
		return s.conversationError(c, req.ConversationID, err)
	}

	history, err := s.driver.Messages(ctx, req.ConversationID)
	if err != nil {
		s.logger.Error("failed to load history", "conversation_id", req.ConversationID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(conversation.ErrorResponse{Error: "failed to load messages"})
	}

	user := conversation.NewMessage(req.ConversationID, conversation.RoleUser, req.Message)
	if err := s.driver.AppendMessage(ctx, user); err != nil {
		s.logger.Error("failed to store user message", "conversation_id", req.ConversationID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(conversation.ErrorResponse{Error: "failed to store message"})
	}

	turn := completion.Request{
		ConversationID: req.ConversationID,
		History:        append(history, user),
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	// io.Pipe gives per-frame flushing: fasthttp writes every chunk read
	// from the pipe straight to the connection.
	pr, pw := io.Pipe()

	s.streams.Add(1)
	go func() {
		defer s.streams.Done()
		s.streamTurn(pw, turn, user)
	}()

	// Size -1 selects chunked transfer encoding.
	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

// streamTurn runs the generator and writes its output to pw. It must not
// touch the fiber context, which is recycled once the handler returns.
func (s *Server) streamTurn(pw *io.PipeWriter, req completion.Request, user conversation.Message) {
	defer pw.Close()

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	started := time.Now().UTC()
	fw := &frameWriter{w: pw, onFail: cancel}
	pacer := newPacer(s.TokenRate())

	log := s.logger.With(
		"conversation_id", req.ConversationID,
		"generator", s.generator.Name(),
	)

	var (
		reply  strings.Builder
		tokens int
	)
	err := s.generator.Generate(ctx, req, func(token string) error {
		if err := pacer.wait(ctx, s.TokenRate()); err != nil {
			return err
		}
		reply.WriteString(token)
		tokens++
		return fw.token(token)
	})

	switch {
	case fw.err != nil:
		log.Info("client went away mid-stream", "tokens", tokens, "error", fw.err)
		return

	case ctx.Err() != nil:
		log.Info("stream cancelled", "tokens", tokens)
		abort(log, fw, "server shutting down")
		return

	case err != nil:
		log.Error("generation failed", "tokens", tokens, "error", err)
		abort(log, fw, "completion failed")
		return
	}

	assistant := conversation.NewMessage(req.ConversationID, conversation.RoleAssistant, reply.String())
	if err := s.driver.AppendMessage(ctx, assistant); err != nil {
		log.Error("failed to store assistant message", "error", err)
		abort(log, fw, "failed to store reply")
		return
	}

	if err := fw.done(); err != nil {
		log.Info("client went away before done", "error", err)
	}

	completed := time.Now().UTC()
	event := eventstream.NewTurnCompletedEvent(
		eventstream.EventSource{Service: s.config.ServiceName, Generator: s.generator.Name()},
		user,
		assistant,
		eventstream.TurnRequestMeta{
			StartedAt:   started,
			CompletedAt: completed,
			Tokens:      tokens,
		},
	)
	s.pool.Enqueue(worker.Job{Event: event})

	log.Debug("turn completed", "tokens", tokens, "duration", completed.Sub(started))
}

// abort ends the stream with an error frame. A client that has already
// disconnected only gets logged.
func abort(log *slog.Logger, fw *frameWriter, message string) {
	if err := fw.fail(message); err != nil {
		log.Info("client went away before error frame", "message", message, "error", err)
	}
}

// pacer spaces tokens according to a rate that may change mid-stream.
type pacer struct {
	limiter *rate.Limiter
	current float64
}

func newPacer(perSecond float64) *pacer {
	return &pacer{
		limiter: rate.NewLimiter(limitFor(perSecond), 1),
		current: perSecond,
	}
}

func (p *pacer) wait(ctx context.Context, perSecond float64) error {
	if perSecond != p.current {
		p.limiter.SetLimit(limitFor(perSecond))
		p.current = perSecond
	}
	return p.limiter.Wait(ctx)
}

func limitFor(perSecond float64) rate.Limit {
	if perSecond <= 0 || math.IsInf(perSecond, 1) {
		return rate.Inf
	}
	return rate.Limit(perSecond)
}
