// Package chat runs chat turns against a streaming backend. A Service owns
// the transcript of the current conversation and guarantees that at most one
// assistant stream is in flight for it.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/papercomputeco/chatstream/pkg/conversation"
	"github.com/papercomputeco/chatstream/pkg/logger"
	"github.com/papercomputeco/chatstream/pkg/stream"
)

var (
	// ErrStreaming is returned by Submit while a reply is still streaming.
	ErrStreaming = errors.New("a reply is still streaming")

	// ErrEmptyMessage is returned by Submit for blank input.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("chat service is closed")
)

// Streamer opens the event stream of one assistant reply. The returned body
// must be closed by the caller. Implementations must abort the request when
// ctx is cancelled.
type Streamer interface {
	OpenStream(ctx context.Context, conversationID, message string) (io.ReadCloser, error)
}

// Service drives chat turns for one conversation at a time.
type Service struct {
	streamer Streamer
	logger   *slog.Logger
	tee      io.Writer

	slot stream.Slot

	mu         sync.Mutex
	transcript *conversation.Transcript
	streaming  bool
	closed     bool
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. It defaults to a no-op logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithRecorder mirrors the raw bytes of every stream to w.
func WithRecorder(w io.Writer) Option {
	return func(s *Service) {
		s.tee = w
	}
}

// NewService creates a Service for transcript.
func NewService(streamer Streamer, transcript *conversation.Transcript, opts ...Option) *Service {
	s := &Service{
		streamer:   streamer,
		transcript: transcript,
		logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Transcript returns the transcript of the current conversation.
func (s *Service) Transcript() *conversation.Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript
}

// Streaming reports whether a reply is in flight.
func (s *Service) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// Submit appends text as a user message and starts streaming the assistant
// reply in the background. onToken, when not nil, is called from the stream
// goroutine for every token after it was appended to the transcript.
func (s *Service) Submit(ctx context.Context, text string, onToken func(string)) (*Turn, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if s.streaming {
		s.mu.Unlock()
		return nil, ErrStreaming
	}
	tr := s.transcript
	s.streaming = true
	s.mu.Unlock()

	tr.AppendUser(text)
	if err := tr.Begin(); err != nil {
		s.release()
		return nil, fmt.Errorf("starting reply: %w", err)
	}

	turn := &Turn{}
	turn.session = s.slot.Start(ctx, func(ctx context.Context) error {
		defer s.release()
		turn.result = s.run(ctx, tr, text, onToken)
		return turn.result.Err
	})

	return turn, nil
}

// Cancel aborts the in-flight reply, if any, and waits for it to wind down.
// It reports whether a reply was cancelled.
func (s *Service) Cancel() bool {
	active := s.slot.Active()
	s.slot.Cancel()
	if active == nil {
		return false
	}
	<-active.Done()
	return true
}

// Switch cancels the in-flight reply and makes transcript the current one.
func (s *Service) Switch(transcript *conversation.Transcript) {
	s.Cancel()

	s.mu.Lock()
	s.transcript = transcript
	s.mu.Unlock()

	s.logger.Debug("switched conversation", "conversation_id", transcript.ConversationID())
}

// Close cancels the in-flight reply and rejects further submissions.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.Cancel()
}

func (s *Service) release() {
	s.mu.Lock()
	s.streaming = false
	s.mu.Unlock()
}

func (s *Service) run(ctx context.Context, tr *conversation.Transcript, text string, onToken func(string)) Result {
	log := s.logger.With("conversation_id", tr.ConversationID())

	body, err := s.streamer.OpenStream(ctx, tr.ConversationID(), text)
	if err != nil {
		tr.Discard()
		if ctx.Err() != nil {
			log.Debug("stream cancelled before it opened")
			return Result{Outcome: OutcomeCancelled}
		}
		log.Error("opening stream", "error", err)
		return Result{Outcome: OutcomeFailed, Err: err}
	}
	defer body.Close()

	var opts []stream.Option
	if s.tee != nil {
		opts = append(opts, stream.WithTee(s.tee))
	}

	tokens := 0
	state, err := stream.Run(ctx, body, func(ev stream.Event) {
		if ev.Kind != stream.KindToken {
			return
		}
		tokens++
		if tr.AppendToken(ev.Payload) && onToken != nil {
			onToken(ev.Payload)
		}
	}, opts...)

	if err != nil {
		partial, _ := tr.Discard()
		var perr *stream.ProtocolError
		if errors.As(err, &perr) {
			log.Warn("stream reported an error", "error", perr.Payload, "tokens", tokens)
		} else {
			log.Error("reading stream", "error", err, "tokens", tokens)
		}
		return Result{Outcome: OutcomeFailed, Err: err, Partial: partial}
	}

	switch state {
	case stream.StateDone:
		msg, _ := tr.Commit()
		log.Debug("reply completed", "tokens", tokens, "message_id", msg.ID)
		return Result{Outcome: OutcomeCompleted, Message: msg}

	case stream.StateCancelled:
		partial, _ := tr.Discard()
		log.Debug("reply cancelled", "tokens", tokens)
		return Result{Outcome: OutcomeCancelled, Partial: partial}

	default:
		partial, _ := tr.Discard()
		log.Warn("stream closed without done", "tokens", tokens)
		return Result{Outcome: OutcomeTruncated, Partial: partial}
	}
}
