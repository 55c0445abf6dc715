package stream

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/papercomputeco/chatstream/pkg/sse"
)

const defaultChunkSize = 4096

// Option configures Consume and Run.
type Option func(*options)

type options struct {
	chunkSize int
	tee       io.Writer
}

// WithChunkSize sets the size of each read from the body. Smaller reads
// observe cancellation sooner on slow streams.
func WithChunkSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// WithTee writes every byte read from the body, verbatim, to w.
func WithTee(w io.Writer) Option {
	return func(o *options) {
		o.tee = w
	}
}

// Consume decodes body and delivers each event to onEvent in arrival order.
//
// It returns nil when the body is exhausted, when a done event is decoded,
// or when ctx is cancelled. It returns *ProtocolError, after delivering the
// event, when an error event is decoded. Any other error is an I/O failure
// of body that was not caused by cancellation.
//
// The caller must have already checked the HTTP status; Consume only handles
// an open, successful response body. Cancelling ctx is expected to also abort
// the request that produced body, so a blocked Read returns promptly.
func Consume(ctx context.Context, body io.Reader, onEvent Handler, opts ...Option) error {
	_, err := Run(ctx, body, onEvent, opts...)
	return err
}

// Run is Consume but also reports the terminal state, which lets callers
// tell a confirmed completion (StateDone) from a silent close (StateClosed)
// or a cancellation (StateCancelled).
func Run(ctx context.Context, body io.Reader, onEvent Handler, opts ...Option) (State, error) {
	o := options{chunkSize: defaultChunkSize}
	for _, opt := range opts {
		opt(&o)
	}

	if onEvent == nil {
		onEvent = func(Event) {}
	}

	c := &consumer{
		ctx:     ctx,
		body:    body,
		onEvent: onEvent,
		tee:     o.tee,
		dec:     sse.NewDecoder(),
		chunk:   make([]byte, o.chunkSize),
		state:   StateBuffering,
	}

	err := c.run()
	return c.state, err
}

// consumer is the per-request decoding state. It is owned by exactly one Run
// call and is never shared.
type consumer struct {
	ctx     context.Context
	body    io.Reader
	onEvent Handler
	tee     io.Writer

	dec   *sse.Decoder
	chunk []byte
	state State
}

func (c *consumer) run() error {
	for {
		if c.cancelled() {
			return nil
		}

		n, err := c.body.Read(c.chunk)
		if n > 0 {
			if c.tee != nil {
				if _, werr := c.tee.Write(c.chunk[:n]); werr != nil {
					return fmt.Errorf("writing stream tee: %w", werr)
				}
			}

			c.dec.Feed(c.chunk[:n])
			if stop, derr := c.dispatch(); stop {
				return derr
			}
		}

		switch {
		case err == nil:
			continue

		case errors.Is(err, io.EOF):
			c.dec.Close()
			if stop, derr := c.dispatch(); stop {
				return derr
			}
			c.state, _ = Step(c.state, Input{Kind: InputEOF})
			return nil

		default:
			// Aborting the request surfaces as a read error; that is a
			// cancellation, not a failure.
			if c.cancelled() {
				return nil
			}
			return fmt.Errorf("reading stream: %w", err)
		}
	}
}

// dispatch delivers every complete buffered frame. It reports stop=true when
// the loop has reached a terminal state.
func (c *consumer) dispatch() (bool, error) {
	for {
		if c.cancelled() {
			return true, nil
		}

		frame, ok := c.dec.Next()
		if !ok {
			return false, nil
		}

		next, ev := Step(c.state, Input{Kind: InputFrame, Frame: frame})
		c.state = next
		if ev == nil {
			continue
		}

		c.onEvent(*ev)
		c.state, _ = Step(c.state, Input{Kind: InputDelivered, Event: *ev})

		switch c.state {
		case StateDone:
			return true, nil
		case StateErrored:
			return true, &ProtocolError{Payload: ev.Payload}
		}
	}
}

// cancelled checks the context and moves to StateCancelled when it is done.
func (c *consumer) cancelled() bool {
	if c.ctx.Err() == nil {
		return false
	}
	c.state, _ = Step(c.state, Input{Kind: InputCancel})
	return true
}
