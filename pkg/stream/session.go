package stream

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Session is one in-flight streaming request, started with Start. The caller
// owns it and stops it with Cancel.
type Session struct {
	id        string
	cancel    context.CancelFunc
	cancelled atomic.Bool
	done      chan struct{}
	err       error
}

// Start runs fn in a new goroutine with a context derived from parent and
// returns the Session controlling it. fn should pass the context to the HTTP
// request so that Cancel aborts the request and the body read together.
func Start(parent context.Context, fn func(ctx context.Context) error) *Session {
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		id:     uuid.NewString(),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		defer cancel()
		s.err = fn(ctx)
	}()

	return s
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// Cancel aborts the session. Calling it more than once, or after the session
// finished, is a no-op.
func (s *Session) Cancel() {
	s.cancelled.Store(true)
	s.cancel()
}

// Cancelled reports whether Cancel was called.
func (s *Session) Cancelled() bool {
	return s.cancelled.Load()
}

// Done is closed when the session's function has returned.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Running reports whether the session's function has not returned yet.
func (s *Session) Running() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Wait blocks until the session finishes and returns its error.
func (s *Session) Wait() error {
	<-s.done
	return s.err
}

// Slot holds at most one active Session. Starting a new session through the
// slot cancels the previous one first.
type Slot struct {
	mu     sync.Mutex
	active *Session
}

// Start cancels any active session, waits for it to wind down, and then
// starts fn as the new active session. It must not be called from inside a
// session's own function.
func (sl *Slot) Start(parent context.Context, fn func(ctx context.Context) error) *Session {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if prev := sl.active; prev != nil {
		prev.Cancel()
		<-prev.Done()
	}

	sl.active = Start(parent, fn)
	return sl.active
}

// Active returns the running session, or nil when there is none.
func (sl *Slot) Active() *Session {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.active == nil || !sl.active.Running() {
		return nil
	}
	return sl.active
}

// Cancel cancels the active session, if any, and empties the slot. It does
// not wait for the session to finish.
func (sl *Slot) Cancel() {
	sl.mu.Lock()
	prev := sl.active
	sl.active = nil
	sl.mu.Unlock()

	if prev != nil {
		prev.Cancel()
	}
}
