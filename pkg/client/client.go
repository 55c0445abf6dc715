// Package client is the HTTP client for a chatstream backend: it opens
// assistant reply streams and manages conversations.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/papercomputeco/chatstream/pkg/conversation"
	"github.com/papercomputeco/chatstream/pkg/logger"
)

const (
	streamPath        = "/api/chat/stream"
	conversationsPath = "/api/conversations"
	pingPath          = "/ping"

	// maxErrorBody bounds how much of an error response is kept.
	maxErrorBody = 4 << 10
)

// Client talks to one backend. It keeps session cookies across requests
// and sends the bearer token, when set, on every request.
type Client struct {
	base    *url.URL
	http    *http.Client
	token   string
	timeout time.Duration
	retry   RetryPolicy
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithToken sends "Authorization: Bearer <token>".
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithTimeout bounds non-streaming requests. Streams are bounded only by
// their context.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithHTTPClient replaces the underlying HTTP client. Its Timeout should be
// zero or it will cut long streams.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// WithRetry sets the retry policy for idempotent requests.
func WithRetry(p RetryPolicy) Option {
	return func(c *Client) {
		c.retry = p
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New creates a client for the backend at target, e.g. "http://localhost:8081".
func New(target string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(target, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing api target: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("api target %q must be an http or https URL", target)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	c := &Client{
		base:    base,
		http:    &http.Client{Jar: jar},
		timeout: 30 * time.Second,
		retry:   DefaultRetryPolicy(),
		logger:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http.Jar == nil {
		c.http.Jar = jar
	}

	return c, nil
}

// OpenStream starts the assistant reply for message. The returned body is
// an open text/event-stream; the caller must close it. Cancelling ctx
// aborts the request and unblocks any read of the body.
func (c *Client) OpenStream(ctx context.Context, conversationID, message string) (io.ReadCloser, error) {
	payload, err := json.Marshal(conversation.StreamRequest{
		ConversationID: conversationID,
		Message:        message,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling stream request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, streamPath, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	c.logger.Debug("opening stream",
		"url", req.URL.String(),
		"conversation_id", conversationID,
	)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: req.URL.String(), Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(req, resp)
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, &TransportError{
			Method:     req.Method,
			URL:        req.URL.String(),
			StatusCode: resp.StatusCode,
			Cause:      errors.New("response has no body"),
		}
	}

	return resp.Body, nil
}

// ListConversations returns the conversations of the current user.
func (c *Client) ListConversations(ctx context.Context) ([]conversation.Conversation, error) {
	var out conversation.ListResponse
	if err := c.getJSON(ctx, conversationsPath, &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

// CreateConversation creates an empty conversation.
func (c *Client) CreateConversation(ctx context.Context, title string) (conversation.Conversation, error) {
	var out conversation.Conversation
	err := c.postJSON(ctx, conversationsPath, conversation.CreateRequest{Title: title}, &out)
	return out, err
}

// Messages returns the persisted messages of a conversation, oldest first.
func (c *Client) Messages(ctx context.Context, conversationID string) ([]conversation.Message, error) {
	var out conversation.MessagesResponse
	path := conversationsPath + "/" + url.PathEscape(conversationID) + "/messages"
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// Ping checks that the backend is reachable.
func (c *Client) Ping(ctx context.Context) error {
	var pong string
	return c.getJSON(ctx, pingPath, &pong)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	u := c.base.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}
	return c.doJSON(ctx, http.MethodPost, path, payload, out)
}

// doJSON sends a request and decodes a JSON response, retrying idempotent
// methods on transient failures.
func (c *Client) doJSON(ctx context.Context, method, path string, payload []byte, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	attempts := 1
	if retryableMethod(method) && c.retry.MaxAttempts > 1 {
		attempts = c.retry.MaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}

		req, err := c.newRequest(ctx, method, path, body)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		switch {
		case err != nil:
			lastErr = &TransportError{Method: method, URL: req.URL.String(), Cause: err}
			if ctx.Err() != nil {
				return lastErr
			}

		case resp.StatusCode < 200 || resp.StatusCode > 299:
			lastErr = statusError(req, resp)
			if !retryableStatus(resp.StatusCode) {
				return lastErr
			}

		default:
			defer resp.Body.Close()
			if out == nil {
				return nil
			}
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("decoding %s response: %w", path, err)
			}
			return nil
		}

		if attempt == attempts {
			break
		}

		wait := c.retry.wait(attempt, resp)
		c.logger.Debug("retrying request",
			"method", method,
			"path", path,
			"attempt", attempt,
			"wait", wait,
			"error", lastErr,
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}

	return lastErr
}

// statusError reads a bounded copy of the body and closes it.
func statusError(req *http.Request, resp *http.Response) *TransportError {
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	// Prefer the message of a JSON error body.
	var er conversation.ErrorResponse
	if json.Unmarshal(raw, &er) == nil && er.Error != "" {
		raw = []byte(er.Error)
	}

	return &TransportError{
		Method:     req.Method,
		URL:        req.URL.String(),
		StatusCode: resp.StatusCode,
		Body:       raw,
		Cause:      errors.New(http.StatusText(resp.StatusCode)),
	}
}
