package client

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrAuthRequired matches a TransportError whose status means the session
// is missing or expired (401, 403 or 419).
var ErrAuthRequired = errors.New("authentication required: sign in again")

// statusAuthExpired is the non-standard "page expired" status some backends
// send when the session cookie is stale.
const statusAuthExpired = 419

// TransportError is a failure to complete a request: the request could not
// be sent, or the server answered with a non-2xx status, or it answered
// without a body.
type TransportError struct {
	Method string
	URL    string

	// StatusCode is 0 when no response was received.
	StatusCode int

	// Body is a truncated copy of the error response body.
	Body []byte

	Cause error
}

func (e *TransportError) Error() string {
	var b strings.Builder
	b.WriteString(e.Method)
	b.WriteString(" ")
	b.WriteString(e.URL)
	b.WriteString(": ")

	if e.StatusCode != 0 {
		fmt.Fprintf(&b, "http %d", e.StatusCode)
		if t := http.StatusText(e.StatusCode); t != "" {
			b.WriteString(" ")
			b.WriteString(t)
		}
	} else {
		b.WriteString("request failed")
	}

	if msg := strings.TrimSpace(string(e.Body)); msg != "" {
		b.WriteString(": ")
		b.WriteString(msg)
	} else if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// Is reports auth statuses as ErrAuthRequired.
func (e *TransportError) Is(target error) bool {
	return target == ErrAuthRequired && IsAuthStatus(e.StatusCode)
}

// IsAuthStatus reports whether code asks the user to sign in again.
func IsAuthStatus(code int) bool {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden, statusAuthExpired:
		return true
	}
	return false
}
