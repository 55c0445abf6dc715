package client

import (
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RetryPolicy controls retries of idempotent requests. Streaming requests
// are never retried.
type RetryPolicy struct {
	// MaxAttempts includes the first attempt. Values <= 1 disable retries.
	MaxAttempts int

	// Base is the first backoff; each retry doubles it up to Max.
	Base time.Duration
	Max  time.Duration

	// MaxRetryAfter caps a server supplied Retry-After.
	MaxRetryAfter time.Duration
}

// DefaultRetryPolicy retries three times with jittered exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   3,
		Base:          200 * time.Millisecond,
		Max:           3 * time.Second,
		MaxRetryAfter: 30 * time.Second,
	}
}

// NoRetry disables retries.
func NoRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1}
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func retryableMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// wait returns the sleep before retry number attempt (starting at 1).
func (p RetryPolicy) wait(attempt int, resp *http.Response) time.Duration {
	if resp != nil && (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable) {
		if ra, ok := retryAfter(resp.Header.Get("Retry-After")); ok {
			if p.MaxRetryAfter > 0 && ra > p.MaxRetryAfter {
				ra = p.MaxRetryAfter
			}
			return ra
		}
	}

	d := p.Base << (attempt - 1)
	if p.Max > 0 && (d > p.Max || d <= 0) {
		d = p.Max
	}
	if d <= 0 {
		return 0
	}

	// +/- 20% jitter
	jitter := (rand.Float64()*0.4 - 0.2) * float64(d)
	return d + time.Duration(jitter)
}

func retryAfter(v string) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}
