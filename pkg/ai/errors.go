package ai

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedOutput is wrapped by every error caused by model output that
// cannot be parsed into the requested structure.
var ErrMalformedOutput = errors.New("malformed model output")

// StatusError is a provider failure that carried an HTTP status. It exposes
// HTTPStatus and RetryAfter so callers can classify it without knowing the
// provider.
type StatusError struct {
	Provider   string
	StatusCode int
	Retry      time.Duration
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

func (e *StatusError) HTTPStatus() int { return e.StatusCode }

func (e *StatusError) RetryAfter() time.Duration { return e.Retry }

// NewStatusError builds a StatusError, reading Retry-After from resp when
// present.
func NewStatusError(provider string, status int, resp *http.Response, err error) *StatusError {
	se := &StatusError{Provider: provider, StatusCode: status, Err: err}
	if resp != nil {
		se.Retry = ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	}
	return se
}

// ParseRetryAfter reads a Retry-After header given either in seconds or as
// an HTTP date. Invalid or past values yield 0.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
