package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"
)

// Class is the retry classification of an error.
type Class int

const (
	Permanent Class = iota
	Transient
)

type marked struct {
	err   error
	class Class
}

func (m *marked) Error() string { return m.err.Error() }
func (m *marked) Unwrap() error { return m.err }

// MarkTransient forces err to be retried.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &marked{err: err, class: Transient}
}

// MarkPermanent forces err to fail immediately.
func MarkPermanent(err error) error {
	if err == nil {
		return nil
	}
	return &marked{err: err, class: Permanent}
}

// statusCoder is implemented by provider errors that carry an HTTP status.
type statusCoder interface {
	HTTPStatus() int
}

type retryAfterer interface {
	RetryAfter() time.Duration
}

// Classify decides whether err is worth another attempt. Timeouts,
// connection failures, rate limits and server errors are transient;
// malformed requests, authorization failures and anything unrecognised are
// permanent.
func Classify(err error) Class {
	if err == nil {
		return Permanent
	}

	var m *marked
	if errors.As(err, &m) {
		return m.class
	}

	if errors.Is(err, context.Canceled) {
		return Permanent
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		return ClassifyStatus(sc.HTTPStatus())
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return Transient
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return Transient
	}
	if errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return Transient
	}

	return Permanent
}

// ClassifyStatus maps an HTTP status code onto a Class.
func ClassifyStatus(code int) Class {
	switch {
	case code == http.StatusRequestTimeout,
		code == http.StatusTooEarly,
		code == http.StatusTooManyRequests:
		return Transient
	case code >= 500 && code <= 599:
		return Transient
	default:
		return Permanent
	}
}

// RetryAfter extracts a server-requested delay from err, or zero.
func RetryAfter(err error) time.Duration {
	var ra retryAfterer
	if errors.As(err, &ra) {
		return ra.RetryAfter()
	}
	return 0
}
