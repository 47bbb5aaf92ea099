// Package retry runs an unreliable operation under a bounded exponential
// backoff policy and reports a typed outcome instead of a bare error.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

var ErrRetryExhausted = errors.New("retry exhausted")

// ExhaustedError is returned once every attempt failed transiently. It
// matches ErrRetryExhausted and unwraps to the last underlying error.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() []error {
	return []error{ErrRetryExhausted, e.Last}
}

// Policy bounds the number of attempts and the delay between them.
//
// The delay before attempt n+1 is BaseDelay × 2^(n-1) × (1 + r×Jitter) with r
// drawn uniformly from [0, 1), capped at MaxDelay.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 4,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Jitter:      0.2,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = time.Duration(math.MaxInt64)
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	return p
}

// Backoff returns the delay after the given failed attempt (1-based). r is
// the jitter sample in [0, 1).
func (p Policy) Backoff(attempt int, r float64) time.Duration {
	p = p.normalized()
	if attempt < 1 {
		attempt = 1
	}
	d := math.Ldexp(float64(p.BaseDelay), attempt-1) * (1 + r*p.Jitter)
	if d >= float64(p.MaxDelay) || math.IsInf(d, 1) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Outcome classifies how an operation ended.
type Outcome int

const (
	Success Outcome = iota
	TransientFailure
	PermanentFailure
	Canceled
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case TransientFailure:
		return "transient_failure"
	case PermanentFailure:
		return "permanent_failure"
	case Canceled:
		return "canceled"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is the typed result of Do. Err is nil only for Success; for
// TransientFailure it is an *ExhaustedError.
type Result[T any] struct {
	Value    T
	Outcome  Outcome
	Attempts int
	Err      error
}

type options struct {
	classify func(error) Class
	random   func() float64
	sleep    func(context.Context, time.Duration) error
	onRetry  func(attempt int, delay time.Duration, err error)
}

type Option func(*options)

// WithClassifier replaces Classify.
func WithClassifier(fn func(error) Class) Option {
	return func(o *options) { o.classify = fn }
}

// WithRandom sets the jitter source. fn must return values in [0, 1).
func WithRandom(fn func() float64) Option {
	return func(o *options) { o.random = fn }
}

// WithSleep replaces the wait between attempts.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(o *options) { o.sleep = fn }
}

// WithOnRetry is called before every wait.
func WithOnRetry(fn func(attempt int, delay time.Duration, err error)) Option {
	return func(o *options) { o.onRetry = fn }
}

// Do invokes op until it succeeds, fails permanently, or policy.MaxAttempts
// calls have failed transiently. Cancellation of ctx ends the loop with
// Canceled.
func Do[T any](ctx context.Context, policy Policy, op func(ctx context.Context) (T, error), opts ...Option) Result[T] {
	policy = policy.normalized()
	o := options{
		classify: Classify,
		random:   rand.Float64,
		sleep:    sleep,
	}
	for _, opt := range opts {
		opt(&o)
	}

	var zero T
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result[T]{Value: zero, Outcome: Canceled, Attempts: attempt - 1, Err: err}
		}

		value, err := op(ctx)
		if err == nil {
			return Result[T]{Value: value, Outcome: Success, Attempts: attempt}
		}
		if ctx.Err() != nil {
			return Result[T]{Value: zero, Outcome: Canceled, Attempts: attempt, Err: err}
		}
		if o.classify(err) == Permanent {
			return Result[T]{Value: zero, Outcome: PermanentFailure, Attempts: attempt, Err: err}
		}
		if attempt >= policy.MaxAttempts {
			return Result[T]{
				Value:    zero,
				Outcome:  TransientFailure,
				Attempts: attempt,
				Err:      &ExhaustedError{Attempts: attempt, Last: err},
			}
		}

		delay := policy.Backoff(attempt, o.random())
		if ra := RetryAfter(err); ra > delay {
			delay = min(ra, policy.MaxDelay)
		}
		if o.onRetry != nil {
			o.onRetry(attempt, delay, err)
		}
		if serr := o.sleep(ctx, delay); serr != nil {
			return Result[T]{Value: zero, Outcome: Canceled, Attempts: attempt, Err: serr}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
