package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

type statusErr struct {
	code       int
	retryAfter time.Duration
}

func (e statusErr) Error() string              { return fmt.Sprintf("status %d", e.code) }
func (e statusErr) HTTPStatus() int            { return e.code }
func (e statusErr) RetryAfter() time.Duration { return e.retryAfter }

func noSleep(delays *[]time.Duration) Option {
	return WithSleep(func(ctx context.Context, d time.Duration) error {
		if delays != nil {
			*delays = append(*delays, d)
		}
		return ctx.Err()
	})
}

func testPolicy() Policy {
	return Policy{MaxAttempts: 4, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Jitter: 0.2}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	for k := 0; k < 4; k++ {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			calls := 0
			res := Do(context.Background(), testPolicy(), func(ctx context.Context) (string, error) {
				calls++
				if calls <= k {
					return "", statusErr{code: http.StatusServiceUnavailable}
				}
				return "ok", nil
			}, noSleep(nil))

			if res.Outcome != Success || res.Err != nil {
				t.Fatalf("expected success, got %v %v", res.Outcome, res.Err)
			}
			if res.Value != "ok" {
				t.Fatalf("expected ok, got %q", res.Value)
			}
			if calls != k+1 || res.Attempts != k+1 {
				t.Fatalf("expected %d calls, got %d (attempts %d)", k+1, calls, res.Attempts)
			}
		})
	}
}

func TestDo_ExhaustsAfterMaxAttempts(t *testing.T) {
	for _, k := range []int{4, 5, 10} {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			calls := 0
			last := statusErr{code: http.StatusTooManyRequests}
			res := Do(context.Background(), testPolicy(), func(ctx context.Context) (int, error) {
				calls++
				if calls <= k {
					return 0, last
				}
				return 1, nil
			}, noSleep(nil))

			if res.Outcome != TransientFailure {
				t.Fatalf("expected transient failure, got %v", res.Outcome)
			}
			if calls != 4 {
				t.Fatalf("expected exactly 4 calls, got %d", calls)
			}
			if !errors.Is(res.Err, ErrRetryExhausted) {
				t.Fatalf("expected ErrRetryExhausted, got %v", res.Err)
			}
			var se statusErr
			if !errors.As(res.Err, &se) || se.code != http.StatusTooManyRequests {
				t.Fatalf("expected last error to be carried, got %v", res.Err)
			}
			var ex *ExhaustedError
			if !errors.As(res.Err, &ex) || ex.Attempts != 4 {
				t.Fatalf("expected ExhaustedError with 4 attempts, got %v", res.Err)
			}
		})
	}
}

func TestDo_PermanentFailsImmediately(t *testing.T) {
	for _, code := range []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden} {
		calls := 0
		res := Do(context.Background(), testPolicy(), func(ctx context.Context) (int, error) {
			calls++
			return 0, statusErr{code: code}
		}, noSleep(nil))
		if res.Outcome != PermanentFailure {
			t.Fatalf("status %d: expected permanent failure, got %v", code, res.Outcome)
		}
		if calls != 1 {
			t.Fatalf("status %d: expected 1 call, got %d", code, calls)
		}
		if errors.Is(res.Err, ErrRetryExhausted) {
			t.Fatalf("status %d: permanent failure must not be exhausted", code)
		}
	}
}

func TestDo_MarkedErrors(t *testing.T) {
	calls := 0
	res := Do(context.Background(), testPolicy(), func(ctx context.Context) (int, error) {
		calls++
		return 0, MarkPermanent(statusErr{code: http.StatusBadGateway})
	}, noSleep(nil))
	if res.Outcome != PermanentFailure || calls != 1 {
		t.Fatalf("marked permanent should win over status, got %v after %d", res.Outcome, calls)
	}

	calls = 0
	res = Do(context.Background(), testPolicy(), func(ctx context.Context) (int, error) {
		calls++
		return 0, MarkTransient(errors.New("flaky"))
	}, noSleep(nil))
	if res.Outcome != TransientFailure || calls != 4 {
		t.Fatalf("marked transient should be retried, got %v after %d", res.Outcome, calls)
	}
}

func TestDo_BackoffDelays(t *testing.T) {
	var delays []time.Duration
	Do(context.Background(), testPolicy(), func(ctx context.Context) (int, error) {
		return 0, context.DeadlineExceeded
	}, noSleep(&delays), WithRandom(func() float64 { return 0.5 }))

	want := []time.Duration{110 * time.Millisecond, 220 * time.Millisecond, 440 * time.Millisecond}
	if len(delays) != len(want) {
		t.Fatalf("expected %d waits, got %v", len(want), delays)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("wait %d: expected %v, got %v", i, want[i], delays[i])
		}
	}
}

func TestDo_RetryAfterIsHonoured(t *testing.T) {
	var delays []time.Duration
	calls := 0
	Do(context.Background(), testPolicy(), func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, statusErr{code: http.StatusTooManyRequests, retryAfter: 700 * time.Millisecond}
		}
		if calls == 2 {
			return 0, statusErr{code: http.StatusTooManyRequests, retryAfter: time.Hour}
		}
		return 1, nil
	}, noSleep(&delays), WithRandom(func() float64 { return 0 }))

	if len(delays) != 2 || delays[0] != 700*time.Millisecond || delays[1] != time.Second {
		t.Fatalf("unexpected delays %v", delays)
	}
}

func TestDo_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	res := Do(ctx, testPolicy(), func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, statusErr{code: http.StatusServiceUnavailable}
	}, noSleep(nil))
	if res.Outcome != Canceled {
		t.Fatalf("expected canceled, got %v", res.Outcome)
	}
	if calls != 1 {
		t.Fatalf("expected no further attempts, got %d", calls)
	}
}

func TestBackoffCapsAtMaxDelay(t *testing.T) {
	p := Policy{MaxAttempts: 50, BaseDelay: time.Second, MaxDelay: 5 * time.Second, Jitter: 0.5}
	if got := p.Backoff(1, 0); got != time.Second {
		t.Fatalf("expected 1s, got %v", got)
	}
	if got := p.Backoff(40, 0.9); got != 5*time.Second {
		t.Fatalf("expected cap, got %v", got)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: Transient},
		{name: "canceled", err: context.Canceled, want: Permanent},
		{name: "rate limit", err: statusErr{code: 429}, want: Transient},
		{name: "server error", err: fmt.Errorf("wrapped: %w", statusErr{code: 502}), want: Transient},
		{name: "request timeout", err: statusErr{code: 408}, want: Transient},
		{name: "bad request", err: statusErr{code: 400}, want: Permanent},
		{name: "unauthorized", err: statusErr{code: 401}, want: Permanent},
		{name: "unknown", err: errors.New("boom"), want: Permanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
