package progress

import (
	"context"
	"sync"
	"testing"
	"time"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestSummary(t *testing.T) {
	clock := &stepClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	tr := NewTracker(WithClock(clock.Now))

	tr.Add(Attempted, 5)
	tr.Add(Succeeded, 3)
	tr.Record(ValidationFailed)
	tr.Record(RetryExhausted)
	tr.Add(Skipped, 7)
	clock.Advance(2 * time.Second)

	s := tr.Summary()
	if s.Attempted != 5 || s.Succeeded != 3 || s.Skipped != 7 || s.Failed != 2 {
		t.Fatalf("unexpected counters: %+v", s)
	}
	if s.SuccessRate != 0.6 {
		t.Fatalf("expected success rate 0.6, got %v", s.SuccessRate)
	}
	if s.Throughput != 2.5 {
		t.Fatalf("expected throughput 2.5, got %v", s.Throughput)
	}
	if s.Breakdown[ValidationFailed] != 1 || s.Breakdown[RetryExhausted] != 1 {
		t.Fatalf("unexpected breakdown: %v", s.Breakdown)
	}
	if s.Elapsed != 2*time.Second {
		t.Fatalf("expected 2s elapsed, got %v", s.Elapsed)
	}
}

func TestSummaryEmpty(t *testing.T) {
	s := NewTracker().Summary()
	if s.SuccessRate != 0 || s.Failed != 0 {
		t.Fatalf("expected zero summary, got %+v", s)
	}
}

func TestKeyValsListsFailures(t *testing.T) {
	tr := NewTracker()
	tr.Record(Attempted)
	tr.Record(IngestFailed)

	kv := tr.Summary().KeyVals()
	if len(kv)%2 != 0 {
		t.Fatalf("expected even number of keyvals, got %d", len(kv))
	}
	found := false
	for i := 0; i < len(kv); i += 2 {
		if kv[i] == string(IngestFailed) && kv[i+1] == int64(1) {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected ingest_failed in keyvals: %v", kv)
	}
}

func TestCategoryIsFailure(t *testing.T) {
	for _, c := range FailureCategories() {
		if !c.IsFailure() {
			t.Fatalf("expected %s to be a failure", c)
		}
	}
	for _, c := range []Category{Attempted, Succeeded, Skipped} {
		if c.IsFailure() {
			t.Fatalf("expected %s not to be a failure", c)
		}
	}
}

func TestSnapshotFlushesOnCancel(t *testing.T) {
	tr := NewTracker()
	tr.Record(Succeeded)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var got []Summary
	tr.Snapshot(ctx, time.Hour, func(s Summary) { got = append(got, s) })
	if len(got) != 1 || got[0].Succeeded != 1 {
		t.Fatalf("expected one final snapshot, got %+v", got)
	}
}
