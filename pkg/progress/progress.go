// Package progress counts per-article outcomes of a run and derives the
// run summary.
package progress

import (
	"context"
	"sort"
	"sync"
	"time"
)

type Category string

const (
	Attempted          Category = "attempted"
	Succeeded          Category = "succeeded"
	ValidationFailed   Category = "validation_failed"
	ExtractionRejected Category = "extraction_rejected"
	RetryExhausted     Category = "retry_exhausted"
	PermanentFailure   Category = "permanent_failure"
	IngestFailed       Category = "ingest_failed"
	Interrupted        Category = "interrupted"
	Skipped            Category = "skipped"
)

// FailureCategories are the categories that count towards Summary.Failed.
func FailureCategories() []Category {
	return []Category{
		ValidationFailed,
		ExtractionRejected,
		RetryExhausted,
		PermanentFailure,
		IngestFailed,
		Interrupted,
	}
}

func (c Category) IsFailure() bool {
	switch c {
	case ValidationFailed, ExtractionRejected, RetryExhausted, PermanentFailure, IngestFailed, Interrupted:
		return true
	}
	return false
}

type Tracker struct {
	now func() time.Time

	mu      sync.Mutex
	started time.Time
	counts  map[Category]int64
}

type Option func(*Tracker)

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		now:    time.Now,
		counts: make(map[Category]int64),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.started = t.now()
	return t
}

func (t *Tracker) Record(c Category) {
	t.Add(c, 1)
}

func (t *Tracker) Add(c Category, n int64) {
	if n == 0 {
		return
	}
	t.mu.Lock()
	t.counts[c] += n
	t.mu.Unlock()
}

func (t *Tracker) Count(c Category) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[c]
}

// Summary is a point-in-time view of the run.
type Summary struct {
	Attempted   int64              `json:"attempted"`
	Succeeded   int64              `json:"succeeded"`
	Skipped     int64              `json:"skipped"`
	Failed      int64              `json:"failed"`
	Breakdown   map[Category]int64 `json:"breakdown"`
	SuccessRate float64            `json:"success_rate"`
	Throughput  float64            `json:"throughput"`
	Elapsed     time.Duration      `json:"elapsed"`
}

func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Summary{
		Attempted: t.counts[Attempted],
		Succeeded: t.counts[Succeeded],
		Skipped:   t.counts[Skipped],
		Breakdown: make(map[Category]int64, len(t.counts)),
		Elapsed:   t.now().Sub(t.started),
	}
	for c, n := range t.counts {
		s.Breakdown[c] = n
		if c.IsFailure() {
			s.Failed += n
		}
	}
	if s.Attempted > 0 {
		s.SuccessRate = float64(s.Succeeded) / float64(s.Attempted)
	}
	if secs := s.Elapsed.Seconds(); secs > 0 {
		s.Throughput = float64(s.Succeeded+s.Failed) / secs
	}
	return s
}

// KeyVals flattens the summary for structured logging. Breakdown entries
// follow the fixed counters in category order.
func (s Summary) KeyVals() []any {
	kv := []any{
		"attempted", s.Attempted,
		"succeeded", s.Succeeded,
		"skipped", s.Skipped,
		"failed", s.Failed,
		"success_rate", s.SuccessRate,
		"throughput", s.Throughput,
		"elapsed", s.Elapsed.Round(time.Millisecond),
	}
	cats := make([]string, 0, len(s.Breakdown))
	for c := range s.Breakdown {
		if c.IsFailure() {
			cats = append(cats, string(c))
		}
	}
	sort.Strings(cats)
	for _, c := range cats {
		kv = append(kv, c, s.Breakdown[Category(c)])
	}
	return kv
}

// Snapshot calls sink with the current summary every interval until ctx is
// done, and once more on the way out.
func (t *Tracker) Snapshot(ctx context.Context, every time.Duration, sink func(Summary)) {
	if every <= 0 || sink == nil {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sink(t.Summary())
			return
		case <-ticker.C:
			sink(t.Summary())
		}
	}
}
