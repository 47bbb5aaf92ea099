// Package checkpoint keeps the durable record of which articles have been
// fully ingested so that a resumed run repeats no completed work.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/OFFIS-RIT/newsgraph/pkg/logger"
)

// ErrNotFound is returned by a Backend when no record has been saved yet.
var ErrNotFound = errors.New("checkpoint not found")

// Stats are the counters of the run that last flushed the record.
type Stats struct {
	RunID     string `json:"run_id,omitempty"`
	Processed int64  `json:"processed"`
	Skipped   int64  `json:"skipped"`
	Failed    int64  `json:"failed"`
}

// Record is the persisted checkpoint.
type Record struct {
	ProcessedIDs []string  `json:"processed_ids"`
	Stats        Stats     `json:"stats"`
	LastFlush    time.Time `json:"last_flush"`
}

// Backend persists a Record. Save must replace the stored record atomically:
// a reader sees either the previous or the new record, never a mix.
type Backend interface {
	Load(ctx context.Context) (Record, error)
	Save(ctx context.Context, rec Record) error
	Delete(ctx context.Context) error
}

// Store is the in-memory view of the checkpoint for one run. It is safe for
// concurrent use, but only the orchestrator should mutate it.
type Store struct {
	backend Backend
	now     func() time.Time

	mu        sync.RWMutex
	done      map[string]struct{}
	stats     Stats
	lastFlush time.Time
	dirty     bool
}

type Option func(*Store)

// WithClock overrides the timestamp source for LastFlush.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open loads the durable record, or starts from an empty one on first run.
func Open(ctx context.Context, backend Backend, opts ...Option) (*Store, error) {
	s := &Store{
		backend: backend,
		now:     time.Now,
		done:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	rec, err := backend.Load(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		logger.Info("[Checkpoint] No checkpoint found, starting fresh")
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	for _, id := range rec.ProcessedIDs {
		s.done[id] = struct{}{}
	}
	s.stats = rec.Stats
	s.lastFlush = rec.LastFlush
	logger.Info("[Checkpoint] Loaded checkpoint", "processed", len(s.done), "last_flush", rec.LastFlush)
	return s, nil
}

func (s *Store) IsDone(articleID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.done[articleID]
	return ok
}

// MarkDone records articleID as fully ingested and replaces the run
// counters. The change is durable only after the next Flush.
func (s *Store) MarkDone(articleID string, stats Stats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done[articleID] = struct{}{}
	s.stats = stats
	s.dirty = true
}

// SetStats replaces the run counters without marking an article.
func (s *Store) SetStats(stats Stats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stats != stats {
		s.stats = stats
		s.dirty = true
	}
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.done)
}

// Record returns a snapshot with sorted ids.
func (s *Store) Record() Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recordLocked(s.lastFlush)
}

func (s *Store) recordLocked(flushedAt time.Time) Record {
	ids := make([]string, 0, len(s.done))
	for id := range s.done {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return Record{
		ProcessedIDs: ids,
		Stats:        s.stats,
		LastFlush:    flushedAt,
	}
}

// Flush durably persists the current record. A failed flush keeps the
// pending changes so the next flush retries them.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty && !s.lastFlush.IsZero() {
		return nil
	}

	flushedAt := s.now().UTC()
	rec := s.recordLocked(flushedAt)
	if err := s.backend.Save(ctx, rec); err != nil {
		return fmt.Errorf("flush checkpoint: %w", err)
	}
	s.lastFlush = flushedAt
	s.dirty = false
	logger.Debug("[Checkpoint] Flushed", "processed", len(rec.ProcessedIDs))
	return nil
}

// Reset deletes the durable record and clears the in-memory state. It is an
// operator action and is never called by the pipeline itself.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Delete(ctx); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("reset checkpoint: %w", err)
	}
	s.done = make(map[string]struct{})
	s.stats = Stats{}
	s.lastFlush = time.Time{}
	s.dirty = false
	logger.Warn("[Checkpoint] Checkpoint reset")
	return nil
}
