package checkpoint

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func fixedClock() func() time.Time {
	t := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func TestOpenWithoutRecordStartsEmpty(t *testing.T) {
	s, err := Open(context.Background(), NewMemoryBackend())
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty store, got %d ids", s.Len())
	}
	if s.IsDone("a1") {
		t.Fatalf("expected a1 to be pending")
	}
}

func TestFlushAndReopen(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()

	s, err := Open(ctx, backend, WithClock(fixedClock()))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	s.MarkDone("a2", Stats{Processed: 1})
	s.MarkDone("a1", Stats{Processed: 2, Failed: 1})
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}

	reopened, err := Open(ctx, backend)
	if err != nil {
		t.Fatalf("reopen returned error: %v", err)
	}
	rec := reopened.Record()
	if len(rec.ProcessedIDs) != 2 || rec.ProcessedIDs[0] != "a1" || rec.ProcessedIDs[1] != "a2" {
		t.Fatalf("unexpected ids: %v", rec.ProcessedIDs)
	}
	if rec.Stats.Processed != 2 || rec.Stats.Failed != 1 {
		t.Fatalf("unexpected stats: %+v", rec.Stats)
	}
	if !rec.LastFlush.Equal(fixedClock()()) {
		t.Fatalf("unexpected last flush: %v", rec.LastFlush)
	}
}

func TestFlushSkipsCleanStore(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	s, _ := Open(ctx, backend)

	s.MarkDone("a1", Stats{Processed: 1})
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("second Flush returned error: %v", err)
	}
	if backend.Saves() != 1 {
		t.Fatalf("expected 1 save, got %d", backend.Saves())
	}
}

func TestFailedFlushKeepsPendingChanges(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	s, _ := Open(ctx, backend)

	backend.FailWith(errors.New("disk full"))
	s.MarkDone("a1", Stats{Processed: 1})
	if err := s.Flush(ctx); err == nil {
		t.Fatalf("expected flush error")
	}
	if _, err := backend.Load(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected nothing persisted, got %v", err)
	}

	backend.FailWith(nil)
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("retry flush returned error: %v", err)
	}
	rec, err := backend.Load(ctx)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(rec.ProcessedIDs) != 1 || rec.ProcessedIDs[0] != "a1" {
		t.Fatalf("unexpected ids after retry: %v", rec.ProcessedIDs)
	}
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	s, _ := Open(ctx, backend)
	s.MarkDone("a1", Stats{Processed: 1})
	_ = s.Flush(ctx)

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset returned error: %v", err)
	}
	if s.IsDone("a1") || s.Len() != 0 {
		t.Fatalf("expected cleared store")
	}
	if _, err := backend.Load(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected deleted record, got %v", err)
	}
	// A second reset has nothing to delete and still succeeds.
	if err := s.Reset(ctx); err != nil {
		t.Fatalf("second Reset returned error: %v", err)
	}
}

func TestFileBackend(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "checkpoint.json")
	backend := NewFileBackend(path)

	if _, err := backend.Load(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	s, err := Open(ctx, backend, WithClock(fixedClock()))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	s.MarkDone("x", Stats{RunID: "run-1", Processed: 1})
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}

	rec, err := backend.Load(ctx)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(rec.ProcessedIDs) != 1 || rec.ProcessedIDs[0] != "x" || rec.Stats.RunID != "run-1" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	if err := backend.Delete(ctx); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if err := backend.Delete(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

type mapObjects map[string][]byte

func (m mapObjects) Get(ctx context.Context, key string) ([]byte, error) {
	data, ok := m[key]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

func (m mapObjects) Put(ctx context.Context, key string, data []byte) error {
	m[key] = data
	return nil
}

func (m mapObjects) Delete(ctx context.Context, key string) error {
	if _, ok := m[key]; !ok {
		return ErrNotFound
	}
	delete(m, key)
	return nil
}

func TestObjectBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	objects := mapObjects{}
	backend := NewObjectBackend(objects, "checkpoints/default.json")

	s, err := Open(ctx, backend)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	s.MarkDone("a1", Stats{Processed: 1})
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}
	if _, ok := objects["checkpoints/default.json"]; !ok {
		t.Fatalf("expected object to be written")
	}

	reopened, err := Open(ctx, backend)
	if err != nil {
		t.Fatalf("reopen returned error: %v", err)
	}
	if !reopened.IsDone("a1") {
		t.Fatalf("expected a1 to be done after reopen")
	}
}
