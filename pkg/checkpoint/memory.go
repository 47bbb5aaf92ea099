package checkpoint

import (
	"context"
	"sync"
)

// MemoryBackend keeps the record in process memory. Used for dry runs and
// tests.
type MemoryBackend struct {
	mu    sync.Mutex
	rec   *Record
	saves int
	fail  error
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (m *MemoryBackend) Load(ctx context.Context) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rec == nil {
		return Record{}, ErrNotFound
	}
	return cloneRecord(*m.rec), nil
}

func (m *MemoryBackend) Save(ctx context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	c := cloneRecord(rec)
	m.rec = &c
	m.saves++
	return nil
}

func (m *MemoryBackend) Delete(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rec == nil {
		return ErrNotFound
	}
	m.rec = nil
	return nil
}

// Saves returns how many successful saves happened.
func (m *MemoryBackend) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// FailWith makes every following Save return err; nil restores saving.
func (m *MemoryBackend) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

func cloneRecord(rec Record) Record {
	ids := make([]string, len(rec.ProcessedIDs))
	copy(ids, rec.ProcessedIDs)
	rec.ProcessedIDs = ids
	return rec
}
