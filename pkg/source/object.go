package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/OFFIS-RIT/newsgraph/pkg/common"
	"github.com/OFFIS-RIT/newsgraph/pkg/logger"
)

// ObjectOpener opens a stored object for reading, e.g. a key in an S3
// bucket.
type ObjectOpener interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// ObjectSource reads the JSON Lines objects under keys one after another.
type ObjectSource struct {
	mu        sync.Mutex
	store     ObjectOpener
	keys      []string
	cur       *JSONLSource
	curKey    string
	malformed int
}

func NewObjectSource(store ObjectOpener, keys []string) *ObjectSource {
	return &ObjectSource{store: store, keys: append([]string(nil), keys...)}
}

func (s *ObjectSource) Next(ctx context.Context) (common.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.cur == nil {
			if len(s.keys) == 0 {
				return common.Article{}, io.EOF
			}
			if err := ctx.Err(); err != nil {
				return common.Article{}, err
			}
			key := s.keys[0]
			rc, err := s.store.Open(ctx, key)
			if err != nil {
				return common.Article{}, fmt.Errorf("open object %s: %w", key, err)
			}
			s.keys = s.keys[1:]
			s.cur, s.curKey = NewJSONLSource(rc), key
			logger.Debug("[Source] Reading object", "key", key)
		}

		a, err := s.cur.Next(ctx)
		if errors.Is(err, io.EOF) {
			s.closeCurrent()
			continue
		}
		if err != nil {
			return common.Article{}, fmt.Errorf("%s: %w", s.curKey, err)
		}
		return a, nil
	}
}

func (s *ObjectSource) closeCurrent() {
	s.malformed += s.cur.Malformed()
	if err := s.cur.Close(); err != nil {
		logger.Warn("[Source] Failed to close object", "key", s.curKey, "err", err)
	}
	s.cur, s.curKey = nil, ""
}

func (s *ObjectSource) Malformed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.malformed
	if s.cur != nil {
		n += s.cur.Malformed()
	}
	return n
}

func (s *ObjectSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur != nil {
		s.closeCurrent()
	}
	return nil
}
