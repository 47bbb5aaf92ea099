// Package source provides the article streams the pipeline consumes.
package source

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/OFFIS-RIT/newsgraph/pkg/common"
	"github.com/OFFIS-RIT/newsgraph/pkg/logger"
)

// ArticleSource yields articles one at a time. Next returns io.EOF once the
// stream is exhausted.
type ArticleSource interface {
	Next(ctx context.Context) (common.Article, error)
}

// SliceSource serves a fixed list of articles.
type SliceSource struct {
	mu       sync.Mutex
	articles []common.Article
	pos      int
}

func NewSliceSource(articles ...common.Article) *SliceSource {
	return &SliceSource{articles: articles}
}

func (s *SliceSource) Next(ctx context.Context) (common.Article, error) {
	if err := ctx.Err(); err != nil {
		return common.Article{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.articles) {
		return common.Article{}, io.EOF
	}
	a := s.articles[s.pos]
	s.pos++
	return a, nil
}

const maxLineSize = 8 * 1024 * 1024

// JSONLSource reads one JSON encoded article per line. Blank lines are
// ignored; lines that do not decode are logged and skipped.
type JSONLSource struct {
	mu        sync.Mutex
	scanner   *bufio.Scanner
	closer    io.Closer
	line      int
	malformed int
}

func NewJSONLSource(r io.Reader) *JSONLSource {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	s := &JSONLSource{scanner: sc}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// OpenJSONL opens path for reading. "-" reads from stdin.
func OpenJSONL(path string) (*JSONLSource, error) {
	if path == "-" {
		return NewJSONLSource(io.NopCloser(os.Stdin)), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open articles: %w", err)
	}
	return NewJSONLSource(f), nil
}

func (s *JSONLSource) Next(ctx context.Context) (common.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return common.Article{}, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return common.Article{}, fmt.Errorf("read articles line %d: %w", s.line+1, err)
			}
			return common.Article{}, io.EOF
		}
		s.line++

		raw := strings.TrimSpace(s.scanner.Text())
		if raw == "" {
			continue
		}
		var a common.Article
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			s.malformed++
			logger.Warn("[Source] Skipping malformed line", "line", s.line, "err", err)
			continue
		}
		return a, nil
	}
}

// Malformed returns how many lines were skipped because they did not decode.
func (s *JSONLSource) Malformed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.malformed
}

func (s *JSONLSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// ReadBatch reads up to n articles. It returns io.EOF only when the source
// was already exhausted; a short final batch is returned without error.
func ReadBatch(ctx context.Context, src ArticleSource, n int) ([]common.Article, error) {
	if n <= 0 {
		n = 1
	}
	batch := make([]common.Article, 0, n)
	for len(batch) < n {
		a, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			if len(batch) == 0 {
				return nil, io.EOF
			}
			return batch, nil
		}
		if err != nil {
			return batch, err
		}
		batch = append(batch, a)
	}
	return batch, nil
}
