// Package memory is an in-process GraphStore used by tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/OFFIS-RIT/newsgraph/pkg/common"
	"github.com/OFFIS-RIT/newsgraph/pkg/store"
)

type entityKey struct {
	typ       common.EntityType
	canonical string
}

type relationshipKey struct {
	source, target string
	typ            common.RelationType
}

type Store struct {
	mu            sync.Mutex
	entities      map[entityKey]*common.GraphEntity
	entityIDs     map[string]entityKey
	relationships map[relationshipKey]*common.GraphRelationship
}

var _ store.GraphStore = (*Store)(nil)

func New() *Store {
	return &Store{
		entities:      make(map[entityKey]*common.GraphEntity),
		entityIDs:     make(map[string]entityKey),
		relationships: make(map[relationshipKey]*common.GraphRelationship),
	}
}

func (s *Store) UpsertEntity(ctx context.Context, e store.EntityUpsert) (store.UpsertOutcome, error) {
	if err := ctx.Err(); err != nil {
		return store.Unchanged, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := entityKey{typ: e.Type, canonical: e.CanonicalName}
	merged, outcome := store.MergeEntity(s.entities[key], e)
	s.entities[key] = &merged
	s.entityIDs[merged.ID] = key
	return outcome, nil
}

func (s *Store) UpsertRelationship(ctx context.Context, r store.RelationshipUpsert) (store.UpsertOutcome, error) {
	if err := ctx.Err(); err != nil {
		return store.Unchanged, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entityIDs[r.SourceID]; !ok {
		return store.Unchanged, fmt.Errorf("relationship %s: unknown source entity %s", r.ID, r.SourceID)
	}
	if _, ok := s.entityIDs[r.TargetID]; !ok {
		return store.Unchanged, fmt.Errorf("relationship %s: unknown target entity %s", r.ID, r.TargetID)
	}

	key := relationshipKey{source: r.SourceID, target: r.TargetID, typ: r.Type}
	merged, outcome := store.MergeRelationship(s.relationships[key], r)
	s.relationships[key] = &merged
	return outcome, nil
}

func (s *Store) Stats(ctx context.Context) (store.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return store.Stats{
		Entities:      int64(len(s.entities)),
		Relationships: int64(len(s.relationships)),
	}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return nil
}

// Entities returns copies of every entity ordered by type and canonical name.
func (s *Store) Entities() []common.GraphEntity {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]common.GraphEntity, 0, len(s.entities))
	for _, e := range s.entities {
		c := *e
		c.SourceArticles = append([]string(nil), e.SourceArticles...)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].CanonicalName < out[j].CanonicalName
	})
	return out
}

// Relationships returns copies of every relationship ordered by id.
func (s *Store) Relationships() []common.GraphRelationship {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]common.GraphRelationship, 0, len(s.relationships))
	for _, r := range s.relationships {
		c := *r
		c.SourceArticles = append([]string(nil), r.SourceArticles...)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) Entity(typ common.EntityType, canonical string) (common.GraphEntity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[entityKey{typ: typ, canonical: canonical}]
	if !ok {
		return common.GraphEntity{}, false
	}
	c := *e
	c.SourceArticles = append([]string(nil), e.SourceArticles...)
	return c, true
}
