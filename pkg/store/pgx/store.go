// Package pgx stores the graph in Postgres. Identity is enforced by the
// unique constraints on graph_entities (entity_type, canonical_name) and
// graph_relationships (source_id, target_id, rel_type); every upsert is a
// single INSERT ... ON CONFLICT statement.
package pgx

import (
	"context"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/newsgraph/internal/util"
	"github.com/OFFIS-RIT/newsgraph/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
}

// GraphDBStorage implements store.GraphStore on a pgx connection or pool.
// The connection is owned by the caller.
type GraphDBStorage struct {
	conn pgxIConn
}

var _ store.GraphStore = (*GraphDBStorage)(nil)

func NewGraphDBStorageWithConnection(conn pgxIConn) *GraphDBStorage {
	return &GraphDBStorage{conn: conn}
}

func (s *GraphDBStorage) UpsertEntity(ctx context.Context, e store.EntityUpsert) (store.UpsertOutcome, error) {
	var inserted bool
	err := s.conn.QueryRow(ctx, upsertEntitySQL,
		e.ID,
		string(e.Type),
		util.SanitizePostgresText(e.CanonicalName),
		util.SanitizePostgresText(e.DisplayName),
		util.SanitizePostgresText(e.Description),
		e.ArticleID,
		e.At,
	).Scan(&inserted)
	return outcome(inserted, err, "entity", e.ID)
}

func (s *GraphDBStorage) UpsertRelationship(ctx context.Context, r store.RelationshipUpsert) (store.UpsertOutcome, error) {
	var inserted bool
	err := s.conn.QueryRow(ctx, upsertRelationshipSQL,
		r.ID,
		r.SourceID,
		r.TargetID,
		string(r.Type),
		r.Strength,
		util.SanitizePostgresText(r.Description),
		r.ArticleID,
		r.At,
	).Scan(&inserted)
	return outcome(inserted, err, "relationship", r.ID)
}

// outcome maps the RETURNING row: no row means the conflict WHERE clause
// filtered the update out.
func outcome(inserted bool, err error, kind, id string) (store.UpsertOutcome, error) {
	switch {
	case errors.Is(err, pgxv5.ErrNoRows):
		return store.Unchanged, nil
	case err != nil:
		return store.Unchanged, fmt.Errorf("upsert %s %s: %w", kind, id, err)
	case inserted:
		return store.Created, nil
	default:
		return store.Updated, nil
	}
}

func (s *GraphDBStorage) Stats(ctx context.Context) (store.Stats, error) {
	var stats store.Stats
	err := s.conn.QueryRow(ctx, statsSQL).Scan(&stats.Entities, &stats.Relationships)
	return stats, err
}

func (s *GraphDBStorage) Close(ctx context.Context) error {
	return nil
}

const upsertEntitySQL = `
INSERT INTO graph_entities AS g (
    id, entity_type, canonical_name, display_name, description,
    source_articles, mention_count, created_at, updated_at, last_mentioned_at
)
VALUES ($1, $2, $3, $4, $5, ARRAY[$6::text], 1, $7, $7, $7)
ON CONFLICT (entity_type, canonical_name) DO UPDATE
SET mention_count = g.mention_count
        + CASE WHEN $6::text = ANY(g.source_articles) THEN 0 ELSE 1 END,
    source_articles = CASE WHEN $6::text = ANY(g.source_articles)
        THEN g.source_articles ELSE array_append(g.source_articles, $6::text) END,
    last_mentioned_at = CASE WHEN $6::text = ANY(g.source_articles)
        THEN g.last_mentioned_at ELSE EXCLUDED.last_mentioned_at END,
    description = CASE WHEN char_length(EXCLUDED.description) > char_length(g.description)
        THEN EXCLUDED.description ELSE g.description END,
    display_name = CASE WHEN char_length(EXCLUDED.display_name) > char_length(g.display_name)
        THEN EXCLUDED.display_name ELSE g.display_name END,
    updated_at = EXCLUDED.updated_at
WHERE NOT ($6::text = ANY(g.source_articles))
   OR char_length(EXCLUDED.description) > char_length(g.description)
   OR char_length(EXCLUDED.display_name) > char_length(g.display_name)
RETURNING (xmax = 0) AS inserted;
`

const upsertRelationshipSQL = `
INSERT INTO graph_relationships AS r (
    id, source_id, target_id, rel_type, strength, description,
    source_articles, created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, ARRAY[$7::text], $8, $8)
ON CONFLICT (source_id, target_id, rel_type) DO UPDATE
SET strength = GREATEST(r.strength, EXCLUDED.strength),
    description = CASE WHEN char_length(EXCLUDED.description) > char_length(r.description)
        THEN EXCLUDED.description ELSE r.description END,
    source_articles = CASE WHEN $7::text = ANY(r.source_articles)
        THEN r.source_articles ELSE array_append(r.source_articles, $7::text) END,
    updated_at = EXCLUDED.updated_at
WHERE EXCLUDED.strength > r.strength
   OR char_length(EXCLUDED.description) > char_length(r.description)
   OR NOT ($7::text = ANY(r.source_articles))
RETURNING (xmax = 0) AS inserted;
`

const statsSQL = `
SELECT
    (SELECT count(*) FROM graph_entities),
    (SELECT count(*) FROM graph_relationships);
`
