// Package neo4j stores the graph in Neo4j. Entities are (:Entity) nodes
// unique on (type, canonical_name); relationships are typed edges unique on
// their id. Both constraints are created by EnsureSchema.
package neo4j

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/newsgraph/pkg/common"
	"github.com/OFFIS-RIT/newsgraph/pkg/logger"
	"github.com/OFFIS-RIT/newsgraph/pkg/store"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

type NewParams struct {
	URI      string
	User     string
	Password string
	Database string
}

type Store struct {
	driver   neo4j.DriverWithContext
	database string
}

var _ store.GraphStore = (*Store)(nil)

func New(ctx context.Context, params NewParams) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(params.URI, neo4j.BasicAuth(params.User, params.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("connect to neo4j at %s: %w", params.URI, err)
	}
	return NewWithDriver(driver, params.Database), nil
}

func NewWithDriver(driver neo4j.DriverWithContext, database string) *Store {
	return &Store{driver: driver, database: database}
}

func (s *Store) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: s.database})
}

// EnsureSchema creates the uniqueness constraints the upserts rely on.
func (s *Store) EnsureSchema(ctx context.Context) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	for _, q := range schemaStatements() {
		result, err := session.Run(ctx, q, nil)
		if err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		if _, err := result.Consume(ctx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	logger.Info("[Neo4j] Schema ensured")
	return nil
}

func schemaStatements() []string {
	stmts := []string{
		`CREATE CONSTRAINT entity_identity IF NOT EXISTS
FOR (e:Entity) REQUIRE (e.type, e.canonical_name) IS UNIQUE`,
		`CREATE CONSTRAINT entity_id IF NOT EXISTS
FOR (e:Entity) REQUIRE e.id IS UNIQUE`,
	}
	for _, rt := range common.RelationTypes() {
		stmts = append(stmts, fmt.Sprintf(
			"CREATE CONSTRAINT rel_%s_id IF NOT EXISTS\nFOR ()-[r:%s]-() REQUIRE r.id IS UNIQUE",
			rt, rt,
		))
	}
	return stmts
}

func (s *Store) UpsertEntity(ctx context.Context, e store.EntityUpsert) (store.UpsertOutcome, error) {
	params := map[string]any{
		"id":          e.ID,
		"type":        string(e.Type),
		"canonical":   e.CanonicalName,
		"display":     e.DisplayName,
		"description": e.Description,
		"article":     e.ArticleID,
		"at":          e.At,
	}
	out, err := s.write(ctx, upsertEntityCypher, params)
	if err != nil {
		return store.Unchanged, fmt.Errorf("upsert entity %s: %w", e.ID, err)
	}
	return out, nil
}

func (s *Store) UpsertRelationship(ctx context.Context, r store.RelationshipUpsert) (store.UpsertOutcome, error) {
	cypher, err := relationshipCypher(r.Type)
	if err != nil {
		return store.Unchanged, err
	}
	params := map[string]any{
		"id":          r.ID,
		"source_id":   r.SourceID,
		"target_id":   r.TargetID,
		"strength":    r.Strength,
		"description": r.Description,
		"article":     r.ArticleID,
		"at":          r.At,
	}
	out, err := s.write(ctx, cypher, params)
	if err != nil {
		return store.Unchanged, fmt.Errorf("upsert relationship %s: %w", r.ID, err)
	}
	return out, nil
}

// write runs an upsert returning the boolean columns created and changed.
func (s *Store) write(ctx context.Context, cypher string, params map[string]any) (store.UpsertOutcome, error) {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	res, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		record, err := result.Single(ctx)
		if err != nil {
			return nil, err
		}
		created, _ := record.Get("created")
		changed, _ := record.Get("changed")
		switch {
		case created == true:
			return store.Created, nil
		case changed == true:
			return store.Updated, nil
		default:
			return store.Unchanged, nil
		}
	})
	if err != nil {
		return store.Unchanged, err
	}
	return res.(store.UpsertOutcome), nil
}

func (s *Store) Stats(ctx context.Context) (store.Stats, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	res, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, statsCypher, nil)
		if err != nil {
			return nil, err
		}
		record, err := result.Single(ctx)
		if err != nil {
			return nil, err
		}
		var stats store.Stats
		if v, ok := record.Get("entities"); ok {
			stats.Entities, _ = v.(int64)
		}
		if v, ok := record.Get("relationships"); ok {
			stats.Relationships, _ = v.(int64)
		}
		return stats, nil
	})
	if err != nil {
		return store.Stats{}, err
	}
	return res.(store.Stats), nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// relationshipCypher builds the upsert for one relationship type. Cypher
// cannot parameterise relationship types, so only allowlisted types are
// ever formatted into the query.
func relationshipCypher(rt common.RelationType) (string, error) {
	if !rt.Allowed() {
		return "", fmt.Errorf("relationship type %q is not allowed", rt)
	}
	return fmt.Sprintf(upsertRelationshipCypher, rt), nil
}

const upsertEntityCypher = `
MERGE (e:Entity {type: $type, canonical_name: $canonical})
ON CREATE SET e.id = $id,
              e.display_name = $display,
              e.description = $description,
              e.source_articles = [],
              e.mention_count = 0,
              e.created_at = $at
WITH e,
     size(e.source_articles) = 0 AS created,
     NOT $article IN e.source_articles AS seen_new,
     size($description) > size(coalesce(e.description, '')) AS longer_description,
     size($display) > size(coalesce(e.display_name, '')) AS longer_name
SET e.mention_count = CASE WHEN seen_new THEN e.mention_count + 1 ELSE e.mention_count END,
    e.source_articles = CASE WHEN seen_new THEN e.source_articles + $article ELSE e.source_articles END,
    e.last_mentioned_at = CASE WHEN seen_new THEN $at ELSE e.last_mentioned_at END,
    e.description = CASE WHEN longer_description THEN $description ELSE e.description END,
    e.display_name = CASE WHEN longer_name THEN $display ELSE e.display_name END,
    e.updated_at = CASE WHEN seen_new OR longer_description OR longer_name THEN $at ELSE e.updated_at END
RETURN created, seen_new OR longer_description OR longer_name AS changed
`

const upsertRelationshipCypher = `
MATCH (s:Entity {id: $source_id}), (t:Entity {id: $target_id})
MERGE (s)-[r:%s {id: $id}]->(t)
ON CREATE SET r.strength = $strength,
              r.description = $description,
              r.source_articles = [],
              r.created_at = $at
WITH r,
     size(r.source_articles) = 0 AS created,
     NOT $article IN r.source_articles AS seen_new,
     $strength > r.strength AS stronger,
     size($description) > size(coalesce(r.description, '')) AS longer_description
SET r.strength = CASE WHEN stronger THEN $strength ELSE r.strength END,
    r.description = CASE WHEN longer_description THEN $description ELSE r.description END,
    r.source_articles = CASE WHEN seen_new THEN r.source_articles + $article ELSE r.source_articles END,
    r.updated_at = CASE WHEN seen_new OR stronger OR longer_description THEN $at ELSE r.updated_at END
RETURN created, seen_new OR stronger OR longer_description AS changed
`

const statsCypher = `
CALL { MATCH (e:Entity) RETURN count(e) AS entities }
CALL { MATCH (:Entity)-[r]->(:Entity) RETURN count(r) AS relationships }
RETURN entities, relationships
`
