package store

import (
	"context"
	"time"

	"github.com/OFFIS-RIT/newsgraph/pkg/common"
)

// UpsertOutcome reports what an upsert did to the stored record.
type UpsertOutcome int

const (
	Unchanged UpsertOutcome = iota
	Created
	Updated
)

func (o UpsertOutcome) String() string {
	switch o {
	case Created:
		return "created"
	case Updated:
		return "updated"
	default:
		return "unchanged"
	}
}

// EntityUpsert is one mention of an entity by one article. ID must be the
// deterministic id of (Type, CanonicalName).
type EntityUpsert struct {
	ID            string
	Type          common.EntityType
	CanonicalName string
	DisplayName   string
	Description   string
	ArticleID     string
	At            time.Time
}

// RelationshipUpsert is one mention of an edge by one article. Both
// endpoints must already exist.
type RelationshipUpsert struct {
	ID          string
	SourceID    string
	TargetID    string
	Type        common.RelationType
	Strength    float64
	Description string
	ArticleID   string
	At          time.Time
}

type Stats struct {
	Entities      int64 `json:"entities"`
	Relationships int64 `json:"relationships"`
}

// GraphStore persists entities and relationships. Upserts must be atomic per
// identity: entities are unique per (Type, CanonicalName) and relationships
// per (SourceID, TargetID, Type), enforced by the store itself.
//
// Merge rules shared by every implementation:
//   - a new article increments the mention count once and joins
//     source_articles; a repeated article leaves both untouched
//   - description and display name keep the longest value
//   - relationship strength keeps the maximum
type GraphStore interface {
	UpsertEntity(ctx context.Context, e EntityUpsert) (UpsertOutcome, error)
	UpsertRelationship(ctx context.Context, r RelationshipUpsert) (UpsertOutcome, error)
	Stats(ctx context.Context) (Stats, error)
	Close(ctx context.Context) error
}
