package common

import (
	"strings"
	"time"
)

// Article is an immutable input record produced by the scraper. The core
// only reads it.
type Article struct {
	ID          string    `json:"id" validate:"required"`
	Title       string    `json:"title" validate:"required"`
	Body        string    `json:"body" validate:"required"`
	PublishedAt time.Time `json:"published_at" validate:"required"`
	Author      string    `json:"author,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	URL         string    `json:"url,omitempty" validate:"omitempty,url"`
}

// CandidateEntity is an entity as returned by the extraction step, before
// identity resolution.
type CandidateEntity struct {
	Type        EntityType        `json:"type"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// CandidateRelationship is a directed edge between two candidate entities,
// referenced by name.
type CandidateRelationship struct {
	Source      string       `json:"source"`
	Target      string       `json:"target"`
	Type        RelationType `json:"type"`
	Strength    float64      `json:"strength"`
	Description string       `json:"description"`
}

// ExtractionResult is the output of the extraction call for one article. It
// exists only until it is ingested or discarded.
type ExtractionResult struct {
	Entities      []CandidateEntity       `json:"entities"`
	Relationships []CandidateRelationship `json:"relationships"`
}

// FindEntity returns the first entity whose trimmed name equals name,
// ignoring case.
func (r ExtractionResult) FindEntity(name string) (CandidateEntity, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return CandidateEntity{}, false
	}
	for _, e := range r.Entities {
		if strings.EqualFold(strings.TrimSpace(e.Name), name) {
			return e, true
		}
	}
	return CandidateEntity{}, false
}

// GraphEntity is the persisted node. There is exactly one per
// (Type, CanonicalName); every mention of an equivalent name converges to it.
// Articles are linked only through SourceArticles, never through an edge.
type GraphEntity struct {
	ID              string     `json:"id"`
	Type            EntityType `json:"type"`
	CanonicalName   string     `json:"canonical_name"`
	DisplayName     string     `json:"display_name"`
	Description     string     `json:"description"`
	SourceArticles  []string   `json:"source_articles"`
	MentionCount    int        `json:"mention_count"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	LastMentionedAt time.Time  `json:"last_mentioned_at"`
}

// GraphRelationship is the persisted edge, unique per (SourceID, TargetID,
// Type).
type GraphRelationship struct {
	ID             string       `json:"id"`
	SourceID       string       `json:"source_id"`
	TargetID       string       `json:"target_id"`
	Type           RelationType `json:"type"`
	Strength       float64      `json:"strength"`
	Description    string       `json:"description"`
	SourceArticles []string     `json:"source_articles"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}
