package store

import (
	"slices"
	"unicode/utf8"

	"github.com/OFFIS-RIT/newsgraph/pkg/common"
)

// Longer reports whether candidate has more runes than current.
func Longer(candidate, current string) bool {
	return utf8.RuneCountInString(candidate) > utf8.RuneCountInString(current)
}

// AddArticle returns ids with articleID appended and whether it was new.
func AddArticle(ids []string, articleID string) ([]string, bool) {
	if slices.Contains(ids, articleID) {
		return ids, false
	}
	return append(slices.Clone(ids), articleID), true
}

// MergeEntity applies e to existing, or creates the entity when existing is
// nil. It is the reference implementation of the merge rules.
func MergeEntity(existing *common.GraphEntity, e EntityUpsert) (common.GraphEntity, UpsertOutcome) {
	if existing == nil {
		return common.GraphEntity{
			ID:              e.ID,
			Type:            e.Type,
			CanonicalName:   e.CanonicalName,
			DisplayName:     e.DisplayName,
			Description:     e.Description,
			SourceArticles:  []string{e.ArticleID},
			MentionCount:    1,
			CreatedAt:       e.At,
			UpdatedAt:       e.At,
			LastMentionedAt: e.At,
		}, Created
	}

	next := *existing
	changed := false

	articles, isNew := AddArticle(existing.SourceArticles, e.ArticleID)
	if isNew {
		next.SourceArticles = articles
		next.MentionCount++
		next.LastMentionedAt = e.At
		changed = true
	}
	if Longer(e.Description, next.Description) {
		next.Description = e.Description
		changed = true
	}
	if Longer(e.DisplayName, next.DisplayName) {
		next.DisplayName = e.DisplayName
		changed = true
	}
	if !changed {
		return next, Unchanged
	}
	next.UpdatedAt = e.At
	return next, Updated
}

// MergeRelationship applies r to existing, or creates the relationship when
// existing is nil.
func MergeRelationship(existing *common.GraphRelationship, r RelationshipUpsert) (common.GraphRelationship, UpsertOutcome) {
	if existing == nil {
		return common.GraphRelationship{
			ID:             r.ID,
			SourceID:       r.SourceID,
			TargetID:       r.TargetID,
			Type:           r.Type,
			Strength:       r.Strength,
			Description:    r.Description,
			SourceArticles: []string{r.ArticleID},
			CreatedAt:      r.At,
			UpdatedAt:      r.At,
		}, Created
	}

	next := *existing
	changed := false

	if articles, isNew := AddArticle(existing.SourceArticles, r.ArticleID); isNew {
		next.SourceArticles = articles
		changed = true
	}
	if r.Strength > next.Strength {
		next.Strength = r.Strength
		changed = true
	}
	if Longer(r.Description, next.Description) {
		next.Description = r.Description
		changed = true
	}
	if !changed {
		return next, Unchanged
	}
	next.UpdatedAt = r.At
	return next, Updated
}
