package graph

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/OFFIS-RIT/newsgraph/pkg/common"
	"github.com/OFFIS-RIT/newsgraph/pkg/normalize"
	"github.com/OFFIS-RIT/newsgraph/pkg/store"
)

const maxStrength = 10

// resolvedEntity is one graph identity mentioned by the article, after
// candidates collapsing to the same id have been merged.
type resolvedEntity struct {
	id          string
	typ         common.EntityType
	canonical   string
	displayName string
	description string
}

type resolvedRelationship struct {
	id          string
	sourceID    string
	targetID    string
	typ         common.RelationType
	strength    float64
	description string
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// mergeEntities canonicalizes every candidate and merges those sharing an
// id. The returned index maps candidate names to ids; when a name is used
// for two types the first one wins, as in ExtractionResult.FindEntity.
func mergeEntities(cands []common.CandidateEntity) ([]resolvedEntity, map[string]string, []string) {
	byID := make(map[string]*resolvedEntity)
	index := make(map[string]string)
	var warnings []string

	for _, c := range cands {
		name := strings.TrimSpace(c.Name)
		if name == "" || !c.Type.Valid() {
			warnings = append(warnings, fmt.Sprintf("entity %q: invalid candidate of type %q", c.Name, c.Type))
			continue
		}
		canonical := normalize.Normalize(name, c.Type)
		if canonical == "" {
			warnings = append(warnings, fmt.Sprintf("entity %q: empty canonical name", c.Name))
			continue
		}
		id := normalize.EntityID(c.Type, canonical)

		if e, ok := byID[id]; ok {
			if store.Longer(name, e.displayName) {
				e.displayName = name
			}
			if store.Longer(c.Description, e.description) {
				e.description = c.Description
			}
		} else {
			byID[id] = &resolvedEntity{
				id:          id,
				typ:         c.Type,
				canonical:   canonical,
				displayName: name,
				description: c.Description,
			}
		}
		if _, ok := index[nameKey(name)]; !ok {
			index[nameKey(name)] = id
		}
	}

	out := make([]resolvedEntity, 0, len(byID))
	for _, e := range byID {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out, index, warnings
}

// mergeRelationships applies the allowlist, resolves endpoints and folds
// duplicates (same source, target and type) with the MAX strength policy.
func mergeRelationships(rels []common.CandidateRelationship, index map[string]string) ([]resolvedRelationship, int, []string) {
	byID := make(map[string]*resolvedRelationship)
	dropped := 0
	var warnings []string

	drop := func(format string, args ...any) {
		dropped++
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	for _, r := range rels {
		if !r.Type.Allowed() {
			drop("relationship %s -[%s]-> %s: type not allowed", r.Source, r.Type, r.Target)
			continue
		}
		if math.IsNaN(r.Strength) || r.Strength < 0 || r.Strength > maxStrength {
			drop("relationship %s -[%s]-> %s: strength %v out of range", r.Source, r.Type, r.Target, r.Strength)
			continue
		}
		sourceID, okSource := index[nameKey(r.Source)]
		targetID, okTarget := index[nameKey(r.Target)]
		if !okSource || !okTarget {
			drop("relationship %s -[%s]-> %s: dangling endpoint", r.Source, r.Type, r.Target)
			continue
		}
		if sourceID == targetID {
			drop("relationship %s -[%s]-> %s: self loop", r.Source, r.Type, r.Target)
			continue
		}

		id := normalize.RelationshipID(sourceID, r.Type, targetID)
		if existing, ok := byID[id]; ok {
			existing.strength = max(existing.strength, r.Strength)
			if store.Longer(r.Description, existing.description) {
				existing.description = r.Description
			}
			continue
		}
		byID[id] = &resolvedRelationship{
			id:          id,
			sourceID:    sourceID,
			targetID:    targetID,
			typ:         r.Type,
			strength:    r.Strength,
			description: r.Description,
		}
	}

	out := make([]resolvedRelationship, 0, len(byID))
	for _, r := range byID {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out, dropped, warnings
}
