package normalize

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/OFFIS-RIT/newsgraph/pkg/common"

	"github.com/agnivade/levenshtein"
)

// DefaultThreshold only merges near-identical names. A false merge corrupts
// two entities, a missed merge leaves a duplicate, so the bar is high.
const DefaultThreshold = 0.92

// TokenSortRatio compares two names after sorting their tokens, so word
// order does not matter. The result is in [0, 1].
func TokenSortRatio(a, b string) float64 {
	a = sortTokens(a)
	b = sortTokens(b)
	if a == b {
		return 1
	}
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}

func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// Resolver merges near-duplicate candidates of the same type.
type Resolver struct {
	threshold float64
}

// NewResolver creates a resolver. A threshold outside (0, 1] falls back to
// DefaultThreshold.
func NewResolver(threshold float64) *Resolver {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Resolver{threshold: threshold}
}

func (r *Resolver) Threshold() float64 {
	return r.threshold
}

type group struct {
	members   []int
	preferred int
}

// groups partitions candidate indices into merge groups with union-find.
// Groups are returned in order of their first member.
func (r *Resolver) groups(cands []common.CandidateEntity) []group {
	parent := make([]int, len(cands))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra == rb {
			return
		}
		if ra < rb {
			parent[rb] = ra
		} else {
			parent[ra] = rb
		}
	}

	canon := make([]string, len(cands))
	for i, c := range cands {
		canon[i] = Normalize(c.Name, c.Type)
	}

	for i := range cands {
		for j := i + 1; j < len(cands); j++ {
			if cands[i].Type != cands[j].Type {
				continue
			}
			if canon[i] == canon[j] || TokenSortRatio(canon[i], canon[j]) >= r.threshold {
				union(i, j)
			}
		}
	}

	byRoot := make(map[int]*group)
	order := make([]int, 0)
	for i := range cands {
		root := find(i)
		g, ok := byRoot[root]
		if !ok {
			g = &group{preferred: i}
			byRoot[root] = g
			order = append(order, root)
		}
		g.members = append(g.members, i)
		if prefer(cands[i], canon[i], cands[g.preferred], canon[g.preferred]) {
			g.preferred = i
		}
	}

	out := make([]group, 0, len(order))
	for _, root := range order {
		out = append(out, *byRoot[root])
	}
	return out
}

// prefer reports whether candidate a is a better canonical variant than b:
// spelled-out beats abbreviated, then more tokens, then longer, then the
// longer raw spelling, then the lexicographically smaller canonical form.
func prefer(a common.CandidateEntity, aCanon string, b common.CandidateEntity, bCanon string) bool {
	aAbbr, bAbbr := isAbbreviated(a.Name), isAbbreviated(b.Name)
	if aAbbr != bAbbr {
		return !aAbbr
	}
	aTok, bTok := len(strings.Fields(aCanon)), len(strings.Fields(bCanon))
	if aTok != bTok {
		return aTok > bTok
	}
	aLen, bLen := utf8.RuneCountInString(aCanon), utf8.RuneCountInString(bCanon)
	if aLen != bLen {
		return aLen > bLen
	}
	aRaw, bRaw := utf8.RuneCountInString(strings.TrimSpace(a.Name)), utf8.RuneCountInString(strings.TrimSpace(b.Name))
	if aRaw != bRaw {
		return aRaw > bRaw
	}
	return aCanon < bCanon
}

// ResolveDuplicates maps every candidate index to the canonical name of its
// merge group.
func (r *Resolver) ResolveDuplicates(cands []common.CandidateEntity) map[int]string {
	out := make(map[int]string, len(cands))
	for _, g := range r.groups(cands) {
		p := cands[g.preferred]
		canonical := Normalize(p.Name, p.Type)
		for _, idx := range g.members {
			out[idx] = canonical
		}
	}
	return out
}

// Consolidate collapses merged candidates into a single entity carrying the
// preferred display name and the longest description, and points every
// relationship at the surviving names.
func (r *Resolver) Consolidate(res common.ExtractionResult) common.ExtractionResult {
	groups := r.groups(res.Entities)

	rename := make(map[string]string, len(res.Entities))
	entities := make([]common.CandidateEntity, 0, len(groups))
	for _, g := range groups {
		p := res.Entities[g.preferred]
		merged := common.CandidateEntity{
			Type:        p.Type,
			Name:        strings.TrimSpace(p.Name),
			Description: p.Description,
		}
		for _, idx := range g.members {
			c := res.Entities[idx]
			key := strings.ToLower(strings.TrimSpace(c.Name))
			if _, seen := rename[key]; !seen {
				rename[key] = merged.Name
			}
			if len(c.Description) > len(merged.Description) {
				merged.Description = c.Description
			}
			for k, v := range c.Attributes {
				if merged.Attributes == nil {
					merged.Attributes = make(map[string]string)
				}
				if _, ok := merged.Attributes[k]; !ok {
					merged.Attributes[k] = v
				}
			}
		}
		entities = append(entities, merged)
	}

	relationships := make([]common.CandidateRelationship, 0, len(res.Relationships))
	for _, rel := range res.Relationships {
		if name, ok := rename[strings.ToLower(strings.TrimSpace(rel.Source))]; ok {
			rel.Source = name
		}
		if name, ok := rename[strings.ToLower(strings.TrimSpace(rel.Target))]; ok {
			rel.Target = name
		}
		relationships = append(relationships, rel)
	}

	return common.ExtractionResult{
		Entities:      entities,
		Relationships: relationships,
	}
}
