// Package normalize canonicalizes entity names and merges near-duplicate
// mentions within one extraction.
package normalize

import (
	"strings"
	"unicode"

	"github.com/OFFIS-RIT/newsgraph/pkg/common"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// corporateSuffixes are stripped from the end of Company names only.
var corporateSuffixes = map[string]struct{}{
	"inc":          {},
	"incorporated": {},
	"corp":         {},
	"corporation":  {},
	"co":           {},
	"company":      {},
	"ltd":          {},
	"limited":      {},
	"llc":          {},
	"plc":          {},
	"gmbh":         {},
	"ag":           {},
	"sa":           {},
	"nv":           {},
	"bv":           {},
	"llp":          {},
	"lp":           {},
	"pty":          {},
	"pte":          {},
	"srl":          {},
	"oy":           {},
	"ab":           {},
	"as":           {},
	"kg":           {},
}

var idNamespace = uuid.MustParse("6f1c5b0e-3f43-4c8e-9d0a-2b7c1e9a4d55")

// Normalize returns the canonical form of name for the given entity type.
// Two names that normalize equally are the same graph entity.
//
//	Normalize("OpenAI, Inc.", common.EntityCompany) == "openai"
//	Normalize("  Jane   DOE ", common.EntityPerson) == "jane doe"
func Normalize(name string, t common.EntityType) string {
	tokens := tokenize(name)
	if t == common.EntityCompany {
		tokens = stripSuffixes(tokens)
	}
	return strings.Join(tokens, " ")
}

func tokenize(name string) []string {
	// transformers carry state, so build a fresh chain per call
	chain := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(chain, name)
	if err != nil {
		s = name
	}
	s = cases.Fold().String(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\'' || r == '’' || r == '.':
			// "O'Brien" -> "obrien", "U.S." -> "us"
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Fields(b.String())
}

func stripSuffixes(tokens []string) []string {
	for len(tokens) > 1 {
		if _, ok := corporateSuffixes[tokens[len(tokens)-1]]; !ok {
			break
		}
		tokens = tokens[:len(tokens)-1]
	}
	return tokens
}

// EntityID derives the stable graph id for a canonical identity.
func EntityID(t common.EntityType, canonical string) string {
	return uuid.NewSHA1(idNamespace, []byte("entity\x00"+string(t)+"\x00"+canonical)).String()
}

// RelationshipID derives the stable graph id for an edge.
func RelationshipID(sourceID string, t common.RelationType, targetID string) string {
	return uuid.NewSHA1(idNamespace, []byte("relationship\x00"+sourceID+"\x00"+string(t)+"\x00"+targetID)).String()
}

// isAbbreviated flags forms like "IBM" or "J. Doe" that should lose against a
// spelled-out variant when both are merged.
func isAbbreviated(raw string) bool {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return false
	}
	for _, f := range fields {
		letters := strings.TrimSuffix(f, ".")
		if letters != f && len([]rune(letters)) <= 2 {
			return true
		}
	}
	if len(fields) == 1 {
		word := []rune(fields[0])
		if len(word) > 5 || len(word) < 2 {
			return false
		}
		for _, r := range word {
			if unicode.IsLetter(r) && !unicode.IsUpper(r) {
				return false
			}
		}
		return true
	}
	return false
}
