package normalize

import (
	"testing"

	"github.com/OFFIS-RIT/newsgraph/pkg/common"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		typ  common.EntityType
		want string
	}{
		{name: "company suffix and punctuation", in: "OpenAI, Inc.", typ: common.EntityCompany, want: "openai"},
		{name: "company lower without punctuation", in: "openai inc", typ: common.EntityCompany, want: "openai"},
		{name: "corp with period", in: "Acme Corp.", typ: common.EntityCompany, want: "acme"},
		{name: "stacked suffixes", in: "Widget Co. Ltd", typ: common.EntityCompany, want: "widget"},
		{name: "diacritics and dotted suffix", in: "Société Générale S.A.", typ: common.EntityCompany, want: "societe generale"},
		{name: "suffix never empties", in: "Co", typ: common.EntityCompany, want: "co"},
		{name: "suffix kept for non-company", in: "Apple Inc", typ: common.EntityProduct, want: "apple inc"},
		{name: "whitespace collapse", in: "  Jane   DOE ", typ: common.EntityPerson, want: "jane doe"},
		{name: "apostrophe and ampersand", in: "O'Brien & Sons Ltd", typ: common.EntityCompany, want: "obrien sons"},
		{name: "hyphen splits tokens", in: "Beta-Ventures", typ: common.EntityInvestor, want: "beta ventures"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in, tt.typ); got != tt.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeConvergence(t *testing.T) {
	a := Normalize("OpenAI, Inc.", common.EntityCompany)
	b := Normalize("openai inc", common.EntityCompany)
	if a != b {
		t.Fatalf("expected convergence, got %q and %q", a, b)
	}
	if EntityID(common.EntityCompany, a) != EntityID(common.EntityCompany, b) {
		t.Fatal("expected identical ids")
	}
}

func TestEntityIDDependsOnType(t *testing.T) {
	if EntityID(common.EntityCompany, "acme") == EntityID(common.EntityProduct, "acme") {
		t.Fatal("same name with different type must not share an id")
	}
	r1 := RelationshipID("a", common.RelFundedBy, "b")
	r2 := RelationshipID("b", common.RelFundedBy, "a")
	if r1 == r2 {
		t.Fatal("relationship ids must be directional")
	}
}

func TestIsAbbreviated(t *testing.T) {
	tests := map[string]bool{
		"IBM":      true,
		"J. Doe":   true,
		"Jane Doe": false,
		"OpenAI":   false,
		"Acme":     false,
	}
	for in, want := range tests {
		if got := isAbbreviated(in); got != want {
			t.Fatalf("isAbbreviated(%q) = %v, want %v", in, got, want)
		}
	}
}
