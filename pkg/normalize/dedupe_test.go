package normalize

import (
	"math"
	"testing"

	"github.com/OFFIS-RIT/newsgraph/pkg/common"
)

func TestTokenSortRatio(t *testing.T) {
	if got := TokenSortRatio("jane doe", "doe jane"); got != 1 {
		t.Fatalf("expected 1 for reordered tokens, got %v", got)
	}
	got := TokenSortRatio("microsoft", "microsft")
	if math.Abs(got-(1-1.0/9.0)) > 1e-9 {
		t.Fatalf("unexpected ratio %v", got)
	}
	if got := TokenSortRatio("", ""); got != 1 {
		t.Fatalf("expected 1 for empty strings, got %v", got)
	}
}

func TestResolveDuplicates(t *testing.T) {
	cands := []common.CandidateEntity{
		{Type: common.EntityCompany, Name: "Acme Corp"},
		{Type: common.EntityCompany, Name: "Acme Corporation"},
		{Type: common.EntityPerson, Name: "Jane Doe"},
		{Type: common.EntityProduct, Name: "Acme"},
		{Type: common.EntityPerson, Name: "Jonathan Smithson"},
		{Type: common.EntityPerson, Name: "Jonathan Smithsonn"},
		{Type: common.EntityPerson, Name: "Microsoft"},
		{Type: common.EntityPerson, Name: "Microsft"},
	}

	got := NewResolver(0).ResolveDuplicates(cands)
	if len(got) != len(cands) {
		t.Fatalf("expected mapping for every candidate, got %d", len(got))
	}
	if got[0] != "acme" || got[1] != "acme" {
		t.Fatalf("expected Acme variants to merge, got %q %q", got[0], got[1])
	}
	if got[3] != "acme" {
		t.Fatalf("product keeps its own canonical name, got %q", got[3])
	}
	if got[2] != "jane doe" {
		t.Fatalf("unexpected canonical %q", got[2])
	}
	if got[4] != got[5] {
		t.Fatalf("expected near-identical names to merge, got %q %q", got[4], got[5])
	}
	if got[6] == got[7] {
		t.Fatalf("below-threshold names must stay apart, both %q", got[6])
	}
}

func TestResolverThresholdFallback(t *testing.T) {
	if r := NewResolver(1.5); r.Threshold() != DefaultThreshold {
		t.Fatalf("expected default threshold, got %v", r.Threshold())
	}
	if r := NewResolver(0.8); r.Threshold() != 0.8 {
		t.Fatalf("expected 0.8, got %v", r.Threshold())
	}
}

func TestConsolidate(t *testing.T) {
	res := common.ExtractionResult{
		Entities: []common.CandidateEntity{
			{Type: common.EntityCompany, Name: "Acme Corp", Description: "short", Attributes: map[string]string{"hq": "Berlin"}},
			{Type: common.EntityCompany, Name: "Acme Corporation", Description: "a longer description", Attributes: map[string]string{"hq": "Paris", "sector": "tools"}},
			{Type: common.EntityPerson, Name: "Jane Doe", Description: "founder"},
		},
		Relationships: []common.CandidateRelationship{
			{Source: "Jane Doe", Target: "acme corp", Type: common.RelFounded, Strength: 8},
		},
	}

	out := NewResolver(DefaultThreshold).Consolidate(res)
	if len(out.Entities) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(out.Entities))
	}
	acme := out.Entities[0]
	if acme.Name != "Acme Corporation" {
		t.Fatalf("expected longest variant as display name, got %q", acme.Name)
	}
	if acme.Description != "a longer description" {
		t.Fatalf("expected longest description, got %q", acme.Description)
	}
	if acme.Attributes["hq"] != "Berlin" || acme.Attributes["sector"] != "tools" {
		t.Fatalf("unexpected attributes %v", acme.Attributes)
	}
	if out.Relationships[0].Target != "Acme Corporation" {
		t.Fatalf("expected relationship target rewritten, got %q", out.Relationships[0].Target)
	}
	if out.Relationships[0].Source != "Jane Doe" {
		t.Fatalf("unexpected source %q", out.Relationships[0].Source)
	}
}
