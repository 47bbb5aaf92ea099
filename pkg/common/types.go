package common

import "strings"

// EntityType is the closed set of entity tags the extraction may produce.
type EntityType string

const (
	EntityCompany      EntityType = "Company"
	EntityPerson       EntityType = "Person"
	EntityInvestor     EntityType = "Investor"
	EntityTechnology   EntityType = "Technology"
	EntityProduct      EntityType = "Product"
	EntityEvent        EntityType = "Event"
	EntityLocation     EntityType = "Location"
	EntityOrganization EntityType = "Organization"
)

var entityTypes = []EntityType{
	EntityCompany,
	EntityPerson,
	EntityInvestor,
	EntityTechnology,
	EntityProduct,
	EntityEvent,
	EntityLocation,
	EntityOrganization,
}

// EntityTypes returns the allowed entity types in prompt order.
func EntityTypes() []EntityType {
	out := make([]EntityType, len(entityTypes))
	copy(out, entityTypes)
	return out
}

// Valid reports whether t is one of the known entity types.
func (t EntityType) Valid() bool {
	for _, et := range entityTypes {
		if t == et {
			return true
		}
	}
	return false
}

// ParseEntityType maps loosely formatted tags such as "COMPANY" or
// " company " onto the closed set. Unknown tags are returned unchanged with
// ok=false.
func ParseEntityType(s string) (EntityType, bool) {
	key := foldTag(s)
	for _, et := range entityTypes {
		if foldTag(string(et)) == key {
			return et, true
		}
	}
	return EntityType(strings.TrimSpace(s)), false
}

// RelationType is a relationship tag. Only members of the allowlist may
// become graph edges.
type RelationType string

const (
	RelFounded        RelationType = "FOUNDED"
	RelFoundedBy      RelationType = "FOUNDED_BY"
	RelFundedBy       RelationType = "FUNDED_BY"
	RelInvestedIn     RelationType = "INVESTED_IN"
	RelAcquired       RelationType = "ACQUIRED"
	RelPartneredWith  RelationType = "PARTNERED_WITH"
	RelCompetesWith   RelationType = "COMPETES_WITH"
	RelWorksFor       RelationType = "WORKS_FOR"
	RelLeads          RelationType = "LEADS"
	RelDevelops       RelationType = "DEVELOPS"
	RelUses           RelationType = "USES"
	RelLaunched       RelationType = "LAUNCHED"
	RelLocatedIn      RelationType = "LOCATED_IN"
	RelParticipatedIn RelationType = "PARTICIPATED_IN"
	RelSubsidiaryOf   RelationType = "SUBSIDIARY_OF"

	// RelMentionedIn is the article-membership type. Article linkage lives in
	// GraphEntity.SourceArticles, so this type is never allowed as an edge.
	RelMentionedIn RelationType = "MENTIONED_IN"
)

var relationAllowlist = []RelationType{
	RelFounded,
	RelFoundedBy,
	RelFundedBy,
	RelInvestedIn,
	RelAcquired,
	RelPartneredWith,
	RelCompetesWith,
	RelWorksFor,
	RelLeads,
	RelDevelops,
	RelUses,
	RelLaunched,
	RelLocatedIn,
	RelParticipatedIn,
	RelSubsidiaryOf,
}

// RelationTypes returns the allowlist.
func RelationTypes() []RelationType {
	out := make([]RelationType, len(relationAllowlist))
	copy(out, relationAllowlist)
	return out
}

// Allowed is the authoritative allowlist check.
func (t RelationType) Allowed() bool {
	if t == RelMentionedIn {
		return false
	}
	for _, rt := range relationAllowlist {
		if t == rt {
			return true
		}
	}
	return false
}

// Reserved reports whether t is the article-membership type.
func (t RelationType) Reserved() bool {
	return t == RelMentionedIn
}

// ParseRelationType upper-cases and underscores a tag, e.g. "funded by" ->
// FUNDED_BY. It does not check the allowlist.
func ParseRelationType(s string) RelationType {
	s = strings.TrimSpace(s)
	s = strings.ToUpper(s)
	s = strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_'
	}), "_")
	return RelationType(s)
}

func foldTag(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "_", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}
