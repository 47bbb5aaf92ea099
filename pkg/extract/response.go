package extract

import (
	"strings"

	"github.com/OFFIS-RIT/newsgraph/pkg/common"
)

type entityResponse struct {
	Name        string `json:"name" jsonschema_description:"Name of the entity as written in the article"`
	Type        string `json:"type" jsonschema_description:"One of the allowed entity types"`
	Description string `json:"description" jsonschema_description:"Short description based on the article"`
}

type relationshipResponse struct {
	Source      string  `json:"source" jsonschema_description:"Name of the source entity"`
	Target      string  `json:"target" jsonschema_description:"Name of the target entity"`
	Type        string  `json:"type" jsonschema_description:"One of the allowed relationship types"`
	Strength    float64 `json:"strength" jsonschema_description:"Support in the article from 0 to 10"`
	Description string  `json:"description" jsonschema_description:"One sentence explaining the relationship"`
}

type extractionResponse struct {
	Entities      []entityResponse       `json:"entities"`
	Relationships []relationshipResponse `json:"relationships"`
}

// toResult maps loosely formatted tags onto the closed enums. Unknown tags
// are kept verbatim so the validator can report them.
func (r extractionResponse) toResult() common.ExtractionResult {
	res := common.ExtractionResult{
		Entities:      make([]common.CandidateEntity, 0, len(r.Entities)),
		Relationships: make([]common.CandidateRelationship, 0, len(r.Relationships)),
	}
	for _, e := range r.Entities {
		typ, _ := common.ParseEntityType(e.Type)
		res.Entities = append(res.Entities, common.CandidateEntity{
			Type:        typ,
			Name:        strings.TrimSpace(e.Name),
			Description: strings.TrimSpace(e.Description),
		})
	}
	for _, rel := range r.Relationships {
		res.Relationships = append(res.Relationships, common.CandidateRelationship{
			Source:      strings.TrimSpace(rel.Source),
			Target:      strings.TrimSpace(rel.Target),
			Type:        common.ParseRelationType(rel.Type),
			Strength:    rel.Strength,
			Description: strings.TrimSpace(rel.Description),
		})
	}
	return res
}
