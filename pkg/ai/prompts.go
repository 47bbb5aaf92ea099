package ai

// ExtractArticlePrompt is formatted with the entity types, the relationship
// types, the article title, its publication date and its body.
const ExtractArticlePrompt = `
# Task Context
You are tasked with extracting **structured entity and relationship information** from a news article about startups, companies, investors and technology. Capture every entity and relationship that is explicitly stated in the article.

# Background Data
- **Entity_types:** [%s]
- **Relationship_types:** [%s]
- **Article_title:** [%s]
- **Published:** [%s]

# Detailed Task Description & Rules
## Entity Extraction
1. Identify all entities of the specified entity types.
2. For each entity, extract:
   - **name:** the name as written in the article, including legal suffixes if the article uses them (e.g. "Acme Corp").
   - **type:** exactly one of the provided entity types.
   - **description:** a short description of the entity based strictly on the article.
3. Do not invent entities that the article does not mention. Do not extract the article itself as an entity.

## Relationship Extraction
1. From the identified entities, determine the relationships between pairs of entities.
2. For each relationship, extract:
   - **source:** name of the source entity, exactly as used in the entities list.
   - **target:** name of the target entity, exactly as used in the entities list.
   - **type:** exactly one of the provided relationship types. Skip relationships that fit none of them.
   - **strength:** a number from 0 to 10 stating how explicitly the article supports the relationship (10 = stated directly).
   - **description:** one sentence explaining the relationship based strictly on the article.
3. Relationships are directed: "Acme Corp FUNDED_BY Sequoia Capital" means Sequoia Capital funded Acme Corp.

# Examples
**Article_title:** "Acme Corp raises $10M led by Sequoia; CEO Jane Doe"
**Text:**
Robotics startup Acme Corp has raised a $10M Series A led by Sequoia Capital. CEO Jane Doe said the money will fund hiring.

**Output:**
{
  "entities": [
    {"name": "Acme Corp", "type": "Company", "description": "Robotics startup that raised a $10M Series A."},
    {"name": "Sequoia Capital", "type": "Investor", "description": "Venture firm that led Acme Corp's Series A."},
    {"name": "Jane Doe", "type": "Person", "description": "CEO of Acme Corp."}
  ],
  "relationships": [
    {"source": "Acme Corp", "target": "Sequoia Capital", "type": "FUNDED_BY", "strength": 9, "description": "Sequoia Capital led Acme Corp's $10M Series A."},
    {"source": "Jane Doe", "target": "Acme Corp", "type": "LEADS", "strength": 8, "description": "Jane Doe is the CEO of Acme Corp."}
  ]
}

# Output Formatting
Return a single valid JSON object:
{
  "entities": [{"name": "string", "type": "string", "description": "string"}],
  "relationships": [{"source": "string", "target": "string", "type": "string", "strength": 0, "description": "string"}]
}
Use empty arrays when nothing is found. Do not include any commentary outside of the JSON.

# Article
%s
`
