package extract

const extractionSystemPrompt = `You are an expert at extracting structured business intelligence from news articles.

CRITICAL RULES:
1. Extract ONLY explicitly named entities - no pronouns, no generic terms
2. Company names must be the official name (Google, not Alphabet's Google)
3. Person names must be full names (first + last minimum)
4. Return ONLY valid JSON - no markdown code blocks, no explanations
5. If unsure about an entity, omit it rather than guess
6. Confidence below 0.70 = do not include

You extract data for a recruiting intelligence system that tracks:
- Company acquisitions (hiring signals)
- Funding rounds (growth/hiring signals)
- Executive movements (available talent signals)
- Layoffs (displaced talent signals)`

const extractionPromptTemplate = `Extract entities and relationships from this business news article.

ENTITY EXTRACTION RULES (STRICT):
- Company names: Use official name only (e.g., "Google" not "Google Inc." or "the tech giant")
- Person names: Full name only (e.g., "John Smith" not "CEO John Smith")
- Investor names: Fund name (e.g., "Sequoia Capital" not "Sequoia")
- DO NOT include sentence fragments, descriptions, or partial phrases
- DO NOT include generic terms like "the company", "the startup", "the firm"
- DO NOT include titles in names - put titles in the "role" field
- Names must be 2-50 characters, no longer

ENTITIES to extract:
- Companies (type: "company") - startups, corporations, tech companies
- People (type: "person") - executives, founders, employees with named roles
- Investors (type: "investor") - VCs, PE firms, angel investors, investment banks

RELATIONSHIPS to extract:
- ACQUIRED: Company acquired another company
- FUNDED_BY: Company received funding from investor
- HIRED_BY: Person joined a company (new hire or promotion)
- DEPARTED_FROM: Person left a company (resignation, layoff, retirement)
- FOUNDED: Person founded a company
- CEO_OF: Person is CEO of company
- CTO_OF: Person is CTO of company
- CFO_OF: Person is CFO of company
- INVESTED_IN: Investor invested in company
- LAID_OFF: Company laid off employees (object = "employees" with count in context)

CONFIDENCE GUIDELINES:
- 0.95: Explicitly stated fact with clear attribution
- 0.85: Strongly implied or from reliable source
- 0.70: Mentioned but details unclear
- Below 0.70: Do not include

Return ONLY valid JSON (no markdown, no explanation):
{
  "entities": [
    {"name": "Exact Official Name", "type": "company|person|investor", "role": "CEO|CTO|VP Engineering|etc or null"}
  ],
  "relationships": [
    {
      "subject": "Entity name (must match an entity above)",
      "predicate": "RELATIONSHIP_TYPE",
      "object": "Entity name (must match an entity above)",
      "context": "Exact quote or close paraphrase from article",
      "confidence": 0.70-1.0
    }
  ],
  "event_date": "YYYY-MM-DD or null",
  "amounts": {
    "funding": "$XM or null",
    "acquisition": "$XM or null",
    "valuation": "$XB or null",
    "layoff_count": "number or null"
  }
}

ARTICLE TITLE: {{.Title}}

ARTICLE CONTENT:
{{.Content}}`

type promptData struct {
	Title   string
	Content string
}
