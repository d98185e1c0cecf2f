package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/untoldecay/TalentGraph/internal/types"
)

const enrichmentSystemPrompt = `You are a research assistant building background profiles of companies and professionals for a recruiting intelligence system.

CRITICAL RULES:
1. Return ONLY valid JSON - no markdown code blocks, no explanations
2. Only state facts you are confident about; use null for anything uncertain
3. Never invent numbers, dates, names, or URLs
4. The summary field is required and must describe the subject in one or two sentences`

const companyEnrichmentPrompt = `Provide background on the %s "%s".

Return ONLY valid JSON (no markdown, no explanation):
{
  "summary": "One or two sentences describing what they do",
  "attributes": {
    "employee_count": "number or null",
    "headquarters": "City, Region or null",
    "founded_year": "YYYY or null",
    "total_funding": "$XM or null",
    "industry": "sector or null",
    "company_type": "startup|public|private or null",
    "website": "https://... or null"
  }
}`

const personEnrichmentPrompt = `Provide background on the professional "%s".

Return ONLY valid JSON (no markdown, no explanation):
{
  "summary": "One or two sentences describing who this person is",
  "attributes": {
    "current_title": "title or null",
    "current_company": "company name or null",
    "executive_level": "CEO|CTO|CFO|VP|Director or null",
    "location": "City, Region or null",
    "education": "school and degree or null",
    "skills": "comma-separated areas of expertise or null"
  }
}`

// EnrichmentResult is fetched background detail for one entity. Attribute
// keys follow the prompt contract; values the model returned as null or
// empty are absent.
type EnrichmentResult struct {
	Summary     string
	Attributes  map[string]string
	RawResponse string
}

type wireEnrichment struct {
	Summary    string         `json:"summary"`
	Attributes map[string]any `json:"attributes"`
}

// Enrich fetches background detail for a named entity. The call shares
// the client's rate limiter and retry policy with extraction.
func (c *Client) Enrich(ctx context.Context, name string, kind types.EntityKind) (*EnrichmentResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	raw, err := c.callWithRetry(ctx, enrichmentSystemPrompt, enrichmentPrompt(name, kind))
	if err != nil {
		return nil, err
	}
	return ParseEnrichment(raw)
}

func enrichmentPrompt(name string, kind types.EntityKind) string {
	if kind == types.KindPerson {
		return fmt.Sprintf(personEnrichmentPrompt, name)
	}
	noun := "company"
	if kind == types.KindInvestor {
		noun = "investment firm"
	}
	return fmt.Sprintf(companyEnrichmentPrompt, noun, name)
}

// ParseEnrichment decodes a model response into an EnrichmentResult under
// the same tolerance rules as ParseResponse: fences and surrounding prose
// are stripped, but a missing JSON object or missing summary is a
// SchemaViolationError. Null, empty, and unkeyed attributes are dropped.
func ParseEnrichment(raw string) (*EnrichmentResult, error) {
	body := stripFences(raw)
	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start < 0 || end <= start {
		return nil, &SchemaViolationError{Reason: "no JSON object in response", Raw: snippet(raw)}
	}
	body = body[start : end+1]

	var wire wireEnrichment
	if err := json.Unmarshal([]byte(body), &wire); err != nil {
		return nil, &SchemaViolationError{Reason: "invalid JSON: " + err.Error(), Raw: snippet(raw)}
	}

	summary := strings.TrimSpace(wire.Summary)
	if summary == "" {
		return nil, &SchemaViolationError{Reason: "missing summary", Raw: snippet(raw)}
	}

	res := &EnrichmentResult{
		Summary:     summary,
		Attributes:  make(map[string]string, len(wire.Attributes)),
		RawResponse: raw,
	}
	for k, v := range wire.Attributes {
		key := strings.ToLower(strings.TrimSpace(k))
		val := attrString(v)
		if key == "" || val == "" {
			continue
		}
		res.Attributes[key] = val
	}
	return res, nil
}

// attrString coerces attribute values, which arrive as strings, numbers,
// booleans, or lists, into display strings. Lists join with commas.
func attrString(v any) string {
	switch val := v.(type) {
	case bool:
		return strconv.FormatBool(val)
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s := attrString(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return amountString(v)
	}
}
