package extract

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/untoldecay/TalentGraph/internal/types"
)

// DefaultMinConfidence is the floor below which extracted relationships
// are dropped, matching the confidence guidelines in the prompt.
const DefaultMinConfidence = 0.70

const (
	minDraftNameLen = 2
	maxDraftNameLen = 50
)

// badEntityFragments mark sentence fragments, generic phrases, and date
// words that indicate the model extracted prose instead of a name.
var badEntityFragments = []string{
	"says", "said", "announced", "reported", "according", "stated",
	"the company", "the startup", "the firm", "the investor",
	"in a", "for a", "with a", "to a", "from a",
	"which", "that", "this", "their", "its",
	"monday", "tuesday", "wednesday", "thursday", "friday",
	"january", "february", "march", "april", "may", "june",
	"july", "august", "september", "october", "november", "december",
}

// commonWords are single generic words that are never entity names.
var commonWords = map[string]bool{
	"company": true, "startup": true, "firm": true,
	"investor": true, "ceo": true, "cto": true, "employee": true,
}

// draftSuffixes are org suffixes stripped from draft names so "Google
// Inc." and "Google" collapse before validation. Case is preserved.
var draftSuffixes = []string{
	" Inc.", " Inc", " Corp.", " Corp", " LLC", " Ltd.", " Ltd",
	" Corporation", " Company", " Co.", " Co", " PLC", " LP", " LLP",
}

type wireEntity struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Role string `json:"role"`
}

type wireRelationship struct {
	Subject    string   `json:"subject"`
	Predicate  string   `json:"predicate"`
	Object     string   `json:"object"`
	Context    string   `json:"context"`
	Confidence *float64 `json:"confidence"`
}

type wireResult struct {
	Entities      []wireEntity       `json:"entities"`
	Relationships []wireRelationship `json:"relationships"`
	EventDate     string             `json:"event_date"`
	Amounts       map[string]any     `json:"amounts"`
}

// ParseResponse decodes a model response into a Result, enforcing the
// strict JSON contract. It tolerates markdown fences and prose around
// the object, but anything without a decodable JSON object inside
// becomes a SchemaViolationError. Drafts that fail entity-level
// validation are dropped; relationships below minConfidence are
// dropped; a minConfidence of zero or below selects the default.
func ParseResponse(raw string, minConfidence float64) (*Result, error) {
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}

	body := stripFences(raw)
	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start < 0 || end <= start {
		return nil, &SchemaViolationError{Reason: "no JSON object in response", Raw: snippet(raw)}
	}
	body = body[start : end+1]

	var wire wireResult
	if err := json.Unmarshal([]byte(body), &wire); err != nil {
		return nil, &SchemaViolationError{Reason: "invalid JSON: " + err.Error(), Raw: snippet(raw)}
	}

	res := &Result{RawResponse: raw}

	for _, e := range wire.Entities {
		kind := parseKind(e.Type)
		if !validDraftName(e.Name, kind) {
			continue
		}
		res.Entities = append(res.Entities, EntityDraft{
			Name: normalizeDraftName(e.Name),
			Kind: kind,
			Role: strings.TrimSpace(e.Role),
		})
	}

	kindOf := make(map[string]types.EntityKind, len(res.Entities))
	for _, e := range res.Entities {
		kindOf[strings.ToLower(e.Name)] = e.Kind
	}

	for _, r := range wire.Relationships {
		confidence := 0.8
		if r.Confidence != nil {
			confidence = *r.Confidence
		}
		if confidence < minConfidence {
			continue
		}
		subject := normalizeDraftName(r.Subject)
		object := normalizeDraftName(r.Object)
		predicate := strings.ToUpper(strings.TrimSpace(r.Predicate))
		if subject == "" || predicate == "" || object == "" {
			continue
		}
		res.Relationships = append(res.Relationships, RelationshipDraft{
			Subject:     subject,
			SubjectKind: lookupKind(kindOf, subject),
			Predicate:   types.Predicate(predicate),
			Object:      object,
			ObjectKind:  lookupKind(kindOf, object),
			Context:     strings.TrimSpace(r.Context),
			Confidence:  confidence,
		})
	}

	res.EventDateRaw = strings.TrimSpace(wire.EventDate)
	if res.EventDateRaw != "" {
		if t, err := time.Parse("2006-01-02", res.EventDateRaw); err == nil {
			res.EventDate = &t
		}
	}

	res.Amounts = Amounts{
		Funding:     amountString(wire.Amounts["funding"]),
		Acquisition: amountString(wire.Amounts["acquisition"]),
		Valuation:   amountString(wire.Amounts["valuation"]),
		LayoffCount: amountString(wire.Amounts["layoff_count"]),
	}

	return res, nil
}

func stripFences(s string) string {
	if i := strings.Index(s, "```json"); i >= 0 {
		rest := s[i+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return rest[:end]
		}
		return rest
	}
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		if end := strings.Index(rest, "```"); end >= 0 {
			return rest[:end]
		}
		return rest
	}
	return s
}

// validDraftName applies the extraction-level quality gate. The
// graph-level validator applies a second, stricter pass; this one
// exists to drop obvious prose before names are compared at all.
func validDraftName(name string, kind types.EntityKind) bool {
	name = strings.TrimSpace(name)
	if len(name) < minDraftNameLen || len(name) > maxDraftNameLen {
		return false
	}
	lower := strings.ToLower(name)
	for _, fragment := range badEntityFragments {
		if strings.Contains(lower, fragment) {
			return false
		}
	}
	if commonWords[lower] {
		return false
	}
	if kind == types.KindPerson && len(strings.Fields(name)) < 2 {
		return false
	}
	return true
}

// normalizeDraftName trims whitespace and strips one trailing org
// suffix, preserving case.
func normalizeDraftName(name string) string {
	name = strings.TrimSpace(name)
	for _, suffix := range draftSuffixes {
		if strings.HasSuffix(name, suffix) {
			return strings.TrimSpace(strings.TrimSuffix(name, suffix))
		}
	}
	return name
}

func parseKind(s string) types.EntityKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "company":
		return types.KindCompany
	case "person":
		return types.KindPerson
	case "investor":
		return types.KindInvestor
	default:
		return types.KindUnknown
	}
}

func lookupKind(kindOf map[string]types.EntityKind, name string) types.EntityKind {
	if k, ok := kindOf[strings.ToLower(name)]; ok {
		return k
	}
	return types.KindUnknown
}

// amountString coerces the model's amount values, which arrive as
// strings or bare numbers, into display strings. JSON null and the
// literal "null" become empty.
func amountString(v any) string {
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		if strings.EqualFold(s, "null") {
			return ""
		}
		return s
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	default:
		return ""
	}
}

func snippet(s string) string {
	const max = 200
	if len(s) <= max {
		return s
	}
	return s[:max]
}
