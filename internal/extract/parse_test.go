package extract

import (
	"errors"
	"testing"

	"github.com/untoldecay/TalentGraph/internal/types"
)

const sampleResponse = `{
  "entities": [
    {"name": "Acme Robotics Inc.", "type": "company", "role": null},
    {"name": "Jane Smith", "type": "person", "role": "CEO"},
    {"name": "Sequoia Capital", "type": "investor", "role": null},
    {"name": "Bob", "type": "person", "role": "CTO"},
    {"name": "the company said", "type": "company", "role": null}
  ],
  "relationships": [
    {
      "subject": "Acme Robotics",
      "predicate": "FUNDED_BY",
      "object": "Sequoia Capital",
      "context": "Acme Robotics raised $50 million from Sequoia Capital",
      "confidence": 0.95
    },
    {
      "subject": "Jane Smith",
      "predicate": "CEO_OF",
      "object": "Acme Robotics",
      "context": "Jane Smith, CEO of Acme Robotics",
      "confidence": 0.9
    },
    {
      "subject": "Acme Robotics",
      "predicate": "ACQUIRED",
      "object": "Widget Co",
      "context": "rumored deal",
      "confidence": 0.5
    }
  ],
  "event_date": "2024-03-15",
  "amounts": {
    "funding": "$50M",
    "acquisition": null,
    "valuation": "$500M",
    "layoff_count": 120
  }
}`

func TestParseResponse(t *testing.T) {
	res, err := ParseResponse(sampleResponse, 0)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}

	// "Bob" is a single-token person and "the company said" is a sentence
	// fragment; both are dropped.
	if len(res.Entities) != 3 {
		t.Fatalf("Entities = %d, want 3: %+v", len(res.Entities), res.Entities)
	}
	if res.Entities[0].Name != "Acme Robotics" {
		t.Errorf("entity name = %q, want suffix stripped %q", res.Entities[0].Name, "Acme Robotics")
	}
	if res.Entities[0].Kind != types.KindCompany {
		t.Errorf("entity kind = %q, want company", res.Entities[0].Kind)
	}
	if res.Entities[1].Role != "CEO" {
		t.Errorf("entity role = %q, want CEO", res.Entities[1].Role)
	}

	// The 0.5-confidence acquisition falls below the default floor.
	if len(res.Relationships) != 2 {
		t.Fatalf("Relationships = %d, want 2: %+v", len(res.Relationships), res.Relationships)
	}
	first := res.Relationships[0]
	if first.Predicate != types.PredicateFundedBy {
		t.Errorf("predicate = %q, want FUNDED_BY", first.Predicate)
	}
	if first.SubjectKind != types.KindCompany || first.ObjectKind != types.KindInvestor {
		t.Errorf("kinds = %q/%q, want company/investor", first.SubjectKind, first.ObjectKind)
	}

	if res.EventDate == nil || res.EventDate.Format("2006-01-02") != "2024-03-15" {
		t.Errorf("EventDate = %v, want 2024-03-15", res.EventDate)
	}
	if res.Amounts.Funding != "$50M" {
		t.Errorf("Amounts.Funding = %q, want $50M", res.Amounts.Funding)
	}
	if res.Amounts.Acquisition != "" {
		t.Errorf("Amounts.Acquisition = %q, want empty for null", res.Amounts.Acquisition)
	}
	if res.Amounts.LayoffCount != "120" {
		t.Errorf("Amounts.LayoffCount = %q, want numeric coerced to string", res.Amounts.LayoffCount)
	}
}

func TestParseResponseFences(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{
			name: "json fence",
			raw:  "```json\n{\"entities\": [{\"name\": \"OpenAI\", \"type\": \"company\"}], \"relationships\": []}\n```",
		},
		{
			name: "bare fence",
			raw:  "```\n{\"entities\": [{\"name\": \"OpenAI\", \"type\": \"company\"}], \"relationships\": []}\n```",
		},
		{
			name: "prose around object",
			raw:  "Here is the extraction:\n{\"entities\": [{\"name\": \"OpenAI\", \"type\": \"company\"}], \"relationships\": []}\nLet me know if you need more.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ParseResponse(tt.raw, 0)
			if err != nil {
				t.Fatalf("ParseResponse: %v", err)
			}
			if len(res.Entities) != 1 || res.Entities[0].Name != "OpenAI" {
				t.Errorf("Entities = %+v, want single OpenAI", res.Entities)
			}
		})
	}
}

func TestParseResponseSchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "no JSON at all", raw: "I could not find any entities in this article."},
		{name: "empty response", raw: ""},
		{name: "malformed JSON", raw: `{"entities": [}`},
		{name: "fence without object", raw: "```json\nnothing here\n```"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseResponse(tt.raw, 0)
			if err == nil {
				t.Fatal("expected schema violation")
			}
			if !IsSchemaViolation(err) {
				t.Errorf("error %v is not a SchemaViolationError", err)
			}
			var sv *SchemaViolationError
			if !errors.As(err, &sv) || sv.Reason == "" {
				t.Errorf("schema violation carries no reason: %v", err)
			}
		})
	}
}

func TestParseResponseZeroRelationships(t *testing.T) {
	res, err := ParseResponse(`{"entities": [], "relationships": []}`, 0)
	if err != nil {
		t.Fatalf("empty extraction must parse cleanly: %v", err)
	}
	if len(res.Entities) != 0 || len(res.Relationships) != 0 {
		t.Errorf("want empty result, got %+v", res)
	}
}

func TestParseResponseDefaultConfidence(t *testing.T) {
	raw := `{
	  "entities": [
	    {"name": "Stripe", "type": "company"},
	    {"name": "Patrick Collison", "type": "person"}
	  ],
	  "relationships": [
	    {"subject": "Patrick Collison", "predicate": "CEO_OF", "object": "Stripe", "context": "co-founder and CEO"}
	  ]
	}`
	res, err := ParseResponse(raw, 0)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if len(res.Relationships) != 1 {
		t.Fatalf("Relationships = %d, want 1", len(res.Relationships))
	}
	if got := res.Relationships[0].Confidence; got != 0.8 {
		t.Errorf("Confidence = %v, want default 0.8", got)
	}
}

func TestParseResponseFuzzyDateKeptRaw(t *testing.T) {
	raw := `{"entities": [], "relationships": [], "event_date": "early last week"}`
	res, err := ParseResponse(raw, 0)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if res.EventDate != nil {
		t.Errorf("EventDate = %v, want nil for non-ISO input", res.EventDate)
	}
	if res.EventDateRaw != "early last week" {
		t.Errorf("EventDateRaw = %q, want raw phrase preserved", res.EventDateRaw)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("hello", 10); got != "hello" {
		t.Errorf("truncate short = %q", got)
	}
	if got := truncate("hello", 3); got != "hel" {
		t.Errorf("truncate = %q, want hel", got)
	}
	// Multibyte runes are never split.
	s := "日本語テキスト"
	for max := 1; max < len(s); max++ {
		got := truncate(s, max)
		if len(got) > max {
			t.Fatalf("truncate(%d) returned %d bytes", max, len(got))
		}
		for _, r := range got {
			if r == '�' {
				t.Fatalf("truncate(%d) split a rune: %q", max, got)
			}
		}
	}
}
