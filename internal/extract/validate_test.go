package extract

import (
	"strings"
	"testing"

	"github.com/untoldecay/TalentGraph/internal/types"
)

func TestValidEntityName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{name: "real company", input: "OpenAI", want: true},
		{name: "real person", input: "Sam Altman", want: true},
		{name: "news source", input: "Reuters", want: false},
		{name: "news source case-insensitive", input: "reuters", want: false},
		{name: "html artifact", input: "target", want: false},
		{name: "html attribute", input: "target=_blank", want: false},
		{name: "href attribute", input: "href=https://x.com", want: false},
		{name: "html tag", input: "<div class=story>", want: false},
		{name: "round name", input: "Series B", want: false},
		{name: "boilerplate", input: "investors", want: false},
		{name: "empty", input: "", want: false},
		{name: "single char", input: "X", want: false},
		{name: "pure numerals", input: "20240315", want: false},
		{name: "hash token", input: "d41d8cd98f00b204e9800998ecf8427e", want: false},
		{name: "all caps run", input: "ABCDEFGHIJKLMNOPQRSTU", want: false},
		{name: "aggregator artifact", input: "CBMiXmh0dHBz", want: false},
		{name: "no letters", input: "$$$ 123", want: false},
		{name: "url", input: "https://techcrunch.com/story", want: false},
		{name: "www prefix", input: "www.example.com", want: false},
		{name: "two-letter company", input: "EY", want: true},
		{name: "name with ampersand", input: "Bain & Company", want: true},
		{name: "too long", input: strings.Repeat("long name ", 11), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidEntityName(tt.input); got != tt.want {
				_, reason := ValidateEntity(tt.input)
				t.Errorf("ValidEntityName(%q) = %v, want %v (reason %q)", tt.input, got, tt.want, reason)
			}
		})
	}
}

func TestValidateRelationship(t *testing.T) {
	tests := []struct {
		name       string
		subject    string
		predicate  types.Predicate
		object     string
		want       bool
		wantReason string
	}{
		{
			name:      "valid acquisition",
			subject:   "Microsoft",
			predicate: types.PredicateAcquired,
			object:    "Activision",
			want:      true,
		},
		{
			name:       "self acquisition",
			subject:    "Google",
			predicate:  types.PredicateAcquired,
			object:     "Google",
			want:       false,
			wantReason: "self-acquisition",
		},
		{
			name:       "self acquisition through suffix",
			subject:    "Google Inc.",
			predicate:  types.PredicateAcquired,
			object:     "Google",
			want:       false,
			wantReason: "self-acquisition",
		},
		{
			name:       "self reference non-acquisition",
			subject:    "Stripe",
			predicate:  types.PredicateFundedBy,
			object:     "Stripe",
			want:       false,
			wantReason: "self-reference: Stripe",
		},
		{
			name:      "generic acquisition object",
			subject:   "Microsoft",
			predicate: types.PredicateAcquired,
			object:    "startup",
			want:      false,
		},
		{
			name:      "generic acquisition subject",
			subject:   "company",
			predicate: types.PredicateAcquired,
			object:    "Figma",
			want:      false,
		},
		{
			name:      "hire subject lowercase token",
			subject:   "somebody",
			predicate: types.PredicateHiredBy,
			object:    "Stripe",
			want:      false,
		},
		{
			name:      "hire subject single capitalized token allowed",
			subject:   "Madonna",
			predicate: types.PredicateHiredBy,
			object:    "Stripe",
			want:      true,
		},
		{
			name:      "departure full name",
			subject:   "Sam Altman",
			predicate: types.PredicateDepartedFrom,
			object:    "OpenAI",
			want:      true,
		},
		{
			name:      "invalid subject",
			subject:   "Reuters",
			predicate: types.PredicateAcquired,
			object:    "Activision",
			want:      false,
		},
		{
			name:      "invalid object",
			subject:   "Microsoft",
			predicate: types.PredicateAcquired,
			object:    "<a href=x>",
			want:      false,
		},
		{
			name:      "unknown predicate",
			subject:   "Microsoft",
			predicate: types.Predicate("PARTNERED_WITH"),
			object:    "OpenAI",
			want:      false,
		},
		{
			name:      "funding valid",
			subject:   "Stripe",
			predicate: types.PredicateFundedBy,
			object:    "Sequoia Capital",
			want:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := ValidateRelationship(tt.subject, tt.predicate, tt.object)
			if got != tt.want {
				t.Errorf("ValidateRelationship(%q, %s, %q) = %v, want %v (reason %q)",
					tt.subject, tt.predicate, tt.object, got, tt.want, reason)
			}
			if tt.wantReason != "" && reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", reason, tt.wantReason)
			}
			if !got && reason == "" {
				t.Error("rejection must carry a reason")
			}
		})
	}
}

func TestValidateEntityReasons(t *testing.T) {
	if _, reason := ValidateEntity("Reuters"); reason != "known non-entity term" {
		t.Errorf("reason = %q, want known non-entity term", reason)
	}
	if _, reason := ValidateEntity("12345"); reason != "structural noise" {
		t.Errorf("reason = %q, want structural noise", reason)
	}
	if ok, reason := ValidateEntity("OpenAI"); !ok || reason != "" {
		t.Errorf("ValidateEntity(OpenAI) = %v, %q; want true with empty reason", ok, reason)
	}
}
