package names

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/untoldecay/TalentGraph/internal/types"
)

// orgIndicators are tokens whose presence anywhere in an uppercased name
// marks it as an organization rather than a person. Drawn from the legal
// forms that appear in regulatory filings.
var orgIndicators = []string{
	"LLC", "L.L.C.", "INC", "INC.", "CORP", "CORP.", "LTD", "LTD.",
	"L.P.", "LP", "LIMITED", "PARTNERS", "PARTNERSHIP", "FUND",
	"CAPITAL", "VENTURES", "MANAGEMENT", "ADVISORS", "HOLDINGS",
	"TRUST", "REIT", "GROUP", "COMPANY", "CO.", "SARL", "S.A.",
}

// investorIndicators mark organizations that act as investors when the
// declared type is ambiguous.
var investorIndicators = []string{
	"CAPITAL", "VENTURES", "PARTNERS", "FUND", "INVESTMENTS", "ANGELS",
}

// IsOrganization reports whether a name reads as an organization rather
// than a person.
func IsOrganization(name string) bool {
	if name == "" {
		return false
	}
	upper := strings.ToUpper(name)
	for _, ind := range orgIndicators {
		if strings.Contains(upper, ind) {
			return true
		}
	}
	if strings.HasPrefix(upper, "LLC ") || strings.HasPrefix(upper, "THE ") {
		return true
	}
	return false
}

// LooksLikePerson is the plausibility check used for hire and departure
// subjects. It is a heuristic, not authoritative: it only rejects names
// that clearly cannot be a person (single lowercase word, organizational
// suffix). A capitalized single word passes because mononyms and
// shortened bylines exist.
func LooksLikePerson(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	if IsOrganization(name) {
		return false
	}
	words := strings.Fields(name)
	if len(words) == 1 {
		first := []rune(words[0])[0]
		return unicode.IsUpper(first)
	}
	return true
}

// InferKind guesses an entity kind from the shape of its name: legal
// suffixes mean an organization, investor vocabulary narrows that to an
// investor, a multi-token capitalized name without organizational
// markers suggests a person. Anything else stays unknown so a later
// pass can retry with more context.
func InferKind(name string) types.EntityKind {
	if name == "" {
		return types.KindUnknown
	}
	if IsOrganization(name) {
		upper := strings.ToUpper(name)
		for _, ind := range investorIndicators {
			if strings.Contains(upper, ind) {
				return types.KindInvestor
			}
		}
		return types.KindCompany
	}

	words := strings.Fields(name)
	if len(words) >= 2 && len(words) <= 4 && allCapitalized(words) {
		return types.KindPerson
	}
	return types.KindUnknown
}

func allCapitalized(words []string) bool {
	for _, w := range words {
		r := []rune(w)[0]
		if !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}

// spvRe matches special-purpose-vehicle names shaped like
// "SpaceX Dec 2025 a Series of Witz Ventures LLC", capturing the leading
// underlying company name. The month/year block is optional.
var spvRe = regexp.MustCompile(`^([A-Za-z0-9\s]+?)(?:\s+(?:Dec|Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov)\s+\d{4})?\s+a\s+[Ss]eries\s+of`)

// SPVUnderlying extracts the underlying company from a
// special-purpose-vehicle name. The second return is false when the name
// does not match the SPV shape; callers must leave such names unresolved
// rather than guess.
func SPVUnderlying(name string) (string, bool) {
	m := spvRe.FindStringSubmatch(name)
	if m == nil {
		return "", false
	}
	underlying := strings.TrimSpace(m[1])
	if underlying == "" || Normalize(underlying) == Normalize(name) {
		return "", false
	}
	return underlying, true
}
