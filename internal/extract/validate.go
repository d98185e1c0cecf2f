package extract

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/untoldecay/TalentGraph/internal/names"
	"github.com/untoldecay/TalentGraph/internal/types"
)

// maxEntityNameLen is the graph-level cap on entity name length.
const maxEntityNameLen = 100

// invalidEntities are known false positives: news-source names, HTML
// artifacts, and boilerplate that extraction keeps mistaking for
// entities. Compared case-insensitively.
var invalidEntities = map[string]bool{
	"target": true, "blank": true, "href": true,
	"http": true, "https": true, "www": true,
	"reuters": true, "techcrunch": true, "bloomberg": true,
	"fortune": true, "the wall street journal": true,
	"cnbc": true, "yahoo finance": true,
	"employees": true, "investor": true, "investors": true,
	"series a": true, "series b": true, "series c": true,
	"series d": true, "series e": true,
	"seed": true, "seed round": true,
	"new tech": true, "ai startup": true,
	"cap table management": true, "nuclear fusion company": true,
	"fusion power company": true, "chief medical officer": true,
}

// Structural noise. Anchored at the start to match the shapes seen in
// scraped data: attribute fragments, aggregator URL artifacts, hashes.
var invalidNamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^[A-Z]{20,}$`),
	regexp.MustCompile(`^CBM[iI]`),
	regexp.MustCompile(`^\d+$`),
	regexp.MustCompile(`^[a-f0-9]{32,}$`),
	regexp.MustCompile(`^target=`),
	regexp.MustCompile(`^href=`),
	regexp.MustCompile(`^<[^>]+>`),
}

var hasLetterRe = regexp.MustCompile(`[a-zA-Z]`)

// genericAcquisitionTerms can never be an acquisition party on either side.
var genericAcquisitionTerms = map[string]bool{
	"company": true, "startup": true, "firm": true,
	"business": true, "corporation": true,
}

// ValidEntityName reports whether name passes the graph-level entity
// gate. It is a pure filter over the name string.
func ValidEntityName(name string) bool {
	ok, _ := ValidateEntity(name)
	return ok
}

// ValidateEntity checks an entity name and returns the rejection reason
// when it fails. The draft is never mutated.
func ValidateEntity(name string) (bool, string) {
	name = strings.TrimSpace(name)
	if len(name) < 2 {
		return false, "name too short"
	}
	if len(name) > maxEntityNameLen {
		return false, "name too long"
	}
	if invalidEntities[strings.ToLower(name)] {
		return false, "known non-entity term"
	}
	for _, re := range invalidNamePatterns {
		if re.MatchString(name) {
			return false, "structural noise"
		}
	}
	if !hasLetterRe.MatchString(name) {
		return false, "no alphabetic characters"
	}
	if strings.HasPrefix(name, "http://") || strings.HasPrefix(name, "https://") || strings.HasPrefix(name, "www.") {
		return false, "looks like a URL"
	}
	return true, ""
}

// ValidateRelationship checks a relationship draft before it is
// persisted, returning the rejection reason when it fails. Checks:
// endpoint validity, predicate vocabulary, self-reference under
// normalized comparison, and predicate-specific shape. The person-name
// shape check for hires and departures is a deliberate heuristic (a
// single lowercase token is not a person) and will pass some non-person
// subjects; it errs toward keeping data.
func ValidateRelationship(subject string, predicate types.Predicate, object string) (bool, string) {
	if ok, _ := ValidateEntity(subject); !ok {
		return false, fmt.Sprintf("invalid subject: %s", subject)
	}
	if ok, _ := ValidateEntity(object); !ok {
		return false, fmt.Sprintf("invalid object: %s", object)
	}
	if !types.ValidPredicate(predicate) {
		return false, fmt.Sprintf("unknown predicate: %s", predicate)
	}

	if sameEntity(subject, object) {
		if predicate == types.PredicateAcquired {
			return false, "self-acquisition"
		}
		return false, fmt.Sprintf("self-reference: %s", subject)
	}

	switch predicate {
	case types.PredicateAcquired:
		if genericAcquisitionTerms[strings.ToLower(subject)] || genericAcquisitionTerms[strings.ToLower(object)] {
			return false, fmt.Sprintf("generic acquisition party: %s -> %s", subject, object)
		}
	case types.PredicateHiredBy, types.PredicateDepartedFrom:
		if !plausiblePersonName(subject) {
			return false, fmt.Sprintf("subject does not look like a person name: %s", subject)
		}
	}

	return true, ""
}

// sameEntity compares endpoints under full name normalization, so
// "Google" and "Google Inc." count as the same party.
func sameEntity(a, b string) bool {
	na, nb := names.Normalize(a), names.Normalize(b)
	if na == "" || nb == "" {
		return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
	}
	return na == nb
}

// plausiblePersonName rejects only the clearly implausible shape: a
// single token that does not start with an uppercase letter.
func plausiblePersonName(name string) bool {
	fields := strings.Fields(name)
	if len(fields) != 1 {
		return true
	}
	r := []rune(fields[0])
	return len(r) > 0 && unicode.IsUpper(r[0])
}
