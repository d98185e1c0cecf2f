// Package names holds the string-level entity name machinery shared by
// the storage, extraction, resolution, and cross-referencing layers:
// normalization, fuzzy comparison, organization/person shape detection,
// and the special-purpose-vehicle name rule.
package names

import (
	"regexp"
	"strings"
)

// companySuffixes are organizational suffixes folded away during
// normalization, longest variants first so "Corporation" wins over "Corp".
var companySuffixes = []string{
	" incorporated", " corporation", " technologies", " technology",
	" holdings", " systems", " company", " limited", " group",
	" inc.", " inc", " corp.", " corp", " llc", " ltd.", " ltd",
	" co.", " co", " plc", " llp", " lp",
}

// noisePrefixes are placeholder tokens seen at the start of names in
// regulatory filings and scraped text.
var noisePrefixes = []string{
	"n/a ", "--- ", "-- ", "- ", "[none] ", ". ",
}

// knownAliases maps well-known alternate surface forms (after suffix
// folding) to the normalized canonical name. Checked before fuzzy
// comparison so the common cases never depend on a similarity threshold.
var knownAliases = map[string]string{
	"meta platforms":      "meta",
	"facebook":            "meta",
	"alphabet":            "google",
	"amazoncom":           "amazon",
	"amazon web services": "amazon",
	"aws":                 "amazon",
	"msft":                "microsoft",
	"apple computer":      "apple",
	"open ai":             "openai",
	"anthropic ai":        "anthropic",
}

var (
	nonWordRe    = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Normalize folds an entity name to its comparison form: lowercase,
// noise prefixes and organizational suffixes stripped, punctuation
// removed, whitespace collapsed. Normalize is idempotent.
func Normalize(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))

	for _, p := range noisePrefixes {
		if strings.HasPrefix(n, p) {
			n = strings.TrimSpace(strings.TrimPrefix(n, p))
		}
	}
	// Stacked suffixes fold in turn: "acme holdings inc." loses " inc."
	// and then " holdings".
	for stripped := true; stripped; {
		stripped = false
		for _, s := range companySuffixes {
			if strings.HasSuffix(n, s) {
				n = strings.TrimSpace(strings.TrimSuffix(n, s))
				stripped = true
			}
		}
	}

	n = nonWordRe.ReplaceAllString(n, "")
	n = whitespaceRe.ReplaceAllString(n, " ")
	n = strings.TrimSpace(n)

	if canonical, ok := knownAliases[n]; ok {
		return canonical
	}
	return n
}

// CleanDisplayName tidies a raw name for storage as the display form
// without folding case: noise prefixes dropped, a leading legal-form
// token moved to the end ("LLC Acme" becomes "Acme LLC"), whitespace
// collapsed.
func CleanDisplayName(name string) string {
	n := strings.TrimSpace(name)

	lower := strings.ToLower(n)
	for _, p := range noisePrefixes {
		if strings.HasPrefix(lower, p) {
			n = strings.TrimSpace(n[len(p):])
			lower = strings.ToLower(n)
		}
	}

	if rest, ok := strings.CutPrefix(n, "LLC "); ok {
		n = rest + " LLC"
	}

	return strings.TrimSpace(whitespaceRe.ReplaceAllString(n, " "))
}
