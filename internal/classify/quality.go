package classify

import (
	"regexp"
	"strings"
)

// Extraction-potential buckets.
const (
	PotentialHigh   = "high"
	PotentialMedium = "medium"
	PotentialLow    = "low"
)

var (
	amountRe  = regexp.MustCompile(`\$[\d,.]+\s*(million|billion|m|b)?`)
	companyRe = regexp.MustCompile(`(inc\.|corp\.|llc|ltd\.)`)
	dateRe    = regexp.MustCompile(`(january|february|march|april|may|june|july|august|september|october|november|december|\d{4})`)
)

var personIndicators = []string{
	"ceo", "cto", "cfo", "founder", "president", "partner", "executive", "chief",
}

// QualityScore describes how much structured signal an article carries
// before any model call is spent on it.
type QualityScore struct {
	Score        float64
	HasAmounts   bool
	HasPersons   bool
	HasCompanies bool
	HasDates     bool
	Potential    string
}

// EvaluateQuality scores extraction potential from four cheap signals:
// a dollar amount, a person-role word, a company suffix, and a date.
// Each present signal contributes 0.25; high needs three of the four.
func EvaluateQuality(title, content string) QualityScore {
	text := strings.ToLower(title + " " + content)

	q := QualityScore{
		HasAmounts:   amountRe.MatchString(text),
		HasCompanies: companyRe.MatchString(text),
		HasDates:     dateRe.MatchString(text),
	}
	for _, ind := range personIndicators {
		if strings.Contains(text, ind) {
			q.HasPersons = true
			break
		}
	}

	hits := 0
	for _, hit := range []bool{q.HasAmounts, q.HasPersons, q.HasCompanies, q.HasDates} {
		if hit {
			hits++
		}
	}
	q.Score = float64(hits) / 4

	switch {
	case q.Score >= 0.6:
		q.Potential = PotentialHigh
	case q.Score >= 0.3:
		q.Potential = PotentialMedium
	default:
		q.Potential = PotentialLow
	}
	return q
}
