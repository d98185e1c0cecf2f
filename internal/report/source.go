package report

import (
	"math"
	"net/url"
	"strings"
)

// SourceQuality grades one publication: a display name, a credibility
// tier where 1 is strongest, and the confidence a claim from this
// source starts at.
type SourceQuality struct {
	Name           string  `json:"name"`
	Tier           int     `json:"tier"`
	BaseConfidence float64 `json:"base_confidence"`
}

// sourceTiers maps publication domains to their standing. Tier 1 is
// primary evidence (wire services, regulators, funding databases),
// tier 2 the reputable tech and business press, tier 3 press releases
// and aggregators.
var sourceTiers = map[string]SourceQuality{
	"bloomberg.com":       {Name: "Bloomberg", Tier: 1, BaseConfidence: 0.95},
	"wsj.com":             {Name: "Wall Street Journal", Tier: 1, BaseConfidence: 0.95},
	"reuters.com":         {Name: "Reuters", Tier: 1, BaseConfidence: 0.95},
	"sec.gov":             {Name: "SEC EDGAR", Tier: 1, BaseConfidence: 1.0},
	"crunchbase.com":      {Name: "Crunchbase", Tier: 1, BaseConfidence: 0.90},
	"news.crunchbase.com": {Name: "Crunchbase News", Tier: 1, BaseConfidence: 0.90},

	"techcrunch.com":  {Name: "TechCrunch", Tier: 2, BaseConfidence: 0.85},
	"geekwire.com":    {Name: "GeekWire", Tier: 2, BaseConfidence: 0.85},
	"venturebeat.com": {Name: "VentureBeat", Tier: 2, BaseConfidence: 0.85},
	"axios.com":       {Name: "Axios", Tier: 2, BaseConfidence: 0.85},
	"fortune.com":     {Name: "Fortune", Tier: 2, BaseConfidence: 0.85},
	"techmeme.com":    {Name: "Techmeme", Tier: 2, BaseConfidence: 0.80},
	"theverge.com":    {Name: "The Verge", Tier: 2, BaseConfidence: 0.80},
	"wired.com":       {Name: "Wired", Tier: 2, BaseConfidence: 0.80},
	"forbes.com":      {Name: "Forbes", Tier: 2, BaseConfidence: 0.80},

	"prnewswire.com":       {Name: "PR Newswire", Tier: 3, BaseConfidence: 0.70},
	"businesswire.com":     {Name: "Business Wire", Tier: 3, BaseConfidence: 0.70},
	"siliconangle.com":     {Name: "SiliconANGLE", Tier: 3, BaseConfidence: 0.75},
	"inc.com":              {Name: "Inc", Tier: 3, BaseConfidence: 0.75},
	"fastcompany.com":      {Name: "Fast Company", Tier: 3, BaseConfidence: 0.75},
	"arstechnica.com":      {Name: "Ars Technica", Tier: 3, BaseConfidence: 0.75},
	"news.ycombinator.com": {Name: "Hacker News", Tier: 3, BaseConfidence: 0.60},
}

// unknownSource grades every domain outside the table.
var unknownSource = SourceQuality{Name: "Unknown", Tier: 3, BaseConfidence: 0.50}

// QualityFor grades the publication behind a source URL. Subdomains
// inherit their parent's grade unless listed themselves; an unparseable
// URL or an unlisted domain gets the unknown grade.
func QualityFor(rawURL string) SourceQuality {
	domain := domainOf(rawURL)
	if domain == "" {
		return unknownSource
	}
	if q, ok := sourceTiers[domain]; ok {
		return q
	}

	// Longest suffix wins, so a listed subdomain beats its parent.
	best := unknownSource
	bestLen := 0
	for d, q := range sourceTiers {
		if strings.HasSuffix(domain, "."+d) && len(d) > bestLen {
			best, bestLen = q, len(d)
		}
	}
	return best
}

func domainOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// WeightedConfidence discounts a claim's stated confidence by the
// standing of the source asserting it, rounded to two decimals. A zero
// stated confidence falls back to 0.8.
func WeightedConfidence(confidence float64, sourceURL string) float64 {
	if confidence == 0 {
		confidence = 0.8
	}
	return math.Round(confidence*QualityFor(sourceURL).BaseConfidence*100) / 100
}

// Corroboration summarizes how well sourced a single entity or claim is
// across the distinct URLs that assert it.
type Corroboration struct {
	Confidence float64 `json:"confidence"`
	Sources    int     `json:"sources"`
	Tier1      int     `json:"tier1"`
	Tier2      int     `json:"tier2"`
	Tier3      int     `json:"tier3"`
}

// Corroborate folds distinct source URLs into one confidence estimate.
// The floor is the best single source; each extra source adds a small
// bonus and first-tier sources a larger one, capped at certainty. No
// sources at all means an uncorroborated 0.5.
func Corroborate(sourceURLs []string) Corroboration {
	if len(sourceURLs) == 0 {
		return Corroboration{Confidence: 0.5}
	}

	c := Corroboration{Sources: len(sourceURLs)}
	base := 0.0
	for _, u := range sourceURLs {
		q := QualityFor(u)
		if q.BaseConfidence > base {
			base = q.BaseConfidence
		}
		switch q.Tier {
		case 1:
			c.Tier1++
		case 2:
			c.Tier2++
		default:
			c.Tier3++
		}
	}

	bonus := math.Min(0.15, float64(c.Sources)*0.03)
	tierBonus := math.Min(0.10, float64(c.Tier1)*0.05)
	c.Confidence = math.Min(1.0, base+bonus+tierBonus)
	return c
}
