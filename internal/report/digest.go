package report

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/untoldecay/TalentGraph/internal/names"
	"github.com/untoldecay/TalentGraph/internal/types"
	"github.com/untoldecay/TalentGraph/internal/xref"
)

// defaultLookback is the digest window when the caller gives no start.
const defaultLookback = 7 * 24 * time.Hour

// Section caps. Queries overfetch so deduplication can still fill a
// section.
const (
	fundingLimit     = 15
	acquisitionLimit = 10
	layoffLimit      = 15
	moveLimit        = 10
	candidateLimit   = 10

	overfetch = 3

	// titleFactLimit bounds the per-person role lookup for candidates.
	titleFactLimit = 10
)

// Digest is one generated intelligence briefing over a time window.
type Digest struct {
	Title       string    `json:"title"`
	GeneratedAt time.Time `json:"generated_at"`
	Since       time.Time `json:"since"`
	Summary     string    `json:"summary"`

	Funding      []FundingItem     `json:"funding,omitempty"`
	Acquisitions []AcquisitionItem `json:"acquisitions,omitempty"`
	Layoffs      []LayoffItem      `json:"layoffs,omitempty"`
	Moves        []MoveItem        `json:"moves,omitempty"`
	Candidates   []CandidateItem   `json:"candidates,omitempty"`

	Entities      int `json:"entities"`
	Relationships int `json:"relationships"`
}

// FundingItem is one company's raise. Source is "SEC" when a filing
// backs the claim and "News" when only press coverage does.
type FundingItem struct {
	Company    string     `json:"company"`
	Investor   string     `json:"investor,omitempty"`
	Amount     *float64   `json:"amount,omitempty"`
	Date       *time.Time `json:"date,omitempty"`
	Source     string     `json:"source"`
	Confidence float64    `json:"confidence"`
}

// AcquisitionItem is one acquirer-target pair.
type AcquisitionItem struct {
	Acquirer   string     `json:"acquirer"`
	Target     string     `json:"target"`
	Date       *time.Time `json:"date,omitempty"`
	Confidence float64    `json:"confidence"`
}

// LayoffItem is one company's cut. Employees is zero when the coverage
// names no count.
type LayoffItem struct {
	Company   string     `json:"company"`
	Employees int        `json:"employees,omitempty"`
	Date      *time.Time `json:"date,omitempty"`
}

// MoveItem is one executive joining or leaving a company.
type MoveItem struct {
	Person  string `json:"person"`
	Action  string `json:"action"`
	Company string `json:"company"`
}

// CandidateItem is a recently departed executive, scored higher when
// the graph knows a leadership title for them.
type CandidateItem struct {
	Name            string `json:"name"`
	Title           string `json:"title"`
	PreviousCompany string `json:"previous_company"`
	Score           int    `json:"score"`
}

const (
	actionJoined = "joined"
	actionLeft   = "left"
)

// candidateTitles maps leadership predicates to the title shown for a
// departed candidate.
var candidateTitles = map[types.Predicate]string{
	types.PredicateCEOOf:   "CEO",
	types.PredicateCTOOf:   "CTO",
	types.PredicateCFOOf:   "CFO",
	types.PredicateFounded: "Founder",
}

var layoffCountRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\d+(?:,\d{3})*)\s*(?:employees|people|workers|staff)`),
	regexp.MustCompile(`(?i)laid off\s+(\d+(?:,\d{3})*)`),
}

// Digest builds a briefing covering facts dated since the given time. A
// zero since means the default lookback from now.
func (g *Generator) Digest(ctx context.Context, since time.Time) (*Digest, error) {
	now := g.now()
	if since.IsZero() {
		since = now.Add(-defaultLookback)
	}

	d := &Digest{
		Title:       "TalentGraph Digest - " + now.Format("January 2, 2006"),
		GeneratedAt: now,
		Since:       since,
	}

	var err error
	if d.Funding, err = g.funding(ctx, since); err != nil {
		return nil, err
	}
	if d.Acquisitions, err = g.acquisitions(ctx, since); err != nil {
		return nil, err
	}
	if d.Layoffs, err = g.layoffs(ctx, since); err != nil {
		return nil, err
	}
	if d.Moves, err = g.moves(ctx, since); err != nil {
		return nil, err
	}
	if d.Candidates, err = g.candidates(ctx, since); err != nil {
		return nil, err
	}

	stats, err := g.store.GraphStats(ctx)
	if err != nil {
		return nil, err
	}
	d.Entities = stats.Entities
	d.Relationships = stats.Relationships
	d.Summary = d.summaryLine()

	g.log.Info("digest generated",
		"since", since.Format("2006-01-02"),
		"funding", len(d.Funding),
		"acquisitions", len(d.Acquisitions),
		"layoffs", len(d.Layoffs),
		"moves", len(d.Moves),
		"candidates", len(d.Candidates))
	return d, nil
}

func (g *Generator) funding(ctx context.Context, since time.Time) ([]FundingItem, error) {
	facts, err := g.facts(ctx, types.PredicateFundedBy, since, fundingLimit*overfetch)
	if err != nil {
		return nil, err
	}

	items := make([]FundingItem, 0, fundingLimit)
	seen := map[string]bool{}
	for _, fact := range facts {
		key := names.Normalize(fact.Subject)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		item := FundingItem{
			Company:    fact.Subject,
			Investor:   fact.Object,
			Date:       fact.EventDate,
			Source:     fundingSource(fact),
			Confidence: WeightedConfidence(fact.Confidence, fact.SourceURL),
		}
		if v, ok := xref.ParseMoney(fact.Context); ok {
			item.Amount = &v
		}
		items = append(items, item)
		if len(items) >= fundingLimit {
			break
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return dateAfter(items[i].Date, items[j].Date)
	})
	return items, nil
}

// fundingSource labels a funding fact's provenance. A fact linked to an
// event was corroborated by a filing during cross-referencing; a fact
// whose own source kind is a filing is regulatory to begin with.
func fundingSource(fact *types.Fact) string {
	if fact.SourceKind == types.SourceFiling || fact.EventID != nil {
		return "SEC"
	}
	return "News"
}

func (g *Generator) acquisitions(ctx context.Context, since time.Time) ([]AcquisitionItem, error) {
	facts, err := g.facts(ctx, types.PredicateAcquired, since, acquisitionLimit*overfetch)
	if err != nil {
		return nil, err
	}

	type pair struct{ acquirer, target string }
	items := make([]AcquisitionItem, 0, acquisitionLimit)
	seen := map[pair]bool{}
	for _, fact := range facts {
		key := pair{names.Normalize(fact.Subject), names.Normalize(fact.Object)}
		if seen[key] {
			continue
		}
		seen[key] = true

		items = append(items, AcquisitionItem{
			Acquirer:   fact.Subject,
			Target:     fact.Object,
			Date:       fact.EventDate,
			Confidence: WeightedConfidence(fact.Confidence, fact.SourceURL),
		})
		if len(items) >= acquisitionLimit {
			break
		}
	}
	return items, nil
}

func (g *Generator) layoffs(ctx context.Context, since time.Time) ([]LayoffItem, error) {
	facts, err := g.facts(ctx, types.PredicateLaidOff, since, layoffLimit*overfetch)
	if err != nil {
		return nil, err
	}

	items := make([]LayoffItem, 0, layoffLimit)
	seen := map[string]bool{}
	for _, fact := range facts {
		key := names.Normalize(fact.Subject)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		items = append(items, LayoffItem{
			Company:   fact.Subject,
			Employees: extractLayoffCount(fact.Context),
			Date:      fact.EventDate,
		})
		if len(items) >= layoffLimit {
			break
		}
	}
	return items, nil
}

func (g *Generator) moves(ctx context.Context, since time.Time) ([]MoveItem, error) {
	type moveKey struct{ person, action, company string }
	items := make([]MoveItem, 0, moveLimit)
	seen := map[moveKey]bool{}

	add := func(facts []*types.Fact, action string) {
		for _, fact := range facts {
			key := moveKey{lowered(fact.Subject), action, lowered(fact.Object)}
			if seen[key] {
				continue
			}
			seen[key] = true
			items = append(items, MoveItem{
				Person:  fact.Subject,
				Action:  action,
				Company: fact.Object,
			})
		}
	}

	departures, err := g.facts(ctx, types.PredicateDepartedFrom, since, moveLimit*overfetch)
	if err != nil {
		return nil, err
	}
	add(departures, actionLeft)

	hires, err := g.facts(ctx, types.PredicateHiredBy, since, moveLimit*overfetch)
	if err != nil {
		return nil, err
	}
	add(hires, actionJoined)

	if len(items) > moveLimit {
		items = items[:moveLimit]
	}
	return items, nil
}

func (g *Generator) candidates(ctx context.Context, since time.Time) ([]CandidateItem, error) {
	departures, err := g.facts(ctx, types.PredicateDepartedFrom, since, candidateLimit*overfetch)
	if err != nil {
		return nil, err
	}

	items := make([]CandidateItem, 0, candidateLimit)
	seen := map[string]bool{}
	for _, fact := range departures {
		key := lowered(fact.Subject)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		title, err := g.candidateTitle(ctx, fact.Subject)
		if err != nil {
			return nil, err
		}
		item := CandidateItem{
			Name:            fact.Subject,
			Title:           title,
			PreviousCompany: fact.Object,
			Score:           70,
		}
		if title == "" {
			item.Title = "Executive"
		} else {
			item.Score = 90
		}
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Score > items[j].Score
	})
	if len(items) > candidateLimit {
		items = items[:candidateLimit]
	}
	return items, nil
}

// candidateTitle finds a leadership title the graph holds for a person,
// from any date. An empty string means none is known.
func (g *Generator) candidateTitle(ctx context.Context, person string) (string, error) {
	roles, err := g.store.QueryFacts(ctx, types.FactFilter{
		EntityName: person,
		Limit:      titleFactLimit,
	})
	if err != nil {
		return "", err
	}
	for _, role := range roles {
		if role.Subject != person {
			continue
		}
		if title, ok := candidateTitles[role.Predicate]; ok {
			return title, nil
		}
	}
	return "", nil
}

func extractLayoffCount(context string) int {
	for _, re := range layoffCountRes {
		m := re.FindStringSubmatch(context)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
		if err == nil && n > 0 {
			return n
		}
	}
	return 0
}

func (d *Digest) summaryLine() string {
	var parts []string
	add := func(n int, singular, plural string) {
		if n == 0 {
			return
		}
		label := plural
		if n == 1 {
			label = singular
		}
		parts = append(parts, fmt.Sprintf("%d %s", n, label))
	}
	add(len(d.Funding), "funding round", "funding rounds")
	add(len(d.Acquisitions), "acquisition", "acquisitions")
	add(len(d.Layoffs), "layoff", "layoffs")
	add(len(d.Moves), "executive move", "executive moves")
	add(len(d.Candidates), "available candidate", "available candidates")

	if len(parts) == 0 {
		return "No significant events this period."
	}
	return "This period: " + strings.Join(parts, ", ") + "."
}

// Markdown renders the digest for terminals and email bodies.
func (d *Digest) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", d.Title)
	fmt.Fprintf(&b, "**%s**\n\n", d.Summary)
	b.WriteString("---\n\n")

	if len(d.Funding) > 0 {
		b.WriteString("## Funding Rounds\n\n")
		for _, item := range d.Funding {
			fmt.Fprintf(&b, "- **%s**", item.Company)
			if item.Amount != nil {
				fmt.Fprintf(&b, " raised %s", xref.FormatMoney(*item.Amount))
			}
			if item.Investor != "" {
				fmt.Fprintf(&b, " from %s", item.Investor)
			}
			fmt.Fprintf(&b, " [%s]\n", item.Source)
		}
		b.WriteString("\n")
	}

	if len(d.Acquisitions) > 0 {
		b.WriteString("## M&A Activity\n\n")
		for _, item := range d.Acquisitions {
			fmt.Fprintf(&b, "- **%s** acquired **%s**\n", item.Acquirer, item.Target)
		}
		b.WriteString("\n")
	}

	if len(d.Layoffs) > 0 {
		b.WriteString("## Layoffs (Displaced Talent)\n\n")
		for _, item := range d.Layoffs {
			fmt.Fprintf(&b, "- **%s**", item.Company)
			if item.Employees > 0 {
				fmt.Fprintf(&b, " laid off %d employees", item.Employees)
			}
			b.WriteString(" [Layoff]\n")
		}
		b.WriteString("\n")
	}

	if len(d.Moves) > 0 {
		b.WriteString("## Executive Moves\n\n")
		for _, item := range d.Moves {
			fmt.Fprintf(&b, "- **%s** %s %s\n", item.Person, item.Action, item.Company)
		}
		b.WriteString("\n")
	}

	if len(d.Candidates) > 0 {
		b.WriteString("## Available Talent\n\n")
		for _, item := range d.Candidates {
			fmt.Fprintf(&b, "- **%s** (%s) - left %s [Available]\n",
				item.Name, item.Title, item.PreviousCompany)
		}
		b.WriteString("\n")
	}

	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "*Entities: %d | Relationships: %d*\n", d.Entities, d.Relationships)
	return b.String()
}

// dateAfter orders dated items newest first and undated items last.
func dateAfter(a, b *time.Time) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	return a.After(*b)
}

func lowered(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
