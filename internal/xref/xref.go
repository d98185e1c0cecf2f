// Package xref reconciles news-derived funding facts against regulatory
// filings. A corroborated news relationship has its confidence raised and
// gains a link to the filing-derived event; the two provenance rows stay
// distinct. Absence of corroboration never lowers confidence, and a pass
// only touches rows it links, so it can run alongside ingestion.
package xref

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/untoldecay/TalentGraph/internal/names"
	"github.com/untoldecay/TalentGraph/internal/storage"
	"github.com/untoldecay/TalentGraph/internal/types"
)

const (
	// DefaultNameThreshold is the fuzzy similarity a news company name
	// must reach against a filing's company name.
	DefaultNameThreshold = 0.85

	// DefaultDateWindow is how far apart a news fact and a filing may
	// be dated and still describe the same round.
	DefaultDateWindow = 30 * 24 * time.Hour

	// DefaultAmountTolerance is the allowed relative difference between
	// declared amounts when both sides carry one.
	DefaultAmountTolerance = 0.20
)

// defaultLookback bounds the filing side of a pass when no news fact
// reaches further back.
const defaultLookback = 90 * 24 * time.Hour

const defaultBatch = 500

// enrichmentSource tags enrichment rows written from filing detail.
const enrichmentSource = "form_d"

// Match records one reconciliation between a news funding fact and a
// regulatory filing.
type Match struct {
	RelationshipID int64   `json:"relationship_id"`
	Company        string  `json:"company"`
	Investor       string  `json:"investor,omitempty"`
	FilingID       int64   `json:"filing_id"`
	AccessionNo    string  `json:"accession_no"`
	FilingCompany  string  `json:"filing_company"`
	NameSimilarity float64 `json:"name_similarity"`
	DateDiffDays   int     `json:"date_diff_days"`
	AmountMatch    bool    `json:"amount_match"`
	Score          float64 `json:"score"`
	Confidence     float64 `json:"confidence"`
	EventID        int64   `json:"event_id"`
}

// FilingSummary identifies a filing no news coverage corroborates yet.
type FilingSummary struct {
	FilingID    int64     `json:"filing_id"`
	AccessionNo string    `json:"accession_no"`
	Company     string    `json:"company"`
	FiledAt     time.Time `json:"filed_at"`
	Amount      *float64  `json:"amount,omitempty"`
}

// FactSummary identifies a news fact no filing corroborates yet.
type FactSummary struct {
	RelationshipID int64     `json:"relationship_id"`
	Company        string    `json:"company"`
	Investor       string    `json:"investor,omitempty"`
	Date           time.Time `json:"date"`
	Confidence     float64   `json:"confidence"`
}

// Report is the outcome of one cross-referencing pass.
type Report struct {
	NewsFacts        int             `json:"news_facts"`
	Filings          int             `json:"filings"`
	Matches          []Match         `json:"matches,omitempty"`
	UnmatchedFilings []FilingSummary `json:"unmatched_filings,omitempty"`
	UnverifiedNews   []FactSummary   `json:"unverified_news,omitempty"`
}

// CrossReferencer matches uncorroborated news funding facts to filings.
type CrossReferencer struct {
	store         storage.Store
	nameThreshold float64
	window        time.Duration
	tolerance     float64
	lookback      time.Duration
	batch         int
	log           *slog.Logger
}

// Option configures a CrossReferencer.
type Option func(*CrossReferencer)

// WithNameThreshold overrides the fuzzy name similarity threshold.
func WithNameThreshold(threshold float64) Option {
	return func(c *CrossReferencer) {
		if threshold > 0 {
			c.nameThreshold = threshold
		}
	}
}

// WithDateWindow overrides the date proximity window.
func WithDateWindow(window time.Duration) Option {
	return func(c *CrossReferencer) {
		if window > 0 {
			c.window = window
		}
	}
}

// WithAmountTolerance overrides the relative amount tolerance.
func WithAmountTolerance(tolerance float64) Option {
	return func(c *CrossReferencer) {
		if tolerance > 0 {
			c.tolerance = tolerance
		}
	}
}

// WithLookback overrides how far back the filing side reaches.
func WithLookback(lookback time.Duration) Option {
	return func(c *CrossReferencer) {
		if lookback > 0 {
			c.lookback = lookback
		}
	}
}

// WithBatchSize bounds how many facts and filings one pass loads.
func WithBatchSize(n int) Option {
	return func(c *CrossReferencer) {
		if n > 0 {
			c.batch = n
		}
	}
}

// WithLogger routes match decisions to a structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *CrossReferencer) {
		if log != nil {
			c.log = log
		}
	}
}

// New returns a CrossReferencer over the given store.
func New(store storage.Store, opts ...Option) *CrossReferencer {
	c := &CrossReferencer{
		store:         store,
		nameThreshold: DefaultNameThreshold,
		window:        DefaultDateWindow,
		tolerance:     DefaultAmountTolerance,
		lookback:      defaultLookback,
		batch:         defaultBatch,
		log:           slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// newsSide is one uncorroborated news fact prepared for matching: its
// canonical company, reference date, best-known amount, and any nearby
// news-born event.
type newsSide struct {
	fact    *types.Fact
	company *types.Entity
	date    time.Time
	amount  *float64
	event   *types.EventRecord
}

// candidate is a filing that survived all match criteria against one
// news fact.
type candidate struct {
	filing       *types.Filing
	amount       *float64
	nameSim      float64
	dateDiff     time.Duration
	corroborated bool
	score        float64
	confidence   float64
}

// Run executes one cross-referencing pass. The work set is every news
// funding fact not yet linked to an event, so facts linked by a prior
// pass are skipped and re-running is a no-op.
func (c *CrossReferencer) Run(ctx context.Context) (*Report, error) {
	report := &Report{}

	facts, err := c.store.NewsFundingFacts(ctx, c.batch)
	if err != nil {
		return report, err
	}
	report.NewsFacts = len(facts)

	sides := make([]newsSide, 0, len(facts))
	for _, fact := range facts {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		side, err := c.prepare(ctx, fact)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				c.log.Warn("news fact references missing entity",
					"relationship", fact.ID, "company", fact.Subject)
				continue
			}
			return report, err
		}
		sides = append(sides, side)
	}

	filings, err := c.store.RecentFilings(ctx, c.filingsSince(sides, time.Now()), c.batch)
	if err != nil {
		return report, err
	}
	report.Filings = len(filings)

	matched := make(map[int64]bool, len(filings))
	for i := range sides {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		side := &sides[i]

		best, ok := c.bestMatch(side, filings)
		if !ok {
			report.UnverifiedNews = append(report.UnverifiedNews, FactSummary{
				RelationshipID: side.fact.ID,
				Company:        side.fact.Subject,
				Investor:       side.fact.Object,
				Date:           side.date,
				Confidence:     side.fact.Confidence,
			})
			continue
		}

		eventID, err := c.link(ctx, side, best)
		if err != nil {
			return report, err
		}
		matched[best.filing.ID] = true
		report.Matches = append(report.Matches, Match{
			RelationshipID: side.fact.ID,
			Company:        side.fact.Subject,
			Investor:       side.fact.Object,
			FilingID:       best.filing.ID,
			AccessionNo:    best.filing.AccessionNo,
			FilingCompany:  best.filing.CompanyName,
			NameSimilarity: best.nameSim,
			DateDiffDays:   int(best.dateDiff / (24 * time.Hour)),
			AmountMatch:    best.corroborated,
			Score:          best.score,
			Confidence:     best.confidence,
			EventID:        eventID,
		})
		c.log.Info("news fact corroborated by filing",
			"company", side.fact.Subject,
			"filing", best.filing.AccessionNo,
			"similarity", fmt.Sprintf("%.2f", best.nameSim),
			"confidence", fmt.Sprintf("%.2f", best.confidence))
	}

	for _, f := range filings {
		if matched[f.ID] {
			continue
		}
		report.UnmatchedFilings = append(report.UnmatchedFilings, FilingSummary{
			FilingID:    f.ID,
			AccessionNo: f.AccessionNo,
			Company:     f.CompanyName,
			FiledAt:     f.FiledAt,
			Amount:      filingAmount(f),
		})
	}

	c.log.Info("cross-reference pass complete",
		"news_facts", report.NewsFacts,
		"filings", report.Filings,
		"matches", len(report.Matches))
	return report, nil
}

// prepare resolves a fact's company to its canonical entity and settles
// the news side's reference date and amount. The amount comes from a
// nearby news-born event when one exists, else from the fact's own
// evidence text.
func (c *CrossReferencer) prepare(ctx context.Context, fact *types.Fact) (newsSide, error) {
	company, err := c.store.ResolveCanonical(ctx, fact.SubjectID)
	if err != nil {
		return newsSide{}, err
	}

	date := fact.CreatedAt
	if fact.EventDate != nil {
		date = *fact.EventDate
	}

	side := newsSide{fact: fact, company: company, date: date}

	event, err := c.store.FindEvent(ctx, company.ID, types.EventFunding, &date, c.window)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return newsSide{}, err
	}
	side.event = event

	if event != nil && event.Amount != nil {
		side.amount = event.Amount
	} else if v, ok := ParseMoney(fact.Context); ok {
		side.amount = &v
	}
	return side, nil
}

// filingsSince picks the filing-side cutoff: the configured lookback,
// stretched when an old news fact needs filings from before it.
func (c *CrossReferencer) filingsSince(sides []newsSide, now time.Time) time.Time {
	since := now.Add(-c.lookback)
	for i := range sides {
		if s := sides[i].date.Add(-c.window); s.Before(since) {
			since = s
		}
	}
	return since
}

// bestMatch scores every filing that satisfies all three match criteria
// against one news fact and keeps the highest scorer.
func (c *CrossReferencer) bestMatch(side *newsSide, filings []*types.Filing) (candidate, bool) {
	var best candidate
	found := false

	for _, filing := range filings {
		nameSim := nameSimilarity(side.fact.Subject, filing.CompanyName)
		if nameSim < c.nameThreshold {
			continue
		}

		dateDiff := side.date.Sub(filing.FiledAt)
		if dateDiff < 0 {
			dateDiff = -dateDiff
		}
		if dateDiff > c.window {
			continue
		}

		amount := filingAmount(filing)
		if !amountsCompatible(side.amount, amount, c.tolerance) {
			continue
		}
		corroborated := side.amount != nil && amount != nil

		score := c.matchScore(nameSim, dateDiff)
		if !found || score > best.score {
			found = true
			best = candidate{
				filing:       filing,
				amount:       amount,
				nameSim:      nameSim,
				dateDiff:     dateDiff,
				corroborated: corroborated,
				score:        score,
				confidence:   boostedConfidence(nameSim, corroborated),
			}
		}
	}
	return best, found
}

// matchScore combines name similarity, date proximity, and amount
// agreement. Amount agreement holds for every candidate that reached
// scoring, since incompatible amounts disqualify earlier.
func (c *CrossReferencer) matchScore(nameSim float64, dateDiff time.Duration) float64 {
	score := nameSim * 0.5
	if prox := 1 - dateDiff.Hours()/c.window.Hours(); prox > 0 {
		score += prox * 0.3
	}
	score += 0.2
	return math.Min(1, score)
}

// boostedConfidence is the confidence a corroborated news relationship is
// raised to. Agreement between an informal and a legal source lands in
// the 0.90 to 0.98 band; amounts agreeing on both sides anchor 0.95.
func boostedConfidence(nameSim float64, corroborated bool) float64 {
	conf := 0.90
	if corroborated {
		conf = 0.95
	}
	if nameSim > 0.95 {
		conf = math.Min(0.98, conf+0.03)
	}
	return conf
}

// link applies one match atomically: the filing-derived event is created
// or reused, the news relationship is linked and boosted, any distinct
// nearby news event is marked a duplicate of the filing event, and
// filing-only detail lands on the company as enrichment.
func (c *CrossReferencer) link(ctx context.Context, side *newsSide, best candidate) (int64, error) {
	var eventID int64
	err := c.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		var err error
		eventID, err = tx.UpsertEvent(ctx, &types.EventRecord{
			EventType:       types.EventFunding,
			CompanyEntityID: side.company.ID,
			EventDate:       &best.filing.FiledAt,
			Amount:          best.amount,
		})
		if err != nil {
			return err
		}

		if err := tx.SetRelationshipEvent(ctx, side.fact.ID, eventID, best.confidence); err != nil {
			return err
		}

		if side.event != nil && side.event.ID != eventID && side.event.CanonicalEventID == nil {
			err := tx.SetEventCanonical(ctx, side.event.ID, eventID)
			switch {
			case errors.Is(err, storage.ErrCanonicalCycle):
				c.log.Warn("news event already canonical for filing event",
					"news_event", side.event.ID, "filing_event", eventID)
			case err != nil:
				return err
			}
		}

		return tx.UpsertEnrichment(ctx, side.company.ID, enrichmentSource,
			filingSummaryText(best.filing), filingAttrs(best.filing))
	})
	if err != nil {
		return 0, fmt.Errorf("failed to link relationship %d to filing %s: %w",
			side.fact.ID, best.filing.AccessionNo, err)
	}
	return eventID, nil
}

// nameSimilarity compares two company names after normalization, taking
// the better of edit similarity and token-set similarity so word order
// and corporate suffixes do not mask a match.
func nameSimilarity(a, b string) float64 {
	na, nb := names.Normalize(a), names.Normalize(b)
	sim := names.Similarity(na, nb)
	if ts := names.TokenSetRatio(na, nb); ts > sim {
		sim = ts
	}
	return sim
}

// amountsCompatible reports whether two declared amounts could describe
// the same round. A missing or zero amount cannot contradict anything.
func amountsCompatible(a, b *float64, tolerance float64) bool {
	if a == nil || b == nil || *a == 0 || *b == 0 {
		return true
	}
	diff := math.Abs(*a-*b) / math.Max(*a, *b)
	return diff <= tolerance
}

// filingAmount picks a filing's declared amount: the total offering when
// stated, otherwise the amount already sold.
func filingAmount(f *types.Filing) *float64 {
	if f.TotalAmount != nil {
		return f.TotalAmount
	}
	return f.AmountSold
}

func filingSummaryText(f *types.Filing) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Form D %s filed %s", f.AccessionNo, f.FiledAt.Format("2006-01-02"))
	if amt := filingAmount(f); amt != nil {
		fmt.Fprintf(&b, ", %s raised", FormatMoney(*amt))
	}
	if f.TotalInvestors > 0 {
		fmt.Fprintf(&b, " from %d investors", f.TotalInvestors)
	}
	if f.IndustryGroup != "" {
		fmt.Fprintf(&b, " (%s)", f.IndustryGroup)
	}
	return b.String()
}

func filingAttrs(f *types.Filing) map[string]string {
	attrs := map[string]string{"accession_no": f.AccessionNo}
	if f.CIK != "" {
		attrs["cik"] = f.CIK
	}
	if f.State != "" {
		attrs["state"] = f.State
	}
	if f.IndustryGroup != "" {
		attrs["industry_group"] = f.IndustryGroup
	}
	if f.TotalInvestors > 0 {
		attrs["total_investors"] = strconv.Itoa(f.TotalInvestors)
	}
	if f.YearFounded > 0 {
		attrs["year_founded"] = strconv.Itoa(f.YearFounded)
	}
	if amt := filingAmount(f); amt != nil {
		attrs["amount"] = strconv.FormatFloat(*amt, 'f', -1, 64)
	}
	return attrs
}
