// Package pipeline chains the consolidation stages: classify pending
// articles, extract relationships from the high-signal ones, resolve
// duplicate entities, and cross-reference funding facts against filings.
// Each stage is independently runnable; Run executes them in order and
// records per-run statistics. Extraction work is claim-based, so several
// workers (or several processes) can drain the queue without overlap.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/untoldecay/TalentGraph/internal/classify"
	"github.com/untoldecay/TalentGraph/internal/extract"
	"github.com/untoldecay/TalentGraph/internal/names"
	"github.com/untoldecay/TalentGraph/internal/resolve"
	"github.com/untoldecay/TalentGraph/internal/storage"
	"github.com/untoldecay/TalentGraph/internal/types"
	"github.com/untoldecay/TalentGraph/internal/xref"
)

const (
	// DefaultWorkers is the extraction worker count.
	DefaultWorkers = 4

	// DefaultClaimTTL is how long an extraction claim is honored before
	// another worker may treat it as abandoned.
	DefaultClaimTTL = 10 * time.Minute
)

// defaultBatch bounds how many articles one run classifies and extracts.
const defaultBatch = 500

// maxFailureReason bounds stored failure reasons; extractor errors can
// embed whole response bodies.
const maxFailureReason = 500

// ClassifyStats summarizes one classification sweep.
type ClassifyStats struct {
	Seen       int `json:"seen"`
	Matched    int `json:"matched"`
	HighSignal int `json:"high_signal"`
}

// ExtractStats summarizes one extraction sweep.
type ExtractStats struct {
	Extracted     int `json:"extracted"`
	Failed        int `json:"failed"`
	Relationships int `json:"relationships"`
	Events        int `json:"events"`
}

// RunStats aggregates a full pipeline run. Stage results that did not
// execute (earlier cancellation) stay nil.
type RunStats struct {
	RunID      string         `json:"run_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Classify   ClassifyStats  `json:"classify"`
	Extract    ExtractStats   `json:"extract"`
	Resolve    *resolve.Stats `json:"resolve,omitempty"`
	Xref       *xref.Report   `json:"xref,omitempty"`
	Errors     []string       `json:"errors,omitempty"`
}

// Pipeline drives the full consolidation flow over one store.
type Pipeline struct {
	store      storage.Store
	classifier *classify.Classifier
	extractor  extract.Extractor
	resolver   *resolve.Resolver
	xref       *xref.CrossReferencer

	workers  int
	batch    int
	claimTTL time.Duration
	log      *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithWorkers overrides the extraction worker count.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithBatchSize bounds how many articles one run processes per stage.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.batch = n
		}
	}
}

// WithClaimTTL overrides how long extraction claims are honored.
func WithClaimTTL(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.claimTTL = d
		}
	}
}

// WithResolver substitutes a configured resolver.
func WithResolver(r *resolve.Resolver) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.resolver = r
		}
	}
}

// WithCrossReferencer substitutes a configured cross-referencer.
func WithCrossReferencer(x *xref.CrossReferencer) Option {
	return func(p *Pipeline) {
		if x != nil {
			p.xref = x
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(p *Pipeline) {
		if log != nil {
			p.log = log
		}
	}
}

// New assembles a pipeline over the store. The resolver and
// cross-referencer default to store-backed instances sharing the
// pipeline's logger; pass options to substitute configured ones.
func New(store storage.Store, classifier *classify.Classifier, extractor extract.Extractor, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:      store,
		classifier: classifier,
		extractor:  extractor,
		workers:    DefaultWorkers,
		batch:      defaultBatch,
		claimTTL:   DefaultClaimTTL,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.resolver == nil {
		p.resolver = resolve.New(store, resolve.WithLogger(p.log))
	}
	if p.xref == nil {
		p.xref = xref.New(store, xref.WithLogger(p.log))
	}
	return p
}

// Run executes classify, extract, resolve, and cross-reference in order,
// then records the run. A failed stage is noted and the remaining stages
// still run; only cancellation stops the sequence. The returned stats are
// valid even when an error is returned.
func (p *Pipeline) Run(ctx context.Context) (*RunStats, error) {
	stats := &RunStats{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	p.log.Info("pipeline run starting", "run", stats.RunID, "workers", p.workers)
	p.record(ctx, stats)

	stages := []struct {
		name string
		run  func(context.Context) error
	}{
		{"classify", func(ctx context.Context) error {
			cs, err := p.Classify(ctx)
			stats.Classify = *cs
			return err
		}},
		{"extract", func(ctx context.Context) error {
			es, err := p.Extract(ctx)
			stats.Extract = *es
			return err
		}},
		{"resolve", func(ctx context.Context) error {
			rs, err := p.Resolve(ctx)
			stats.Resolve = rs
			return err
		}},
		{"cross-reference", func(ctx context.Context) error {
			report, err := p.CrossReference(ctx)
			stats.Xref = report
			return err
		}},
	}

	for _, stage := range stages {
		err := stage.run(ctx)
		if err == nil {
			continue
		}
		stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", stage.name, err))
		p.log.Error("pipeline stage failed", "run", stats.RunID, "stage", stage.name, "error", err)
		if ctx.Err() != nil {
			break
		}
	}

	stats.FinishedAt = time.Now().UTC()
	p.record(context.WithoutCancel(ctx), stats)
	p.log.Info("pipeline run finished",
		"run", stats.RunID,
		"seen", stats.Classify.Seen,
		"extracted", stats.Extract.Extracted,
		"failed", stats.Extract.Failed,
		"relationships", stats.Extract.Relationships,
		"elapsed", stats.FinishedAt.Sub(stats.StartedAt).Round(time.Millisecond))

	if err := ctx.Err(); err != nil {
		return stats, err
	}
	if len(stats.Errors) > 0 {
		return stats, fmt.Errorf("%d of %d stages failed: %s",
			len(stats.Errors), len(stages), strings.Join(stats.Errors, "; "))
	}
	return stats, nil
}

// record checkpoints run statistics. Failures are logged, not returned:
// bookkeeping never fails a run that did real work.
func (p *Pipeline) record(ctx context.Context, stats *RunStats) {
	run := &types.PipelineRun{
		ID:                 stats.RunID,
		StartedAt:          stats.StartedAt,
		ArticlesSeen:       stats.Classify.Seen,
		Classified:         stats.Classify.Matched,
		Extracted:          stats.Extract.Extracted,
		Failed:             stats.Extract.Failed,
		RelationshipsAdded: stats.Extract.Relationships,
		Notes:              strings.Join(stats.Errors, "; "),
	}
	if !stats.FinishedAt.IsZero() {
		finished := stats.FinishedAt
		run.FinishedAt = &finished
	}
	if stats.Resolve != nil {
		run.EntitiesMerged = stats.Resolve.EntitiesMerged
	}
	if stats.Xref != nil {
		run.XrefMatches = len(stats.Xref.Matches)
	}
	if err := p.store.RecordRun(ctx, run); err != nil {
		p.log.Warn("failed to record pipeline run", "run", stats.RunID, "error", err)
	}
}

// Classify sweeps unclassified articles through the keyword classifier
// and stores the outcome. Matched counts articles assigned an event type;
// articles classified as none are swept too and never surface again.
func (p *Pipeline) Classify(ctx context.Context) (*ClassifyStats, error) {
	stats := &ClassifyStats{}
	articles, err := p.store.UnclassifiedArticles(ctx, p.batch)
	if err != nil {
		return stats, fmt.Errorf("failed to list unclassified articles: %w", err)
	}

	for _, a := range articles {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		res := p.classifier.Classify(a.Title, a.Content)
		err := p.store.SetClassification(ctx, a.ID, res.EventType, res.Confidence, res.IsHighSignal, res.MatchedKeywords)
		if err != nil {
			return stats, fmt.Errorf("failed to store classification for article %d: %w", a.ID, err)
		}
		stats.Seen++
		if res.EventType != types.EventNone {
			stats.Matched++
		}
		if res.IsHighSignal {
			stats.HighSignal++
			p.log.Debug("high-signal article",
				"article", a.ID, "type", res.EventType, "confidence", res.Confidence)
		}
	}

	p.log.Info("classification sweep complete",
		"seen", stats.Seen, "matched", stats.Matched, "high_signal", stats.HighSignal)
	return stats, nil
}

// Extract drains the high-signal extraction queue with a pool of workers.
// Articles left claimed by a crashed process become reclaimable after the
// claim TTL. The sweep stops once the queue is empty or the per-run batch
// bound is reached.
func (p *Pipeline) Extract(ctx context.Context) (*ExtractStats, error) {
	stats := &ExtractStats{}
	var mu sync.Mutex
	claimed := 0

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		g.Go(func() error {
			for {
				mu.Lock()
				if claimed >= p.batch {
					mu.Unlock()
					return nil
				}
				claimed++
				mu.Unlock()

				a, err := p.store.ClaimNextArticle(ctx, p.claimTTL)
				if errors.Is(err, storage.ErrNoPendingWork) {
					return nil
				}
				if err != nil {
					return fmt.Errorf("failed to claim article: %w", err)
				}

				out, err := p.processArticle(ctx, a)
				if err != nil {
					return err
				}

				mu.Lock()
				if out.failed {
					stats.Failed++
				} else {
					stats.Extracted++
					stats.Relationships += out.relationships
					stats.Events += out.events
				}
				mu.Unlock()
			}
		})
	}
	err := g.Wait()

	p.log.Info("extraction sweep complete",
		"extracted", stats.Extracted, "failed", stats.Failed,
		"relationships", stats.Relationships, "events", stats.Events)
	return stats, err
}

// Resolve runs entity resolution over the current graph.
func (p *Pipeline) Resolve(ctx context.Context) (*resolve.Stats, error) {
	return p.resolver.Run(ctx)
}

// CrossReference reconciles news funding facts against filings.
func (p *Pipeline) CrossReference(ctx context.Context) (*xref.Report, error) {
	return p.xref.Run(ctx)
}

// articleOutcome is the per-article result a worker reports back.
type articleOutcome struct {
	failed        bool
	relationships int
	events        int
}

// processArticle extracts one claimed article and persists the outcome.
// Extraction errors mark the article failed and do not stop the worker;
// cancellation releases the claim so a later run retries the article. A
// returned error stops the pool.
func (p *Pipeline) processArticle(ctx context.Context, a *types.Article) (articleOutcome, error) {
	res, err := p.extractor.Extract(ctx, a.Title, a.Content)
	if err != nil {
		if ctx.Err() != nil {
			p.releaseClaim(ctx, a.ID)
			return articleOutcome{}, ctx.Err()
		}
		if ferr := p.store.MarkArticleFailed(ctx, a.ID, clipReason(err.Error())); ferr != nil {
			return articleOutcome{}, fmt.Errorf("failed to mark article %d failed: %w", a.ID, ferr)
		}
		if extract.IsSchemaViolation(err) {
			p.log.Warn("extractor violated response contract", "article", a.ID, "error", err)
		} else {
			p.log.Warn("extraction failed", "article", a.ID, "error", err)
		}
		return articleOutcome{failed: true}, nil
	}

	rels, events, err := p.persist(ctx, a, res)
	if err != nil {
		p.releaseClaim(ctx, a.ID)
		if ctx.Err() != nil {
			return articleOutcome{}, ctx.Err()
		}
		return articleOutcome{}, fmt.Errorf("failed to persist extraction for article %d: %w", a.ID, err)
	}

	p.log.Info("article extracted",
		"article", a.ID, "relationships", rels, "events", events)
	return articleOutcome{relationships: rels, events: events}, nil
}

// releaseClaim puts an article back in the pending queue. It survives
// cancellation of the surrounding context.
func (p *Pipeline) releaseClaim(ctx context.Context, articleID int64) {
	if err := p.store.ReleaseClaim(context.WithoutCancel(ctx), articleID); err != nil {
		p.log.Warn("failed to release claim", "article", articleID, "error", err)
	}
}

// persist writes one extraction result and the article's extracted mark in
// a single transaction, so a crash mid-write leaves the article pending
// and the graph untouched. Invalid drafts are dropped individually; they
// never fail the article.
func (p *Pipeline) persist(ctx context.Context, a *types.Article, res *extract.Result) (int, int, error) {
	date := eventDate(a, res)

	var relsAdded, eventsAdded int
	err := p.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		// One upsert per distinct entity per article: the upsert itself
		// is the mention bump.
		ids := make(map[string]int64, len(res.Entities))
		ensure := func(name string, kind types.EntityKind) (int64, error) {
			key := names.Normalize(name)
			if id, ok := ids[key]; ok {
				return id, nil
			}
			id, err := tx.UpsertEntity(ctx, name, kind, nil)
			if err != nil {
				return 0, err
			}
			ids[key] = id
			return id, nil
		}

		for _, draft := range res.Entities {
			if ok, reason := extract.ValidateEntity(draft.Name); !ok {
				p.log.Debug("dropped entity draft",
					"article", a.ID, "name", draft.Name, "reason", reason)
				continue
			}
			if _, err := ensure(draft.Name, draft.Kind); err != nil {
				return err
			}
		}

		companyFor := make(map[types.Predicate]int64)
		for _, draft := range res.Relationships {
			if ok, reason := extract.ValidateRelationship(draft.Subject, draft.Predicate, draft.Object); !ok {
				p.log.Debug("dropped relationship draft", "article", a.ID, "reason", reason)
				continue
			}
			subjectID, err := ensure(draft.Subject, draft.SubjectKind)
			if err != nil {
				return err
			}
			objectID, err := ensure(draft.Object, draft.ObjectKind)
			if err != nil {
				return err
			}

			rel := &types.Relationship{
				SubjectID:  subjectID,
				Predicate:  draft.Predicate,
				ObjectID:   objectID,
				Confidence: draft.Confidence,
				Context:    draft.Context,
				SourceURL:  a.URL,
				SourceKind: types.SourceNews,
				EventDate:  date,
				IsCurrent:  draft.Predicate != types.PredicateDepartedFrom,
			}
			if _, err := tx.InsertRelationship(ctx, rel); err != nil {
				if errors.Is(err, storage.ErrDuplicate) {
					continue
				}
				return err
			}
			relsAdded++
			// InsertRelationship resolved canonical IDs in place.
			if _, seen := companyFor[draft.Predicate]; !seen {
				companyFor[draft.Predicate] = rel.SubjectID
			}
		}

		if companyID, ok := companyFor[types.PredicateFundedBy]; ok {
			if amount, ok := xref.ParseMoney(res.Amounts.Funding); ok {
				ev := &types.EventRecord{
					EventType:       types.EventFunding,
					CompanyEntityID: companyID,
					EventDate:       date,
					Amount:          &amount,
				}
				if _, err := tx.UpsertEvent(ctx, ev); err != nil {
					return err
				}
				eventsAdded++
			}
		}
		if companyID, ok := companyFor[types.PredicateLaidOff]; ok {
			if n, ok := parseCount(res.Amounts.LayoffCount); ok {
				count := float64(n)
				ev := &types.EventRecord{
					EventType:       types.EventLayoff,
					CompanyEntityID: companyID,
					EventDate:       date,
					Amount:          &count,
				}
				if _, err := tx.UpsertEvent(ctx, ev); err != nil {
					return err
				}
				eventsAdded++
			}
		}

		return tx.MarkArticleExtracted(ctx, a.ID)
	})
	if err != nil {
		return 0, 0, err
	}
	return relsAdded, eventsAdded, nil
}

// eventDate picks the best available date for an article's relationships:
// the model's parsed date, then its raw phrase anchored at publication,
// then the publication date itself.
func eventDate(a *types.Article, res *extract.Result) *time.Time {
	if res.EventDate != nil {
		return res.EventDate
	}
	if d := extract.ParseEventDate(res.EventDateRaw, a.PublishedAt); d != nil {
		return d
	}
	if !a.PublishedAt.IsZero() {
		published := a.PublishedAt
		return &published
	}
	return nil
}

// parseCount reads a layoff headcount like "1,200". Phrases that are not
// plain integers ("hundreds", "about 500") do not produce an event.
func parseCount(s string) (int, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func clipReason(s string) string {
	if len(s) <= maxFailureReason {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxFailureReason {
		return s
	}
	return string(runes[:maxFailureReason]) + "..."
}
