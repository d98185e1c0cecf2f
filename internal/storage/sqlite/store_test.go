package sqlite

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/untoldecay/TalentGraph/internal/storage"
	"github.com/untoldecay/TalentGraph/internal/types"
)

func TestUpsertEventDeduplicatesByDay(t *testing.T) {
	env := newTestEnv(t)
	acme := env.CreateEntity("Acme", types.KindCompany)

	day := time.Date(2025, 12, 1, 9, 30, 0, 0, time.UTC)
	id1, err := env.Store.UpsertEvent(env.Ctx, &types.EventRecord{
		EventType: types.EventFunding, CompanyEntityID: acme, EventDate: &day,
	})
	if err != nil {
		t.Fatalf("UpsertEvent failed: %v", err)
	}

	// Same company, type, and calendar day reuses the event and backfills
	// the amount.
	later := time.Date(2025, 12, 1, 18, 0, 0, 0, time.UTC)
	amount := 50_000_000.0
	id2, err := env.Store.UpsertEvent(env.Ctx, &types.EventRecord{
		EventType: types.EventFunding, CompanyEntityID: acme,
		EventDate: &later, Amount: &amount,
	})
	if err != nil {
		t.Fatalf("second UpsertEvent failed: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected same event, got %d and %d", id1, id2)
	}

	found, err := env.Store.FindEvent(env.Ctx, acme, types.EventFunding, &day, 24*time.Hour)
	if err != nil {
		t.Fatalf("FindEvent failed: %v", err)
	}
	if found.Amount == nil || *found.Amount != amount {
		t.Errorf("expected backfilled amount %f, got %v", amount, found.Amount)
	}

	// A different day is a different event.
	otherDay := day.AddDate(0, 0, 45)
	id3, err := env.Store.UpsertEvent(env.Ctx, &types.EventRecord{
		EventType: types.EventFunding, CompanyEntityID: acme, EventDate: &otherDay,
	})
	if err != nil {
		t.Fatalf("third UpsertEvent failed: %v", err)
	}
	if id3 == id1 {
		t.Error("expected a distinct event for a different day")
	}
}

func TestFindEventWindow(t *testing.T) {
	env := newTestEnv(t)
	acme := env.CreateEntity("Acme", types.KindCompany)

	day := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	if _, err := env.Store.UpsertEvent(env.Ctx, &types.EventRecord{
		EventType: types.EventFunding, CompanyEntityID: acme, EventDate: &day,
	}); err != nil {
		t.Fatalf("UpsertEvent failed: %v", err)
	}

	near := day.AddDate(0, 0, 10)
	if _, err := env.Store.FindEvent(env.Ctx, acme, types.EventFunding, &near, 30*24*time.Hour); err != nil {
		t.Fatalf("expected event within 30 days, got %v", err)
	}

	if _, err := env.Store.FindEvent(env.Ctx, acme, types.EventFunding, &near, 5*24*time.Hour); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound outside window, got %v", err)
	}

	if _, err := env.Store.FindEvent(env.Ctx, acme, types.EventAcquisition, &near, 30*24*time.Hour); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for other event type, got %v", err)
	}
}

func TestSetEventCanonical(t *testing.T) {
	env := newTestEnv(t)
	acme := env.CreateEntity("Acme", types.KindCompany)

	day := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	nearby := day.AddDate(0, 0, 3)
	newsEvent, err := env.Store.UpsertEvent(env.Ctx, &types.EventRecord{
		EventType: types.EventFunding, CompanyEntityID: acme, EventDate: &day,
	})
	if err != nil {
		t.Fatalf("UpsertEvent failed: %v", err)
	}
	filingEvent, err := env.Store.UpsertEvent(env.Ctx, &types.EventRecord{
		EventType: types.EventFunding, CompanyEntityID: acme, EventDate: &nearby,
	})
	if err != nil {
		t.Fatalf("second UpsertEvent failed: %v", err)
	}

	if err := env.Store.SetEventCanonical(env.Ctx, newsEvent, filingEvent); err != nil {
		t.Fatalf("SetEventCanonical failed: %v", err)
	}

	found, err := env.Store.FindEvent(env.Ctx, acme, types.EventFunding, &day, 24*time.Hour)
	if err != nil {
		t.Fatalf("FindEvent failed: %v", err)
	}
	if found.CanonicalEventID == nil || *found.CanonicalEventID != filingEvent {
		t.Errorf("expected canonical pointer to %d, got %v", filingEvent, found.CanonicalEventID)
	}

	// Selfreference and cycles are rejected.
	if err := env.Store.SetEventCanonical(env.Ctx, filingEvent, filingEvent); !errors.Is(err, storage.ErrCanonicalCycle) {
		t.Errorf("expected cycle error for self reference, got %v", err)
	}
	if err := env.Store.SetEventCanonical(env.Ctx, filingEvent, newsEvent); !errors.Is(err, storage.ErrCanonicalCycle) {
		t.Errorf("expected cycle error, got %v", err)
	}
	if err := env.Store.SetEventCanonical(env.Ctx, newsEvent, 99999); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing canonical target, got %v", err)
	}
}

func TestSetEventCanonicalFlattensChains(t *testing.T) {
	env := newTestEnv(t)
	acme := env.CreateEntity("Acme", types.KindCompany)

	var ids []int64
	for i := 0; i < 3; i++ {
		day := time.Date(2025, 12, 1+10*i, 0, 0, 0, 0, time.UTC)
		id, err := env.Store.UpsertEvent(env.Ctx, &types.EventRecord{
			EventType: types.EventFunding, CompanyEntityID: acme, EventDate: &day,
		})
		if err != nil {
			t.Fatalf("UpsertEvent failed: %v", err)
		}
		ids = append(ids, id)
	}

	if err := env.Store.SetEventCanonical(env.Ctx, ids[0], ids[1]); err != nil {
		t.Fatalf("SetEventCanonical failed: %v", err)
	}
	// Merging the middle event into a new root rewrites the first
	// event's pointer too, so every stored chain stays one hop long.
	if err := env.Store.SetEventCanonical(env.Ctx, ids[1], ids[2]); err != nil {
		t.Fatalf("second SetEventCanonical failed: %v", err)
	}

	day := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	first, err := env.Store.FindEvent(env.Ctx, acme, types.EventFunding, &day, 24*time.Hour)
	if err != nil {
		t.Fatalf("FindEvent failed: %v", err)
	}
	if first.CanonicalEventID == nil || *first.CanonicalEventID != ids[2] {
		t.Errorf("expected chain flattened to %d, got %v", ids[2], first.CanonicalEventID)
	}
}

func TestRedirectEventsOnEntityMerge(t *testing.T) {
	env := newTestEnv(t)
	acme := env.CreateEntity("Acme", types.KindCompany)
	acmeInc := env.CreateEntity("Acme Inc", types.KindCompany)

	day := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	otherDay := day.AddDate(0, 0, 60)
	amount := 50_000_000.0

	survivor, err := env.Store.UpsertEvent(env.Ctx, &types.EventRecord{
		EventType: types.EventFunding, CompanyEntityID: acme, EventDate: &day, Amount: &amount,
	})
	if err != nil {
		t.Fatalf("UpsertEvent failed: %v", err)
	}
	dup, err := env.Store.UpsertEvent(env.Ctx, &types.EventRecord{
		EventType: types.EventFunding, CompanyEntityID: acmeInc, EventDate: &day,
	})
	if err != nil {
		t.Fatalf("duplicate UpsertEvent failed: %v", err)
	}
	distinct, err := env.Store.UpsertEvent(env.Ctx, &types.EventRecord{
		EventType: types.EventFunding, CompanyEntityID: acmeInc, EventDate: &otherDay,
	})
	if err != nil {
		t.Fatalf("distinct UpsertEvent failed: %v", err)
	}

	moved, err := env.Store.RedirectEvents(env.Ctx, acmeInc, acme)
	if err != nil {
		t.Fatalf("RedirectEvents failed: %v", err)
	}
	if moved != 2 {
		t.Errorf("expected 2 events repointed, got %d", moved)
	}

	// The same-day collision is marked as a duplicate of the survivor;
	// the distinct event simply moves.
	dupDay := day
	got, err := env.Store.FindEvent(env.Ctx, acme, types.EventFunding, &dupDay, 24*time.Hour)
	if err != nil {
		t.Fatalf("FindEvent failed: %v", err)
	}
	if got.ID != survivor {
		// Proximity ties resolve to the lowest id, which is the survivor.
		t.Errorf("expected survivor %d, got %d", survivor, got.ID)
	}
	movedEvent, err := env.Store.FindEvent(env.Ctx, acme, types.EventFunding, &otherDay, 24*time.Hour)
	if err != nil {
		t.Fatalf("FindEvent for moved event failed: %v", err)
	}
	if movedEvent.ID != distinct {
		t.Errorf("expected distinct event %d under canonical entity, got %d", distinct, movedEvent.ID)
	}
	if movedEvent.CanonicalEventID != nil {
		t.Errorf("distinct event should not be marked duplicate, got %v", movedEvent.CanonicalEventID)
	}

	// The duplicate row survives with a canonical pointer.
	var canonical int64
	row := env.Store.UnderlyingDB().QueryRow(
		`SELECT canonical_event_id FROM events WHERE id = ?`, dup)
	if err := row.Scan(&canonical); err != nil {
		t.Fatalf("failed to read duplicate event: %v", err)
	}
	if canonical != survivor {
		t.Errorf("expected duplicate marked canonical to %d, got %d", survivor, canonical)
	}

	// Idempotent: nothing left to move.
	moved, err = env.Store.RedirectEvents(env.Ctx, acmeInc, acme)
	if err != nil {
		t.Fatalf("second RedirectEvents failed: %v", err)
	}
	if moved != 0 {
		t.Errorf("expected 0 events on second redirect, got %d", moved)
	}
}

func TestInsertFilingDuplicateAccession(t *testing.T) {
	env := newTestEnv(t)

	amount := 25_000_000.0
	f := &types.Filing{
		AccessionNo: "0001234567-25-000042",
		CompanyName: "Acme Robotics Inc",
		CIK:         "1234567",
		FiledAt:     time.Date(2025, 11, 20, 0, 0, 0, 0, time.UTC),
		TotalAmount: &amount,
		Officers: []types.Officer{
			{Name: "Jane Doe", Title: "Chief Executive Officer"},
		},
		SourceURL: "https://sec.gov/Archives/acme",
	}
	if _, err := env.Store.InsertFiling(env.Ctx, f); err != nil {
		t.Fatalf("InsertFiling failed: %v", err)
	}

	dup := &types.Filing{
		AccessionNo: "0001234567-25-000042",
		CompanyName: "Acme Robotics Inc",
		FiledAt:     f.FiledAt,
	}
	if _, err := env.Store.InsertFiling(env.Ctx, dup); !errors.Is(err, storage.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	since := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)
	filings, err := env.Store.RecentFilings(env.Ctx, since, 0)
	if err != nil {
		t.Fatalf("RecentFilings failed: %v", err)
	}
	if len(filings) != 1 {
		t.Fatalf("expected 1 filing, got %d", len(filings))
	}
	got := filings[0]
	if got.TotalAmount == nil || *got.TotalAmount != amount {
		t.Errorf("expected amount %f, got %v", amount, got.TotalAmount)
	}
	if len(got.Officers) != 1 || got.Officers[0].Name != "Jane Doe" {
		t.Errorf("unexpected officers: %v", got.Officers)
	}
}

func TestFeedHealthCounters(t *testing.T) {
	env := newTestEnv(t)

	feed := &types.Feed{Name: "techcrunch", URL: "https://techcrunch.com/feed", Priority: 1, Enabled: true}
	if err := env.Store.UpsertFeed(env.Ctx, feed); err != nil {
		t.Fatalf("UpsertFeed failed: %v", err)
	}

	if err := env.Store.RecordFeedFetch(env.Ctx, "techcrunch", false, 2.0); err != nil {
		t.Fatalf("RecordFeedFetch failed: %v", err)
	}
	feeds, err := env.Store.ListFeeds(env.Ctx)
	if err != nil {
		t.Fatalf("ListFeeds failed: %v", err)
	}
	if len(feeds) != 1 {
		t.Fatalf("expected 1 feed, got %d", len(feeds))
	}
	if math.Abs(feeds[0].SuccessRate-0.9) > 1e-9 {
		t.Errorf("expected success rate 0.9 after one failure, got %f", feeds[0].SuccessRate)
	}
	if feeds[0].ConsecutiveFailures != 1 {
		t.Errorf("expected 1 consecutive failure, got %d", feeds[0].ConsecutiveFailures)
	}

	if err := env.Store.RecordFeedFetch(env.Ctx, "techcrunch", true, 1.0); err != nil {
		t.Fatalf("RecordFeedFetch failed: %v", err)
	}
	feeds, err = env.Store.ListFeeds(env.Ctx)
	if err != nil {
		t.Fatalf("ListFeeds failed: %v", err)
	}
	if math.Abs(feeds[0].SuccessRate-0.91) > 1e-9 {
		t.Errorf("expected success rate 0.91, got %f", feeds[0].SuccessRate)
	}
	if feeds[0].ConsecutiveFailures != 0 {
		t.Errorf("expected failure streak reset, got %d", feeds[0].ConsecutiveFailures)
	}
	if feeds[0].LastFetchedAt == nil {
		t.Error("expected last_fetched_at to be set")
	}

	if err := env.Store.RecordFeedFetch(env.Ctx, "unregistered", true, 1.0); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unregistered feed, got %v", err)
	}
}

func TestRecordRunCheckpointing(t *testing.T) {
	env := newTestEnv(t)

	started := time.Now().UTC().Truncate(time.Second)
	run := &types.PipelineRun{ID: "run-0001", StartedAt: started, ArticlesSeen: 10}
	if err := env.Store.RecordRun(env.Ctx, run); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}

	finished := started.Add(time.Minute)
	run.FinishedAt = &finished
	run.Extracted = 7
	run.Failed = 1
	if err := env.Store.RecordRun(env.Ctx, run); err != nil {
		t.Fatalf("final RecordRun failed: %v", err)
	}

	runs, err := env.Store.RecentRuns(env.Ctx, 10)
	if err != nil {
		t.Fatalf("RecentRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run after checkpoint replace, got %d", len(runs))
	}
	if runs[0].Extracted != 7 || runs[0].Failed != 1 {
		t.Errorf("unexpected run counters: %+v", runs[0])
	}
	if runs[0].FinishedAt == nil {
		t.Error("expected finished_at to be recorded")
	}
}

func TestGraphStats(t *testing.T) {
	env := newTestEnv(t)

	acme := env.CreateEntity("Acme", types.KindCompany)
	labs := env.CreateEntity("Acme Labs", types.KindCompany)
	jane := env.CreateEntity("Jane Doe", types.KindPerson)
	if err := env.Store.SetCanonical(env.Ctx, labs, acme); err != nil {
		t.Fatalf("SetCanonical failed: %v", err)
	}
	env.AddRelationship(jane, types.PredicateHiredBy, acme, "https://example.com/hire")

	stats, err := env.Store.GraphStats(env.Ctx)
	if err != nil {
		t.Fatalf("GraphStats failed: %v", err)
	}
	if stats.Entities != 2 {
		t.Errorf("expected 2 active entities, got %d", stats.Entities)
	}
	if stats.MergedEntities != 1 {
		t.Errorf("expected 1 merged entity, got %d", stats.MergedEntities)
	}
	if stats.Relationships != 1 {
		t.Errorf("expected 1 relationship, got %d", stats.Relationships)
	}
	if stats.ByKind["company"] != 1 || stats.ByKind["person"] != 1 {
		t.Errorf("unexpected kind breakdown: %v", stats.ByKind)
	}
	if stats.ByPredicate["HIRED_BY"] != 1 {
		t.Errorf("unexpected predicate breakdown: %v", stats.ByPredicate)
	}
}

func TestTransactionCommitsGraphWriteWithStatusFlip(t *testing.T) {
	env := newTestEnv(t)
	a := env.SubmitHighSignal("Acme raises $50M", "https://example.com/a", types.EventFunding)

	err := env.Store.RunInTransaction(env.Ctx, func(tx storage.Transaction) error {
		companyID, err := tx.UpsertEntity(env.Ctx, "Acme", types.KindCompany, nil)
		if err != nil {
			return err
		}
		investorID, err := tx.UpsertEntity(env.Ctx, "Sequoia Capital", types.KindInvestor, nil)
		if err != nil {
			return err
		}
		rel := &types.Relationship{
			SubjectID: companyID, Predicate: types.PredicateFundedBy, ObjectID: investorID,
			Confidence: 0.8, SourceURL: a.URL, SourceKind: types.SourceNews,
		}
		if _, err := tx.InsertRelationship(env.Ctx, rel); err != nil {
			return err
		}
		return tx.MarkArticleExtracted(env.Ctx, a.ID)
	})
	if err != nil {
		t.Fatalf("RunInTransaction failed: %v", err)
	}

	got, err := env.Store.GetArticle(env.Ctx, a.ID)
	if err != nil {
		t.Fatalf("GetArticle failed: %v", err)
	}
	if got.ExtractionStatus != types.ExtractionExtracted {
		t.Errorf("expected extracted, got %s", got.ExtractionStatus)
	}
	facts := env.Facts(types.FactFilter{EntityName: "Acme"})
	if len(facts) != 1 {
		t.Errorf("expected 1 fact committed, got %d", len(facts))
	}
}

func TestTransactionRollbackLeavesArticlePending(t *testing.T) {
	env := newTestEnv(t)
	a := env.SubmitHighSignal("Acme raises $50M", "https://example.com/a", types.EventFunding)

	failure := fmt.Errorf("validator rejected everything")
	err := env.Store.RunInTransaction(env.Ctx, func(tx storage.Transaction) error {
		companyID, err := tx.UpsertEntity(env.Ctx, "Acme", types.KindCompany, nil)
		if err != nil {
			return err
		}
		investorID, err := tx.UpsertEntity(env.Ctx, "Sequoia Capital", types.KindInvestor, nil)
		if err != nil {
			return err
		}
		rel := &types.Relationship{
			SubjectID: companyID, Predicate: types.PredicateFundedBy, ObjectID: investorID,
			Confidence: 0.8, SourceURL: a.URL, SourceKind: types.SourceNews,
		}
		if _, err := tx.InsertRelationship(env.Ctx, rel); err != nil {
			return err
		}
		if err := tx.MarkArticleExtracted(env.Ctx, a.ID); err != nil {
			return err
		}
		return failure
	})
	if !errors.Is(err, failure) {
		t.Fatalf("expected the callback error, got %v", err)
	}

	// Nothing from the transaction is visible: the article is still
	// pending and the graph has no trace of the writes.
	got, err := env.Store.GetArticle(env.Ctx, a.ID)
	if err != nil {
		t.Fatalf("GetArticle failed: %v", err)
	}
	if got.ExtractionStatus != types.ExtractionPending {
		t.Errorf("expected pending after rollback, got %s", got.ExtractionStatus)
	}
	if _, err := env.Store.FindEntity(env.Ctx, "Acme"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected entity write rolled back, got %v", err)
	}
	facts := env.Facts(types.FactFilter{Predicate: types.PredicateFundedBy})
	if len(facts) != 0 {
		t.Errorf("expected no facts after rollback, got %d", len(facts))
	}
}
