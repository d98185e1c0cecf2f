package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/untoldecay/TalentGraph/internal/storage"
	"github.com/untoldecay/TalentGraph/internal/storage/sqlite"
	"github.com/untoldecay/TalentGraph/internal/types"
)

func newTestStore(t *testing.T) (*sqlite.SQLiteStore, context.Context) {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.New(ctx, t.TempDir()+"/test.db")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() {
		if cerr := store.Close(); cerr != nil {
			t.Fatalf("failed to close test store: %v", cerr)
		}
	})
	return store, ctx
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestIngestor(t *testing.T, store storage.Store) *Ingestor {
	t.Helper()
	return New(store, WithLogger(discardLogger()))
}

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestIngestArticlesSingleFile(t *testing.T) {
	store, ctx := newTestStore(t)
	ing := newTestIngestor(t, store)

	path := writeDoc(t, t.TempDir(), "article.json", `{
		"source": "techcrunch.com",
		"url": "https://news.example.com/acme-series-b",
		"title": "Acme raises $50 million Series B",
		"content": "The startup raised $50 million from investors.",
		"published_at": "2024-03-01T10:30:00Z",
		"feed_priority": 2
	}`)

	report, err := ing.Articles(ctx, path)
	if err != nil {
		t.Fatalf("Articles failed: %v", err)
	}
	if report.Files != 1 || report.Submitted != 1 || report.Duplicates != 0 || report.Invalid != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}

	a, err := store.GetArticleByURL(ctx, "https://news.example.com/acme-series-b")
	if err != nil {
		t.Fatalf("GetArticleByURL failed: %v", err)
	}
	if a.Title != "Acme raises $50 million Series B" {
		t.Errorf("title = %q", a.Title)
	}
	if a.Source != "techcrunch.com" {
		t.Errorf("source = %q", a.Source)
	}
	if a.FeedPriority != 2 {
		t.Errorf("feed priority = %d, want 2", a.FeedPriority)
	}
	want := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	if !a.PublishedAt.Equal(want) {
		t.Errorf("published at = %v, want %v", a.PublishedAt, want)
	}
	if a.ClassificationStatus != types.ClassificationPending {
		t.Errorf("classification status = %q, want pending", a.ClassificationStatus)
	}
}

func TestIngestArticlesDocumentShapes(t *testing.T) {
	tests := []struct {
		name          string
		file          string
		content       string
		wantSubmitted int
	}{
		{
			name:          "single object",
			file:          "one.json",
			content:       `{"url": "https://example.com/a", "title": "A"}`,
			wantSubmitted: 1,
		},
		{
			name: "top-level array",
			file: "batch.json",
			content: `[
				{"url": "https://example.com/a", "title": "A"},
				{"url": "https://example.com/b", "title": "B"}
			]`,
			wantSubmitted: 2,
		},
		{
			name: "newline delimited",
			file: "stream.ndjson",
			content: `{"url": "https://example.com/a", "title": "A"}
{"url": "https://example.com/b", "title": "B"}
{"url": "https://example.com/c", "title": "C"}`,
			wantSubmitted: 3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, ctx := newTestStore(t)
			ing := newTestIngestor(t, store)
			path := writeDoc(t, t.TempDir(), tt.file, tt.content)

			report, err := ing.Articles(ctx, path)
			if err != nil {
				t.Fatalf("Articles failed: %v", err)
			}
			if report.Submitted != tt.wantSubmitted {
				t.Errorf("submitted = %d, want %d", report.Submitted, tt.wantSubmitted)
			}
			if report.Invalid != 0 {
				t.Errorf("invalid = %d, want 0", report.Invalid)
			}
		})
	}
}

func TestIngestArticlesSummaryFallback(t *testing.T) {
	store, ctx := newTestStore(t)
	ing := newTestIngestor(t, store)

	path := writeDoc(t, t.TempDir(), "summary.json", `{
		"url": "https://example.com/brief",
		"title": "Acme acquires Globex",
		"summary": "Acme announced it will acquire Globex for $2 billion."
	}`)

	if _, err := ing.Articles(ctx, path); err != nil {
		t.Fatalf("Articles failed: %v", err)
	}
	a, err := store.GetArticleByURL(ctx, "https://example.com/brief")
	if err != nil {
		t.Fatalf("GetArticleByURL failed: %v", err)
	}
	if a.Content != "Acme announced it will acquire Globex for $2 billion." {
		t.Errorf("content = %q, want the summary text", a.Content)
	}
}

func TestIngestArticlesDuplicates(t *testing.T) {
	store, ctx := newTestStore(t)
	ing := newTestIngestor(t, store)

	path := writeDoc(t, t.TempDir(), "batch.json", `[
		{"url": "https://example.com/a", "title": "A", "content": "first"},
		{"url": "https://example.com/a", "title": "A", "content": "first"},
		{"url": "https://example.com/mirror", "title": "A", "content": "first"}
	]`)

	// The second document repeats the URL; the third has a fresh URL but
	// identical text, so the content hash catches it.
	report, err := ing.Articles(ctx, path)
	if err != nil {
		t.Fatalf("Articles failed: %v", err)
	}
	if report.Submitted != 1 || report.Duplicates != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}

	report, err = ing.Articles(ctx, path)
	if err != nil {
		t.Fatalf("Articles re-run failed: %v", err)
	}
	if report.Submitted != 0 || report.Duplicates != 3 {
		t.Fatalf("unexpected re-run report: %+v", report)
	}
}

func TestIngestArticlesInvalidDocuments(t *testing.T) {
	store, ctx := newTestStore(t)
	ing := newTestIngestor(t, store)

	path := writeDoc(t, t.TempDir(), "mixed.json", `[
		{"title": "no url"},
		{"url": "https://example.com/untitled"},
		{"url": "https://example.com/badtime", "title": "T", "published_at": "yesterday-ish"},
		"not an object",
		{"url": "https://example.com/good", "title": "Good"}
	]`)

	report, err := ing.Articles(ctx, path)
	if err != nil {
		t.Fatalf("Articles failed: %v", err)
	}
	if report.Submitted != 1 {
		t.Errorf("submitted = %d, want 1", report.Submitted)
	}
	if report.Invalid != 4 {
		t.Errorf("invalid = %d, want 4", report.Invalid)
	}
}

func TestIngestArticlesDirectory(t *testing.T) {
	store, ctx := newTestStore(t)
	ing := newTestIngestor(t, store)

	dir := t.TempDir()
	writeDoc(t, dir, "one.json", `{"url": "https://example.com/a", "title": "A"}`)
	writeDoc(t, dir, "two.ndjson", `{"url": "https://example.com/b", "title": "B"}`)
	writeDoc(t, dir, "broken.json", `{"url": "https://example.com/c",`)
	writeDoc(t, dir, "notes.txt", "not a document")

	report, err := ing.Articles(ctx, dir)
	if err != nil {
		t.Fatalf("Articles failed: %v", err)
	}
	if report.Files != 2 {
		t.Errorf("files = %d, want 2 (broken and non-document files skipped)", report.Files)
	}
	if report.Submitted != 2 {
		t.Errorf("submitted = %d, want 2", report.Submitted)
	}

	// Pointing at the broken file directly is an error, not a skip.
	if _, err := ing.Articles(ctx, filepath.Join(dir, "broken.json")); err == nil {
		t.Error("expected an error for a malformed file given directly")
	}
}

func TestIngestArticlesMissingPath(t *testing.T) {
	store, ctx := newTestStore(t)
	ing := newTestIngestor(t, store)

	if _, err := ing.Articles(ctx, filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("expected an error for a missing path")
	}
}

func TestIngestFilingsGraph(t *testing.T) {
	store, ctx := newTestStore(t)
	ing := newTestIngestor(t, store)

	path := writeDoc(t, t.TempDir(), "filing.json", `{
		"company_name": "Acme Robotics Inc",
		"cik": "0001234567",
		"accession_no": "0001234567-24-000123",
		"filed_at": "2024-03-10",
		"total_amount": 50000000,
		"state_of_incorporation": "DE",
		"entity_type": "Corporation",
		"year_founded": 2019,
		"industry_group": "Other Technology",
		"total_investors": 12,
		"officers": [
			{"name": "Jane Smith", "title": "CEO"},
			{"name": "John Doe", "title": "Director"},
			{"name": "Robert Chen", "title": "Chief Financial Officer and Secretary"}
		],
		"source_url": "https://www.sec.gov/Archives/acme-form-d"
	}`)

	report, err := ing.Filings(ctx, path)
	if err != nil {
		t.Fatalf("Filings failed: %v", err)
	}
	if report.Ingested != 1 || report.Invalid != 0 || report.Duplicates != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Entities != 3 {
		t.Errorf("entities = %d, want 3 (company plus two mapped officers)", report.Entities)
	}
	if report.Relationships != 2 {
		t.Errorf("relationships = %d, want 2", report.Relationships)
	}
	if report.Events != 1 {
		t.Errorf("events = %d, want 1", report.Events)
	}

	company, err := store.FindEntity(ctx, "Acme Robotics Inc")
	if err != nil {
		t.Fatalf("FindEntity(company) failed: %v", err)
	}
	if company.Kind != types.KindCompany {
		t.Errorf("company kind = %q", company.Kind)
	}
	wantAttrs := map[string]string{
		"state":        "DE",
		"entity_type":  "Corporation",
		"industry":     "Other Technology",
		"year_founded": "2019",
	}
	for k, v := range wantAttrs {
		if company.Attributes[k] != v {
			t.Errorf("attribute %s = %q, want %q", k, company.Attributes[k], v)
		}
	}

	// Directors have no executive predicate, so John Doe never enters
	// the graph.
	if _, err := store.FindEntity(ctx, "John Doe"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("FindEntity(John Doe) = %v, want ErrNotFound", err)
	}

	filed := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	for _, tc := range []struct {
		predicate types.Predicate
		subject   string
	}{
		{types.PredicateCEOOf, "Jane Smith"},
		{types.PredicateCFOOf, "Robert Chen"},
	} {
		facts, err := store.QueryFacts(ctx, types.FactFilter{Predicate: tc.predicate})
		if err != nil {
			t.Fatalf("QueryFacts(%s) failed: %v", tc.predicate, err)
		}
		if len(facts) != 1 {
			t.Fatalf("QueryFacts(%s) returned %d facts, want 1", tc.predicate, len(facts))
		}
		f := facts[0]
		if f.Subject != tc.subject || f.Object != "Acme Robotics Inc" {
			t.Errorf("%s fact: %s -> %s", tc.predicate, f.Subject, f.Object)
		}
		if f.Confidence != 0.95 {
			t.Errorf("%s confidence = %v, want 0.95", tc.predicate, f.Confidence)
		}
		if f.SourceKind != types.SourceFiling {
			t.Errorf("%s source kind = %q, want filing", tc.predicate, f.SourceKind)
		}
		if !f.IsCurrent {
			t.Errorf("%s fact is not current", tc.predicate)
		}
		if f.EventDate == nil || !f.EventDate.Equal(filed) {
			t.Errorf("%s event date = %v, want %v", tc.predicate, f.EventDate, filed)
		}
	}

	ev, err := store.FindEvent(ctx, company.ID, types.EventFunding, nil, 0)
	if err != nil {
		t.Fatalf("FindEvent failed: %v", err)
	}
	if ev.Amount == nil || *ev.Amount != 50_000_000 {
		t.Errorf("event amount = %v, want 50000000", ev.Amount)
	}
	if ev.EventDate == nil || !ev.EventDate.Equal(filed) {
		t.Errorf("event date = %v, want %v", ev.EventDate, filed)
	}
}

func TestIngestFilingsSPVAttribution(t *testing.T) {
	store, ctx := newTestStore(t)
	ing := newTestIngestor(t, store)

	path := writeDoc(t, t.TempDir(), "spv.json", `{
		"company_name": "SpaceX Dec 2025 a Series of Witz Ventures LLC",
		"accession_no": "0009999999-25-000001",
		"filed_at": "2025-01-15",
		"total_amount": 1000000
	}`)

	report, err := ing.Filings(ctx, path)
	if err != nil {
		t.Fatalf("Filings failed: %v", err)
	}
	if report.Entities != 2 {
		t.Errorf("entities = %d, want 2 (the vehicle and the underlying company)", report.Entities)
	}

	underlying, err := store.FindEntity(ctx, "SpaceX")
	if err != nil {
		t.Fatalf("FindEntity(SpaceX) failed: %v", err)
	}
	spv, err := store.FindEntity(ctx, "SpaceX Dec 2025 a Series of Witz Ventures LLC")
	if err != nil {
		t.Fatalf("FindEntity(SPV) failed: %v", err)
	}

	// The raise belongs to the underlying company, not the vehicle.
	ev, err := store.FindEvent(ctx, underlying.ID, types.EventFunding, nil, 0)
	if err != nil {
		t.Fatalf("FindEvent(underlying) failed: %v", err)
	}
	if ev.Amount == nil || *ev.Amount != 1_000_000 {
		t.Errorf("event amount = %v, want 1000000", ev.Amount)
	}
	if _, err := store.FindEvent(ctx, spv.ID, types.EventFunding, nil, 0); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("FindEvent(spv) = %v, want ErrNotFound", err)
	}
}

func TestIngestFilingsDuplicateAccession(t *testing.T) {
	store, ctx := newTestStore(t)
	ing := newTestIngestor(t, store)

	path := writeDoc(t, t.TempDir(), "filing.json", `{
		"company_name": "Acme Robotics Inc",
		"accession_no": "0001234567-24-000123",
		"filed_at": "2024-03-10",
		"officers": [{"name": "Jane Smith", "title": "CEO"}]
	}`)

	if _, err := ing.Filings(ctx, path); err != nil {
		t.Fatalf("first Filings failed: %v", err)
	}
	report, err := ing.Filings(ctx, path)
	if err != nil {
		t.Fatalf("second Filings failed: %v", err)
	}
	if report.Ingested != 0 || report.Duplicates != 1 {
		t.Fatalf("unexpected re-run report: %+v", report)
	}
	if report.Entities != 0 || report.Relationships != 0 || report.Events != 0 {
		t.Fatalf("re-run wrote to the graph: %+v", report)
	}

	facts, err := store.QueryFacts(ctx, types.FactFilter{Predicate: types.PredicateCEOOf})
	if err != nil {
		t.Fatalf("QueryFacts failed: %v", err)
	}
	if len(facts) != 1 {
		t.Errorf("CEO_OF facts = %d, want 1", len(facts))
	}
	company, err := store.FindEntity(ctx, "Acme Robotics Inc")
	if err != nil {
		t.Fatalf("FindEntity failed: %v", err)
	}
	if company.MentionCount != 1 {
		t.Errorf("mention count = %d, want 1", company.MentionCount)
	}
}

func TestIngestFilingsAmounts(t *testing.T) {
	tests := []struct {
		name       string
		doc        string
		wantAmount *float64
	}{
		{
			name: "amount sold fallback",
			doc: `{"company_name": "Globex Corp", "accession_no": "acc-1",
				"filed_at": "2024-05-01", "total_amount": null, "amount_sold": 5000000}`,
			wantAmount: floatPtr(5_000_000),
		},
		{
			name: "formatted string amount",
			doc: `{"company_name": "Globex Corp", "accession_no": "acc-2",
				"filed_at": "2024-05-01", "total_amount": "$5,000,000"}`,
			wantAmount: floatPtr(5_000_000),
		},
		{
			name: "undisclosed amount",
			doc: `{"company_name": "Globex Corp", "accession_no": "acc-3",
				"filed_at": "2024-05-01"}`,
			wantAmount: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, ctx := newTestStore(t)
			ing := newTestIngestor(t, store)
			path := writeDoc(t, t.TempDir(), "filing.json", tt.doc)

			report, err := ing.Filings(ctx, path)
			if err != nil {
				t.Fatalf("Filings failed: %v", err)
			}
			if report.Ingested != 1 {
				t.Fatalf("unexpected report: %+v", report)
			}

			company, err := store.FindEntity(ctx, "Globex Corp")
			if err != nil {
				t.Fatalf("FindEntity failed: %v", err)
			}
			ev, err := store.FindEvent(ctx, company.ID, types.EventFunding, nil, 0)
			if err != nil {
				t.Fatalf("FindEvent failed: %v", err)
			}
			switch {
			case tt.wantAmount == nil && ev.Amount != nil:
				t.Errorf("event amount = %v, want nil", *ev.Amount)
			case tt.wantAmount != nil && (ev.Amount == nil || *ev.Amount != *tt.wantAmount):
				t.Errorf("event amount = %v, want %v", ev.Amount, *tt.wantAmount)
			}
		})
	}
}

func TestIngestFilingsOrganizationOfficer(t *testing.T) {
	store, ctx := newTestStore(t)
	ing := newTestIngestor(t, store)

	path := writeDoc(t, t.TempDir(), "filing.json", `{
		"company_name": "Acme Robotics Inc",
		"accession_no": "acc-org-officer",
		"filed_at": "2024-06-01",
		"officers": [{"name": "Umbrella Management LLC", "title": "CEO"}]
	}`)

	if _, err := ing.Filings(ctx, path); err != nil {
		t.Fatalf("Filings failed: %v", err)
	}
	officer, err := store.FindEntity(ctx, "Umbrella Management LLC")
	if err != nil {
		t.Fatalf("FindEntity failed: %v", err)
	}
	if officer.Kind != types.KindCompany {
		t.Errorf("officer kind = %q, want company", officer.Kind)
	}
}

func TestIngestFilingsInvalidDocuments(t *testing.T) {
	store, ctx := newTestStore(t)
	ing := newTestIngestor(t, store)

	path := writeDoc(t, t.TempDir(), "bad.json", `[
		{"accession_no": "acc-1", "filed_at": "2024-01-01"},
		{"company_name": "No Accession Inc", "filed_at": "2024-01-01"},
		{"company_name": "No Date Inc", "accession_no": "acc-2"},
		{"company_name": "Good Inc", "file_number": "021-12345", "filing_date": "2024-01-01"}
	]`)

	report, err := ing.Filings(ctx, path)
	if err != nil {
		t.Fatalf("Filings failed: %v", err)
	}
	if report.Invalid != 3 {
		t.Errorf("invalid = %d, want 3", report.Invalid)
	}
	// The last document uses the legacy field names and still lands.
	if report.Ingested != 1 {
		t.Errorf("ingested = %d, want 1", report.Ingested)
	}
}

func TestPredicateForTitle(t *testing.T) {
	tests := []struct {
		title string
		want  types.Predicate
		ok    bool
	}{
		{"CEO", types.PredicateCEOOf, true},
		{"Chief Executive Officer", types.PredicateCEOOf, true},
		{"President & CEO", types.PredicateCEOOf, true},
		{"CEO/Founder", types.PredicateCEOOf, true},
		{"CFO", types.PredicateCFOOf, true},
		{"Chief Financial Officer and Treasurer", types.PredicateCFOOf, true},
		{"CTO", types.PredicateCTOOf, true},
		{"Chief Technology Officer", types.PredicateCTOOf, true},
		{"Chief Technical Officer", types.PredicateCTOOf, true},
		{"Director", "", false},
		{"General Counsel", "", false},
		{"OCEOX", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := predicateForTitle(tt.title)
		if got != tt.want || ok != tt.ok {
			t.Errorf("predicateForTitle(%q) = (%q, %v), want (%q, %v)",
				tt.title, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSyncFeeds(t *testing.T) {
	store, ctx := newTestStore(t)
	ing := newTestIngestor(t, store)

	path := writeDoc(t, t.TempDir(), "feeds.yaml", `feeds:
  - name: techcrunch
    url: https://techcrunch.com/feed/
    priority: 1
  - name: defunct-wire
    url: https://example.com/feed
    priority: 2
    enabled: false
  - url: https://nameless.example.com/feed
`)

	synced, err := ing.SyncFeeds(ctx, path)
	if err != nil {
		t.Fatalf("SyncFeeds failed: %v", err)
	}
	if synced != 2 {
		t.Fatalf("synced = %d, want 2 (nameless entry skipped)", synced)
	}

	feeds, err := store.ListFeeds(ctx)
	if err != nil {
		t.Fatalf("ListFeeds failed: %v", err)
	}
	if len(feeds) != 2 {
		t.Fatalf("ListFeeds returned %d feeds, want 2", len(feeds))
	}
	if feeds[0].Name != "techcrunch" || !feeds[0].Enabled || feeds[0].Priority != 1 {
		t.Errorf("unexpected first feed: %+v", feeds[0])
	}
	if feeds[1].Name != "defunct-wire" || feeds[1].Enabled {
		t.Errorf("unexpected second feed: %+v", feeds[1])
	}

	// Re-syncing with a new priority updates in place.
	path = writeDoc(t, t.TempDir(), "feeds.yaml", `feeds:
  - name: techcrunch
    url: https://techcrunch.com/feed/
    priority: 2
`)
	if _, err := ing.SyncFeeds(ctx, path); err != nil {
		t.Fatalf("SyncFeeds re-run failed: %v", err)
	}
	feeds, err = store.ListFeeds(ctx)
	if err != nil {
		t.Fatalf("ListFeeds failed: %v", err)
	}
	for _, f := range feeds {
		if f.Name == "techcrunch" && f.Priority != 2 {
			t.Errorf("techcrunch priority = %d, want 2", f.Priority)
		}
	}
}

func TestParseDocTime(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"2024-03-01T10:30:00Z", time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC), false},
		{"2024-03-01T10:30:00.123456", time.Date(2024, 3, 1, 10, 30, 0, 123456000, time.UTC), false},
		{"2024-03-01T10:30:00", time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC), false},
		{"2024-03-01 10:30:00", time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC), false},
		{"2024-03-01", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), false},
		{"", time.Time{}, false},
		{"  ", time.Time{}, false},
		{"March 1st", time.Time{}, true},
	}
	for _, tt := range tests {
		got, err := parseDocTime(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseDocTime(%q) succeeded, want error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseDocTime(%q) failed: %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("parseDocTime(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func floatPtr(v float64) *float64 { return &v }
