package sqlite

import (
	"context"
	"testing"

	"github.com/untoldecay/TalentGraph/internal/types"
)

// testEnv provides a test environment with common setup and helpers.
// Use newTestEnv(t) to create a test environment with automatic cleanup.
type testEnv struct {
	t     *testing.T
	Store *SQLiteStore
	Ctx   context.Context
}

// newTestEnv creates a new test environment with a configured store.
// The store is automatically cleaned up when the test completes.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := newTestStore(t, "")
	return &testEnv{
		t:     t,
		Store: store,
		Ctx:   context.Background(),
	}
}

// SubmitArticle submits an article with the given title and URL.
// Returns the article with ID populated.
func (e *testEnv) SubmitArticle(title, url string) *types.Article {
	e.t.Helper()
	a := &types.Article{
		URL:     url,
		Title:   title,
		Content: "Body of " + title,
		Source:  "test-feed",
	}
	if _, err := e.Store.SubmitArticle(e.Ctx, a); err != nil {
		e.t.Fatalf("SubmitArticle(%q) failed: %v", url, err)
	}
	return a
}

// SubmitHighSignal submits an article and classifies it as a high-signal
// occurrence of the given event type, leaving it pending extraction.
func (e *testEnv) SubmitHighSignal(title, url string, eventType types.EventType) *types.Article {
	e.t.Helper()
	a := e.SubmitArticle(title, url)
	err := e.Store.SetClassification(e.Ctx, a.ID, eventType, 0.8, true, []string{"raised"})
	if err != nil {
		e.t.Fatalf("SetClassification(%d) failed: %v", a.ID, err)
	}
	got, err := e.Store.GetArticle(e.Ctx, a.ID)
	if err != nil {
		e.t.Fatalf("GetArticle(%d) failed: %v", a.ID, err)
	}
	return got
}

// CreateEntity upserts an entity and returns its ID.
func (e *testEnv) CreateEntity(name string, kind types.EntityKind) int64 {
	e.t.Helper()
	id, err := e.Store.UpsertEntity(e.Ctx, name, kind, nil)
	if err != nil {
		e.t.Fatalf("UpsertEntity(%q) failed: %v", name, err)
	}
	return id
}

// Entity fetches an entity by ID.
func (e *testEnv) Entity(id int64) *types.Entity {
	e.t.Helper()
	ent, err := e.Store.GetEntity(e.Ctx, id)
	if err != nil {
		e.t.Fatalf("GetEntity(%d) failed: %v", id, err)
	}
	return ent
}

// AddRelationship inserts a relationship row with the given endpoints and
// provenance URL.
func (e *testEnv) AddRelationship(subjectID int64, predicate types.Predicate, objectID int64, sourceURL string) *types.Relationship {
	e.t.Helper()
	rel := &types.Relationship{
		SubjectID:  subjectID,
		Predicate:  predicate,
		ObjectID:   objectID,
		Confidence: 0.8,
		SourceURL:  sourceURL,
		SourceKind: types.SourceNews,
		IsCurrent:  true,
	}
	if _, err := e.Store.InsertRelationship(e.Ctx, rel); err != nil {
		e.t.Fatalf("InsertRelationship(%d %s %d) failed: %v", subjectID, predicate, objectID, err)
	}
	return rel
}

// Facts runs QueryFacts and fails the test on error.
func (e *testEnv) Facts(filter types.FactFilter) []*types.Fact {
	e.t.Helper()
	facts, err := e.Store.QueryFacts(e.Ctx, filter)
	if err != nil {
		e.t.Fatalf("QueryFacts failed: %v", err)
	}
	return facts
}

// newTestStore creates a SQLiteStore backed by a temp-dir database file.
//
// File-based databases are more reliable than in-memory for connection
// pool scenarios: the standard ":memory:" creates a database per
// connection, so pooled connections would each see different data.
//
// To override, pass a custom dbPath.
func newTestStore(t *testing.T, dbPath string) *SQLiteStore {
	t.Helper()

	if dbPath == "" {
		dbPath = t.TempDir() + "/test.db"
	}

	ctx := context.Background()
	store, err := New(ctx, dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	t.Cleanup(func() {
		if cerr := store.Close(); cerr != nil {
			t.Fatalf("Failed to close test database: %v", cerr)
		}
	})

	return store
}
