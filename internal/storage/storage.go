// Package storage defines the interface for TalentGraph storage backends:
// the article store (processing state machine) and the graph store
// (entities, relationships, events, filings, bookkeeping).
package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/untoldecay/TalentGraph/internal/types"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert collides with a uniqueness
// constraint that callers are expected to treat as a no-op (duplicate
// article URL/hash, duplicate relationship provenance row, duplicate
// filing accession number).
var ErrDuplicate = errors.New("duplicate")

// ErrCanonicalCycle is returned when setting a canonical pointer would
// create a cycle in the canonical chain. Cycles are a defect and are
// rejected at write time, never followed.
var ErrCanonicalCycle = errors.New("canonical chain cycle")

// ErrNoPendingWork is returned by ClaimNextArticle when no high-signal
// article is awaiting extraction.
var ErrNoPendingWork = errors.New("no pending work")

// Transaction provides atomic multi-operation support within a single
// database transaction.
//
// The Transaction interface exposes the subset of Store methods that
// execute within one transaction. This is how the extraction stage keeps
// its crash-safety contract: graph writes and the article's status flip to
// extracted commit together or not at all — an article can never be marked
// extracted unless its relationships are durable.
//
// # Transaction Semantics
//
//   - All operations within the transaction share the same database connection
//   - Changes are not visible to other connections until commit
//   - If any operation returns an error, the transaction is rolled back
//   - If the callback function panics, the transaction is rolled back
//   - On successful return from the callback, the transaction is committed
//
// # SQLite Specifics
//
//   - Uses BEGIN IMMEDIATE mode to acquire the write lock early
//   - IMMEDIATE mode serializes concurrent transactions properly
type Transaction interface {
	// Graph writes
	UpsertEntity(ctx context.Context, name string, kind types.EntityKind, attrs map[string]string) (int64, error)
	AddAlias(ctx context.Context, entityID int64, alias string) error
	InsertRelationship(ctx context.Context, rel *types.Relationship) (int64, error)
	UpdateEntityKind(ctx context.Context, entityID int64, kind types.EntityKind) error
	SetCanonical(ctx context.Context, entityID, canonicalID int64) error
	RedirectRelationships(ctx context.Context, fromEntityID, toEntityID int64) (int, error)
	AddMentions(ctx context.Context, entityID int64, n int) error
	UpsertEvent(ctx context.Context, ev *types.EventRecord) (int64, error)
	SetRelationshipEvent(ctx context.Context, relationshipID, eventID int64, confidence float64) error
	SetEventCanonical(ctx context.Context, eventID, canonicalEventID int64) error
	RedirectEvents(ctx context.Context, fromEntityID, toEntityID int64) (int, error)
	MoveEnrichment(ctx context.Context, fromEntityID, toEntityID int64) (int, error)
	UpsertEnrichment(ctx context.Context, entityID int64, source, summary string, attrs map[string]string) error

	// Article state transitions
	MarkArticleExtracted(ctx context.Context, articleID int64) error
	MarkArticleFailed(ctx context.Context, articleID int64, reason string) error

	// Read-your-writes within the transaction
	GetEntity(ctx context.Context, id int64) (*types.Entity, error)
	FindEntity(ctx context.Context, name string) (*types.Entity, error)
	ResolveCanonical(ctx context.Context, entityID int64) (*types.Entity, error)
}

// Store is the interface for TalentGraph storage backends.
type Store interface {
	// Articles
	SubmitArticle(ctx context.Context, a *types.Article) (int64, error)
	GetArticle(ctx context.Context, id int64) (*types.Article, error)
	GetArticleByURL(ctx context.Context, url string) (*types.Article, error)
	SearchArticles(ctx context.Context, filter types.ArticleFilter) ([]*types.Article, error)
	UnclassifiedArticles(ctx context.Context, limit int) ([]*types.Article, error)
	// HighSignalPending is the orchestrator's work-selection query:
	// is_high_signal AND extraction_status = pending. Every extraction
	// scan goes through this method; there is no other path.
	HighSignalPending(ctx context.Context, limit int) ([]*types.Article, error)
	FailedArticles(ctx context.Context, limit int) ([]*types.Article, error)
	SetClassification(ctx context.Context, articleID int64, eventType types.EventType, confidence float64, highSignal bool, keywords []string) error
	// ClaimNextArticle atomically claims the next high-signal pending
	// article for extraction. Claims older than staleAfter are treated as
	// abandoned (crashed worker) and re-claimable. Returns ErrNoPendingWork
	// when the scan is empty.
	ClaimNextArticle(ctx context.Context, staleAfter time.Duration) (*types.Article, error)
	ReleaseClaim(ctx context.Context, articleID int64) error
	MarkArticleExtracted(ctx context.Context, articleID int64) error
	MarkArticleFailed(ctx context.Context, articleID int64, reason string) error
	ResetArticle(ctx context.Context, articleID int64) error
	ArticleStats(ctx context.Context) (*types.ArticleStats, error)

	// Entities. Name-taking methods normalize internally, so callers pass
	// surface forms; passing an already-normalized name is equivalent.
	UpsertEntity(ctx context.Context, name string, kind types.EntityKind, attrs map[string]string) (int64, error)
	GetEntity(ctx context.Context, id int64) (*types.Entity, error)
	// FindEntity matches on the normalized name only. LookupEntity also
	// consults the alias table.
	FindEntity(ctx context.Context, name string) (*types.Entity, error)
	LookupEntity(ctx context.Context, name string) (*types.Entity, error)
	SearchEntities(ctx context.Context, namePattern string, limit int) ([]*types.Entity, error)
	// ActiveEntities lists entities not merged away (canonical_id NULL),
	// optionally restricted to one kind. A zero kind means all kinds.
	ActiveEntities(ctx context.Context, kind types.EntityKind, limit int) ([]*types.Entity, error)
	GetAliases(ctx context.Context, entityID int64) ([]string, error)
	AddAlias(ctx context.Context, entityID int64, alias string) error
	UpdateEntityKind(ctx context.Context, entityID int64, kind types.EntityKind) error
	// SetCanonical points entityID at canonicalID, flattening the target
	// through its own chain first and rejecting cycles with
	// ErrCanonicalCycle.
	SetCanonical(ctx context.Context, entityID, canonicalID int64) error
	// ResolveCanonical follows the canonical chain from entityID to its
	// fixed point and returns the canonical entity.
	ResolveCanonical(ctx context.Context, entityID int64) (*types.Entity, error)
	AddMentions(ctx context.Context, entityID int64, n int) error

	// Relationships
	InsertRelationship(ctx context.Context, rel *types.Relationship) (int64, error)
	RedirectRelationships(ctx context.Context, fromEntityID, toEntityID int64) (int, error)
	QueryFacts(ctx context.Context, filter types.FactFilter) ([]*types.Fact, error)
	AggregateFacts(ctx context.Context, filter types.FactFilter) ([]*types.AggregatedFact, error)
	// NewsFundingFacts returns news-sourced FUNDED_BY facts that are not
	// yet linked to an event, the cross-referencer's work set.
	NewsFundingFacts(ctx context.Context, limit int) ([]*types.Fact, error)
	SetRelationshipEvent(ctx context.Context, relationshipID, eventID int64, confidence float64) error

	// Events
	UpsertEvent(ctx context.Context, ev *types.EventRecord) (int64, error)
	FindEvent(ctx context.Context, companyEntityID int64, eventType types.EventType, around *time.Time, window time.Duration) (*types.EventRecord, error)
	// SetEventCanonical marks eventID as a duplicate of canonicalEventID,
	// mirroring entity canonicalization (chains flattened, cycles rejected).
	SetEventCanonical(ctx context.Context, eventID, canonicalEventID int64) error
	// RedirectEvents moves a merged entity's events to its canonical
	// entity, marking same-type same-day collisions as duplicates.
	RedirectEvents(ctx context.Context, fromEntityID, toEntityID int64) (int, error)

	// Enrichment
	UpsertEnrichment(ctx context.Context, entityID int64, source, summary string, attrs map[string]string) error
	GetEnrichment(ctx context.Context, entityID int64) ([]*types.Enrichment, error)
	EntitiesNeedingEnrichment(ctx context.Context, kind types.EntityKind, source string, limit int) ([]*types.Entity, error)
	// MoveEnrichment reassigns enrichment records during an entity merge;
	// records the target already has from the same source stay put.
	MoveEnrichment(ctx context.Context, fromEntityID, toEntityID int64) (int, error)

	// Filings
	InsertFiling(ctx context.Context, f *types.Filing) (int64, error)
	RecentFilings(ctx context.Context, since time.Time, limit int) ([]*types.Filing, error)

	// Feeds
	UpsertFeed(ctx context.Context, feed *types.Feed) error
	RecordFeedFetch(ctx context.Context, name string, ok bool, seconds float64) error
	ListFeeds(ctx context.Context) ([]*types.Feed, error)

	// Pipeline runs
	RecordRun(ctx context.Context, run *types.PipelineRun) error
	RecentRuns(ctx context.Context, limit int) ([]*types.PipelineRun, error)

	// Statistics
	GraphStats(ctx context.Context) (*types.GraphStats, error)
	// RelationshipSources counts relationships per source URL.
	RelationshipSources(ctx context.Context) (map[string]int, error)

	// RunInTransaction executes fn within a database transaction.
	//
	//   - If fn returns nil, the transaction is committed
	//   - If fn returns an error, the transaction is rolled back
	//   - If fn panics, the transaction is rolled back and the panic re-raised
	//   - Uses BEGIN IMMEDIATE for SQLite to acquire the write lock early
	RunInTransaction(ctx context.Context, fn func(tx Transaction) error) error

	// Lifecycle
	Close() error
	Path() string

	// UnderlyingDB returns the underlying *sql.DB connection. Provided for
	// extensions that need their own tables in the same database.
	// Direct access bypasses the storage layer; use with caution.
	UnderlyingDB() *sql.DB
}
