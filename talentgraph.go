// Package talentgraph provides a minimal public API for extending tg with
// custom tooling.
//
// Most extensions should use direct SQL queries against tg's database.
// This package exports only the essential types and functions needed for
// Go-based extensions that want to use tg's storage layer programmatically:
// opening the store, the storage interfaces, and the core domain types.
package talentgraph

import (
	"context"

	"github.com/untoldecay/TalentGraph/internal/config"
	"github.com/untoldecay/TalentGraph/internal/storage"
	"github.com/untoldecay/TalentGraph/internal/storage/sqlite"
	"github.com/untoldecay/TalentGraph/internal/types"
)

// Store is the interface for TalentGraph storage operations.
type Store = storage.Store

// Transaction provides atomic multi-operation support within a database
// transaction. Use Store.RunInTransaction() to obtain a Transaction
// instance.
type Transaction = storage.Transaction

// Sentinel errors callers branch on with errors.Is.
var (
	ErrNotFound       = storage.ErrNotFound
	ErrDuplicate      = storage.ErrDuplicate
	ErrCanonicalCycle = storage.ErrCanonicalCycle
	ErrNoPendingWork  = storage.ErrNoPendingWork
)

// Open creates (if necessary) and opens the SQLite store at the given path.
func Open(ctx context.Context, dbPath string) (Store, error) {
	return sqlite.New(ctx, dbPath)
}

// FindDatabasePath locates the tg database for the current directory tree:
// the configured db path when set, otherwise talentgraph.db inside the
// nearest .talentgraph directory.
func FindDatabasePath() string {
	return config.DBPath()
}

// FindDataDir locates the .talentgraph directory for the current directory
// tree, falling back to .talentgraph under the working directory.
func FindDataDir() string {
	return config.DataDir()
}

// Core types from internal/types
type (
	Article              = types.Article
	ClassificationStatus = types.ClassificationStatus
	ExtractionStatus     = types.ExtractionStatus
	EventType            = types.EventType
	Entity               = types.Entity
	EntityKind           = types.EntityKind
	Relationship         = types.Relationship
	Predicate            = types.Predicate
	SourceKind           = types.SourceKind
	Fact                 = types.Fact
	AggregatedFact       = types.AggregatedFact
	EventRecord          = types.EventRecord
	Filing               = types.Filing
	Officer              = types.Officer
	Enrichment           = types.Enrichment
	Feed                 = types.Feed
	PipelineRun          = types.PipelineRun
	ArticleFilter        = types.ArticleFilter
	FactFilter           = types.FactFilter
	ArticleStats         = types.ArticleStats
	GraphStats           = types.GraphStats
)

// Processing status constants
const (
	ClassificationPending = types.ClassificationPending
	ClassificationDone    = types.ClassificationDone
	ExtractionPending     = types.ExtractionPending
	ExtractionExtracted   = types.ExtractionExtracted
	ExtractionFailed      = types.ExtractionFailed
)

// EventType constants
const (
	EventNone          = types.EventNone
	EventFunding       = types.EventFunding
	EventAcquisition   = types.EventAcquisition
	EventLayoff        = types.EventLayoff
	EventExecutiveMove = types.EventExecutiveMove
	EventIPO           = types.EventIPO
)

// EntityKind constants
const (
	KindCompany  = types.KindCompany
	KindPerson   = types.KindPerson
	KindInvestor = types.KindInvestor
	KindUnknown  = types.KindUnknown
)

// Predicate vocabulary
const (
	PredicateAcquired     = types.PredicateAcquired
	PredicateFundedBy     = types.PredicateFundedBy
	PredicateHiredBy      = types.PredicateHiredBy
	PredicateDepartedFrom = types.PredicateDepartedFrom
	PredicateFounded      = types.PredicateFounded
	PredicateCEOOf        = types.PredicateCEOOf
	PredicateCTOOf        = types.PredicateCTOOf
	PredicateCFOOf        = types.PredicateCFOOf
	PredicateLaidOff      = types.PredicateLaidOff
	PredicateInvestedIn   = types.PredicateInvestedIn
)

// SourceKind constants
const (
	SourceNews   = types.SourceNews
	SourceFiling = types.SourceFiling
)
