// Package types defines the core domain types shared across TalentGraph:
// articles and their per-stage processing state, graph entities and
// relationships, derived events, filings, and pipeline bookkeeping.
package types

import "time"

// ClassificationStatus tracks whether an article has been through the
// classifier. Transitions are performed only by the pipeline orchestrator.
type ClassificationStatus string

const (
	ClassificationPending ClassificationStatus = "pending"
	ClassificationDone    ClassificationStatus = "classified"
)

// ExtractionStatus tracks an article's extraction stage. The transition to
// Extracted happens strictly after the corresponding graph write commits;
// Failed is terminal for the default scan but remains queryable for manual
// reprocessing.
type ExtractionStatus string

const (
	ExtractionPending   ExtractionStatus = "pending"
	ExtractionExtracted ExtractionStatus = "extracted"
	ExtractionFailed    ExtractionStatus = "failed"
)

// EventType is the classifier's label for an article. The zero value means
// no tracked event type matched.
type EventType string

const (
	EventNone          EventType = ""
	EventFunding       EventType = "funding"
	EventAcquisition   EventType = "acquisition"
	EventLayoff        EventType = "layoff"
	EventExecutiveMove EventType = "executive_move"
	EventIPO           EventType = "ipo"
)

// EventTypes lists all tracked event types in tie-break priority order:
// when an article scores equally for several types, the earliest wins.
var EventTypes = []EventType{
	EventFunding,
	EventAcquisition,
	EventExecutiveMove,
	EventLayoff,
	EventIPO,
}

// Predicate is the fixed relationship vocabulary. Anything outside this set
// is rejected at validation time.
type Predicate string

const (
	PredicateAcquired     Predicate = "ACQUIRED"
	PredicateFundedBy     Predicate = "FUNDED_BY"
	PredicateHiredBy      Predicate = "HIRED_BY"
	PredicateDepartedFrom Predicate = "DEPARTED_FROM"
	PredicateFounded      Predicate = "FOUNDED"
	PredicateCEOOf        Predicate = "CEO_OF"
	PredicateCTOOf        Predicate = "CTO_OF"
	PredicateCFOOf        Predicate = "CFO_OF"
	PredicateLaidOff      Predicate = "LAID_OFF"
	PredicateInvestedIn   Predicate = "INVESTED_IN"
)

// Predicates is the allowed vocabulary, in display order.
var Predicates = []Predicate{
	PredicateAcquired,
	PredicateFundedBy,
	PredicateHiredBy,
	PredicateDepartedFrom,
	PredicateFounded,
	PredicateCEOOf,
	PredicateCTOOf,
	PredicateCFOOf,
	PredicateLaidOff,
	PredicateInvestedIn,
}

// ValidPredicate reports whether p belongs to the fixed vocabulary.
func ValidPredicate(p Predicate) bool {
	for _, known := range Predicates {
		if p == known {
			return true
		}
	}
	return false
}

// EntityKind is the tagged result of entity-type inference. Unknown is a
// legitimate, retryable outcome — never a guess.
type EntityKind string

const (
	KindCompany  EntityKind = "company"
	KindPerson   EntityKind = "person"
	KindInvestor EntityKind = "investor"
	KindUnknown  EntityKind = "unknown"
)

// SourceKind distinguishes provenance classes for relationships.
type SourceKind string

const (
	SourceNews   SourceKind = "news"
	SourceFiling SourceKind = "filing"
)

// Article is a fetched document plus its processing state. Content fields
// are immutable after ingestion; state fields change only through the
// orchestrator.
type Article struct {
	ID          int64
	URL         string
	ContentHash string
	Title       string
	Content     string
	Source      string
	PublishedAt time.Time
	FetchedAt   time.Time
	// FeedPriority orders work selection; lower is processed first.
	FeedPriority int

	ClassificationStatus     ClassificationStatus
	EventType                EventType
	ClassificationConfidence float64
	IsHighSignal             bool
	MatchedKeywords          []string

	ExtractionStatus ExtractionStatus
	FailureReason    string
	ClaimedAt        *time.Time
	ExtractedAt      *time.Time
}

// Entity is a canonical-or-merged graph node. A non-nil CanonicalID marks
// this record as merged into another entity; merged entities never gain new
// relationships and are resolved through the canonical chain on read.
type Entity struct {
	ID             int64
	Name           string
	NormalizedName string
	Kind           EntityKind
	Attributes     map[string]string
	MentionCount   int
	CanonicalID    *int64
	FirstSeen      time.Time
	LastSeen       time.Time

	// Aliases is populated on demand by GetAliases / GetEntity.
	Aliases []string
}

// Relationship is a directed, typed edge with provenance. The same fact
// asserted by two sources is two rows: uniqueness is
// (subject, predicate, object, source URL), and confidence aggregation
// happens at query time, never by destructive merge.
type Relationship struct {
	ID         int64
	SubjectID  int64
	Predicate  Predicate
	ObjectID   int64
	Confidence float64
	Context    string
	SourceURL  string
	SourceKind SourceKind
	EventID    *int64
	EventDate  *time.Time
	StartDate  *time.Time
	EndDate    *time.Time
	IsCurrent  bool
	CreatedAt  time.Time
}

// Fact is a relationship joined with its canonical-resolved endpoint names,
// the shape returned by the read-only query surface.
type Fact struct {
	Relationship
	Subject     string
	SubjectKind EntityKind
	Object      string
	ObjectKind  EntityKind
}

// AggregatedFact folds provenance-distinct rows for the same
// (subject, predicate, object) into one query-time view: best confidence
// plus corroboration count. Underlying rows are untouched.
type AggregatedFact struct {
	Subject     string
	SubjectKind EntityKind
	Predicate   Predicate
	Object      string
	ObjectKind  EntityKind
	Confidence  float64 // max across sources
	Sources     int
	EventDate   *time.Time
	Contexts    []string
}

// EventRecord is a canonicalized occurrence (one funding round, one
// acquisition) that provenance-distinct relationships corroborate.
// CanonicalEventID mirrors entity canonicalization for merged duplicates.
type EventRecord struct {
	ID               int64
	EventType        EventType
	CompanyEntityID  int64
	EventDate        *time.Time
	Amount           *float64
	CanonicalEventID *int64
	CreatedAt        time.Time
}

// Officer is a named person or organization attached to a filing.
type Officer struct {
	Name  string `json:"name"`
	Title string `json:"title,omitempty"`
}

// Filing is a regulatory funding record (Form D shaped), the authoritative
// side of cross-referencing.
type Filing struct {
	ID             int64
	AccessionNo    string
	CompanyName    string
	CIK            string
	FiledAt        time.Time
	TotalAmount    *float64
	AmountSold     *float64
	State          string
	EntityType     string
	YearFounded    int
	IndustryGroup  string
	TotalInvestors int
	Officers       []Officer
	SourceURL      string
	IngestedAt     time.Time
}

// Enrichment is fetched background detail attached to an entity, one
// record per source.
type Enrichment struct {
	EntityID   int64
	Source     string
	Summary    string
	Attributes map[string]string
	FetchedAt  time.Time
}

// Feed is a registered content source with rolling health counters.
type Feed struct {
	Name                string
	URL                 string
	Priority            int
	Enabled             bool
	SuccessRate         float64
	AvgFetchSeconds     float64
	ConsecutiveFailures int
	LastFetchedAt       *time.Time
}

// PipelineRun is one batch execution's bookkeeping row.
type PipelineRun struct {
	ID                 string
	StartedAt          time.Time
	FinishedAt         *time.Time
	ArticlesSeen       int
	Classified         int
	Extracted          int
	Failed             int
	RelationshipsAdded int
	EntitiesMerged     int
	XrefMatches        int
	Notes              string
}
