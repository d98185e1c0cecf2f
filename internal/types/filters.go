package types

import "time"

// ArticleFilter narrows article scans. Nil pointer fields are unset.
type ArticleFilter struct {
	ClassificationStatus *ClassificationStatus
	ExtractionStatus     *ExtractionStatus
	HighSignal           *bool
	EventType            *EventType
	Source               string
	PublishedAfter       *time.Time
	Limit                int
}

// FactFilter narrows graph queries. EntityName matches either endpoint
// after canonical resolution (display name or alias, case-insensitive).
type FactFilter struct {
	Predicate     Predicate
	EntityName    string
	EntityKind    EntityKind
	Since         *time.Time
	MinConfidence float64
	Limit         int
}

// ArticleStats are the operator-facing health counters. PendingExtraction
// is the primary health signal: a persistently high value means extraction
// is stalled.
type ArticleStats struct {
	Total             int            `json:"total"`
	Unclassified      int            `json:"unclassified"`
	HighSignal        int            `json:"high_signal"`
	PendingExtraction int            `json:"pending_extraction"`
	Extracted         int            `json:"extracted"`
	Failed            int            `json:"failed"`
	ByEventType       map[string]int `json:"by_event_type"`
}

// GraphStats summarize the graph store contents.
type GraphStats struct {
	Entities       int            `json:"entities"`
	MergedEntities int            `json:"merged_entities"`
	Relationships  int            `json:"relationships"`
	Events         int            `json:"events"`
	Filings        int            `json:"filings"`
	ByKind         map[string]int `json:"entities_by_kind"`
	ByPredicate    map[string]int `json:"relationships_by_predicate"`
}
