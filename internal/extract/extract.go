// Package extract turns article text into structured entity and
// relationship drafts. It defines the extractor contract and failure
// taxonomy, an Anthropic-backed implementation, the strict response
// parser, and the draft validator applied before anything reaches the
// graph.
package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/untoldecay/TalentGraph/internal/types"
)

// Extractor is the adapter contract for entity/relationship extraction.
//
// Extract must be idempotent-safe: calling it repeatedly on the same
// article has no side effects attributable to the call itself.
// Implementations retry transient failures (rate limits, 5xx, network
// timeouts) internally with bounded exponential backoff; an error
// returned to the caller is final for this attempt. Error classes:
//
//   - *SchemaViolationError: output failed the response contract.
//     Non-retryable; the article is marked failed with the reason.
//   - context.Canceled / parent deadline: nothing retried, article
//     state unchanged.
//   - anything else: transient failures exhausted the retry budget.
type Extractor interface {
	Extract(ctx context.Context, title, content string) (*Result, error)
}

// EntityDraft is an extracted entity before validation and persistence.
type EntityDraft struct {
	Name string
	Kind types.EntityKind
	Role string
}

// RelationshipDraft is an extracted relationship before validation.
// Kinds are looked up from the entity drafts; unknown is legitimate.
type RelationshipDraft struct {
	Subject     string
	SubjectKind types.EntityKind
	Predicate   types.Predicate
	Object      string
	ObjectKind  types.EntityKind
	Context     string
	Confidence  float64
}

// Amounts carries the dollar figures the model surfaced, verbatim.
// Values are display strings ("$50M", "1,000"); ParseMoney-style
// coercion happens downstream where a number is needed.
type Amounts struct {
	Funding     string
	Acquisition string
	Valuation   string
	LayoffCount string
}

// Result is a validated extraction outcome. Zero entities and zero
// relationships is a legitimate result, not an error.
type Result struct {
	Entities      []EntityDraft
	Relationships []RelationshipDraft
	// EventDate is set when the model returned a parseable ISO date.
	// EventDateRaw preserves whatever it returned so callers can retry
	// fuzzy phrases anchored at the article's publication date.
	EventDate    *time.Time
	EventDateRaw string
	Amounts      Amounts
	RawResponse  string
}

// SchemaViolationError marks extractor output that failed the response
// contract: no JSON object, malformed JSON, or a structure the parser
// cannot accept. It is non-retryable.
type SchemaViolationError struct {
	Reason string
	Raw    string
}

func (e *SchemaViolationError) Error() string {
	return fmt.Sprintf("schema violation: %s", e.Reason)
}

// IsSchemaViolation reports whether err is (or wraps) a schema violation.
func IsSchemaViolation(err error) bool {
	var sv *SchemaViolationError
	return errors.As(err, &sv)
}
