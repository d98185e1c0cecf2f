package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/untoldecay/TalentGraph/internal/storage"
	"github.com/untoldecay/TalentGraph/internal/types"
)

const relationshipColumns = `r.id, r.subject_id, r.predicate, r.object_id, r.confidence,
	r.context, r.source_url, r.source_kind, r.event_id,
	r.event_date, r.start_date, r.end_date, r.is_current, r.created_at`

// InsertRelationship adds a provenance row for a fact. Subject and object
// are resolved through their canonical chains first, so edges never
// reference merged-away entities. A row that collides on
// (subject, predicate, object, source URL) returns ErrDuplicate.
func (s *SQLiteStore) InsertRelationship(ctx context.Context, rel *types.Relationship) (int64, error) {
	return insertRelationship(ctx, s.db, rel)
}

func (t *sqliteTx) InsertRelationship(ctx context.Context, rel *types.Relationship) (int64, error) {
	return insertRelationship(ctx, t.conn, rel)
}

func insertRelationship(ctx context.Context, q querier, rel *types.Relationship) (int64, error) {
	if !types.ValidPredicate(rel.Predicate) {
		return 0, fmt.Errorf("invalid predicate %q", rel.Predicate)
	}

	subject, err := resolveCanonical(ctx, q, rel.SubjectID)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve subject %d: %w", rel.SubjectID, err)
	}
	object, err := resolveCanonical(ctx, q, rel.ObjectID)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve object %d: %w", rel.ObjectID, err)
	}
	rel.SubjectID = subject.ID
	rel.ObjectID = object.ID

	kind := rel.SourceKind
	if kind == "" {
		kind = types.SourceNews
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO relationships (
			subject_id, predicate, object_id, confidence, context,
			source_url, source_kind, event_id, event_date, start_date, end_date, is_current
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rel.SubjectID, string(rel.Predicate), rel.ObjectID, rel.Confidence, rel.Context,
		rel.SourceURL, string(kind), rel.EventID,
		timePtrArg(rel.EventDate), timePtrArg(rel.StartDate), timePtrArg(rel.EndDate),
		boolToInt(rel.IsCurrent))
	if err != nil {
		if isUniqueConstraintError(err) {
			return 0, storage.ErrDuplicate
		}
		return 0, fmt.Errorf("failed to insert relationship: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to insert relationship: %w", err)
	}
	rel.ID = id
	return id, nil
}

// RedirectRelationships moves every edge referencing fromEntityID onto
// toEntityID, part of an entity merge. A moved row that would duplicate
// an existing (subject, predicate, object, source URL) row is dropped;
// the surviving row carries identical provenance. Returns the number of
// rows that referenced fromEntityID.
func (s *SQLiteStore) RedirectRelationships(ctx context.Context, fromEntityID, toEntityID int64) (int, error) {
	return redirectRelationships(ctx, s.db, fromEntityID, toEntityID)
}

func (t *sqliteTx) RedirectRelationships(ctx context.Context, fromEntityID, toEntityID int64) (int, error) {
	return redirectRelationships(ctx, t.conn, fromEntityID, toEntityID)
}

func redirectRelationships(ctx context.Context, q querier, fromID, toID int64) (int, error) {
	if fromID == toID {
		return 0, nil
	}

	var total int
	row := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM relationships WHERE subject_id = ? OR object_id = ?`,
		fromID, fromID)
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count relationships to redirect: %w", err)
	}
	if total == 0 {
		return 0, nil
	}

	// OR IGNORE skips moves that would collide with an existing identical
	// provenance row; the leftovers are exact duplicates and are removed.
	steps := []struct{ update, sweep string }{
		{
			`UPDATE OR IGNORE relationships SET subject_id = ? WHERE subject_id = ?`,
			`DELETE FROM relationships WHERE subject_id = ?`,
		},
		{
			`UPDATE OR IGNORE relationships SET object_id = ? WHERE object_id = ?`,
			`DELETE FROM relationships WHERE object_id = ?`,
		},
	}
	for _, st := range steps {
		if _, err := q.ExecContext(ctx, st.update, toID, fromID); err != nil {
			return 0, fmt.Errorf("failed to redirect relationships: %w", err)
		}
		if _, err := q.ExecContext(ctx, st.sweep, fromID); err != nil {
			return 0, fmt.Errorf("failed to sweep duplicate relationships: %w", err)
		}
	}
	return total, nil
}

const factSelect = `
	SELECT ` + relationshipColumns + `,
		se.name, se.kind, oe.name, oe.kind
	FROM relationships r
	JOIN entities se ON se.id = r.subject_id
	JOIN entities oe ON oe.id = r.object_id`

// QueryFacts returns relationship rows joined with their endpoint names.
// The EntityName filter resolves through aliases and canonical chains, so
// querying a merged alias finds the canonical entity's facts.
func (s *SQLiteStore) QueryFacts(ctx context.Context, filter types.FactFilter) ([]*types.Fact, error) {
	conds, args, err := s.factConds(ctx, filter)
	if err != nil {
		return nil, err
	}
	if conds == nil {
		// Entity filter named something the graph has never seen.
		return nil, nil
	}

	query := factSelect +
		"\n\tWHERE " + strings.Join(conds, " AND ") +
		"\n\tORDER BY r.created_at DESC, r.id DESC LIMIT ?"
	args = append(args, limitOrDefault(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query facts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var facts []*types.Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// factConds builds the shared WHERE clause for fact queries. A nil
// condition slice with nil error means the entity filter matched nothing.
func (s *SQLiteStore) factConds(ctx context.Context, filter types.FactFilter) ([]string, []interface{}, error) {
	conds := []string{}
	args := []interface{}{}

	if filter.Predicate != "" {
		conds = append(conds, "r.predicate = ?")
		args = append(args, string(filter.Predicate))
	}
	if filter.EntityName != "" {
		e, err := s.LookupEntity(ctx, filter.EntityName)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, nil, nil
			}
			return nil, nil, err
		}
		canonical, err := s.ResolveCanonical(ctx, e.ID)
		if err != nil {
			return nil, nil, err
		}
		conds = append(conds, "(r.subject_id = ? OR r.object_id = ?)")
		args = append(args, canonical.ID, canonical.ID)
	}
	if filter.EntityKind != "" {
		conds = append(conds, "(se.kind = ? OR oe.kind = ?)")
		args = append(args, string(filter.EntityKind), string(filter.EntityKind))
	}
	if filter.Since != nil {
		// datetime() normalizes the stored form and the bound form so the
		// comparison is not sensitive to timestamp text layout.
		conds = append(conds, "(datetime(r.event_date) >= datetime(?) OR (r.event_date IS NULL AND datetime(r.created_at) >= datetime(?)))")
		args = append(args, *filter.Since, *filter.Since)
	}
	if filter.MinConfidence > 0 {
		conds = append(conds, "r.confidence >= ?")
		args = append(args, filter.MinConfidence)
	}
	if len(conds) == 0 {
		conds = []string{"1=1"}
	}
	return conds, args, nil
}

// AggregateFacts folds provenance rows for the same
// (subject, predicate, object) into one view per fact: best single-source
// confidence with a small corroboration bonus, source count, and sample
// contexts. Underlying rows are untouched.
func (s *SQLiteStore) AggregateFacts(ctx context.Context, filter types.FactFilter) ([]*types.AggregatedFact, error) {
	facts, err := s.QueryFacts(ctx, filter)
	if err != nil {
		return nil, err
	}

	type key struct {
		subjectID int64
		predicate types.Predicate
		objectID  int64
	}
	order := []key{}
	grouped := map[key]*types.AggregatedFact{}
	sources := map[key]map[string]bool{}

	for _, f := range facts {
		k := key{f.SubjectID, f.Predicate, f.ObjectID}
		agg, ok := grouped[k]
		if !ok {
			agg = &types.AggregatedFact{
				Subject:     f.Subject,
				SubjectKind: f.SubjectKind,
				Predicate:   f.Predicate,
				Object:      f.Object,
				ObjectKind:  f.ObjectKind,
			}
			grouped[k] = agg
			sources[k] = map[string]bool{}
			order = append(order, k)
		}
		if f.Confidence > agg.Confidence {
			agg.Confidence = f.Confidence
		}
		if f.EventDate != nil && (agg.EventDate == nil || f.EventDate.Before(*agg.EventDate)) {
			agg.EventDate = f.EventDate
		}
		if f.SourceURL != "" {
			sources[k][f.SourceURL] = true
		}
		if f.Context != "" && len(agg.Contexts) < 3 {
			agg.Contexts = append(agg.Contexts, f.Context)
		}
	}

	out := make([]*types.AggregatedFact, 0, len(order))
	for _, k := range order {
		agg := grouped[k]
		agg.Sources = len(sources[k])
		if agg.Sources == 0 {
			agg.Sources = 1
		}
		// Independent corroboration nudges confidence up without ever
		// letting aggregation exceed certainty.
		bonus := 0.03 * float64(agg.Sources-1)
		if bonus > 0.15 {
			bonus = 0.15
		}
		agg.Confidence += bonus
		if agg.Confidence > 1 {
			agg.Confidence = 1
		}
		out = append(out, agg)
	}
	return out, nil
}

// NewsFundingFacts returns news-sourced FUNDED_BY rows not yet linked to
// an event. This is the cross-referencer's work set; once a row is linked
// it drops out, which is what makes re-running cross-reference a no-op.
func (s *SQLiteStore) NewsFundingFacts(ctx context.Context, limit int) ([]*types.Fact, error) {
	rows, err := s.db.QueryContext(ctx, factSelect+`
		WHERE r.predicate = ? AND r.source_kind = 'news' AND r.event_id IS NULL
		ORDER BY r.created_at ASC
		LIMIT ?`, string(types.PredicateFundedBy), limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query news funding facts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var facts []*types.Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// SetRelationshipEvent links a relationship to a corroborating event and
// raises its confidence. The link is set-once: a row already linked is
// left untouched, so applying the same match twice cannot double-boost.
func (s *SQLiteStore) SetRelationshipEvent(ctx context.Context, relationshipID, eventID int64, confidence float64) error {
	return setRelationshipEvent(ctx, s.db, relationshipID, eventID, confidence)
}

func (t *sqliteTx) SetRelationshipEvent(ctx context.Context, relationshipID, eventID int64, confidence float64) error {
	return setRelationshipEvent(ctx, t.conn, relationshipID, eventID, confidence)
}

func setRelationshipEvent(ctx context.Context, q querier, relationshipID, eventID int64, confidence float64) error {
	_, err := q.ExecContext(ctx, `
		UPDATE relationships
		SET event_id = ?, confidence = MAX(confidence, ?)
		WHERE id = ? AND event_id IS NULL`,
		eventID, confidence, relationshipID)
	if err != nil {
		return fmt.Errorf("failed to link relationship to event: %w", err)
	}
	return nil
}

func scanFact(rows *sql.Rows) (*types.Fact, error) {
	var f types.Fact
	var eventID sql.NullInt64
	var eventDate, startDate, endDate sql.NullTime
	var current int

	err := rows.Scan(
		&f.ID, &f.SubjectID, (*string)(&f.Predicate), &f.ObjectID, &f.Confidence,
		&f.Context, &f.SourceURL, (*string)(&f.SourceKind), &eventID,
		&eventDate, &startDate, &endDate, &current, &f.CreatedAt,
		&f.Subject, (*string)(&f.SubjectKind), &f.Object, (*string)(&f.ObjectKind),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan fact: %w", err)
	}
	if eventID.Valid {
		f.EventID = &eventID.Int64
	}
	if eventDate.Valid {
		f.EventDate = &eventDate.Time
	}
	if startDate.Valid {
		f.StartDate = &startDate.Time
	}
	if endDate.Valid {
		f.EndDate = &endDate.Time
	}
	f.IsCurrent = current != 0
	return &f, nil
}

func timePtrArg(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
