package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/untoldecay/TalentGraph/internal/storage"
	"github.com/untoldecay/TalentGraph/internal/types"
)

const eventColumns = `id, event_type, company_entity_id, event_date, amount, canonical_event_id, created_at`

// UpsertEvent records a canonicalized occurrence. An event with the same
// type, company, and calendar date as an existing one reuses that row,
// filling in an amount the first observation lacked. Writers are
// serialized by the pipeline, so the lookup-then-insert pair is safe.
func (s *SQLiteStore) UpsertEvent(ctx context.Context, ev *types.EventRecord) (int64, error) {
	return upsertEvent(ctx, s.db, ev)
}

func (t *sqliteTx) UpsertEvent(ctx context.Context, ev *types.EventRecord) (int64, error) {
	return upsertEvent(ctx, t.conn, ev)
}

func upsertEvent(ctx context.Context, q querier, ev *types.EventRecord) (int64, error) {
	if ev.EventType == types.EventNone {
		return 0, fmt.Errorf("event type is required")
	}
	if ev.CompanyEntityID == 0 {
		return 0, fmt.Errorf("event company is required")
	}

	row := q.QueryRowContext(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE event_type = ? AND company_entity_id = ?
		  AND ((event_date IS NULL AND ? IS NULL) OR date(event_date) = date(?))
		ORDER BY id ASC
		LIMIT 1`,
		string(ev.EventType), ev.CompanyEntityID,
		timePtrArg(ev.EventDate), timePtrArg(ev.EventDate))
	existing, err := scanEvent(row)
	if err == nil {
		if existing.Amount == nil && ev.Amount != nil {
			if _, err := q.ExecContext(ctx,
				`UPDATE events SET amount = ? WHERE id = ?`, *ev.Amount, existing.ID); err != nil {
				return 0, fmt.Errorf("failed to update event amount: %w", err)
			}
		}
		ev.ID = existing.ID
		return existing.ID, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return 0, err
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO events (event_type, company_entity_id, event_date, amount, canonical_event_id)
		VALUES (?, ?, ?, ?, ?)`,
		string(ev.EventType), ev.CompanyEntityID,
		timePtrArg(ev.EventDate), floatPtrArg(ev.Amount), ev.CanonicalEventID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to insert event: %w", err)
	}
	ev.ID = id
	return id, nil
}

// FindEvent returns the event of the given type for a company closest to
// the reference date within the window. A nil reference date matches the
// most recent event of that type regardless of date.
func (s *SQLiteStore) FindEvent(ctx context.Context, companyEntityID int64, eventType types.EventType, around *time.Time, window time.Duration) (*types.EventRecord, error) {
	if around == nil {
		row := s.db.QueryRowContext(ctx, `
			SELECT `+eventColumns+` FROM events
			WHERE company_entity_id = ? AND event_type = ?
			ORDER BY event_date DESC, id DESC
			LIMIT 1`, companyEntityID, string(eventType))
		return scanEvent(row)
	}

	lo := around.Add(-window)
	hi := around.Add(window)
	row := s.db.QueryRowContext(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE company_entity_id = ? AND event_type = ?
		  AND event_date IS NOT NULL
		  AND event_date >= ? AND event_date <= ?
		ORDER BY abs(julianday(event_date) - julianday(?)) ASC, id ASC
		LIMIT 1`,
		companyEntityID, string(eventType), lo, hi, *around)
	return scanEvent(row)
}

// SetEventCanonical points a duplicate event at the canonical row for
// the same occurrence, flattening through any existing chain. Mirrors
// entity canonicalization: duplicate rows are kept, never deleted.
func (s *SQLiteStore) SetEventCanonical(ctx context.Context, eventID, canonicalEventID int64) error {
	return setEventCanonical(ctx, s.db, eventID, canonicalEventID)
}

func (t *sqliteTx) SetEventCanonical(ctx context.Context, eventID, canonicalEventID int64) error {
	return setEventCanonical(ctx, t.conn, eventID, canonicalEventID)
}

func setEventCanonical(ctx context.Context, q querier, eventID, canonicalEventID int64) error {
	target, err := resolveCanonicalEvent(ctx, q, canonicalEventID)
	if err != nil {
		return fmt.Errorf("failed to resolve canonical event: %w", err)
	}
	if target == eventID {
		return storage.ErrCanonicalCycle
	}

	res, err := q.ExecContext(ctx,
		`UPDATE events SET canonical_event_id = ? WHERE id = ?`, target, eventID)
	if err != nil {
		return fmt.Errorf("failed to set canonical event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to set canonical event: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}

	_, err = q.ExecContext(ctx,
		`UPDATE events SET canonical_event_id = ? WHERE canonical_event_id = ?`, target, eventID)
	if err != nil {
		return fmt.Errorf("failed to flatten canonical event chain: %w", err)
	}
	return nil
}

func resolveCanonicalEvent(ctx context.Context, q querier, id int64) (int64, error) {
	const maxHops = 16
	seen := map[int64]bool{}
	for hops := 0; hops < maxHops; hops++ {
		if seen[id] {
			return 0, storage.ErrCanonicalCycle
		}
		seen[id] = true

		var canonical sql.NullInt64
		err := q.QueryRowContext(ctx,
			`SELECT canonical_event_id FROM events WHERE id = ?`, id).Scan(&canonical)
		if err == sql.ErrNoRows {
			return 0, storage.ErrNotFound
		}
		if err != nil {
			return 0, fmt.Errorf("failed to load event: %w", err)
		}
		if !canonical.Valid {
			return id, nil
		}
		id = canonical.Int64
	}
	return 0, storage.ErrCanonicalCycle
}

// RedirectEvents repoints events from a merged entity to its canonical
// one. An event that matches one already on the target (same type, same
// calendar day) is additionally marked canonical to the target's row so
// the occurrence is not counted twice. Returns the number of events
// repointed.
func (s *SQLiteStore) RedirectEvents(ctx context.Context, fromEntityID, toEntityID int64) (int, error) {
	return redirectEvents(ctx, s.db, fromEntityID, toEntityID)
}

func (t *sqliteTx) RedirectEvents(ctx context.Context, fromEntityID, toEntityID int64) (int, error) {
	return redirectEvents(ctx, t.conn, fromEntityID, toEntityID)
}

func redirectEvents(ctx context.Context, q querier, fromEntityID, toEntityID int64) (int, error) {
	if fromEntityID == toEntityID {
		return 0, nil
	}

	type dupPair struct{ src, dst int64 }
	rows, err := q.QueryContext(ctx, `
		SELECT src.id, min(dst.id)
		FROM events src
		JOIN events dst ON dst.company_entity_id = ?
		 AND dst.canonical_event_id IS NULL
		 AND dst.event_type = src.event_type
		 AND ((dst.event_date IS NULL AND src.event_date IS NULL)
		      OR date(dst.event_date) = date(src.event_date))
		WHERE src.company_entity_id = ? AND src.canonical_event_id IS NULL
		GROUP BY src.id`, toEntityID, fromEntityID)
	if err != nil {
		return 0, fmt.Errorf("failed to find duplicate events: %w", err)
	}
	var dups []dupPair
	for rows.Next() {
		var p dupPair
		if err := rows.Scan(&p.src, &p.dst); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("failed to scan duplicate event: %w", err)
		}
		dups = append(dups, p)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, fmt.Errorf("failed to find duplicate events: %w", err)
	}
	_ = rows.Close()

	res, err := q.ExecContext(ctx,
		`UPDATE events SET company_entity_id = ? WHERE company_entity_id = ?`,
		toEntityID, fromEntityID)
	if err != nil {
		return 0, fmt.Errorf("failed to redirect events: %w", err)
	}
	moved, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to redirect events: %w", err)
	}

	for _, p := range dups {
		if _, err := q.ExecContext(ctx,
			`UPDATE events SET canonical_event_id = ? WHERE id = ?`, p.dst, p.src); err != nil {
			return 0, fmt.Errorf("failed to mark duplicate event: %w", err)
		}
	}
	return int(moved), nil
}

func scanEvent(row rowScanner) (*types.EventRecord, error) {
	var ev types.EventRecord
	var eventDate sql.NullTime
	var amount sql.NullFloat64
	var canonical sql.NullInt64

	err := row.Scan(
		&ev.ID, (*string)(&ev.EventType), &ev.CompanyEntityID,
		&eventDate, &amount, &canonical, &ev.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}
	if eventDate.Valid {
		ev.EventDate = &eventDate.Time
	}
	if amount.Valid {
		ev.Amount = &amount.Float64
	}
	if canonical.Valid {
		ev.CanonicalEventID = &canonical.Int64
	}
	return &ev, nil
}

func floatPtrArg(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}
