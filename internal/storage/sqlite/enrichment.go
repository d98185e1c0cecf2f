package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/untoldecay/TalentGraph/internal/types"
)

// UpsertEnrichment stores fetched background detail for an entity, one
// record per (entity, source). Refreshing replaces the previous record.
func (s *SQLiteStore) UpsertEnrichment(ctx context.Context, entityID int64, source, summary string, attrs map[string]string) error {
	return upsertEnrichment(ctx, s.db, entityID, source, summary, attrs)
}

func (t *sqliteTx) UpsertEnrichment(ctx context.Context, entityID int64, source, summary string, attrs map[string]string) error {
	return upsertEnrichment(ctx, t.conn, entityID, source, summary, attrs)
}

func upsertEnrichment(ctx context.Context, q querier, entityID int64, source, summary string, attrs map[string]string) error {
	if source == "" {
		return fmt.Errorf("enrichment source is required")
	}
	encoded, err := json.Marshal(attributesOrEmpty(attrs))
	if err != nil {
		return fmt.Errorf("failed to encode enrichment attributes: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO enrichment (entity_id, source, summary, attributes, fetched_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(entity_id, source) DO UPDATE SET
			summary = excluded.summary,
			attributes = excluded.attributes,
			fetched_at = CURRENT_TIMESTAMP`,
		entityID, source, summary, string(encoded))
	if err != nil {
		return fmt.Errorf("failed to upsert enrichment: %w", err)
	}
	return nil
}

// GetEnrichment returns every enrichment record attached to an entity.
func (s *SQLiteStore) GetEnrichment(ctx context.Context, entityID int64) ([]*types.Enrichment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, source, summary, attributes, fetched_at
		FROM enrichment
		WHERE entity_id = ?
		ORDER BY source ASC`, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query enrichment: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*types.Enrichment
	for rows.Next() {
		var e types.Enrichment
		var attrs string
		if err := rows.Scan(&e.EntityID, &e.Source, &e.Summary, &attrs, &e.FetchedAt); err != nil {
			return nil, fmt.Errorf("failed to scan enrichment: %w", err)
		}
		if attrs != "" && attrs != "{}" {
			if err := json.Unmarshal([]byte(attrs), &e.Attributes); err != nil {
				return nil, fmt.Errorf("failed to decode enrichment attributes: %w", err)
			}
		}
		records = append(records, &e)
	}
	return records, rows.Err()
}

// MoveEnrichment reassigns enrichment records from a merged entity to its
// canonical one. A record whose source the target already has stays on
// the merged row; the target's own fetch wins.
func (s *SQLiteStore) MoveEnrichment(ctx context.Context, fromEntityID, toEntityID int64) (int, error) {
	return moveEnrichment(ctx, s.db, fromEntityID, toEntityID)
}

func (t *sqliteTx) MoveEnrichment(ctx context.Context, fromEntityID, toEntityID int64) (int, error) {
	return moveEnrichment(ctx, t.conn, fromEntityID, toEntityID)
}

func moveEnrichment(ctx context.Context, q querier, fromID, toID int64) (int, error) {
	if fromID == toID {
		return 0, nil
	}
	res, err := q.ExecContext(ctx,
		`UPDATE OR IGNORE enrichment SET entity_id = ? WHERE entity_id = ?`,
		toID, fromID)
	if err != nil {
		return 0, fmt.Errorf("failed to move enrichment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to move enrichment: %w", err)
	}
	return int(n), nil
}

// EntitiesNeedingEnrichment lists active entities of a kind that have no
// enrichment record from the given source yet, most-mentioned first.
func (s *SQLiteStore) EntitiesNeedingEnrichment(ctx context.Context, kind types.EntityKind, source string, limit int) ([]*types.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+prefixedEntityColumns("e")+`
		FROM entities e
		WHERE e.canonical_id IS NULL
		  AND (? = '' OR e.kind = ?)
		  AND NOT EXISTS (
			SELECT 1 FROM enrichment en
			WHERE en.entity_id = e.id AND en.source = ?
		  )
		ORDER BY e.mention_count DESC, e.id ASC
		LIMIT ?`,
		string(kind), string(kind), source, limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list entities needing enrichment: %w", err)
	}
	return collectEntities(rows)
}
