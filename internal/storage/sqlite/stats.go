package sqlite

import (
	"context"
	"fmt"

	"github.com/untoldecay/TalentGraph/internal/types"
)

// GraphStats summarizes the graph side of the store: entity and
// relationship counts with per-kind and per-predicate breakdowns.
// Merged entities are counted separately and excluded from the
// per-kind breakdown.
func (s *SQLiteStore) GraphStats(ctx context.Context) (*types.GraphStats, error) {
	stats := &types.GraphStats{
		ByKind:      map[string]int{},
		ByPredicate: map[string]int{},
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM entities WHERE canonical_id IS NULL),
			(SELECT COUNT(*) FROM entities WHERE canonical_id IS NOT NULL),
			(SELECT COUNT(*) FROM relationships),
			(SELECT COUNT(*) FROM events),
			(SELECT COUNT(*) FROM filings)`)
	err := row.Scan(&stats.Entities, &stats.MergedEntities,
		&stats.Relationships, &stats.Events, &stats.Filings)
	if err != nil {
		return nil, fmt.Errorf("failed to get graph stats: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, COUNT(*) FROM entities
		WHERE canonical_id IS NULL
		GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("failed to get entity kind stats: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("failed to scan kind stats: %w", err)
		}
		stats.ByKind[kind] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prows, err := s.db.QueryContext(ctx, `
		SELECT predicate, COUNT(*) FROM relationships
		GROUP BY predicate`)
	if err != nil {
		return nil, fmt.Errorf("failed to get predicate stats: %w", err)
	}
	defer func() { _ = prows.Close() }()
	for prows.Next() {
		var predicate string
		var n int
		if err := prows.Scan(&predicate, &n); err != nil {
			return nil, fmt.Errorf("failed to scan predicate stats: %w", err)
		}
		stats.ByPredicate[predicate] = n
	}
	return stats, prows.Err()
}

// RelationshipSources counts relationship rows per source URL, the input
// for source-quality reporting.
func (s *SQLiteStore) RelationshipSources(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_url, COUNT(*) FROM relationships
		WHERE source_url != ''
		GROUP BY source_url`)
	if err != nil {
		return nil, fmt.Errorf("failed to get source stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := map[string]int{}
	for rows.Next() {
		var url string
		var n int
		if err := rows.Scan(&url, &n); err != nil {
			return nil, fmt.Errorf("failed to scan source stats: %w", err)
		}
		counts[url] = n
	}
	return counts, rows.Err()
}
