package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/untoldecay/TalentGraph/internal/storage"
	"github.com/untoldecay/TalentGraph/internal/types"
)

// UpsertFeed registers a feed or updates its URL, priority, and enabled
// flag. Health counters are left alone; RecordFeedFetch owns those.
func (s *SQLiteStore) UpsertFeed(ctx context.Context, feed *types.Feed) error {
	if feed.Name == "" {
		return fmt.Errorf("feed name is required")
	}
	priority := feed.Priority
	if priority <= 0 {
		priority = 3
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feeds (name, url, priority, enabled)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			url = excluded.url,
			priority = excluded.priority,
			enabled = excluded.enabled`,
		feed.Name, feed.URL, priority, boolToInt(feed.Enabled))
	if err != nil {
		return fmt.Errorf("failed to upsert feed %q: %w", feed.Name, err)
	}
	return nil
}

// RecordFeedFetch folds one fetch outcome into the feed's rolling health:
// an exponentially weighted success rate and fetch time, plus a
// consecutive-failure streak that resets on success.
func (s *SQLiteStore) RecordFeedFetch(ctx context.Context, name string, ok bool, seconds float64) error {
	outcome := 0.0
	if ok {
		outcome = 1.0
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE feeds SET
			success_rate = success_rate * 0.9 + ? * 0.1,
			avg_fetch_seconds = CASE WHEN avg_fetch_seconds = 0 THEN ?
			                         ELSE avg_fetch_seconds * 0.9 + ? * 0.1 END,
			consecutive_failures = CASE WHEN ? THEN 0 ELSE consecutive_failures + 1 END,
			last_fetched_at = CURRENT_TIMESTAMP
		WHERE name = ?`,
		outcome, seconds, seconds, ok, name)
	if err != nil {
		return fmt.Errorf("failed to record feed fetch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to record feed fetch: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListFeeds returns all registered feeds ordered by priority.
func (s *SQLiteStore) ListFeeds(ctx context.Context) ([]*types.Feed, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, url, priority, enabled, success_rate, avg_fetch_seconds,
		       consecutive_failures, last_fetched_at
		FROM feeds
		ORDER BY priority ASC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var feeds []*types.Feed
	for rows.Next() {
		var f types.Feed
		var enabled int
		var lastFetch sql.NullTime
		err := rows.Scan(&f.Name, &f.URL, &f.Priority, &enabled, &f.SuccessRate,
			&f.AvgFetchSeconds, &f.ConsecutiveFailures, &lastFetch)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed: %w", err)
		}
		f.Enabled = enabled != 0
		if lastFetch.Valid {
			f.LastFetchedAt = &lastFetch.Time
		}
		feeds = append(feeds, &f)
	}
	return feeds, rows.Err()
}

// RecordRun persists per-run pipeline statistics. Recording the same run
// ID again replaces the row, so a run can checkpoint progress and then
// write final numbers.
func (s *SQLiteStore) RecordRun(ctx context.Context, run *types.PipelineRun) error {
	if run.ID == "" {
		return fmt.Errorf("run ID is required")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pipeline_runs (
			id, started_at, finished_at, articles_seen, classified, extracted,
			failed, relationships_added, entities_merged, xref_matches, notes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			finished_at = excluded.finished_at,
			articles_seen = excluded.articles_seen,
			classified = excluded.classified,
			extracted = excluded.extracted,
			failed = excluded.failed,
			relationships_added = excluded.relationships_added,
			entities_merged = excluded.entities_merged,
			xref_matches = excluded.xref_matches,
			notes = excluded.notes`,
		run.ID, run.StartedAt, timePtrArg(run.FinishedAt),
		run.ArticlesSeen, run.Classified, run.Extracted, run.Failed,
		run.RelationshipsAdded, run.EntitiesMerged, run.XrefMatches, run.Notes)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// RecentRuns returns the most recent pipeline runs, newest first.
func (s *SQLiteStore) RecentRuns(ctx context.Context, limit int) ([]*types.PipelineRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, articles_seen, classified, extracted,
		       failed, relationships_added, entities_merged, xref_matches, notes
		FROM pipeline_runs
		ORDER BY started_at DESC
		LIMIT ?`, limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*types.PipelineRun
	for rows.Next() {
		var r types.PipelineRun
		var finished sql.NullTime
		err := rows.Scan(&r.ID, &r.StartedAt, &finished, &r.ArticlesSeen,
			&r.Classified, &r.Extracted, &r.Failed, &r.RelationshipsAdded,
			&r.EntitiesMerged, &r.XrefMatches, &r.Notes)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if finished.Valid {
			r.FinishedAt = &finished.Time
		}
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}
