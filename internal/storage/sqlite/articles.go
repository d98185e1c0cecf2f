package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/untoldecay/TalentGraph/internal/storage"
	"github.com/untoldecay/TalentGraph/internal/types"
)

const articleColumns = `id, url, content_hash, title, content, source,
	published_at, fetched_at, feed_priority,
	classification_status, event_type, classification_confidence,
	is_high_signal, matched_keywords,
	extraction_status, failure_reason, claimed_at, extracted_at`

// SubmitArticle inserts a fetched article. Duplicate URLs or content
// hashes return storage.ErrDuplicate (a no-op for callers, not a failure).
// If ContentHash is unset it is computed from title and content.
func (s *SQLiteStore) SubmitArticle(ctx context.Context, a *types.Article) (int64, error) {
	if a.URL == "" {
		return 0, fmt.Errorf("article URL is required")
	}
	if a.ContentHash == "" {
		a.ContentHash = HashContent(a.Title, a.Content)
	}
	if a.FeedPriority == 0 {
		a.FeedPriority = 3
	}

	var published interface{}
	if !a.PublishedAt.IsZero() {
		published = a.PublishedAt.UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO articles (url, content_hash, title, content, source, published_at, feed_priority)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.URL, a.ContentHash, a.Title, a.Content, a.Source, published, a.FeedPriority)
	if err != nil {
		if isUniqueConstraintError(err) {
			return 0, storage.ErrDuplicate
		}
		return 0, fmt.Errorf("failed to insert article: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read article id: %w", err)
	}
	a.ID = id
	return id, nil
}

// HashContent returns the content identity hash used for duplicate
// detection: hex sha256 over title and content.
func HashContent(title, content string) string {
	h := sha256.New()
	h.Write([]byte(title))
	h.Write([]byte{0})
	h.Write([]byte(content))
	return hex.EncodeToString(h.Sum(nil))
}

// GetArticle retrieves an article by ID.
func (s *SQLiteStore) GetArticle(ctx context.Context, id int64) (*types.Article, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+articleColumns+" FROM articles WHERE id = ?", id)
	return scanArticle(row)
}

// GetArticleByURL retrieves an article by its unique URL.
func (s *SQLiteStore) GetArticleByURL(ctx context.Context, url string) (*types.Article, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+articleColumns+" FROM articles WHERE url = ?", url)
	return scanArticle(row)
}

// UnclassifiedArticles returns articles awaiting classification, ordered
// by feed priority then recency.
func (s *SQLiteStore) UnclassifiedArticles(ctx context.Context, limit int) ([]*types.Article, error) {
	return s.queryArticles(ctx, `
		SELECT `+articleColumns+` FROM articles
		WHERE classification_status = 'pending'
		ORDER BY feed_priority ASC, published_at DESC
		LIMIT ?`, limitOrDefault(limit))
}

// HighSignalPending is the extraction work-selection scan:
// high-signal articles whose extraction is still pending. Failed articles
// are excluded here and surfaced only through FailedArticles.
func (s *SQLiteStore) HighSignalPending(ctx context.Context, limit int) ([]*types.Article, error) {
	return s.queryArticles(ctx, `
		SELECT `+articleColumns+` FROM articles
		WHERE is_high_signal = 1 AND extraction_status = 'pending'
		ORDER BY feed_priority ASC, published_at DESC
		LIMIT ?`, limitOrDefault(limit))
}

// FailedArticles returns articles whose extraction failed, newest first,
// for manual reprocessing.
func (s *SQLiteStore) FailedArticles(ctx context.Context, limit int) ([]*types.Article, error) {
	return s.queryArticles(ctx, `
		SELECT `+articleColumns+` FROM articles
		WHERE extraction_status = 'failed'
		ORDER BY published_at DESC
		LIMIT ?`, limitOrDefault(limit))
}

// SearchArticles returns articles matching the filter, newest first.
func (s *SQLiteStore) SearchArticles(ctx context.Context, filter types.ArticleFilter) ([]*types.Article, error) {
	var conds []string
	var args []interface{}

	if filter.ClassificationStatus != nil {
		conds = append(conds, "classification_status = ?")
		args = append(args, string(*filter.ClassificationStatus))
	}
	if filter.ExtractionStatus != nil {
		conds = append(conds, "extraction_status = ?")
		args = append(args, string(*filter.ExtractionStatus))
	}
	if filter.HighSignal != nil {
		if *filter.HighSignal {
			conds = append(conds, "is_high_signal = 1")
		} else {
			conds = append(conds, "is_high_signal = 0")
		}
	}
	if filter.EventType != nil {
		conds = append(conds, "event_type = ?")
		args = append(args, string(*filter.EventType))
	}
	if filter.Source != "" {
		conds = append(conds, "source = ?")
		args = append(args, filter.Source)
	}
	if filter.PublishedAfter != nil {
		conds = append(conds, "published_at >= ?")
		args = append(args, filter.PublishedAfter.UTC())
	}

	query := "SELECT " + articleColumns + " FROM articles"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY published_at DESC LIMIT ?"
	args = append(args, limitOrDefault(filter.Limit))

	return s.queryArticles(ctx, query, args...)
}

// SetClassification records the classifier's verdict. The update applies
// only while the article is still pending, so re-running classification is
// a no-op rather than an overwrite.
func (s *SQLiteStore) SetClassification(ctx context.Context, articleID int64, eventType types.EventType, confidence float64, highSignal bool, keywords []string) error {
	kw, err := json.Marshal(keywords)
	if err != nil {
		return fmt.Errorf("failed to encode keywords: %w", err)
	}
	high := 0
	if highSignal {
		high = 1
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE articles
		SET classification_status = 'classified',
		    event_type = ?,
		    classification_confidence = ?,
		    is_high_signal = ?,
		    matched_keywords = ?
		WHERE id = ? AND classification_status = 'pending'
	`, string(eventType), confidence, high, string(kw), articleID)
	if err != nil {
		return fmt.Errorf("failed to set classification: %w", err)
	}
	return nil
}

// ClaimNextArticle atomically selects and claims the next high-signal
// pending article. Claims older than staleAfter are treated as abandoned
// by a crashed worker and become claimable again. Returns
// storage.ErrNoPendingWork when nothing is claimable.
func (s *SQLiteStore) ClaimNextArticle(ctx context.Context, staleAfter time.Duration) (*types.Article, error) {
	staleCutoff := fmt.Sprintf("-%d seconds", int(staleAfter.Seconds()))

	var claimed *types.Article
	err := s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		row := conn.QueryRowContext(ctx, `
			SELECT `+articleColumns+` FROM articles
			WHERE is_high_signal = 1
			  AND extraction_status = 'pending'
			  AND (claimed_at IS NULL OR claimed_at < datetime('now', ?))
			ORDER BY feed_priority ASC, published_at DESC
			LIMIT 1`, staleCutoff)
		a, err := scanArticle(row)
		if err != nil {
			return err
		}
		if _, err := conn.ExecContext(ctx,
			"UPDATE articles SET claimed_at = CURRENT_TIMESTAMP WHERE id = ?", a.ID); err != nil {
			return fmt.Errorf("failed to claim article: %w", err)
		}
		now := time.Now().UTC()
		a.ClaimedAt = &now
		claimed = a
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, storage.ErrNoPendingWork
		}
		return nil, err
	}
	return claimed, nil
}

// ReleaseClaim clears an article's in-flight claim without changing its
// extraction status.
func (s *SQLiteStore) ReleaseClaim(ctx context.Context, articleID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE articles SET claimed_at = NULL WHERE id = ?", articleID)
	if err != nil {
		return fmt.Errorf("failed to release claim: %w", err)
	}
	return nil
}

// ResetArticle puts a failed article back into the pending scan for manual
// reprocessing.
func (s *SQLiteStore) ResetArticle(ctx context.Context, articleID int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE articles
		SET extraction_status = 'pending', failure_reason = '',
		    claimed_at = NULL, extracted_at = NULL
		WHERE id = ? AND extraction_status = 'failed'
	`, articleID)
	if err != nil {
		return fmt.Errorf("failed to reset article: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to reset article: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// MarkArticleExtracted flips extraction_status to extracted. Guarded on the
// pending state so the flip is set-once.
func (s *SQLiteStore) MarkArticleExtracted(ctx context.Context, articleID int64) error {
	return markArticleExtracted(ctx, s.db, articleID)
}

// MarkArticleFailed marks extraction as failed with the reason recorded.
func (s *SQLiteStore) MarkArticleFailed(ctx context.Context, articleID int64, reason string) error {
	return markArticleFailed(ctx, s.db, articleID, reason)
}

func (t *sqliteTx) MarkArticleExtracted(ctx context.Context, articleID int64) error {
	return markArticleExtracted(ctx, t.conn, articleID)
}

func (t *sqliteTx) MarkArticleFailed(ctx context.Context, articleID int64, reason string) error {
	return markArticleFailed(ctx, t.conn, articleID, reason)
}

func markArticleExtracted(ctx context.Context, q querier, articleID int64) error {
	_, err := q.ExecContext(ctx, `
		UPDATE articles
		SET extraction_status = 'extracted',
		    extracted_at = CURRENT_TIMESTAMP,
		    failure_reason = '',
		    claimed_at = NULL
		WHERE id = ? AND extraction_status = 'pending'
	`, articleID)
	if err != nil {
		return fmt.Errorf("failed to mark article extracted: %w", err)
	}
	return nil
}

func markArticleFailed(ctx context.Context, q querier, articleID int64, reason string) error {
	if reason == "" {
		reason = "unspecified failure"
	}
	_, err := q.ExecContext(ctx, `
		UPDATE articles
		SET extraction_status = 'failed',
		    failure_reason = ?,
		    claimed_at = NULL
		WHERE id = ? AND extraction_status = 'pending'
	`, reason, articleID)
	if err != nil {
		return fmt.Errorf("failed to mark article failed: %w", err)
	}
	return nil
}

// ArticleStats returns the operator-facing health counters.
func (s *SQLiteStore) ArticleStats(ctx context.Context) (*types.ArticleStats, error) {
	stats := &types.ArticleStats{ByEventType: make(map[string]int)}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       SUM(CASE WHEN classification_status = 'pending' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN is_high_signal = 1 THEN 1 ELSE 0 END),
		       SUM(CASE WHEN is_high_signal = 1 AND extraction_status = 'pending' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN extraction_status = 'extracted' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN extraction_status = 'failed' THEN 1 ELSE 0 END)
		FROM articles
	`).Scan(&stats.Total, &nullInt{&stats.Unclassified}, &nullInt{&stats.HighSignal},
		&nullInt{&stats.PendingExtraction}, &nullInt{&stats.Extracted}, &nullInt{&stats.Failed})
	if err != nil {
		return nil, fmt.Errorf("failed to count articles: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT event_type, COUNT(*) FROM articles
		WHERE classification_status = 'classified' AND event_type != ''
		GROUP BY event_type
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count event types: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var eventType string
		var n int
		if err := rows.Scan(&eventType, &n); err != nil {
			return nil, fmt.Errorf("failed to scan event type count: %w", err)
		}
		stats.ByEventType[eventType] = n
	}
	return stats, rows.Err()
}

// nullInt scans a nullable integer aggregate into an int, treating NULL
// (empty table) as zero.
type nullInt struct{ p *int }

func (n *nullInt) Scan(v interface{}) error {
	if v == nil {
		*n.p = 0
		return nil
	}
	switch x := v.(type) {
	case int64:
		*n.p = int(x)
	case float64:
		*n.p = int(x)
	default:
		return fmt.Errorf("unexpected aggregate type %T", v)
	}
	return nil
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return 500
	}
	return limit
}

func (s *SQLiteStore) queryArticles(ctx context.Context, query string, args ...interface{}) ([]*types.Article, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query articles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var articles []*types.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanArticle(row rowScanner) (*types.Article, error) {
	var a types.Article
	var published, claimed, extracted sql.NullTime
	var high int
	var keywords string

	err := row.Scan(
		&a.ID, &a.URL, &a.ContentHash, &a.Title, &a.Content, &a.Source,
		&published, &a.FetchedAt, &a.FeedPriority,
		(*string)(&a.ClassificationStatus), (*string)(&a.EventType), &a.ClassificationConfidence,
		&high, &keywords,
		(*string)(&a.ExtractionStatus), &a.FailureReason, &claimed, &extracted,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan article: %w", err)
	}

	a.IsHighSignal = high == 1
	if published.Valid {
		a.PublishedAt = published.Time
	}
	if claimed.Valid {
		a.ClaimedAt = &claimed.Time
	}
	if extracted.Valid {
		a.ExtractedAt = &extracted.Time
	}
	if keywords != "" && keywords != "null" {
		if err := json.Unmarshal([]byte(keywords), &a.MatchedKeywords); err != nil {
			return nil, fmt.Errorf("failed to decode keywords: %w", err)
		}
	}
	return &a, nil
}
