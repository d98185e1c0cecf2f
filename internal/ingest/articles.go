package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/untoldecay/TalentGraph/internal/storage"
	"github.com/untoldecay/TalentGraph/internal/types"
)

// articleDoc is the on-disk article document shape.
type articleDoc struct {
	Source       string `json:"source"`
	URL          string `json:"url"`
	Title        string `json:"title"`
	Content      string `json:"content"`
	Summary      string `json:"summary"`
	PublishedAt  string `json:"published_at"`
	FeedPriority int    `json:"feed_priority"`
}

// ArticleReport summarizes one article ingest pass.
type ArticleReport struct {
	Files      int `json:"files"`
	Submitted  int `json:"submitted"`
	Duplicates int `json:"duplicates"`
	Invalid    int `json:"invalid"`
}

// Articles reads article documents from path, a file or a directory
// scanned for .json/.ndjson/.jsonl entries, and submits them for
// processing. Resubmissions are counted as duplicates, not failures:
// re-ingesting a spool directory is routine.
func (ing *Ingestor) Articles(ctx context.Context, path string) (*ArticleReport, error) {
	files, fromDir, err := documentFiles(path)
	if err != nil {
		return nil, err
	}

	report := &ArticleReport{}
	for _, file := range files {
		docs, err := readDocuments(file)
		if err != nil {
			if fromDir {
				ing.log.Warn("skipping unreadable document file", "file", file, "error", err)
				continue
			}
			return nil, err
		}
		report.Files++
		for _, raw := range docs {
			if err := ing.submitArticleDoc(ctx, file, raw, report); err != nil {
				return nil, err
			}
		}
	}

	ing.log.Info("articles ingested",
		"path", path,
		"files", report.Files,
		"submitted", report.Submitted,
		"duplicates", report.Duplicates,
		"invalid", report.Invalid)
	return report, nil
}

func (ing *Ingestor) submitArticleDoc(ctx context.Context, file string, raw json.RawMessage, report *ArticleReport) error {
	var doc articleDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		report.Invalid++
		ing.log.Warn("skipping malformed article document", "file", file, "error", err)
		return nil
	}
	article, err := doc.toArticle()
	if err != nil {
		report.Invalid++
		ing.log.Warn("skipping invalid article document", "file", file, "url", doc.URL, "error", err)
		return nil
	}

	if _, err := ing.store.SubmitArticle(ctx, article); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			report.Duplicates++
			return nil
		}
		return fmt.Errorf("failed to submit article %s: %w", article.URL, err)
	}
	report.Submitted++
	return nil
}

func (doc *articleDoc) toArticle() (*types.Article, error) {
	url := strings.TrimSpace(doc.URL)
	if url == "" {
		return nil, fmt.Errorf("document has no url")
	}
	if strings.TrimSpace(doc.Title) == "" {
		return nil, fmt.Errorf("document has no title")
	}
	published, err := parseDocTime(doc.PublishedAt)
	if err != nil {
		return nil, fmt.Errorf("bad published_at: %w", err)
	}

	// Feeds often carry only a summary; it still classifies.
	content := doc.Content
	if strings.TrimSpace(content) == "" {
		content = doc.Summary
	}

	return &types.Article{
		URL:          url,
		Title:        doc.Title,
		Content:      content,
		Source:       doc.Source,
		PublishedAt:  published,
		FeedPriority: doc.FeedPriority,
	}, nil
}
