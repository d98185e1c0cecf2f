// Package ingest loads article and filing documents from disk into the
// store. Articles are queued for the pipeline; filings are authoritative
// and go straight into the graph, so they skip classification and
// extraction entirely.
package ingest

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/untoldecay/TalentGraph/internal/storage"
)

// Ingestor reads documents from spool files and writes them to the store.
type Ingestor struct {
	store storage.Store
	log   *slog.Logger
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithLogger routes ingest logging to log.
func WithLogger(log *slog.Logger) Option {
	return func(ing *Ingestor) {
		if log != nil {
			ing.log = log
		}
	}
}

// New returns an Ingestor backed by store.
func New(store storage.Store, opts ...Option) *Ingestor {
	ing := &Ingestor{
		store: store,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(ing)
	}
	return ing
}

// documentFiles expands path into the document files to read. A plain
// file is returned as is; a directory is scanned one level deep for
// document extensions. The second return reports whether path was a
// directory, which decides if unreadable files are skipped or fatal.
func documentFiles(path string) ([]string, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, false, err
	}
	if !info.IsDir() {
		return []string{path}, false, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, true, fmt.Errorf("failed to scan %s: %w", path, err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !isDocumentFile(entry.Name()) {
			continue
		}
		files = append(files, filepath.Join(path, entry.Name()))
	}
	return files, true, nil
}

func isDocumentFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".ndjson", ".jsonl":
		return true
	}
	return false
}

// readDocuments parses every JSON value in the file at path. A file may
// hold a single object, a top-level array, or newline-delimited objects;
// all three decode to the same flat document list.
func readDocuments(path string) ([]json.RawMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	dec := json.NewDecoder(f)
	var docs []json.RawMessage
	for {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if len(raw) > 0 && raw[0] == '[' {
			var batch []json.RawMessage
			if err := json.Unmarshal(raw, &batch); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
			docs = append(docs, batch...)
			continue
		}
		docs = append(docs, raw)
	}
	return docs, nil
}

// docTimeLayouts are the accepted document timestamp shapes, most
// specific first. The fractional-second layouts also match timestamps
// without a fraction.
var docTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseDocTime parses a document timestamp. An empty value is not an
// error; it returns the zero time so callers can treat the field as
// absent.
func parseDocTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	for _, layout := range docTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}
