package ingest

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/untoldecay/TalentGraph/internal/types"
)

// feedsFile is the YAML shape of a feed registry:
//
//	feeds:
//	  - name: techcrunch
//	    url: https://techcrunch.com/feed/
//	    priority: 1
//	    enabled: true
type feedsFile struct {
	Feeds []feedDoc `yaml:"feeds"`
}

type feedDoc struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Priority int    `yaml:"priority"`
	Enabled  *bool  `yaml:"enabled"`
}

// SyncFeeds registers every feed listed in the YAML file at path,
// updating entries that already exist. A feed with no enabled flag
// defaults to enabled; health counters are never touched here. Returns
// the number of feeds synced.
func (ing *Ingestor) SyncFeeds(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var file feedsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	synced := 0
	for _, doc := range file.Feeds {
		name := strings.TrimSpace(doc.Name)
		if name == "" {
			ing.log.Warn("skipping feed with no name", "file", path, "url", doc.URL)
			continue
		}
		feed := &types.Feed{
			Name:     name,
			URL:      doc.URL,
			Priority: doc.Priority,
			Enabled:  doc.Enabled == nil || *doc.Enabled,
		}
		if err := ing.store.UpsertFeed(ctx, feed); err != nil {
			return synced, fmt.Errorf("failed to register feed %s: %w", name, err)
		}
		synced++
	}

	ing.log.Info("feeds synced", "file", path, "feeds", synced)
	return synced, nil
}
