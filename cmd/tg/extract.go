package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/untoldecay/TalentGraph/internal/config"
	"github.com/untoldecay/TalentGraph/internal/pipeline"
)

var (
	extractWorkers int
	extractLimit   int
)

var extractCmd = &cobra.Command{
	Use:     "extract",
	GroupID: "pipeline",
	Short:   "Extract relationships from high-signal articles",
	Long: `Drain the high-signal extraction queue with a pool of workers.

Each worker claims an article, calls the extraction model, validates
the drafts, and commits the graph writes together with the article's
extracted mark in one transaction. Claims abandoned by a crashed
process become reclaimable after the claim TTL, and an article is
never charged twice: re-running extraction over the same articles
inserts nothing new.

Requires an Anthropic API key (ANTHROPIC_API_KEY or anthropic.api-key).

Examples:
  tg extract                # Drain the queue with configured workers
  tg extract --limit 20     # Extract at most 20 articles
  tg extract --workers 8    # Wider worker pool`,
	Run: func(cmd *cobra.Command, args []string) {
		extractor, err := newExtractor()
		if err != nil {
			exitExtractorError(err)
		}

		log, closeLog := newRunLogger()
		defer closeLog()

		workers := extractWorkers
		if workers <= 0 {
			workers = config.GetExtractionWorkers()
		}
		limit := extractLimit
		if limit <= 0 {
			limit = config.GetMaxArticlesPerRun()
		}
		p := pipeline.New(store, nil, extractor,
			pipeline.WithWorkers(workers),
			pipeline.WithBatchSize(limit),
			pipeline.WithClaimTTL(config.GetClaimTTL()),
			pipeline.WithLogger(log))

		stats, err := p.Extract(rootCtx)
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			outputJSON(stats)
			return
		}
		fmt.Printf("Extracted %d articles, %d failed\n", stats.Extracted, stats.Failed)
		fmt.Printf("Graph: %d relationships, %d events added\n", stats.Relationships, stats.Events)
		if stats.Failed > 0 {
			fmt.Println("Hint: inspect failures with 'tg review'")
		}
	},
}

func init() {
	extractCmd.Flags().IntVar(&extractWorkers, "workers", 0, "Worker count (default: extraction.workers)")
	extractCmd.Flags().IntVar(&extractLimit, "limit", 0, "Maximum articles to extract (default: pipeline.max-articles)")
	rootCmd.AddCommand(extractCmd)
}
