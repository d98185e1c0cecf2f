package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/untoldecay/TalentGraph/internal/config"
	"github.com/untoldecay/TalentGraph/internal/pipeline"
)

var classifyLimit int

var classifyCmd = &cobra.Command{
	Use:     "classify",
	GroupID: "pipeline",
	Short:   "Classify pending articles by event type",
	Long: `Sweep unclassified articles through the keyword classifier.

Each article is scored against the event-type keyword tables (funding,
acquisition, executive move, layoff, IPO). Articles whose confidence
clears the high-signal threshold are queued for extraction; everything
else is classified and never surfaces again.

Examples:
  tg classify                 # Classify up to the per-run batch bound
  tg classify --limit 100     # Smaller sweep`,
	Run: func(cmd *cobra.Command, args []string) {
		classifier, err := newClassifier()
		if err != nil {
			FatalError("%v", err)
		}

		limit := classifyLimit
		if limit <= 0 {
			limit = config.GetMaxArticlesPerRun()
		}
		p := pipeline.New(store, classifier, nil,
			pipeline.WithBatchSize(limit),
			pipeline.WithLogger(stderrLogger(slog.LevelWarn)))

		stats, err := p.Classify(rootCtx)
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			outputJSON(stats)
			return
		}
		fmt.Printf("Classified %d articles: %d matched an event type, %d high-signal\n",
			stats.Seen, stats.Matched, stats.HighSignal)
	},
}

func init() {
	classifyCmd.Flags().IntVar(&classifyLimit, "limit", 0, "Maximum articles to classify (default: pipeline.max-articles)")
	rootCmd.AddCommand(classifyCmd)
}
