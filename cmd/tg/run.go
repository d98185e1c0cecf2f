package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/untoldecay/TalentGraph/internal/config"
	"github.com/untoldecay/TalentGraph/internal/extract"
	"github.com/untoldecay/TalentGraph/internal/pipeline"
	"github.com/untoldecay/TalentGraph/internal/resolve"
	"github.com/untoldecay/TalentGraph/internal/xref"
)

var runWorkers int

var runCmd = &cobra.Command{
	Use:     "run",
	GroupID: "pipeline",
	Short:   "Run the full consolidation pipeline",
	Long: `Run every pipeline stage in order: classify pending articles, extract
relationships from the high-signal ones with a bounded worker pool,
resolve duplicate entities, and cross-reference news funding claims
against filings. Per-stage counters are recorded in the runs table.

A failed stage is noted and the remaining stages still run; only
Ctrl+C stops the sequence. Runs are serialized through a lock file, so
a second invocation while one is active exits immediately.

Examples:
  tg run                # Full batch with configured workers
  tg run --workers 8    # Override the extraction worker count
  tg run --json         # Machine-readable run statistics`,
	Run: func(cmd *cobra.Command, args []string) {
		lock, err := acquireRunLock()
		if err != nil {
			FatalError("%v", err)
		}
		defer func() { _ = lock.Unlock() }()

		classifier, err := newClassifier()
		if err != nil {
			FatalError("%v", err)
		}
		extractor, err := newExtractor()
		if err != nil {
			exitExtractorError(err)
		}

		log, closeLog := newRunLogger()
		defer closeLog()

		workers := runWorkers
		if workers <= 0 {
			workers = config.GetExtractionWorkers()
		}
		p := pipeline.New(store, classifier, extractor,
			pipeline.WithWorkers(workers),
			pipeline.WithBatchSize(config.GetMaxArticlesPerRun()),
			pipeline.WithClaimTTL(config.GetClaimTTL()),
			pipeline.WithResolver(newResolver(log)),
			pipeline.WithCrossReferencer(newCrossReferencer(log)),
			pipeline.WithLogger(log))

		if !jsonOutput {
			fmt.Printf("→ Pipeline run starting (workers: %d)\n", workers)
		}
		stats, runErr := p.Run(rootCtx)

		if jsonOutput {
			outputJSON(stats)
		} else {
			fmt.Printf("→ Classified %d articles (%d high-signal)\n",
				stats.Classify.Seen, stats.Classify.HighSignal)
			fmt.Printf("→ Extracted %d articles, %d failed (%d relationships, %d events)\n",
				stats.Extract.Extracted, stats.Extract.Failed,
				stats.Extract.Relationships, stats.Extract.Events)
			if stats.Resolve != nil {
				fmt.Printf("→ Resolved %d duplicate entities (%d relationships moved)\n",
					stats.Resolve.EntitiesMerged, stats.Resolve.RelationshipsMoved)
			}
			if stats.Xref != nil {
				fmt.Printf("→ Cross-referenced %d news facts against %d filings (%d matches)\n",
					stats.Xref.NewsFacts, stats.Xref.Filings, len(stats.Xref.Matches))
			}
			for _, msg := range stats.Errors {
				fmt.Fprintf(os.Stderr, "Warning: %s\n", msg)
			}
			elapsed := stats.FinishedAt.Sub(stats.StartedAt).Round(time.Millisecond)
			fmt.Printf("✓ Run %s finished in %s\n", stats.RunID, elapsed)
		}

		if runErr != nil {
			os.Exit(1)
		}
	},
}

func init() {
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "Extraction worker count (default: extraction.workers)")
	rootCmd.AddCommand(runCmd)
}

// acquireRunLock takes the exclusive pipeline lock. Graph-mutating
// stages must not overlap; ingestion and reads stay lock-free.
func acquireRunLock() (*flock.Flock, error) {
	lockPath := config.LockPath()
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring run lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another run is in progress")
	}
	return lock, nil
}

// newRunLogger returns a structured logger writing to the rotating
// pipeline log under the data directory.
func newRunLogger() (*slog.Logger, func()) {
	w := &lumberjack.Logger{
		Filename:   config.LogPath(),
		MaxSize:    config.GetInt("log.max-size-mb"),
		MaxBackups: config.GetInt("log.max-backups"),
		MaxAge:     config.GetInt("log.max-age-days"),
	}
	log := slog.New(slog.NewTextHandler(w, nil))
	return log, func() { _ = w.Close() }
}

func newResolver(log *slog.Logger) *resolve.Resolver {
	return resolve.New(store,
		resolve.WithThreshold(config.GetSimilarityThreshold()),
		resolve.WithLogger(log))
}

func newCrossReferencer(log *slog.Logger) *xref.CrossReferencer {
	window := time.Duration(config.GetXrefDateWindowDays()) * 24 * time.Hour
	return xref.New(store,
		xref.WithNameThreshold(config.GetXrefNameThreshold()),
		xref.WithDateWindow(window),
		xref.WithAmountTolerance(config.GetXrefAmountTolerance()),
		xref.WithLogger(log))
}

// exitExtractorError reports extractor construction failures with a
// configuration hint for the common missing-key case.
func exitExtractorError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if errors.Is(err, extract.ErrAPIKeyRequired) {
		fmt.Fprintf(os.Stderr, "Hint: set ANTHROPIC_API_KEY or anthropic.api-key in .talentgraph/config.yaml\n")
	}
	os.Exit(1)
}
