package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/untoldecay/TalentGraph/internal/ingest"
)

var (
	watchFilings  bool
	watchDebounce time.Duration
	watchRescan   time.Duration
)

var watchCmd = &cobra.Command{
	Use:     "watch <dir>",
	GroupID: "data",
	Short:   "Watch a spool directory and ingest documents as they land",
	Long: `Watch a directory for article (or filing) documents and ingest each
batch as files settle. Writes are debounced so a burst of files is
ingested once, and a periodic rescan catches anything the filesystem
watcher missed. Existing files are ingested at startup.

Duplicate submissions are no-ops, so the watcher and manual ingestion
can safely overlap.

Examples:
  tg watch ./spool                    # Watch for article documents
  tg watch ./filings --filings        # Watch for filing documents
  tg watch ./spool --debounce 5s      # Settle window for bursts`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dir := args[0]
		log := stderrLogger(slog.LevelInfo)
		ing := ingest.New(store, ingest.WithLogger(log))

		handler := func() {
			if watchFilings {
				report, err := ing.Filings(rootCtx, dir)
				if err != nil {
					log.Error("filing ingestion failed", "dir", dir, "error", err)
					return
				}
				if report.Ingested > 0 {
					fmt.Printf("Ingested %d filings (%d entities, %d events)\n",
						report.Ingested, report.Entities, report.Events)
				}
				return
			}
			report, err := ing.Articles(rootCtx, dir)
			if err != nil {
				log.Error("article ingestion failed", "dir", dir, "error", err)
				return
			}
			if report.Submitted > 0 {
				fmt.Printf("Submitted %d articles (%d duplicates skipped)\n",
					report.Submitted, report.Duplicates)
			}
		}

		opts := []ingest.WatcherOption{ingest.WithWatchLogger(log)}
		if watchDebounce > 0 {
			opts = append(opts, ingest.WithWatchDebounce(watchDebounce))
		}
		if watchRescan > 0 {
			opts = append(opts, ingest.WithWatchRescan(watchRescan))
		}

		watcher, err := ingest.NewWatcher(dir, handler, opts...)
		if err != nil {
			FatalError("%v", err)
		}
		defer func() { _ = watcher.Close() }()

		kind := "article"
		if watchFilings {
			kind = "filing"
		}
		fmt.Printf("Watching %s for %s documents (Ctrl+C to stop)\n", dir, kind)

		<-rootCtx.Done()
		fmt.Println("\nStopping watcher")
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchFilings, "filings", false, "Treat documents as filings instead of articles")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 0, "Settle window before ingesting a burst of files")
	watchCmd.Flags().DurationVar(&watchRescan, "rescan", 0, "Fallback rescan interval")
	rootCmd.AddCommand(watchCmd)
}
