package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/untoldecay/TalentGraph/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:     "ingest",
	GroupID: "data",
	Short:   "Load articles, filings, or feed definitions into the store",
	Long: `Load documents from disk into the article and graph stores.

Articles and filings are JSON or NDJSON documents, one per file or one
per line. Duplicates (same URL, same content hash, same accession
number) are skipped, never an error, so re-running ingestion over the
same directory is safe.

Examples:
  tg ingest articles ./spool          # Directory of article documents
  tg ingest articles article.json     # Single document
  tg ingest filings ./filings         # Form D-shaped filing documents
  tg ingest feeds feeds.yaml          # Register content feeds`,
}

var ingestArticlesCmd = &cobra.Command{
	Use:   "articles <dir|file>",
	Short: "Submit article documents for processing",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ing := ingest.New(store, ingest.WithLogger(ingestLogger()))
		report, err := ing.Articles(rootCtx, args[0])
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			outputJSON(report)
			return
		}
		fmt.Printf("Submitted %d of %d documents", report.Submitted, report.Files)
		if report.Duplicates > 0 {
			fmt.Printf(", %d duplicates skipped", report.Duplicates)
		}
		if report.Invalid > 0 {
			fmt.Printf(", %d invalid", report.Invalid)
		}
		fmt.Println()
	},
}

var ingestFilingsCmd = &cobra.Command{
	Use:   "filings <dir|file>",
	Short: "Ingest regulatory filing documents into the graph",
	Long: `Ingest Form D-shaped filing documents and convert each into graph
records: the company entity, officers with leadership titles, and a
funding event for the cross-referencer to match news against.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ing := ingest.New(store, ingest.WithLogger(ingestLogger()))
		report, err := ing.Filings(rootCtx, args[0])
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			outputJSON(report)
			return
		}
		fmt.Printf("Ingested %d of %d filings", report.Ingested, report.Files)
		if report.Duplicates > 0 {
			fmt.Printf(", %d duplicates skipped", report.Duplicates)
		}
		if report.Invalid > 0 {
			fmt.Printf(", %d invalid", report.Invalid)
		}
		fmt.Println()
		fmt.Printf("Graph: %d entities, %d relationships, %d events\n",
			report.Entities, report.Relationships, report.Events)
	},
}

var ingestFeedsCmd = &cobra.Command{
	Use:   "feeds <feeds.yaml>",
	Short: "Register content feeds from a YAML definition",
	Long: `Register or update content feeds from a YAML file:

  feeds:
    - name: techcrunch
      url: https://techcrunch.com/feed/
      priority: 1
      enabled: true

Feed health (success rate, fetch time, consecutive failures) accrues in
the store as fetches are recorded.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ing := ingest.New(store, ingest.WithLogger(ingestLogger()))
		n, err := ing.SyncFeeds(rootCtx, args[0])
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			outputJSON(map[string]int{"feeds": n})
			return
		}
		fmt.Printf("Registered %d feeds\n", n)
	},
}

// ingestLogger surfaces skipped-document warnings without drowning
// normal output.
func ingestLogger() *slog.Logger {
	return stderrLogger(slog.LevelWarn)
}

func init() {
	ingestCmd.AddCommand(ingestArticlesCmd)
	ingestCmd.AddCommand(ingestFilingsCmd)
	ingestCmd.AddCommand(ingestFeedsCmd)
	rootCmd.AddCommand(ingestCmd)
}
