package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/untoldecay/TalentGraph/internal/classify"
	"github.com/untoldecay/TalentGraph/internal/config"
	"github.com/untoldecay/TalentGraph/internal/extract"
	"github.com/untoldecay/TalentGraph/internal/storage"
	"github.com/untoldecay/TalentGraph/internal/storage/sqlite"
)

// Shared command state. rootCtx is cancelled on SIGINT/SIGTERM so every
// stage sees the interrupt through its context; store is opened by the
// persistent pre-run for commands that touch the database.
var (
	rootCtx    context.Context
	rootCancel context.CancelFunc
	store      storage.Store
	dbPath     string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "tg",
	Short: "Talent intelligence graph built from news and filings",
	Long: `tg consolidates business news articles and regulatory filings into a
queryable graph of companies, people, and investors.

Articles land in a local SQLite database, a keyword classifier flags the
high-signal ones, an LLM extracts entities and relationships, and
resolution plus cross-referencing keep the graph deduplicated and
corroborated against filings.

Quick start:
  tg ingest articles ./spool    # Load article documents
  tg run                        # Classify, extract, resolve, xref
  tg stats                      # Processing health and graph overview
  tg digest                     # Intelligence briefing for the last week`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := config.Initialize(); err != nil {
			FatalError("%v", err)
		}
		if !cmd.Flags().Changed("json") {
			jsonOutput = config.GetBool("json")
		}
		if dbPath != "" {
			config.Set("db", dbPath)
		}

		if skipsStore(cmd) {
			return
		}
		s, err := sqlite.New(rootCtx, config.DBPath())
		if err != nil {
			FatalError("failed to open database: %v", err)
		}
		store = s
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			_ = store.Close()
			store = nil
		}
	},
}

// skipsStore reports whether cmd runs without a database.
func skipsStore(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "version", "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
		return true
	}
	// Shell-specific completion subcommands hang off "completion".
	return cmd.Parent() != nil && cmd.Parent().Name() == "completion"
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to database file (default: .talentgraph/talentgraph.db)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "pipeline", Title: "Pipeline Commands:"},
		&cobra.Group{ID: "data", Title: "Data Commands:"},
		&cobra.Group{ID: "views", Title: "View Commands:"},
	)
}

// Execute runs the root command with interrupts wired into rootCtx.
func Execute() {
	rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer rootCancel()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// FatalError prints an error to stderr and exits non-zero.
func FatalError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// outputJSON marshals v with indentation and prints it.
func outputJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		FatalError("failed to marshal JSON: %v", err)
	}
	fmt.Println(string(data))
}

// stderrLogger returns a text logger on stderr at the given level, the
// logger interactive commands hand to the internal packages.
func stderrLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// quietLogger discards everything; used where stderr noise would
// corrupt pipeable output.
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newClassifier builds the keyword classifier from config: the built-in
// table, or the TOML override when classify.keywords-file is set.
func newClassifier() (*classify.Classifier, error) {
	threshold := config.GetHighSignalThreshold()
	if path := config.GetString("classify.keywords-file"); path != "" {
		return classify.NewFromFile(path, threshold)
	}
	return classify.New(threshold)
}

// newExtractor builds the Anthropic extraction client from config.
func newExtractor() (*extract.Client, error) {
	return extract.NewClient(config.GetAPIKey(),
		extract.WithModel(config.GetExtractionModel()),
		extract.WithMaxRetries(config.GetExtractionMaxRetries()),
		extract.WithCallTimeout(config.GetExtractionTimeout()),
		extract.WithMaxContentChars(config.GetMaxContentChars()),
		extract.WithMinConfidence(config.GetMinRelationshipConfidence()),
		extract.WithRequestsPerSecond(config.GetRequestsPerSecond()),
	)
}
