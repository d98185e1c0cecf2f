package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/untoldecay/TalentGraph/internal/report"
	"github.com/untoldecay/TalentGraph/internal/ui"
)

var (
	digestSince string
	digestRaw   bool
)

var digestCmd = &cobra.Command{
	Use:     "digest",
	GroupID: "views",
	Short:   "Generate an intelligence briefing",
	Long: `Generate a markdown briefing over a time window: funding rounds,
M&A activity, layoffs, executive moves, and recently departed talent.
The default window is the last 7 days.

Examples:
  tg digest
  tg digest --since 2026-08-01
  tg digest --since 168h --raw > weekly.md
  tg digest --json`,
	Run: func(cmd *cobra.Command, args []string) {
		var since time.Time
		t, err := parseSince(digestSince)
		if err != nil {
			FatalError("%v", err)
		}
		if t != nil {
			since = *t
		}

		gen := report.New(store, report.WithLogger(quietLogger()))
		d, err := gen.Digest(rootCtx, since)
		if err != nil {
			FatalError("%v", err)
		}

		switch {
		case jsonOutput:
			outputJSON(d)
		case digestRaw:
			fmt.Print(d.Markdown())
		default:
			fmt.Print(ui.RenderMarkdown(d.Markdown()))
		}
	},
}

func init() {
	digestCmd.Flags().StringVar(&digestSince, "since", "", "Window start (YYYY-MM-DD or lookback like 168h, default 7 days)")
	digestCmd.Flags().BoolVar(&digestRaw, "raw", false, "Print plain markdown without terminal rendering")
	rootCmd.AddCommand(digestCmd)
}
