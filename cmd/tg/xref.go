package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/untoldecay/TalentGraph/internal/ui"
	"github.com/untoldecay/TalentGraph/internal/xref"
)

var xrefShowUnmatched bool

var xrefCmd = &cobra.Command{
	Use:     "xref",
	GroupID: "pipeline",
	Short:   "Cross-reference news funding claims against filings",
	Long: `Match uncorroborated news funding facts to regulatory filings.

A match requires company-name similarity, filing and coverage dates
within the configured window, and (when the article named an amount)
agreement within the amount tolerance. Matched facts get a confidence
boost and a link to the filing-backed funding event; re-running the
pass is idempotent.

Examples:
  tg xref                  # Cross-reference recent funding facts
  tg xref --unmatched      # Also list filings and claims left unmatched`,
	Run: func(cmd *cobra.Command, args []string) {
		lock, err := acquireRunLock()
		if err != nil {
			FatalError("%v", err)
		}
		defer func() { _ = lock.Unlock() }()

		log, closeLog := newRunLogger()
		defer closeLog()

		report, err := newCrossReferencer(log).Run(rootCtx)
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			outputJSON(report)
			return
		}
		fmt.Printf("Cross-referenced %d news facts against %d filings\n",
			report.NewsFacts, report.Filings)

		for _, m := range report.Matches {
			line := fmt.Sprintf("%s %s matched filing %s (%s, name %.2f, %dd apart)",
				ui.IconPass, m.Company, m.AccessionNo, m.FilingCompany, m.NameSimilarity, m.DateDiffDays)
			fmt.Println(ui.RenderPass(line))
		}
		if len(report.Matches) == 0 {
			fmt.Println("No new matches")
		}

		if xrefShowUnmatched {
			for _, f := range report.UnmatchedFilings {
				label := fmt.Sprintf("%s filing %s (%s, filed %s)",
					ui.IconWarn, f.AccessionNo, f.Company, f.FiledAt.Format("2006-01-02"))
				if f.Amount != nil {
					label += " " + xref.FormatMoney(*f.Amount)
				}
				fmt.Println(ui.RenderWarn(label))
			}
			for _, n := range report.UnverifiedNews {
				fmt.Println(ui.RenderMuted(fmt.Sprintf("  unverified: %s (confidence %.2f)",
					n.Company, n.Confidence)))
			}
		}
	},
}

func init() {
	xrefCmd.Flags().BoolVar(&xrefShowUnmatched, "unmatched", false, "List unmatched filings and unverified news claims")
	rootCmd.AddCommand(xrefCmd)
}
