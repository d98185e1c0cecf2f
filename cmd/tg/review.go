package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"github.com/untoldecay/TalentGraph/internal/ui"
)

var (
	reviewLimit    int
	reviewRetryAll bool
)

var reviewCmd = &cobra.Command{
	Use:     "review",
	GroupID: "pipeline",
	Short:   "Triage failed extractions",
	Long: `Walk through articles whose extraction failed and decide, one by
one, whether to queue them for another attempt. Resetting an article
returns it to the pending pool; the next 'tg run' or 'tg extract'
picks it up.

Examples:
  tg review
  tg review --limit 50
  tg review --retry-all
  tg review --json`,
	Run: func(cmd *cobra.Command, args []string) {
		failed, err := store.FailedArticles(rootCtx, reviewLimit)
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			outputJSON(failed)
			return
		}
		if len(failed) == 0 {
			fmt.Println("No failed articles to review")
			return
		}

		if reviewRetryAll {
			reset := 0
			for _, a := range failed {
				if err := store.ResetArticle(rootCtx, a.ID); err != nil {
					FatalError("reset article %d: %v", a.ID, err)
				}
				reset++
			}
			fmt.Printf("%s Reset %d failed articles\n", ui.IconPass, reset)
			return
		}

		if !ui.IsTerminal() {
			for _, a := range failed {
				fmt.Printf("%s %s\n    %s\n", ui.IconFail, a.Title, ui.RenderMuted(truncateReason(a.FailureReason)))
			}
			fmt.Printf("\n%d failed articles\n", len(failed))
			fmt.Println("Hint: run 'tg review' in a terminal to triage, or 'tg review --retry-all' to reset everything")
			return
		}

		reset := 0
	loop:
		for i, a := range failed {
			fmt.Printf("\n[%d/%d] %s\n", i+1, len(failed), ui.RenderBold(a.Title))
			fmt.Printf("  Source: %s  Published: %s\n", a.Source, a.PublishedAt.Format("2006-01-02"))
			fmt.Printf("  %s %s\n", ui.RenderFail("Failed:"), truncateReason(a.FailureReason))

			choice, err := reviewChoice()
			if err != nil {
				if err == huh.ErrUserAborted {
					fmt.Fprintln(os.Stderr, "Review canceled.")
					os.Exit(0)
				}
				FatalError("form error: %v", err)
			}

			switch choice {
			case "retry":
				if err := store.ResetArticle(rootCtx, a.ID); err != nil {
					FatalError("reset article %d: %v", a.ID, err)
				}
				reset++
				fmt.Printf("  %s queued for retry\n", ui.IconPass)
			case "skip":
				// leave failed; revisits on the next review
			case "stop":
				break loop
			}
		}

		fmt.Printf("\nReset %d of %d failed articles\n", reset, len(failed))
		if reset > 0 {
			fmt.Println("Hint: run 'tg extract' to retry them now")
		}
	},
}

func reviewChoice() (string, error) {
	options := []huh.Option[string]{
		huh.NewOption("Retry extraction", "retry"),
		huh.NewOption("Skip for now", "skip"),
		huh.NewOption("Stop reviewing", "stop"),
	}

	var choice string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("What should happen to this article?").
				Options(options...).
				Height(5).
				Value(&choice),
		),
	).WithTheme(huh.ThemeDracula())

	if err := form.Run(); err != nil {
		return "", err
	}
	return choice, nil
}

func truncateReason(reason string) string {
	const max = 160
	if len(reason) <= max {
		return reason
	}
	return reason[:max-3] + "..."
}

func init() {
	reviewCmd.Flags().IntVar(&reviewLimit, "limit", 20, "Maximum failed articles to fetch")
	reviewCmd.Flags().BoolVar(&reviewRetryAll, "retry-all", false, "Reset every failed article without prompting")
	rootCmd.AddCommand(reviewCmd)
}
