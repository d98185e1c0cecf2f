package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/untoldecay/TalentGraph/internal/report"
	"github.com/untoldecay/TalentGraph/internal/ui"
)

var statsCmd = &cobra.Command{
	Use:     "stats",
	GroupID: "views",
	Aliases: []string{"status"},
	Short:   "Show processing health and graph overview",
	Long: `Show a snapshot of the pipeline and graph state: article counts by
processing stage, graph totals by kind and predicate, source-quality
grading, feed health, and the most recent pipeline runs.

Pending extraction is the primary health signal: a persistently high
value means extraction is stalled (missing API key, rate limits, or
the pipeline simply has not run).

Examples:
  tg stats              # Full overview
  tg stats --json       # Machine-readable output`,
	Run: func(cmd *cobra.Command, args []string) {
		overview, err := report.New(store).Overview(rootCtx)
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			outputJSON(overview)
			return
		}

		renderArticleStats(overview)
		renderGraphStats(overview)
		renderQuality(overview)
		renderFeeds(overview)
		renderRuns(overview)
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func renderArticleStats(o *report.Overview) {
	a := o.Articles
	pending := strconv.Itoa(a.PendingExtraction)
	if a.PendingExtraction > 0 {
		pending = ui.RenderWarn(pending)
	}
	failed := strconv.Itoa(a.Failed)
	if a.Failed > 0 {
		failed = ui.RenderFail(failed)
	}

	t := ui.NewTable("Articles", "Count")
	t.Row("Total", strconv.Itoa(a.Total))
	t.Row("Unclassified", strconv.Itoa(a.Unclassified))
	t.Row("High-signal", strconv.Itoa(a.HighSignal))
	t.Row("Pending extraction", pending)
	t.Row("Extracted", strconv.Itoa(a.Extracted))
	t.Row("Failed", failed)
	for _, kv := range sortedCounts(a.ByEventType) {
		t.Row("  "+kv.key, strconv.Itoa(kv.n))
	}
	fmt.Println(t)
}

func renderGraphStats(o *report.Overview) {
	g := o.Graph
	t := ui.NewTable("Graph", "Count")
	t.Row("Entities", strconv.Itoa(g.Entities))
	t.Row("  merged away", strconv.Itoa(g.MergedEntities))
	for _, kv := range sortedCounts(g.ByKind) {
		t.Row("  "+kv.key, strconv.Itoa(kv.n))
	}
	t.Row("Relationships", strconv.Itoa(g.Relationships))
	for _, kv := range sortedCounts(g.ByPredicate) {
		t.Row("  "+kv.key, strconv.Itoa(kv.n))
	}
	t.Row("Events", strconv.Itoa(g.Events))
	t.Row("Filings", strconv.Itoa(g.Filings))
	fmt.Println(t)
}

func renderQuality(o *report.Overview) {
	q := o.Quality
	total := q.Tier1 + q.Tier2 + q.Tier3
	if total == 0 {
		return
	}
	fmt.Printf("%s %.1f/100 (primary %d, reputable %d, secondary %d)\n",
		ui.RenderBold("Source quality:"), q.Score, q.Tier1, q.Tier2, q.Tier3)
}

func renderFeeds(o *report.Overview) {
	if len(o.Feeds) == 0 {
		return
	}
	t := ui.NewTable("Feed", "Priority", "Success", "Avg fetch", "Failures")
	for _, f := range o.Feeds {
		success := fmt.Sprintf("%.0f%%", f.SuccessRate*100)
		switch {
		case f.ConsecutiveFailures >= 3:
			success = ui.RenderFail(success)
		case f.SuccessRate < 0.8:
			success = ui.RenderWarn(success)
		}
		name := f.Name
		if !f.Enabled {
			name = ui.RenderMuted(name + " (disabled)")
		}
		t.Row(name,
			strconv.Itoa(f.Priority),
			success,
			fmt.Sprintf("%.1fs", f.AvgFetchSeconds),
			strconv.Itoa(f.ConsecutiveFailures))
	}
	fmt.Println(t)
}

func renderRuns(o *report.Overview) {
	if len(o.Runs) == 0 {
		return
	}
	t := ui.NewTable("Run", "Started", "Extracted", "Failed", "Relationships", "Matches")
	for _, r := range o.Runs {
		t.Row(shortRunID(r.ID),
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			strconv.Itoa(r.Extracted),
			strconv.Itoa(r.Failed),
			strconv.Itoa(r.RelationshipsAdded),
			strconv.Itoa(r.XrefMatches))
	}
	fmt.Println(t)
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

type countRow struct {
	key string
	n   int
}

// sortedCounts orders a breakdown map by count, then name, for stable
// display.
func sortedCounts(m map[string]int) []countRow {
	rows := make([]countRow, 0, len(m))
	for k, n := range m {
		rows = append(rows, countRow{k, n})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].n != rows[j].n {
			return rows[i].n > rows[j].n
		}
		return rows[i].key < rows[j].key
	})
	return rows
}
