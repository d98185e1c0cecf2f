package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:     "resolve",
	GroupID: "pipeline",
	Short:   "Deduplicate entities in the graph",
	Long: `Run entity resolution over the current graph.

The resolver fixes unknown entity kinds by suffix and shape inference,
redirects SPV filing vehicles (Series N fund-of-one LLCs) to their
underlying companies, finds same-kind duplicates by normalized-name
similarity, and merges each duplicate into the older entity. Merging
never deletes: the duplicate keeps its row, gains a canonical pointer,
and its relationships, events, and enrichment move to the canonical
entity. Aliases accumulate so future lookups hit the canonical record
directly.

Examples:
  tg resolve            # Full resolution pass
  tg resolve --json     # Machine-readable counters`,
	Run: func(cmd *cobra.Command, args []string) {
		lock, err := acquireRunLock()
		if err != nil {
			FatalError("%v", err)
		}
		defer func() { _ = lock.Unlock() }()

		log, closeLog := newRunLogger()
		defer closeLog()

		stats, err := newResolver(log).Run(rootCtx)
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			outputJSON(stats)
			return
		}
		fmt.Printf("Kinds fixed: %d\n", stats.KindsFixed)
		fmt.Printf("SPVs resolved: %d\n", stats.SPVsResolved)
		fmt.Printf("Duplicates found: %d, merged: %d\n", stats.DuplicatesFound, stats.EntitiesMerged)
		fmt.Printf("Relationships moved: %d, events moved: %d\n", stats.RelationshipsMoved, stats.EventsMoved)
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}
