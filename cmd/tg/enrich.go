package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/untoldecay/TalentGraph/internal/config"
	"github.com/untoldecay/TalentGraph/internal/extract"
	"github.com/untoldecay/TalentGraph/internal/types"
	"github.com/untoldecay/TalentGraph/internal/ui"
)

// enrichmentSource tags records written by this command so reruns skip
// entities that already carry an Anthropic-sourced profile.
const enrichmentSource = "anthropic"

var (
	enrichKind  string
	enrichLimit int
)

var enrichCmd = &cobra.Command{
	Use:     "enrich",
	GroupID: "pipeline",
	Short:   "Fetch background profiles for graph entities",
	Long: `Look up background detail (headquarters, headcount, titles,
funding history) for the most-mentioned entities that have no profile
yet, and attach what comes back to the graph.

Each run targets entities without an existing profile, most-mentioned
first, so repeated runs work down the backlog.

Examples:
  tg enrich
  tg enrich --kind person --limit 5
  tg enrich --json`,
	Run: func(cmd *cobra.Command, args []string) {
		kind, err := parseEnrichKind(enrichKind)
		if err != nil {
			FatalError("%v", err)
		}
		limit := enrichLimit
		if limit <= 0 {
			limit = config.GetEnrichMaxEntities()
		}

		client, err := extract.NewClient(config.GetAPIKey(),
			extract.WithModel(config.GetEnrichModel()),
			extract.WithMaxRetries(config.GetExtractionMaxRetries()),
			extract.WithCallTimeout(config.GetExtractionTimeout()),
			extract.WithRequestsPerSecond(config.GetRequestsPerSecond()),
		)
		if err != nil {
			exitExtractorError(err)
		}

		entities, err := store.EntitiesNeedingEnrichment(rootCtx, kind, enrichmentSource, limit)
		if err != nil {
			FatalError("%v", err)
		}
		if len(entities) == 0 {
			fmt.Println("No entities need enrichment")
			return
		}

		type enriched struct {
			Entity     string            `json:"entity"`
			Kind       types.EntityKind  `json:"kind"`
			Summary    string            `json:"summary"`
			Attributes map[string]string `json:"attributes"`
		}
		var results []enriched
		failed := 0

		for _, e := range entities {
			res, err := client.Enrich(rootCtx, e.Name, e.Kind)
			if err != nil {
				if rootCtx.Err() != nil {
					break
				}
				failed++
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: enrich %s: %v\n", e.Name, err)
				continue
			}
			if err := store.UpsertEnrichment(rootCtx, e.ID, enrichmentSource, res.Summary, res.Attributes); err != nil {
				FatalError("store enrichment for %s: %v", e.Name, err)
			}
			results = append(results, enriched{
				Entity:     e.Name,
				Kind:       e.Kind,
				Summary:    res.Summary,
				Attributes: res.Attributes,
			})
			if !jsonOutput {
				fmt.Printf("%s %s %s\n", ui.IconPass, ui.RenderBold(e.Name), ui.RenderMuted(firstLine(res.Summary)))
			}
		}

		if jsonOutput {
			outputJSON(results)
			return
		}
		fmt.Printf("\nEnriched %d of %d entities", len(results), len(entities))
		if failed > 0 {
			fmt.Printf(", %d failed", failed)
		}
		fmt.Println()
	},
}

func parseEnrichKind(s string) (types.EntityKind, error) {
	switch kind := types.EntityKind(strings.ToLower(strings.TrimSpace(s))); kind {
	case "":
		return "", nil
	case types.KindCompany, types.KindPerson, types.KindInvestor:
		return kind, nil
	default:
		return "", fmt.Errorf("unknown kind %q (company, person, investor)", s)
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	const max = 100
	if len(s) > max {
		return s[:max-3] + "..."
	}
	return s
}

func init() {
	enrichCmd.Flags().StringVar(&enrichKind, "kind", "", "Only enrich entities of this kind (company, person, investor)")
	enrichCmd.Flags().IntVar(&enrichLimit, "limit", 0, "Maximum entities per run (default: enrich.max-entities)")
	rootCmd.AddCommand(enrichCmd)
}
