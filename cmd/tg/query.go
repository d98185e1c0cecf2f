package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/untoldecay/TalentGraph/internal/report"
	"github.com/untoldecay/TalentGraph/internal/storage"
	"github.com/untoldecay/TalentGraph/internal/types"
	"github.com/untoldecay/TalentGraph/internal/ui"
)

var (
	queryPredicate     string
	queryEntity        string
	queryKind          string
	querySince         string
	queryMinConfidence float64
	queryLimit         int
	querySources       bool

	acquisitionsSince string
)

var queryCmd = &cobra.Command{
	Use:     "query",
	GroupID: "views",
	Short:   "Query the relationship graph",
	Long: `Query relationships, careers, and entities in the graph.

All queries resolve entities through their canonical chain, so a query
for a merged duplicate answers with the canonical entity's facts.

Examples:
  tg query relationships --predicate FUNDED_BY --since 2026-01-01
  tg query who-hired "Acme Robotics"
  tg query where-went "Jane Doe"
  tg query acquisitions --since 2026-06-01
  tg query trajectory "Jane Doe"
  tg query entity "Acme Robotics"`,
}

var queryRelationshipsCmd = &cobra.Command{
	Use:   "relationships",
	Short: "List facts, aggregated across corroborating sources",
	Long: `List relationship facts. By default the same claim from several
sources is folded into one row carrying the best confidence and the
corroborating source count; --sources shows every provenance row
instead.

Examples:
  tg query relationships --entity "Acme Robotics"
  tg query relationships --predicate ACQUIRED --min-confidence 0.8
  tg query relationships --kind person --since 720h
  tg query relationships --entity Acme --sources`,
	Run: func(cmd *cobra.Command, args []string) {
		filter, err := buildFactFilter()
		if err != nil {
			FatalError("%v", err)
		}

		if querySources {
			facts, err := store.QueryFacts(rootCtx, filter)
			if err != nil {
				FatalError("%v", err)
			}
			if jsonOutput {
				outputJSON(facts)
				return
			}
			renderFactRows(facts)
			return
		}

		aggregated, err := store.AggregateFacts(rootCtx, filter)
		if err != nil {
			FatalError("%v", err)
		}
		if jsonOutput {
			outputJSON(aggregated)
			return
		}
		renderAggregatedRows(aggregated)
	},
}

var queryWhoHiredCmd = &cobra.Command{
	Use:   "who-hired <company>",
	Short: "List people a company hired",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		company := resolveEntityArg(args[0])
		facts := factsForEntity(types.PredicateHiredBy, company)

		var hires []*types.Fact
		for _, f := range facts {
			if f.ObjectID == company.ID {
				hires = append(hires, f)
			}
		}

		if jsonOutput {
			outputJSON(hires)
			return
		}
		if len(hires) == 0 {
			fmt.Printf("No recorded hires at %s\n", company.Name)
			return
		}
		fmt.Printf("%s hired:\n", ui.RenderBold(company.Name))
		for _, f := range hires {
			fmt.Printf("  %s%s  %s\n",
				ui.RenderAccent(f.Subject), factDate(f), ui.RenderConfidence(f.Confidence))
		}
	},
}

var queryWhereWentCmd = &cobra.Command{
	Use:   "where-went <person>",
	Short: "Show where a person went to work",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		person := resolveEntityArg(args[0])
		facts := factsForEntity(types.PredicateHiredBy, person)

		var moves []*types.Fact
		for _, f := range facts {
			if f.SubjectID == person.ID {
				moves = append(moves, f)
			}
		}

		if jsonOutput {
			outputJSON(moves)
			return
		}
		if len(moves) == 0 {
			fmt.Printf("No recorded moves for %s\n", person.Name)
			return
		}
		for _, f := range moves {
			fmt.Printf("%s joined %s%s  %s\n",
				ui.RenderBold(person.Name), ui.RenderAccent(f.Object),
				factDate(f), ui.RenderConfidence(f.Confidence))
		}
	},
}

var queryAcquisitionsCmd = &cobra.Command{
	Use:   "acquisitions",
	Short: "List acquisitions, newest first",
	Run: func(cmd *cobra.Command, args []string) {
		filter := types.FactFilter{Predicate: types.PredicateAcquired, Limit: queryLimit}
		since, err := parseSince(acquisitionsSince)
		if err != nil {
			FatalError("%v", err)
		}
		filter.Since = since

		aggregated, err := store.AggregateFacts(rootCtx, filter)
		if err != nil {
			FatalError("%v", err)
		}
		if jsonOutput {
			outputJSON(aggregated)
			return
		}
		if len(aggregated) == 0 {
			fmt.Println("No acquisitions recorded")
			return
		}
		for _, f := range aggregated {
			date := ""
			if f.EventDate != nil {
				date = "  " + ui.RenderMuted(f.EventDate.Format("2006-01-02"))
			}
			fmt.Printf("%s acquired %s%s  %s%s\n",
				ui.RenderBold(f.Subject), ui.RenderBold(f.Object), date,
				ui.RenderConfidence(f.Confidence), sourcesSuffix(f.Sources))
		}
	},
}

var queryTrajectoryCmd = &cobra.Command{
	Use:   "trajectory <person>",
	Short: "Show a person's career timeline",
	Long: `Show every career fact the graph holds for a person (hires,
departures, founding, leadership roles), ordered by event date with
undated facts last.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		person := resolveEntityArg(args[0])
		facts, err := store.QueryFacts(rootCtx, types.FactFilter{
			EntityName: person.Name,
			Limit:      queryLimit,
		})
		if err != nil {
			FatalError("%v", err)
		}

		var steps []*types.Fact
		for _, f := range facts {
			if f.SubjectID != person.ID {
				continue
			}
			if _, ok := trajectoryVerbs[f.Predicate]; ok {
				steps = append(steps, f)
			}
		}
		sort.SliceStable(steps, func(i, j int) bool {
			return factBefore(steps[i], steps[j])
		})

		if jsonOutput {
			outputJSON(steps)
			return
		}
		if len(steps) == 0 {
			fmt.Printf("No career facts for %s\n", person.Name)
			return
		}
		fmt.Println(ui.RenderBold(person.Name))
		for _, f := range steps {
			date := "          "
			if f.EventDate != nil {
				date = f.EventDate.Format("2006-01-02")
			}
			fmt.Printf("  %s  %s %s  %s\n",
				ui.RenderMuted(date), trajectoryVerbs[f.Predicate],
				ui.RenderAccent(f.Object), ui.RenderConfidence(f.Confidence))
		}
	},
}

var queryEntityCmd = &cobra.Command{
	Use:   "entity <name>",
	Short: "Show an entity's profile, aliases, and corroboration",
	Run: func(cmd *cobra.Command, args []string) {
		name := strings.Join(args, " ")
		if name == "" {
			FatalError("entity name required")
		}
		entity := resolveEntityArg(name)

		aliases, err := store.GetAliases(rootCtx, entity.ID)
		if err != nil {
			FatalError("%v", err)
		}
		enrichments, err := store.GetEnrichment(rootCtx, entity.ID)
		if err != nil {
			FatalError("%v", err)
		}
		corroboration, err := report.New(store).EntityConfidence(rootCtx, entity.Name)
		if err != nil {
			FatalError("%v", err)
		}
		facts, err := store.AggregateFacts(rootCtx, types.FactFilter{
			EntityName: entity.Name,
			Limit:      queryLimit,
		})
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			entity.Aliases = aliases
			outputJSON(map[string]interface{}{
				"entity":        entity,
				"corroboration": corroboration,
				"enrichment":    enrichments,
				"facts":         facts,
			})
			return
		}

		fmt.Printf("%s  %s\n", ui.RenderBold(entity.Name), ui.RenderKind(string(entity.Kind)))
		fmt.Printf("Mentions: %d  First seen: %s  Last seen: %s\n",
			entity.MentionCount,
			entity.FirstSeen.Format("2006-01-02"),
			entity.LastSeen.Format("2006-01-02"))
		if len(aliases) > 0 {
			fmt.Printf("Aliases: %s\n", strings.Join(aliases, ", "))
		}
		fmt.Printf("Corroboration: %s across %d sources (tier1 %d, tier2 %d, tier3 %d)\n",
			ui.RenderConfidence(corroboration.Confidence), corroboration.Sources,
			corroboration.Tier1, corroboration.Tier2, corroboration.Tier3)
		for _, e := range enrichments {
			fmt.Printf("\n%s (%s)\n", ui.RenderBold("Enrichment"), e.Source)
			if e.Summary != "" {
				fmt.Printf("  %s\n", e.Summary)
			}
			for _, kv := range sortedAttrs(e.Attributes) {
				fmt.Printf("  %s: %s\n", ui.RenderMuted(kv[0]), kv[1])
			}
		}
		if len(facts) > 0 {
			fmt.Printf("\n%s\n", relationshipTree(entity, facts))
		}
	},
}

// relationshipTree groups an entity's aggregated facts by predicate.
// Leaf arrows show edge direction relative to the entity: → outgoing
// (entity is subject), ← incoming.
func relationshipTree(entity *types.Entity, facts []*types.AggregatedFact) string {
	branchFor := make(map[types.Predicate]int)
	var branches []ui.TreeBranch
	for _, f := range facts {
		i, ok := branchFor[f.Predicate]
		if !ok {
			i = len(branches)
			branchFor[f.Predicate] = i
			branches = append(branches, ui.TreeBranch{Label: string(f.Predicate)})
		}
		leaf := "→ " + f.Object
		if f.Subject != entity.Name {
			leaf = "← " + f.Subject
		}
		if f.EventDate != nil {
			leaf += "  " + ui.RenderMuted(f.EventDate.Format("2006-01-02"))
		}
		leaf += "  " + ui.RenderConfidence(f.Confidence) + sourcesSuffix(f.Sources)
		branches[i].Leaves = append(branches[i].Leaves, leaf)
	}
	root := fmt.Sprintf("%s (%s)", entity.Name, entity.Kind)
	return ui.RenderRelationshipTree(root, branches)
}

// trajectoryVerbs maps career predicates to timeline verbs.
var trajectoryVerbs = map[types.Predicate]string{
	types.PredicateHiredBy:      "joined",
	types.PredicateDepartedFrom: "left",
	types.PredicateFounded:      "founded",
	types.PredicateCEOOf:        "became CEO of",
	types.PredicateCTOOf:        "became CTO of",
	types.PredicateCFOOf:        "became CFO of",
}

func init() {
	queryRelationshipsCmd.Flags().StringVar(&queryPredicate, "predicate", "", "Filter by predicate (e.g. FUNDED_BY, ACQUIRED)")
	queryRelationshipsCmd.Flags().StringVar(&queryEntity, "entity", "", "Filter by entity name or alias (either endpoint)")
	queryRelationshipsCmd.Flags().StringVar(&queryKind, "kind", "", "Filter by subject kind (company, person, investor)")
	queryRelationshipsCmd.Flags().StringVar(&querySince, "since", "", "Only facts dated on or after (YYYY-MM-DD or lookback like 720h)")
	queryRelationshipsCmd.Flags().Float64Var(&queryMinConfidence, "min-confidence", 0, "Minimum confidence")
	queryRelationshipsCmd.Flags().BoolVar(&querySources, "sources", false, "Show every provenance row instead of aggregating")

	queryAcquisitionsCmd.Flags().StringVar(&acquisitionsSince, "since", "", "Only acquisitions dated on or after (YYYY-MM-DD or lookback like 720h)")

	queryCmd.PersistentFlags().IntVar(&queryLimit, "limit", 50, "Maximum rows")

	queryCmd.AddCommand(queryRelationshipsCmd)
	queryCmd.AddCommand(queryWhoHiredCmd)
	queryCmd.AddCommand(queryWhereWentCmd)
	queryCmd.AddCommand(queryAcquisitionsCmd)
	queryCmd.AddCommand(queryTrajectoryCmd)
	queryCmd.AddCommand(queryEntityCmd)
	rootCmd.AddCommand(queryCmd)
}

// buildFactFilter assembles the relationships filter from flags.
func buildFactFilter() (types.FactFilter, error) {
	filter := types.FactFilter{
		EntityName:    queryEntity,
		MinConfidence: queryMinConfidence,
		Limit:         queryLimit,
	}
	if queryPredicate != "" {
		p := types.Predicate(strings.ToUpper(strings.TrimSpace(queryPredicate)))
		if !types.ValidPredicate(p) {
			return filter, fmt.Errorf("unknown predicate %q (known: %s)", queryPredicate, predicateList())
		}
		filter.Predicate = p
	}
	if queryKind != "" {
		switch kind := types.EntityKind(strings.ToLower(queryKind)); kind {
		case types.KindCompany, types.KindPerson, types.KindInvestor, types.KindUnknown:
			filter.EntityKind = kind
		default:
			return filter, fmt.Errorf("unknown kind %q (company, person, investor, unknown)", queryKind)
		}
	}
	since, err := parseSince(querySince)
	if err != nil {
		return filter, err
	}
	filter.Since = since
	return filter, nil
}

func predicateList() string {
	parts := make([]string, len(types.Predicates))
	for i, p := range types.Predicates {
		parts[i] = string(p)
	}
	return strings.Join(parts, ", ")
}

// parseSince accepts an absolute date (YYYY-MM-DD) or a lookback
// duration (720h). Empty means no bound.
func parseSince(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return &t, nil
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		t := time.Now().UTC().Add(-d)
		return &t, nil
	}
	return nil, fmt.Errorf("cannot parse %q as a date (YYYY-MM-DD) or lookback duration (720h)", s)
}

// resolveEntityArg looks an entity up by name or alias and follows the
// canonical chain. Unknown names are fatal with a search hint.
func resolveEntityArg(name string) *types.Entity {
	entity, err := store.LookupEntity(rootCtx, name)
	if errors.Is(err, storage.ErrNotFound) {
		matches, serr := store.SearchEntities(rootCtx, name, 5)
		if serr == nil && len(matches) > 0 {
			names := make([]string, len(matches))
			for i, m := range matches {
				names[i] = m.Name
			}
			FatalError("no entity named %q\nHint: close matches: %s", name, strings.Join(names, ", "))
		}
		FatalError("no entity named %q", name)
	}
	if err != nil {
		FatalError("%v", err)
	}
	canonical, err := store.ResolveCanonical(rootCtx, entity.ID)
	if err != nil {
		FatalError("%v", err)
	}
	return canonical
}

// factsForEntity fetches predicate facts touching the entity.
func factsForEntity(predicate types.Predicate, entity *types.Entity) []*types.Fact {
	facts, err := store.QueryFacts(rootCtx, types.FactFilter{
		Predicate:  predicate,
		EntityName: entity.Name,
		Limit:      queryLimit,
	})
	if err != nil {
		FatalError("%v", err)
	}
	return facts
}

func renderFactRows(facts []*types.Fact) {
	if len(facts) == 0 {
		fmt.Println("No matching facts")
		return
	}
	for _, f := range facts {
		fmt.Printf("%s %s %s%s  %s  %s\n",
			ui.RenderBold(f.Subject), ui.RenderMuted(string(f.Predicate)), ui.RenderBold(f.Object),
			factDate(f), ui.RenderConfidence(f.Confidence), ui.RenderMuted(f.SourceURL))
	}
}

func renderAggregatedRows(facts []*types.AggregatedFact) {
	if len(facts) == 0 {
		fmt.Println("No matching facts")
		return
	}
	for _, f := range facts {
		date := ""
		if f.EventDate != nil {
			date = "  " + ui.RenderMuted(f.EventDate.Format("2006-01-02"))
		}
		fmt.Printf("%s %s %s%s  %s%s\n",
			ui.RenderBold(f.Subject), ui.RenderMuted(string(f.Predicate)), ui.RenderBold(f.Object),
			date, ui.RenderConfidence(f.Confidence), sourcesSuffix(f.Sources))
	}
}

func sourcesSuffix(n int) string {
	if n <= 1 {
		return ""
	}
	return ui.RenderMuted(fmt.Sprintf("  (%d sources)", n))
}

func factDate(f *types.Fact) string {
	if f.EventDate == nil {
		return ""
	}
	return "  " + ui.RenderMuted(f.EventDate.Format("2006-01-02"))
}

// factBefore orders facts for timelines: dated facts ascending, undated
// last, ties by insertion.
func factBefore(a, b *types.Fact) bool {
	switch {
	case a.EventDate == nil:
		return false
	case b.EventDate == nil:
		return true
	default:
		return a.EventDate.Before(*b.EventDate)
	}
}

// sortedAttrs orders an attribute map for stable display.
func sortedAttrs(attrs map[string]string) [][2]string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([][2]string, len(keys))
	for i, k := range keys {
		rows[i] = [2]string{k, attrs[k]}
	}
	return rows
}
