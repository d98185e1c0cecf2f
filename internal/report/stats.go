package report

import (
	"context"
	"math"

	"github.com/untoldecay/TalentGraph/internal/types"
)

// overviewRuns is how many recent pipeline runs the overview carries.
const overviewRuns = 5

// entityFactLimit bounds the fact scan behind EntityConfidence.
const entityFactLimit = 200

// Overview bundles processing-state and graph-shape statistics with a
// sourcing grade, the data behind the stats surface.
type Overview struct {
	Articles *types.ArticleStats  `json:"articles"`
	Graph    *types.GraphStats    `json:"graph"`
	Quality  *QualityReport       `json:"quality"`
	Feeds    []*types.Feed        `json:"feeds,omitempty"`
	Runs     []*types.PipelineRun `json:"recent_runs,omitempty"`
}

// QualityReport grades the evidence behind the graph: how many
// relationship rows each publication contributed, the tier totals, and
// a single 0 to 100 score.
type QualityReport struct {
	SourceDistribution map[string]int `json:"source_distribution"`
	Tier1              int            `json:"tier1_primary"`
	Tier2              int            `json:"tier2_reputable"`
	Tier3              int            `json:"tier3_secondary"`
	Score              float64        `json:"quality_score"`
}

// Overview assembles the full statistics view in one pass.
func (g *Generator) Overview(ctx context.Context) (*Overview, error) {
	articles, err := g.store.ArticleStats(ctx)
	if err != nil {
		return nil, err
	}
	graph, err := g.store.GraphStats(ctx)
	if err != nil {
		return nil, err
	}
	quality, err := g.quality(ctx)
	if err != nil {
		return nil, err
	}
	feeds, err := g.store.ListFeeds(ctx)
	if err != nil {
		return nil, err
	}
	runs, err := g.store.RecentRuns(ctx, overviewRuns)
	if err != nil {
		return nil, err
	}

	return &Overview{
		Articles: articles,
		Graph:    graph,
		Quality:  quality,
		Feeds:    feeds,
		Runs:     runs,
	}, nil
}

func (g *Generator) quality(ctx context.Context) (*QualityReport, error) {
	counts, err := g.store.RelationshipSources(ctx)
	if err != nil {
		return nil, err
	}

	q := &QualityReport{SourceDistribution: map[string]int{}}
	for sourceURL, n := range counts {
		grade := QualityFor(sourceURL)
		q.SourceDistribution[grade.Name] += n
		switch grade.Tier {
		case 1:
			q.Tier1 += n
		case 2:
			q.Tier2 += n
		default:
			q.Tier3 += n
		}
	}
	q.Score = qualityScore(q.Tier1, q.Tier2, q.Tier3)
	return q, nil
}

// qualityScore grades corpus sourcing from 0 to 100, one decimal.
// First-tier evidence counts in full, second-tier at 70 percent,
// third-tier at 40.
func qualityScore(tier1, tier2, tier3 int) float64 {
	total := tier1 + tier2 + tier3
	if total == 0 {
		return 0
	}
	weighted := float64(tier1)*1.0 + float64(tier2)*0.7 + float64(tier3)*0.4
	return math.Round(weighted/float64(total)*1000) / 10
}

// EntityConfidence grades one entity's sourcing across every distinct
// URL asserting a fact about it. An entity the graph has never seen
// comes back uncorroborated rather than as an error.
func (g *Generator) EntityConfidence(ctx context.Context, name string) (Corroboration, error) {
	facts, err := g.store.QueryFacts(ctx, types.FactFilter{
		EntityName: name,
		Limit:      entityFactLimit,
	})
	if err != nil {
		return Corroboration{}, err
	}

	seen := map[string]bool{}
	urls := make([]string, 0, len(facts))
	for _, fact := range facts {
		if fact.SourceURL == "" || seen[fact.SourceURL] {
			continue
		}
		seen[fact.SourceURL] = true
		urls = append(urls, fact.SourceURL)
	}
	return Corroborate(urls), nil
}
