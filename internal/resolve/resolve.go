// Package resolve collapses duplicate graph entities into canonical
// representatives and settles ambiguous entity kinds from the shape of
// the graph around them. Resolution never deletes anything: a merge is
// a canonical pointer plus redirected references, so provenance survives
// and re-running a pass is a no-op.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/untoldecay/TalentGraph/internal/names"
	"github.com/untoldecay/TalentGraph/internal/storage"
	"github.com/untoldecay/TalentGraph/internal/types"
)

// DefaultThreshold is the fuzzy name similarity above which two entities
// of compatible kinds are treated as the same real-world subject.
const DefaultThreshold = 0.85

// defaultBatch bounds how many entities one pass examines. Passes are
// idempotent, so a bounded pass converges over repeated runs.
const defaultBatch = 1000

// Stats counts what one resolution pass changed.
type Stats struct {
	KindsFixed         int `json:"kinds_fixed"`
	SPVsResolved       int `json:"spvs_resolved"`
	DuplicatesFound    int `json:"duplicates_found"`
	EntitiesMerged     int `json:"entities_merged"`
	RelationshipsMoved int `json:"relationships_moved"`
	EventsMoved        int `json:"events_moved"`
}

// Resolver deduplicates entities in a graph store.
type Resolver struct {
	store     storage.Store
	threshold float64
	batch     int
	log       *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithThreshold overrides the fuzzy similarity threshold.
func WithThreshold(threshold float64) Option {
	return func(r *Resolver) {
		if threshold > 0 {
			r.threshold = threshold
		}
	}
}

// WithBatchSize bounds how many entities one pass loads.
func WithBatchSize(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.batch = n
		}
	}
}

// WithLogger routes resolution decisions to a structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Resolver) {
		if log != nil {
			r.log = log
		}
	}
}

// New returns a Resolver over the given store.
func New(store storage.Store, opts ...Option) *Resolver {
	r := &Resolver{
		store:     store,
		threshold: DefaultThreshold,
		batch:     defaultBatch,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one full resolution pass: kind inference, then
// special-purpose-vehicle redirection, then duplicate merging. Each
// phase reloads its working set, so earlier phases feed later ones.
func (r *Resolver) Run(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	if err := r.fixKinds(ctx, stats); err != nil {
		return stats, err
	}
	if err := r.resolveSPVs(ctx, stats); err != nil {
		return stats, err
	}
	if err := r.mergeDuplicates(ctx, stats); err != nil {
		return stats, err
	}
	return stats, nil
}

// fixKinds settles unknown entity kinds, first from the entity's
// relationships, then from the shape of its name. Entities that stay
// ambiguous remain unknown and are retried on the next pass; every
// reclassification is logged.
func (r *Resolver) fixKinds(ctx context.Context, stats *Stats) error {
	unknowns, err := r.store.ActiveEntities(ctx, types.KindUnknown, r.batch)
	if err != nil {
		return fmt.Errorf("failed to list unknown entities: %w", err)
	}

	for _, e := range unknowns {
		if err := ctx.Err(); err != nil {
			return err
		}
		kind, basis, err := r.inferKind(ctx, e)
		if err != nil {
			return err
		}
		if kind == types.KindUnknown {
			continue
		}
		if err := r.store.UpdateEntityKind(ctx, e.ID, kind); err != nil {
			return fmt.Errorf("failed to reclassify %q: %w", e.Name, err)
		}
		stats.KindsFixed++
		r.log.Info("entity kind settled", "entity", e.Name, "kind", string(kind), "basis", basis)
	}
	return nil
}

// inferKind derives a kind from the entity's edges: a FUNDED_BY or
// ACQUIRED subject is a company, a HIRED_BY or executive-role subject is
// a person, a FUNDED_BY object or INVESTED_IN subject is an investor.
// Person evidence outranks company evidence because executives generate
// both shapes. The fallback is organizational name shape only; a
// capitalized multi-word name is not person evidence, since suffix-less
// company names look exactly the same.
func (r *Resolver) inferKind(ctx context.Context, e *types.Entity) (types.EntityKind, string, error) {
	facts, err := r.store.QueryFacts(ctx, types.FactFilter{EntityName: e.Name})
	if err != nil {
		return types.KindUnknown, "", fmt.Errorf("failed to load facts for %q: %w", e.Name, err)
	}

	var person, company, investor int
	for _, f := range facts {
		if f.SubjectID == e.ID {
			switch f.Predicate {
			case types.PredicateHiredBy, types.PredicateDepartedFrom,
				types.PredicateCEOOf, types.PredicateCTOOf, types.PredicateCFOOf,
				types.PredicateFounded:
				person++
			case types.PredicateFundedBy, types.PredicateAcquired, types.PredicateLaidOff:
				company++
			case types.PredicateInvestedIn:
				investor++
			}
		}
		if f.ObjectID == e.ID {
			switch f.Predicate {
			case types.PredicateHiredBy, types.PredicateDepartedFrom,
				types.PredicateCEOOf, types.PredicateCTOOf, types.PredicateCFOOf,
				types.PredicateFounded, types.PredicateAcquired,
				types.PredicateInvestedIn:
				company++
			case types.PredicateFundedBy:
				investor++
			}
		}
	}

	switch {
	case person > 0:
		return types.KindPerson, "relationships", nil
	case company > 0:
		return types.KindCompany, "relationships", nil
	case investor > 0:
		return types.KindInvestor, "relationships", nil
	}

	if names.IsOrganization(e.Name) {
		return names.InferKind(e.Name), "name shape", nil
	}
	return types.KindUnknown, "", nil
}

// resolveSPVs folds special-purpose-vehicle shells into the company they
// wrap. "SpaceX Dec 2025 a Series of Witz Ventures LLC" carries SpaceX's
// funding, so the shell merges into SpaceX and the shell's full name
// survives as an alias. Names that do not match the shape exactly are
// left alone rather than guessed at.
func (r *Resolver) resolveSPVs(ctx context.Context, stats *Stats) error {
	entities, err := r.store.ActiveEntities(ctx, "", r.batch)
	if err != nil {
		return fmt.Errorf("failed to list entities: %w", err)
	}

	for _, e := range entities {
		if err := ctx.Err(); err != nil {
			return err
		}
		underlying, ok := names.SPVUnderlying(e.Name)
		if !ok {
			continue
		}

		targetID, err := r.store.UpsertEntity(ctx, underlying, types.KindCompany, nil)
		if err != nil {
			return fmt.Errorf("failed to upsert SPV target %q: %w", underlying, err)
		}
		target, err := r.store.ResolveCanonical(ctx, targetID)
		if err != nil {
			return fmt.Errorf("failed to resolve SPV target %q: %w", underlying, err)
		}
		if target.ID == e.ID {
			continue
		}

		if err := r.merge(ctx, target, e, stats); err != nil {
			if errors.Is(err, storage.ErrCanonicalCycle) {
				r.log.Warn("SPV merge skipped", "entity", e.Name, "error", err)
				continue
			}
			return err
		}
		stats.SPVsResolved++
		r.log.Info("SPV resolved", "spv", e.Name, "company", target.Name)
	}
	return nil
}

// mergeDuplicates fuzzy-groups active entities and merges each group
// into its best-evidenced member. Exact duplicates never reach this
// pass: the store collapses identical normalized names at write time.
func (r *Resolver) mergeDuplicates(ctx context.Context, stats *Stats) error {
	entities, err := r.store.ActiveEntities(ctx, "", r.batch)
	if err != nil {
		return fmt.Errorf("failed to list entities: %w", err)
	}

	// The list arrives ordered by mention count, so position doubles as
	// merge priority: within a duplicate group the earliest entry wins.
	pos := make(map[int64]int, len(entities))
	byID := make(map[int64]*types.Entity, len(entities))
	for i, e := range entities {
		pos[e.ID] = i
		byID[e.ID] = e
	}

	root := map[int64]int64{}
	find := func(id int64) int64 {
		for {
			next, ok := root[id]
			if !ok {
				return id
			}
			id = next
		}
	}

	for i, a := range entities {
		for _, b := range entities[i+1:] {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !compatibleKinds(a.Kind, b.Kind) {
				continue
			}
			sim := names.Similarity(a.NormalizedName, b.NormalizedName)
			if sim < r.threshold {
				continue
			}
			stats.DuplicatesFound++

			keepID, loseID := find(a.ID), find(b.ID)
			if keepID == loseID {
				continue
			}
			if pos[keepID] > pos[loseID] {
				keepID, loseID = loseID, keepID
			}

			keep, lose := byID[keepID], byID[loseID]
			r.log.Info("duplicate found",
				"keep", keep.Name, "merge", lose.Name, "similarity", sim)
			if err := r.merge(ctx, keep, lose, stats); err != nil {
				if errors.Is(err, storage.ErrCanonicalCycle) {
					r.log.Warn("merge skipped", "entity", lose.Name, "error", err)
					continue
				}
				return err
			}
			root[loseID] = keepID
		}
	}
	return nil
}

// merge folds lose into keep: canonical pointer, relationship and event
// redirection, enrichment move, alias union, mention transfer, and kind
// adoption when the survivor was unknown. The writes share one
// transaction so a crash cannot leave a half-merged pair.
func (r *Resolver) merge(ctx context.Context, keep, lose *types.Entity, stats *Stats) error {
	aliases, err := r.store.GetAliases(ctx, lose.ID)
	if err != nil {
		return fmt.Errorf("failed to load aliases of %q: %w", lose.Name, err)
	}

	var relsMoved, eventsMoved int
	err = r.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if err := tx.SetCanonical(ctx, lose.ID, keep.ID); err != nil {
			return err
		}
		moved, err := tx.RedirectRelationships(ctx, lose.ID, keep.ID)
		if err != nil {
			return err
		}
		relsMoved = moved

		moved, err = tx.RedirectEvents(ctx, lose.ID, keep.ID)
		if err != nil {
			return err
		}
		eventsMoved = moved

		if _, err := tx.MoveEnrichment(ctx, lose.ID, keep.ID); err != nil {
			return err
		}

		if err := tx.AddAlias(ctx, keep.ID, lose.Name); err != nil {
			return err
		}
		for _, alias := range aliases {
			if err := tx.AddAlias(ctx, keep.ID, alias); err != nil {
				return err
			}
		}
		if err := tx.AddMentions(ctx, keep.ID, lose.MentionCount); err != nil {
			return err
		}

		if keep.Kind == types.KindUnknown && lose.Kind != types.KindUnknown {
			if err := tx.UpdateEntityKind(ctx, keep.ID, lose.Kind); err != nil {
				return err
			}
			keep.Kind = lose.Kind
		}
		return nil
	})
	if err != nil {
		return err
	}

	stats.EntitiesMerged++
	stats.RelationshipsMoved += relsMoved
	stats.EventsMoved += eventsMoved
	return nil
}

// compatibleKinds restricts merges to one kind, except that unknown can
// merge with anything and inherits the survivor's kind.
func compatibleKinds(a, b types.EntityKind) bool {
	if a == types.KindUnknown || b == types.KindUnknown {
		return true
	}
	return a == b
}
