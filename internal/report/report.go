// Package report assembles recruiter-facing views of the graph: the
// periodic digest of funding, M&A, layoff, and talent movement, and the
// corpus overview with its source-quality grading. Everything here is
// read-only over the store; generating a report never mutates data.
package report

import (
	"context"
	"log/slog"
	"time"

	"github.com/untoldecay/TalentGraph/internal/storage"
	"github.com/untoldecay/TalentGraph/internal/types"
)

// Generator builds digests and overviews from a store.
type Generator struct {
	store storage.Store
	now   func() time.Time
	log   *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock overrides the time source, pinning digest titles and
// default windows.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// WithLogger routes generation progress to a structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(g *Generator) {
		if log != nil {
			g.log = log
		}
	}
}

// New returns a Generator over the given store.
func New(store storage.Store, opts ...Option) *Generator {
	g := &Generator{
		store: store,
		now:   time.Now,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Generator) facts(ctx context.Context, predicate types.Predicate, since time.Time, limit int) ([]*types.Fact, error) {
	return g.store.QueryFacts(ctx, types.FactFilter{
		Predicate: predicate,
		Since:     &since,
		Limit:     limit,
	})
}
