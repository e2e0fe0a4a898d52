// Package reconcile joins a primary list against independently fetched
// secondary values. Elements whose secondary fetch fails are dropped, the
// order of the survivors follows the primary list.
package reconcile

import (
	"context"

	log "github.com/jensneuse/abstractlogger"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Fetch loads the secondary value of one primary element.
type Fetch[P, S any] func(ctx context.Context, primary P) (S, error)

// Outcome is a primary element that survived reconciliation.
type Outcome[P, S any] struct {
	// Index is the position of Primary in the input list.
	Index     int
	Primary   P
	Secondary S
}

type options[S any] struct {
	predicate func(S) bool
	limit     int
	logger    log.Logger
}

type Option[S any] func(*options[S])

// WithPredicate drops elements whose secondary value does not satisfy keep.
func WithPredicate[S any](keep func(S) bool) Option[S] {
	return func(o *options[S]) {
		o.predicate = keep
	}
}

// WithLimit bounds the number of fetches in flight. Zero or less means no limit.
func WithLimit[S any](limit int) Option[S] {
	return func(o *options[S]) {
		o.limit = limit
	}
}

func WithLogger[S any](logger log.Logger) Option[S] {
	return func(o *options[S]) {
		o.logger = logger
	}
}

// Reconcile runs fetch for every element of primary concurrently and returns
// the elements whose fetch succeeded. A failed fetch never fails the whole
// reconciliation.
func Reconcile[P, S any](ctx context.Context, primary []P, fetch Fetch[P, S], opts ...Option[S]) []Outcome[P, S] {
	o := options[S]{
		logger: log.NoopLogger,
	}
	for _, opt := range opts {
		opt(&o)
	}

	type slot struct {
		secondary S
		ok        bool
	}
	slots := make([]slot, len(primary))

	g := &errgroup.Group{}
	if o.limit > 0 {
		g.SetLimit(o.limit)
	}
	for i := range primary {
		g.Go(func() error {
			secondary, err := safeFetch(ctx, fetch, primary[i])
			if err != nil {
				o.logger.Debug("reconcile.drop",
					log.Int("index", i),
					log.Error(err),
				)
				return nil
			}
			if o.predicate != nil && !o.predicate(secondary) {
				o.logger.Debug("reconcile.drop",
					log.Int("index", i),
					log.String("reason", "predicate"),
				)
				return nil
			}
			slots[i] = slot{secondary: secondary, ok: true}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]Outcome[P, S], 0, len(primary))
	for i, s := range slots {
		if !s.ok {
			continue
		}
		out = append(out, Outcome[P, S]{Index: i, Primary: primary[i], Secondary: s.secondary})
	}
	return out
}

func safeFetch[P, S any](ctx context.Context, fetch Fetch[P, S], primary P) (secondary S, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic in fetch: %v", r)
		}
	}()
	return fetch(ctx, primary)
}

// Merge joins every outcome with its secondary value.
func Merge[P, S, R any](outcomes []Outcome[P, S], merge func(P, S) R) []R {
	out := make([]R, 0, len(outcomes))
	for _, outcome := range outcomes {
		out = append(out, merge(outcome.Primary, outcome.Secondary))
	}
	return out
}

// Indexes returns the primary indexes of outcomes.
func Indexes[P, S any](outcomes []Outcome[P, S]) []int {
	out := make([]int, 0, len(outcomes))
	for _, outcome := range outcomes {
		out = append(out, outcome.Index)
	}
	return out
}
