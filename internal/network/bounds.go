package network

import (
	"context"
	"fmt"
	"time"

	"github.com/scrypster/relgraph/internal/storage"
)

// timeCheckInterval is how many recorded nodes pass between wall-clock checks.
const timeCheckInterval = 128

// BoundsChecker is the work budget of one path query over an Index: the
// entities expanded, the adjacency entries scanned and the wall-clock time.
//
// Hop depth is not an error condition: callers prune branches with WithinHops.
// The strategies of one Finder.Find call share a checker, so the hub segments
// and the plain searches draw on the same budget.
type BoundsChecker struct {
	bounds   storage.GraphBounds
	expanded int
	scanned  int
	started  time.Time
	deadline time.Time
	exceeded error
}

// TraversalStats reports how much of its budget a query used.
type TraversalStats struct {
	NodesVisited int
	EdgesVisited int
	Elapsed      time.Duration
	Exceeded     bool
}

// NewBoundsChecker starts the clock on a budget. Zero fields of bounds take
// their defaults.
func NewBoundsChecker(bounds storage.GraphBounds) *BoundsChecker {
	bounds.Normalize()
	started := time.Now()
	return &BoundsChecker{
		bounds:   bounds,
		started:  started,
		deadline: started.Add(bounds.Timeout),
	}
}

// Bounds returns the normalized bounds.
func (b *BoundsChecker) Bounds() storage.GraphBounds {
	return b.bounds
}

// WithinHops reports whether a node at depth may still be expanded.
func (b *BoundsChecker) WithinHops(depth int) bool {
	return depth < b.bounds.MaxHops
}

// CanContinue returns nil while the budget holds. Otherwise it returns an
// error wrapping storage.ErrGraphBoundsExceeded, or ctx.Err() when the
// caller gave up, and keeps returning it.
func (b *BoundsChecker) CanContinue(ctx context.Context) error {
	if b.exceeded != nil {
		return b.exceeded
	}
	if err := ctx.Err(); err != nil {
		return b.stop(fmt.Errorf("path search interrupted: %w", err))
	}

	switch {
	case b.expanded >= b.bounds.MaxNodes:
		return b.stop(fmt.Errorf("%w: expanded %d entities", storage.ErrGraphBoundsExceeded, b.bounds.MaxNodes))
	case b.scanned >= b.bounds.MaxEdges:
		return b.stop(fmt.Errorf("%w: scanned %d edges", storage.ErrGraphBoundsExceeded, b.bounds.MaxEdges))
	case b.expanded%timeCheckInterval == 0 && time.Now().After(b.deadline):
		return b.stop(fmt.Errorf("%w: ran past %v", storage.ErrGraphBoundsExceeded, b.bounds.Timeout))
	}
	return nil
}

func (b *BoundsChecker) stop(err error) error {
	b.exceeded = err
	return err
}

// RecordNode counts one expanded entity.
func (b *BoundsChecker) RecordNode() { b.expanded++ }

// RecordEdge counts one scanned adjacency entry.
func (b *BoundsChecker) RecordEdge() { b.scanned++ }

// Err returns the error that stopped traversal, or nil.
func (b *BoundsChecker) Err() error {
	return b.exceeded
}

func (b *BoundsChecker) Stats() TraversalStats {
	return TraversalStats{
		NodesVisited: b.expanded,
		EdgesVisited: b.scanned,
		Elapsed:      time.Since(b.started),
		Exceeded:     b.exceeded != nil,
	}
}
