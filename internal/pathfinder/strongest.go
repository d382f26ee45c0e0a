package pathfinder

import (
	"container/heap"
	"context"

	"github.com/scrypster/relgraph/internal/network"
	"github.com/scrypster/relgraph/pkg/types"
)

// StrongestPath finds the path of at most MaxHops edges that maximizes the
// product of edge strengths, by best-first search on cost -ln(strength).
// Ties go to fewer hops, then to lower entity IDs.
func (f *Finder) StrongestPath(ctx context.Context, sourceID, targetID string, opts Options) Result {
	opts.Normalize()
	var res Result
	src, dst, ok := f.endpoints(sourceID, targetID)
	if !ok {
		return res
	}

	checker := network.NewBoundsChecker(opts.bounds())
	nodes := f.strongest(ctx, checker, src, dst, opts.MaxHops)

	var paths []types.Path
	if nodes != nil {
		paths = append(paths, f.buildPath(nodes, types.StrategyStrongest, -1))
	}
	res.merge(paths, checker)
	return res
}

// searchState is one (node, hops) label of the hop-bounded search.
type searchState struct {
	node   int32
	hops   int
	cost   float64
	parent int // index into the state arena, -1 for the root
}

type stateQueue struct {
	arena []searchState
	items []int
}

func (q *stateQueue) Len() int { return len(q.items) }

func (q *stateQueue) Less(i, j int) bool {
	a, b := &q.arena[q.items[i]], &q.arena[q.items[j]]
	if a.cost != b.cost {
		return a.cost < b.cost
	}
	if a.hops != b.hops {
		return a.hops < b.hops
	}
	if a.node != b.node {
		return a.node < b.node
	}
	return q.items[i] < q.items[j]
}

func (q *stateQueue) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }

func (q *stateQueue) Push(x any) { q.items = append(q.items, x.(int)) }

func (q *stateQueue) Pop() any {
	n := len(q.items)
	v := q.items[n-1]
	q.items = q.items[:n-1]
	return v
}

func (q *stateQueue) add(s searchState) {
	q.arena = append(q.arena, s)
	heap.Push(q, len(q.arena)-1)
}

// strongest is a label-setting search over (node, hops) states. A state is
// dominated, and skipped, when its node was already settled with no more
// hops, because that earlier label also had no greater cost.
func (f *Finder) strongest(ctx context.Context, checker *network.BoundsChecker, src, dst int32, maxHops int) []int32 {
	if src == dst {
		return []int32{src}
	}

	settled := make(map[int32]int)
	q := &stateQueue{}
	q.add(searchState{node: src, parent: -1})

	for q.Len() > 0 {
		if checker.CanContinue(ctx) != nil {
			return nil
		}
		id := heap.Pop(q).(int)
		s := q.arena[id]

		if h, ok := settled[s.node]; ok && h <= s.hops {
			continue
		}
		settled[s.node] = s.hops
		checker.RecordNode()

		if s.node == dst {
			return q.path(id)
		}
		if s.hops >= maxHops {
			continue
		}

		prev := int32(-1)
		for _, l := range f.index.Links(s.node) {
			if l.To == prev {
				continue
			}
			prev = l.To
			checker.RecordEdge()

			if h, ok := settled[l.To]; ok && h <= s.hops+1 {
				continue
			}
			if l.Strength <= 0 {
				continue
			}
			q.add(searchState{
				node:   l.To,
				hops:   s.hops + 1,
				cost:   s.cost + network.Cost(l.Strength),
				parent: id,
			})
		}
	}
	return nil
}

func (q *stateQueue) path(id int) []int32 {
	var rev []int32
	for i := id; i >= 0; i = q.arena[i].parent {
		rev = append(rev, q.arena[i].node)
	}
	out := make([]int32, len(rev))
	for i, n := range rev {
		out[len(rev)-1-i] = n
	}
	return out
}
