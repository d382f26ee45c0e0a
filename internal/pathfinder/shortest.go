package pathfinder

import (
	"context"

	"github.com/scrypster/relgraph/internal/network"
	"github.com/scrypster/relgraph/pkg/types"
)

// ShortestPath finds one minimum-hop path. Among equal-hop candidates the one
// with the highest cumulative strength wins; remaining ties go to the first
// discovered in ascending ID order. A source equal to the target yields a
// zero-hop path.
func (f *Finder) ShortestPath(ctx context.Context, sourceID, targetID string, opts Options) Result {
	opts.Normalize()
	var res Result
	src, dst, ok := f.endpoints(sourceID, targetID)
	if !ok {
		return res
	}

	checker := network.NewBoundsChecker(opts.bounds())
	nodes := f.bfs(ctx, checker, src, dst, opts.MaxHops, nil)

	var paths []types.Path
	if nodes != nil {
		paths = append(paths, f.buildPath(nodes, types.StrategyShortest, -1))
	}
	res.merge(paths, checker)
	return res
}

// bfs runs a layered breadth-first search from src to dst of at most maxHops
// edges, skipping any node for which blocked returns true. Within a layer a
// node keeps the parent that gives it the highest cumulative strength. The
// search stops after the layer in which dst is discovered.
//
// It returns the node sequence, or nil if no path was found.
func (f *Finder) bfs(ctx context.Context, checker *network.BoundsChecker, src, dst int32, maxHops int, blocked map[int32]bool) []int32 {
	if src == dst {
		return []int32{src}
	}
	if maxHops < 1 {
		return nil
	}

	depth := map[int32]int{src: 0}
	parent := map[int32]int32{src: -1}
	strength := map[int32]float64{src: 1.0}

	frontier := []int32{src}
	for level := 0; len(frontier) > 0 && level < maxHops; level++ {
		var next []int32
		for _, u := range frontier {
			if checker.CanContinue(ctx) != nil {
				return nil
			}
			checker.RecordNode()

			prev := int32(-1)
			for _, l := range f.index.Links(u) {
				if l.To == prev {
					continue
				}
				prev = l.To
				checker.RecordEdge()

				v := l.To
				if blocked[v] {
					continue
				}
				cand := strength[u] * l.Strength
				if d, seen := depth[v]; seen {
					if d == level+1 && cand > strength[v] {
						parent[v] = u
						strength[v] = cand
					}
					continue
				}
				depth[v] = level + 1
				parent[v] = u
				strength[v] = cand
				next = append(next, v)
			}
		}

		if _, found := depth[dst]; found {
			return unwind(parent, dst)
		}
		frontier = next
	}
	return nil
}

// unwind follows parent links from dst back to the root.
func unwind(parent map[int32]int32, dst int32) []int32 {
	var rev []int32
	for n := dst; n >= 0; n = parent[n] {
		rev = append(rev, n)
	}
	out := make([]int32, len(rev))
	for i, n := range rev {
		out[len(rev)-1-i] = n
	}
	return out
}
