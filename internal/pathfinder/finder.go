// Package pathfinder implements the traversal strategies over a network.Index:
// shortest path (BFS), strongest path (best-first on -ln strength),
// hub-mediated and organization-mediated paths.
//
// Every strategy is pure, synchronous and deterministic for a fixed index and
// fixed options. Absence of a path is an empty result, never an error, and a
// bound that trips mid-search returns whatever was already found.
package pathfinder

import (
	"context"
	"sort"
	"sync"

	"github.com/scrypster/relgraph/internal/network"
	"github.com/scrypster/relgraph/pkg/types"
)

// Result is the output of one or more strategies for a (source, target) pair.
type Result struct {
	// Paths in strategy order; within a strategy in discovery order.
	Paths []types.Path

	// Truncated is true when a node, edge or time bound stopped a search early.
	Truncated bool

	// Stats accumulates the work done by all strategies.
	Stats network.TraversalStats
}

func (r *Result) merge(paths []types.Path, checker *network.BoundsChecker) {
	r.Paths = append(r.Paths, paths...)
	st := checker.Stats()
	r.Stats.NodesVisited += st.NodesVisited
	r.Stats.EdgesVisited += st.EdgesVisited
	r.Stats.Elapsed += st.Elapsed
	if st.Exceeded {
		r.Truncated = true
		r.Stats.Exceeded = true
	}
}

// Finder runs traversal strategies over one immutable index.
//
// Thread Safety: a Finder is safe for concurrent use.
type Finder struct {
	index *network.Index

	hubOnce  sync.Once
	hubOrder []int32
}

// New creates a Finder over index.
func New(index *network.Index) *Finder {
	return &Finder{index: index}
}

// Index returns the index the finder traverses.
func (f *Finder) Index() *network.Index {
	return f.index
}

// Find runs the given strategies in canonical order (shortest, strongest,
// hub, organization) and concatenates their paths. Duplicate strategy names
// are run once. Unknown endpoints yield an empty result.
func (f *Finder) Find(ctx context.Context, sourceID, targetID string, strategies []types.Strategy, opts Options) Result {
	var res Result
	for _, s := range canonicalStrategies(strategies) {
		var r Result
		switch s {
		case types.StrategyShortest:
			r = f.ShortestPath(ctx, sourceID, targetID, opts)
		case types.StrategyStrongest:
			r = f.StrongestPath(ctx, sourceID, targetID, opts)
		case types.StrategyHub:
			r = f.HubPaths(ctx, sourceID, targetID, opts)
		case types.StrategyOrganization:
			r = f.OrganizationPaths(ctx, sourceID, targetID, opts)
		default:
			continue
		}
		res.Paths = append(res.Paths, r.Paths...)
		res.Truncated = res.Truncated || r.Truncated
		res.Stats.NodesVisited += r.Stats.NodesVisited
		res.Stats.EdgesVisited += r.Stats.EdgesVisited
		res.Stats.Elapsed += r.Stats.Elapsed
		res.Stats.Exceeded = res.Stats.Exceeded || r.Stats.Exceeded
	}
	return res
}

// canonicalStrategies filters strategies down to known, unique values in
// canonical order. An empty input selects every strategy.
func canonicalStrategies(in []types.Strategy) []types.Strategy {
	if len(in) == 0 {
		return types.AllStrategies
	}
	want := make(map[types.Strategy]bool, len(in))
	for _, s := range in {
		want[s] = true
	}
	out := make([]types.Strategy, 0, len(want))
	for _, s := range types.AllStrategies {
		if want[s] {
			out = append(out, s)
		}
	}
	return out
}

// CanonicalStrategies returns the strategies in execution order, deduplicated.
func CanonicalStrategies(in []types.Strategy) []types.Strategy {
	return append([]types.Strategy(nil), canonicalStrategies(in)...)
}

// endpoints resolves both IDs; ok is false if either is unknown.
func (f *Finder) endpoints(sourceID, targetID string) (int32, int32, bool) {
	s, okS := f.index.Lookup(sourceID)
	t, okT := f.index.Lookup(targetID)
	return s, t, okS && okT
}

// buildPath materializes a node sequence into a Path, using the strongest
// link between each consecutive pair.
func (f *Finder) buildPath(nodes []int32, strategy types.Strategy, via int32) types.Path {
	p := types.Path{
		Nodes:              make([]string, len(nodes)),
		Strategy:           strategy,
		CumulativeStrength: 1.0,
		Hops:               len(nodes) - 1,
	}
	for i, n := range nodes {
		p.Nodes[i] = f.index.IDAt(n)
	}
	if via >= 0 {
		p.Via = f.index.IDAt(via)
	}
	if len(nodes) > 1 {
		p.Steps = make([]types.PathStep, 0, len(nodes)-1)
	}
	for i := 1; i < len(nodes); i++ {
		l, _ := f.index.BestLink(nodes[i-1], nodes[i])
		p.Steps = append(p.Steps, types.PathStep{
			From:     p.Nodes[i-1],
			To:       p.Nodes[i],
			Kind:     l.Kind,
			Strength: l.Strength,
			Forward:  l.Outgoing,
		})
		p.CumulativeStrength *= l.Strength
	}
	p.Description = types.DescribeHops(p.Hops)
	return p
}

// hubRanking orders every entity by (unique neighbors desc, importance desc,
// ID asc). It is computed once per Finder.
func (f *Finder) hubRanking() []int32 {
	f.hubOnce.Do(func() {
		n := f.index.Len()
		order := make([]int32, 0, n)
		degree := make([]int, n)
		for i := 0; i < n; i++ {
			degree[i] = f.index.UniqueNeighborsAt(int32(i))
			if degree[i] >= 2 {
				order = append(order, int32(i))
			}
		}
		sort.SliceStable(order, func(a, b int) bool {
			x, y := order[a], order[b]
			if degree[x] != degree[y] {
				return degree[x] > degree[y]
			}
			ix, iy := f.index.EntityAt(x).Importance, f.index.EntityAt(y).Importance
			if ix != iy {
				return ix > iy
			}
			return x < y
		})
		f.hubOrder = order
	})
	return f.hubOrder
}
