package pathfinder

import (
	"context"

	"github.com/scrypster/relgraph/internal/network"
	"github.com/scrypster/relgraph/pkg/types"
)

// HubPaths routes through the most connected entities. For each of the top
// HubCandidates hubs (by unique neighbors, restricted to HubTypes, excluding
// both endpoints) it joins a shortest source->hub segment with a shortest
// hub->target segment that avoids the first segment. The joined path never
// exceeds MaxHops. Hubs with no route on either side are skipped.
func (f *Finder) HubPaths(ctx context.Context, sourceID, targetID string, opts Options) Result {
	opts.Normalize()
	var res Result
	src, dst, ok := f.endpoints(sourceID, targetID)
	if !ok || src == dst || opts.MaxHops < 2 {
		return res
	}

	checker := network.NewBoundsChecker(opts.bounds())
	var paths []types.Path
	tried := 0
	for _, hub := range f.hubRanking() {
		if tried >= opts.HubCandidates || len(paths) >= opts.MaxPaths {
			break
		}
		if hub == src || hub == dst || !hasType(opts.HubTypes, f.index.EntityAt(hub).Type) {
			continue
		}
		tried++

		first := f.bfs(ctx, checker, src, hub, opts.MaxHops-1, map[int32]bool{dst: true})
		if first == nil {
			if checker.Err() != nil {
				break
			}
			continue
		}

		blocked := make(map[int32]bool, len(first))
		for _, n := range first[:len(first)-1] {
			blocked[n] = true
		}
		second := f.bfs(ctx, checker, hub, dst, opts.MaxHops-(len(first)-1), blocked)
		if second == nil {
			if checker.Err() != nil {
				break
			}
			continue
		}

		nodes := append(append([]int32(nil), first...), second[1:]...)
		paths = append(paths, f.buildPath(nodes, types.StrategyHub, hub))
	}

	res.merge(paths, checker)
	return res
}

// OrganizationPaths finds two-hop paths source -> org -> target through every
// organization adjacent to both endpoints, in ascending organization ID order.
func (f *Finder) OrganizationPaths(ctx context.Context, sourceID, targetID string, opts Options) Result {
	opts.Normalize()
	var res Result
	src, dst, ok := f.endpoints(sourceID, targetID)
	if !ok || src == dst || opts.MaxHops < 2 {
		return res
	}

	checker := network.NewBoundsChecker(opts.bounds())
	orgs := f.adjacentOrgs(ctx, checker, src, opts.OrgTypes)

	var paths []types.Path
	prev := int32(-1)
	for _, l := range f.index.Links(dst) {
		if len(paths) >= opts.MaxPaths || checker.CanContinue(ctx) != nil {
			break
		}
		if l.To == prev {
			continue
		}
		prev = l.To
		checker.RecordEdge()
		if l.To == src || !orgs[l.To] {
			continue
		}
		paths = append(paths, f.buildPath([]int32{src, l.To, dst}, types.StrategyOrganization, l.To))
	}

	res.merge(paths, checker)
	return res
}

func (f *Finder) adjacentOrgs(ctx context.Context, checker *network.BoundsChecker, n int32, orgTypes []types.EntityType) map[int32]bool {
	out := make(map[int32]bool)
	if checker.CanContinue(ctx) != nil {
		return out
	}
	checker.RecordNode()
	for _, l := range f.index.Links(n) {
		checker.RecordEdge()
		if hasType(orgTypes, f.index.EntityAt(l.To).Type) {
			out[l.To] = true
		}
	}
	return out
}
