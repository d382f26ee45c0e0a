// Package network builds the canonical in-memory representation of one graph
// snapshot. All traversal and analysis components read the Index; nothing
// mutates it after Build returns.
package network

import (
	"math"
	"sort"

	"github.com/scrypster/relgraph/pkg/types"
)

// Link is one edge as seen from one of its endpoints.
// Outgoing is true when the stored edge points away from that endpoint.
type Link struct {
	To           int32
	Kind         types.EdgeKind
	Strength     float64
	Outgoing     bool
	Interactions int
}

// Neighbor is the public, ID-based shape of a Link.
type Neighbor struct {
	NeighborID       string         `json:"neighbor_id"`
	Kind             types.EdgeKind `json:"kind"`
	Strength         float64        `json:"strength"`
	Weight           float64        `json:"-"` // traversal cost, -ln(strength); +Inf at strength 0
	Outgoing         bool           `json:"outgoing"`
	InteractionCount int            `json:"interaction_count"`
}

// Diagnostics counts the input rows Build had to skip.
type Diagnostics struct {
	// DroppedUnknownEntity counts edges whose source or target is not in
	// the entity set.
	DroppedUnknownEntity int `json:"dropped_unknown_entity"`

	// DroppedInvalidScore counts edges with out-of-range strength,
	// confidence or interaction values.
	DroppedInvalidScore int `json:"dropped_invalid_score"`

	// DroppedSelfLoop counts edges whose source equals their target.
	DroppedSelfLoop int `json:"dropped_self_loop"`

	// SkippedEntities counts entities with an empty or duplicate ID.
	SkippedEntities int `json:"skipped_entities"`
}

// DroppedEdges returns the total number of edges excluded from the index.
func (d Diagnostics) DroppedEdges() int {
	return d.DroppedUnknownEntity + d.DroppedInvalidScore + d.DroppedSelfLoop
}

type pairKey struct {
	from, to int32
}

// Index is an adjacency structure over one immutable snapshot.
//
// Entity IDs are mapped to dense int32 positions in ascending ID order, and
// each adjacency list is sorted by (neighbor, strength desc, kind, direction),
// so every lookup and iteration order is independent of input order.
//
// Thread Safety: an Index is read-only after Build and safe for concurrent use.
type Index struct {
	ids       []string
	pos       map[string]int32
	entities  []types.Entity
	adj       [][]Link
	pairs     map[pairKey]float64
	edgeCount int
	diag      Diagnostics
}

// Build indexes entities and edges. Edges that reference unknown entities,
// carry out-of-range scores, or loop on a single entity are dropped and
// counted in Diagnostics. Build never fails and never modifies its inputs.
func Build(entities []types.Entity, edges []types.Edge) *Index {
	idx := &Index{
		pos:   make(map[string]int32, len(entities)),
		pairs: make(map[pairKey]float64, len(edges)),
	}

	byID := make(map[string]int, len(entities))
	for i := range entities {
		id := entities[i].ID
		if id == "" {
			idx.diag.SkippedEntities++
			continue
		}
		if _, dup := byID[id]; dup {
			idx.diag.SkippedEntities++
			continue
		}
		byID[id] = i
		idx.ids = append(idx.ids, id)
	}
	sort.Strings(idx.ids)

	idx.entities = make([]types.Entity, len(idx.ids))
	for i, id := range idx.ids {
		idx.pos[id] = int32(i)
		idx.entities[i] = entities[byID[id]]
	}

	idx.adj = make([][]Link, len(idx.ids))
	for i := range edges {
		e := &edges[i]
		s, okS := idx.pos[e.Source]
		t, okT := idx.pos[e.Target]
		switch {
		case !okS || !okT:
			idx.diag.DroppedUnknownEntity++
			continue
		case e.Validate() != nil:
			idx.diag.DroppedInvalidScore++
			continue
		case s == t:
			idx.diag.DroppedSelfLoop++
			continue
		}

		strength := e.EffectiveStrength()
		idx.adj[s] = append(idx.adj[s], Link{To: t, Kind: e.Kind, Strength: strength, Outgoing: true, Interactions: e.InteractionCount})
		idx.adj[t] = append(idx.adj[t], Link{To: s, Kind: e.Kind, Strength: strength, Outgoing: false, Interactions: e.InteractionCount})

		key := pairKey{from: s, to: t}
		if cur, ok := idx.pairs[key]; !ok || strength > cur {
			idx.pairs[key] = strength
		}
		idx.edgeCount++
	}

	for i := range idx.adj {
		sortLinks(idx.adj[i])
	}

	return idx
}

// sortLinks orders links so that the first link for each neighbor is the
// strongest one.
func sortLinks(links []Link) {
	sort.Slice(links, func(i, j int) bool {
		a, b := links[i], links[j]
		if a.To != b.To {
			return a.To < b.To
		}
		if a.Strength != b.Strength {
			return a.Strength > b.Strength
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Outgoing != b.Outgoing {
			return a.Outgoing
		}
		return a.Interactions > b.Interactions
	})
}

// Len returns the number of indexed entities.
func (x *Index) Len() int {
	return len(x.ids)
}

// EntityCount returns the number of indexed entities.
func (x *Index) EntityCount() int {
	return len(x.ids)
}

// EdgeCount returns the number of indexed (non-dropped) edges.
func (x *Index) EdgeCount() int {
	return x.edgeCount
}

// PairCount returns the number of distinct ordered (source, target) pairs
// joined by at least one indexed edge.
func (x *Index) PairCount() int {
	return len(x.pairs)
}

// Diagnostics returns the counts of rows skipped during Build.
func (x *Index) Diagnostics() Diagnostics {
	return x.diag
}

// Lookup returns the dense position of id.
func (x *Index) Lookup(id string) (int32, bool) {
	i, ok := x.pos[id]
	return i, ok
}

// Has reports whether id is an indexed entity.
func (x *Index) Has(id string) bool {
	_, ok := x.pos[id]
	return ok
}

// IDAt returns the entity ID at position i.
func (x *Index) IDAt(i int32) string {
	return x.ids[i]
}

// EntityAt returns the entity at position i. The result must not be modified.
func (x *Index) EntityAt(i int32) *types.Entity {
	return &x.entities[i]
}

// Entity returns the entity with the given ID. The result must not be modified.
func (x *Index) Entity(id string) (*types.Entity, bool) {
	i, ok := x.pos[id]
	if !ok {
		return nil, false
	}
	return &x.entities[i], true
}

// Entities returns all entities in ascending ID order. The slice is shared
// and must not be modified.
func (x *Index) Entities() []types.Entity {
	return x.entities
}

// Links returns the adjacency list of position i. The slice is shared and
// must not be modified.
func (x *Index) Links(i int32) []Link {
	return x.adj[i]
}

// NeighborsOf returns every edge incident to id, resolved to the neighbor's
// perspective. Unknown or isolated IDs yield an empty, non-nil slice.
func (x *Index) NeighborsOf(id string) []Neighbor {
	i, ok := x.pos[id]
	if !ok {
		return []Neighbor{}
	}
	out := make([]Neighbor, 0, len(x.adj[i]))
	for _, l := range x.adj[i] {
		out = append(out, Neighbor{
			NeighborID:       x.ids[l.To],
			Kind:             l.Kind,
			Strength:         l.Strength,
			Weight:           Cost(l.Strength),
			Outgoing:         l.Outgoing,
			InteractionCount: l.Interactions,
		})
	}
	return out
}

// Strength returns the strongest stored strength of an edge from source to
// target, in stored direction only.
func (x *Index) Strength(source, target string) (float64, bool) {
	s, okS := x.pos[source]
	t, okT := x.pos[target]
	if !okS || !okT {
		return 0, false
	}
	v, ok := x.pairs[pairKey{from: s, to: t}]
	return v, ok
}

// BestLink returns the strongest link between positions a and b, in either
// stored direction, as seen from a.
func (x *Index) BestLink(a, b int32) (Link, bool) {
	links := x.adj[a]
	j := sort.Search(len(links), func(k int) bool { return links[k].To >= b })
	if j < len(links) && links[j].To == b {
		return links[j], true
	}
	return Link{}, false
}

// Degree returns the number of edges incident to id (both directions).
func (x *Index) Degree(id string) int {
	i, ok := x.pos[id]
	if !ok {
		return 0
	}
	return len(x.adj[i])
}

// OutDegree returns the number of stored edges leaving id.
func (x *Index) OutDegree(id string) int {
	return x.countLinks(id, true)
}

// InDegree returns the number of stored edges arriving at id.
func (x *Index) InDegree(id string) int {
	return x.countLinks(id, false)
}

func (x *Index) countLinks(id string, outgoing bool) int {
	i, ok := x.pos[id]
	if !ok {
		return 0
	}
	n := 0
	for _, l := range x.adj[i] {
		if l.Outgoing == outgoing {
			n++
		}
	}
	return n
}

// UniqueNeighborsAt returns the number of distinct entities adjacent to
// position i.
func (x *Index) UniqueNeighborsAt(i int32) int {
	n := 0
	prev := int32(-1)
	for _, l := range x.adj[i] {
		if l.To != prev {
			n++
			prev = l.To
		}
	}
	return n
}

// UniqueNeighbors returns the number of distinct entities adjacent to id.
func (x *Index) UniqueNeighbors(id string) int {
	i, ok := x.pos[id]
	if !ok {
		return 0
	}
	return x.UniqueNeighborsAt(i)
}

// Cost converts an edge strength to an additive traversal cost so that the
// minimum-cost path maximizes the product of strengths.
func Cost(strength float64) float64 {
	if strength <= 0 {
		return math.Inf(1)
	}
	return -math.Log(strength)
}
