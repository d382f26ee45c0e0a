package network

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/relgraph/internal/storage"
	"github.com/scrypster/relgraph/pkg/types"
)

func person(id string) types.Entity {
	return types.Entity{ID: id, Name: id, Type: types.EntityTypePerson}
}

func edge(src, tgt string, kind types.EdgeKind, strength float64) types.Edge {
	return types.Edge{Source: src, Target: tgt, Kind: kind, StrengthScore: types.Score(strength)}
}

func TestBuild_DropsInvalidEdges(t *testing.T) {
	entities := []types.Entity{person("a"), person("b"), person("c")}
	edges := []types.Edge{
		edge("a", "b", types.KindFounder, 0.9),
		edge("b", "c", types.KindColleague, 1.5),   // out of range
		edge("b", "c", types.KindColleague, -0.1),  // out of range
		edge("a", "ghost", types.KindContact, 0.5), // unknown entity
		edge("c", "c", types.KindContact, 0.5),     // self loop
		{Source: "a", Target: "c", Kind: types.KindContact, StrengthScore: types.Score(math.NaN())},
	}

	idx := Build(entities, edges)

	assert.Equal(t, 3, idx.EntityCount())
	assert.Equal(t, 1, idx.EdgeCount())

	d := idx.Diagnostics()
	assert.Equal(t, 1, d.DroppedUnknownEntity)
	assert.Equal(t, 3, d.DroppedInvalidScore)
	assert.Equal(t, 1, d.DroppedSelfLoop)
	assert.Equal(t, 5, d.DroppedEdges())

	for _, e := range idx.Entities() {
		for _, n := range idx.NeighborsOf(e.ID) {
			assert.GreaterOrEqual(t, n.Strength, 0.0)
			assert.LessOrEqual(t, n.Strength, 1.0)
		}
	}
}

func TestBuild_SkipsEmptyAndDuplicateEntities(t *testing.T) {
	first := person("a")
	first.Name = "first"
	second := person("a")
	second.Name = "second"

	idx := Build([]types.Entity{first, {ID: ""}, second, person("b")}, nil)

	assert.Equal(t, 2, idx.EntityCount())
	assert.Equal(t, 2, idx.Diagnostics().SkippedEntities)
	e, ok := idx.Entity("a")
	require.True(t, ok)
	assert.Equal(t, "first", e.Name)
}

func TestBuild_MissingStrengthUsesNeutral(t *testing.T) {
	idx := Build(
		[]types.Entity{person("a"), person("b")},
		[]types.Edge{{Source: "a", Target: "b", Kind: types.KindContact}},
	)

	s, ok := idx.Strength("a", "b")
	require.True(t, ok)
	assert.Equal(t, types.NeutralStrength, s)
}

func TestNeighborsOf_ZeroStrengthEncodes(t *testing.T) {
	idx := Build([]types.Entity{person("a"), person("b")}, []types.Edge{edge("a", "b", types.KindContact, 0)})

	neighbors := idx.NeighborsOf("a")
	require.Len(t, neighbors, 1)
	assert.True(t, math.IsInf(neighbors[0].Weight, 1))

	data, err := json.Marshal(neighbors)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "weight")
	assert.Contains(t, string(data), `"strength":0`)
}

func TestNeighborsOf(t *testing.T) {
	idx := Build(
		[]types.Entity{person("a"), person("b"), person("c")},
		[]types.Edge{
			edge("a", "b", types.KindFounder, 0.9),
			edge("c", "a", types.KindColleague, 0.4),
		},
	)

	t.Run("both directions resolved", func(t *testing.T) {
		ns := idx.NeighborsOf("a")
		require.Len(t, ns, 2)
		assert.Equal(t, "b", ns[0].NeighborID)
		assert.True(t, ns[0].Outgoing)
		assert.InDelta(t, -math.Log(0.9), ns[0].Weight, 1e-12)
		assert.Equal(t, "c", ns[1].NeighborID)
		assert.False(t, ns[1].Outgoing)
		assert.Equal(t, types.KindColleague, ns[1].Kind)
	})

	t.Run("unknown id", func(t *testing.T) {
		ns := idx.NeighborsOf("nobody")
		assert.NotNil(t, ns)
		assert.Empty(t, ns)
	})

	t.Run("isolated id", func(t *testing.T) {
		iso := Build([]types.Entity{person("x")}, nil)
		assert.Empty(t, iso.NeighborsOf("x"))
	})
}

func TestStrength_StoredDirectionOnly(t *testing.T) {
	idx := Build(
		[]types.Entity{person("a"), person("b")},
		[]types.Edge{
			edge("a", "b", types.KindContact, 0.3),
			edge("a", "b", types.KindColleague, 0.7),
		},
	)

	s, ok := idx.Strength("a", "b")
	require.True(t, ok)
	assert.Equal(t, 0.7, s)

	_, ok = idx.Strength("b", "a")
	assert.False(t, ok)

	a, _ := idx.Lookup("a")
	b, _ := idx.Lookup("b")
	l, ok := idx.BestLink(b, a)
	require.True(t, ok)
	assert.Equal(t, 0.7, l.Strength)
	assert.False(t, l.Outgoing)

	assert.Equal(t, 2, idx.Degree("a"))
	assert.Equal(t, 1, idx.UniqueNeighbors("a"))
	assert.Equal(t, 2, idx.OutDegree("a"))
	assert.Equal(t, 2, idx.InDegree("b"))
}

func TestBuild_InputOrderIndependent(t *testing.T) {
	entities := []types.Entity{person("a"), person("b"), person("c"), person("d")}
	edges := []types.Edge{
		edge("a", "b", types.KindFounder, 0.9),
		edge("b", "c", types.KindColleague, 0.8),
		edge("c", "d", types.KindContact, 0.2),
		edge("d", "a", types.KindAdvisor, 0.6),
		edge("a", "c", types.KindInvestor, 0.5),
	}

	revEntities := append([]types.Entity(nil), entities...)
	revEdges := append([]types.Edge(nil), edges...)
	sort.Slice(revEntities, func(i, j int) bool { return revEntities[i].ID > revEntities[j].ID })
	for i, j := 0, len(revEdges)-1; i < j; i, j = i+1, j-1 {
		revEdges[i], revEdges[j] = revEdges[j], revEdges[i]
	}

	x := Build(entities, edges)
	y := Build(revEntities, revEdges)

	for _, e := range entities {
		assert.Equal(t, x.NeighborsOf(e.ID), y.NeighborsOf(e.ID), "neighbors of %s", e.ID)
	}
}

func TestBuild_DoesNotMutateInput(t *testing.T) {
	edges := []types.Edge{edge("b", "a", types.KindContact, 0.4)}
	entities := []types.Entity{person("b"), person("a")}

	Build(entities, edges)

	assert.Equal(t, "b", entities[0].ID)
	assert.Equal(t, "b", edges[0].Source)
	assert.Equal(t, 0.4, *edges[0].StrengthScore)
}

func TestBoundsChecker(t *testing.T) {
	t.Run("max nodes", func(t *testing.T) {
		b := NewBoundsChecker(storage.GraphBounds{MaxNodes: 2})
		ctx := context.Background()
		require.NoError(t, b.CanContinue(ctx))
		b.RecordNode()
		b.RecordNode()
		err := b.CanContinue(ctx)
		require.Error(t, err)
		assert.True(t, errors.Is(err, storage.ErrGraphBoundsExceeded))
		assert.True(t, b.Stats().Exceeded)
	})

	t.Run("context cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		b := NewBoundsChecker(storage.GraphBounds{})
		err := b.CanContinue(ctx)
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled))
	})

	t.Run("timeout", func(t *testing.T) {
		b := NewBoundsChecker(storage.GraphBounds{Timeout: time.Nanosecond})
		time.Sleep(time.Millisecond)
		err := b.CanContinue(context.Background())
		assert.True(t, errors.Is(err, storage.ErrGraphBoundsExceeded))
	})

	t.Run("hops", func(t *testing.T) {
		b := NewBoundsChecker(storage.GraphBounds{MaxHops: 2})
		assert.True(t, b.WithinHops(1))
		assert.False(t, b.WithinHops(2))
	})
}
