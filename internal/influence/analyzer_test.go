package influence

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/relgraph/internal/network"
	"github.com/scrypster/relgraph/pkg/types"
)

func edge(src, tgt string) types.Edge {
	return types.Edge{Source: src, Target: tgt, Kind: types.KindColleague, StrengthScore: types.Score(0.5)}
}

func TestInsights_DanglingEdgeNotCounted(t *testing.T) {
	idx := network.Build(
		[]types.Entity{
			{ID: "a", Type: types.EntityTypePerson},
			{ID: "b", Type: types.EntityTypePerson},
			{ID: "o", Type: types.EntityTypeOrganization},
		},
		[]types.Edge{
			edge("a", "b"),
			edge("b", "o"),
			edge("a", "missing"),
		},
	)
	an := NewAnalyzer(idx, "v1", Config{}, nil)

	ins := an.Insights(5)

	assert.Equal(t, 3, ins.TotalEntities)
	assert.Equal(t, 2, ins.TotalConnections)
	assert.Equal(t, 1, ins.DroppedEdges)
	assert.Equal(t, 1, idx.Diagnostics().DroppedUnknownEntity)
	assert.Equal(t, "v1", ins.SnapshotVersion)
	assert.NotEmpty(t, ins.ID)
	assert.InDelta(t, 2.0/6.0, ins.OverallDensity, 1e-12)
	assert.Equal(t, 1, ins.Components)
	assert.Equal(t, 3, ins.LargestComponent)
	assert.Equal(t, map[string]int{"person": 2, "organization": 1}, ins.EntityTypeCounts)
	assert.Len(t, ins.TopInfluencers, 3)
}

func TestAnalyze_InfluenceTerms(t *testing.T) {
	entities := []types.Entity{{
		ID:          "star",
		Type:        types.EntityTypePerson,
		IsInternal:  true,
		IsPortfolio: true,
		IsPipeline:  true,
		Enrichment: &types.Enrichment{
			LinkedInURL: "https://linkedin.example/star",
			Industries:  []string{"fintech"},
		},
	}}
	var edges []types.Edge
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("n%02d", i)
		entities = append(entities, types.Entity{
			ID:         id,
			Type:       types.EntityTypePerson,
			Enrichment: &types.Enrichment{Industries: []string{"fintech"}},
		})
		edges = append(edges, edge("star", id))
	}
	an := NewAnalyzer(network.Build(entities, edges), "v", Config{}, nil)

	s, ok := an.Analyze("star")
	require.True(t, ok)
	assert.Equal(t, 8.0, s.Breakdown.Flags, "4+3+2 capped at 8")
	assert.Equal(t, 2.0, s.Breakdown.ProfessionalNetwork)
	assert.Equal(t, 6.0, s.Breakdown.Connectivity, "20/2 capped at 6")
	assert.Equal(t, 4.0, s.Breakdown.IndustryCoMembership, "20 shared capped at 4")
	assert.Equal(t, 20.0, s.InfluenceScore)
	assert.Equal(t, 20, s.OutgoingConnections)
	assert.Equal(t, 0, s.IncomingConnections)
	assert.InDelta(t, 1.0, s.NetworkDensity, 1e-12)
	assert.True(t, s.IsWellConnected)
	assert.True(t, s.IsInfluential)

	leaf, ok := an.Analyze("n00")
	require.True(t, ok)
	assert.Equal(t, 1, leaf.IncomingConnections)
	assert.Equal(t, 0.5+1, leaf.InfluenceScore)
	assert.False(t, an.IsWellConnected("n00"))
	assert.False(t, an.IsInfluential("n00"))
}

func TestAnalyze_UnknownEntity(t *testing.T) {
	an := NewAnalyzer(network.Build(nil, nil), "v", Config{}, nil)

	s, ok := an.Analyze("nobody")
	assert.False(t, ok)
	assert.Nil(t, s)
	assert.False(t, an.IsInfluential("nobody"))
	assert.False(t, an.IsWellConnected("nobody"))

	ins := an.Insights(0)
	assert.Equal(t, 0, ins.TotalEntities)
	assert.Zero(t, ins.OverallDensity)
	assert.Empty(t, ins.TopInfluencers)
}

func TestRankSeeds(t *testing.T) {
	idx := network.Build(
		[]types.Entity{
			{ID: "a", Type: types.EntityTypePerson, IsInternal: true},
			{ID: "b", Type: types.EntityTypePerson, IsInternal: true, IsPortfolio: true},
			{ID: "c", Type: types.EntityTypePerson, IsInternal: true},
		},
		[]types.Edge{edge("c", "a")},
	)
	an := NewAnalyzer(idx, "v", Config{}, nil)

	assert.Equal(t, []string{"b", "a", "c"}, an.RankSeeds([]string{"c", "a", "b", "ghost", "a"}))
}

func TestConfigThresholds(t *testing.T) {
	idx := network.Build(
		[]types.Entity{{ID: "a"}, {ID: "b"}, {ID: "c"}},
		[]types.Edge{edge("a", "b"), edge("a", "c")},
	)
	an := NewAnalyzer(idx, "v", Config{WellConnectedNeighbors: 2, InfluentialScore: 1}, nil)

	assert.True(t, an.IsWellConnected("a"))
	assert.True(t, an.IsInfluential("a"))
	assert.False(t, an.IsInfluential("b"))
}
