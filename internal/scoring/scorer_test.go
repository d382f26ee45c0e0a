package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/relgraph/pkg/types"
)

func path(strategy types.Strategy, nodes []string, kinds []types.EdgeKind, strengths []float64) types.Path {
	p := types.Path{Nodes: nodes, Strategy: strategy, Hops: len(nodes) - 1, CumulativeStrength: 1}
	for i := 1; i < len(nodes); i++ {
		p.Steps = append(p.Steps, types.PathStep{From: nodes[i-1], To: nodes[i], Kind: kinds[i-1], Strength: strengths[i-1], Forward: true})
		p.CumulativeStrength *= strengths[i-1]
	}
	return p
}

func TestScore_FounderColleagueChain(t *testing.T) {
	s := New(Config{})
	p := path(types.StrategyShortest,
		[]string{"A", "B", "C"},
		[]types.EdgeKind{types.KindFounder, types.KindColleague},
		[]float64{0.9, 0.8})

	got := s.Score(&p, nil)

	// 0.9*0.8 × 0.8^1 × avg(0.95, 0.65)
	assert.InDelta(t, 0.4608, got, 1e-12)
	assert.Equal(t, got, p.Score)
	assert.InDelta(t, 0.72, p.Breakdown.CumulativeStrength, 1e-12)
	assert.InDelta(t, 0.8, p.Breakdown.HopDecay, 1e-12)
	assert.InDelta(t, 0.8, p.Breakdown.KindWeight, 1e-12)
	assert.Zero(t, p.Breakdown.SemanticBonus)
}

func TestScore_DirectAndSameEntity(t *testing.T) {
	s := New(DefaultConfig())

	direct := path(types.StrategyShortest, []string{"a", "b"}, []types.EdgeKind{"unknown_kind"}, []float64{0.6})
	assert.InDelta(t, 0.6*1*0.5, s.Score(&direct, nil), 1e-12)

	same := types.Path{Nodes: []string{"a"}, CumulativeStrength: 1}
	assert.Equal(t, 1.0, s.Score(&same, nil))
}

func TestScore_HopDecayStrictlyDecreasing(t *testing.T) {
	s := New(DefaultConfig())
	prev := s.HopDecay(1)
	assert.Equal(t, 1.0, prev)
	assert.Equal(t, 1.0, s.HopDecay(0))
	for h := 2; h <= 8; h++ {
		d := s.HopDecay(h)
		assert.Less(t, d, prev)
		prev = d
	}

	// Same strength and kinds, one more intermediate hop of strength 1.
	short := path(types.StrategyShortest, []string{"a", "b", "c"},
		[]types.EdgeKind{types.KindColleague, types.KindColleague}, []float64{0.9, 0.9})
	long := path(types.StrategyShortest, []string{"a", "b", "x", "c"},
		[]types.EdgeKind{types.KindColleague, types.KindColleague, types.KindColleague}, []float64{0.9, 0.9, 1.0})
	assert.Greater(t, s.Score(&short, nil), s.Score(&long, nil))
}

func TestScore_SemanticBonus(t *testing.T) {
	s := New(DefaultConfig())
	embeddings := map[string][]float32{
		"b": {1, 0},
		"c": {0, 1},
	}
	sem := &Semantic{
		Query:     []float32{1, 0},
		Embedding: func(id string) []float32 { return embeddings[id] },
	}
	p := path(types.StrategyShortest, []string{"a", "b", "c"},
		[]types.EdgeKind{types.KindFounder, types.KindColleague}, []float64{0.9, 0.8})

	got := s.Score(&p, sem)

	// mean cosine over b and c = (1 + 0) / 2
	assert.InDelta(t, 0.4*0.5, p.Breakdown.SemanticBonus, 1e-12)
	assert.InDelta(t, 0.4608+0.2, got, 1e-12)

	t.Run("negative similarity clamps to zero", func(t *testing.T) {
		neg := &Semantic{Query: []float32{-1, 0}, Embedding: sem.Embedding}
		q := p.Clone()
		s.Score(&q, neg)
		assert.Zero(t, q.Breakdown.SemanticBonus)
	})
}

func TestRank_DedupAndOrder(t *testing.T) {
	s := New(DefaultConfig())
	kinds := []types.EdgeKind{types.KindColleague, types.KindColleague}

	weak := path(types.StrategyShortest, []string{"a", "m", "z"}, kinds, []float64{0.5, 0.5})
	dup := path(types.StrategyHub, []string{"a", "m", "z"}, kinds, []float64{0.5, 0.5})
	strong := path(types.StrategyStrongest, []string{"a", "n", "z"}, kinds, []float64{0.9, 0.9})
	direct := path(types.StrategyShortest, []string{"a", "z"}, []types.EdgeKind{types.KindContact}, []float64{0.1})

	ranked := s.Rank([]types.Path{weak, dup, strong, direct}, 0, nil)

	require.Len(t, ranked, 3)
	keys := map[string]bool{}
	for _, p := range ranked {
		assert.False(t, keys[p.Key()], "duplicate %v", p.Nodes)
		keys[p.Key()] = true
	}
	assert.Equal(t, []string{"a", "n", "z"}, ranked[0].Nodes)
	assert.Equal(t, types.StrategyShortest, ranked[1].Strategy, "equal scores keep the first instance")
	for i := 1; i < len(ranked); i++ {
		assert.GreaterOrEqual(t, ranked[i-1].Score, ranked[i].Score)
	}

	assert.Len(t, s.Rank([]types.Path{weak, strong, direct}, 2, nil), 2)
	assert.Zero(t, weak.Score, "input is not modified")
}

func TestDedup_KeepsHigherScore(t *testing.T) {
	a := types.Path{Nodes: []string{"x", "y"}, Score: 0.2, Strategy: types.StrategyShortest}
	b := types.Path{Nodes: []string{"x", "y"}, Score: 0.7, Strategy: types.StrategyHub}

	out := Dedup([]types.Path{a, b}, func(p *types.Path) string { return p.Key() })

	require.Len(t, out, 1)
	assert.Equal(t, 0.7, out[0].Score)
	assert.Equal(t, types.StrategyHub, out[0].Strategy)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, CosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 2}))
	assert.Zero(t, CosineSimilarity(nil, nil))
}

func TestConfig(t *testing.T) {
	c := Config{KindWeights: map[types.EdgeKind]float64{types.KindColleague: 0.9}}
	c.Normalize()
	require.NoError(t, c.Validate())
	assert.Equal(t, 0.9, c.KindWeights[types.KindColleague])
	assert.Equal(t, 0.95, c.KindWeights[types.KindFounder])

	unset := New(Config{}).Config()
	assert.InDelta(t, 0.4, unset.SemanticWeight, 1e-12)
	assert.InDelta(t, 0.5, unset.DefaultKindWeight, 1e-12)

	tuned := New(Config{DecayFactor: 0.7}).Config()
	assert.Zero(t, tuned.SemanticWeight, "a configured zero weight is kept")
	assert.Zero(t, tuned.DefaultKindWeight)
	assert.Zero(t, New(Config{DecayFactor: 0.7}).KindWeight("unlisted"))

	bad := DefaultConfig()
	bad.DecayFactor = 1
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.KindWeights[types.KindContact] = 2
	assert.Error(t, bad.Validate())
}
