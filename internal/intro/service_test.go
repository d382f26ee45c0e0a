package intro

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/relgraph/internal/snapshot"
	"github.com/scrypster/relgraph/internal/storage"
	"github.com/scrypster/relgraph/pkg/types"
)

// MockLoader is a mock implementation of SnapshotLoader for testing.
type MockLoader struct {
	mock.Mock
}

func (m *MockLoader) Load(ctx context.Context, filter storage.Filter) (*snapshot.Snapshot, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*snapshot.Snapshot), args.Error(1)
}

type stubEmbedder struct {
	vec []float32
	err error
}

func (s stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) { return s.vec, s.err }
func (s stubEmbedder) GetModel() string                                          { return "stub" }

func person(id string, internal bool) types.Entity {
	return types.Entity{ID: id, Name: id, Type: types.EntityTypePerson, IsInternal: internal}
}

func edge(src, tgt string, kind types.EdgeKind, strength float64) types.Edge {
	return types.Edge{Source: src, Target: tgt, Kind: kind, StrengthScore: types.Score(strength)}
}

func snap(version string, entities []types.Entity, edges []types.Edge) *snapshot.Snapshot {
	return &snapshot.Snapshot{Version: version, LoadedAt: time.Now(), Entities: entities, Edges: edges}
}

func newService(t *testing.T, s *snapshot.Snapshot, opts ...Option) *Service {
	t.Helper()
	svc := NewService(nil, Config{}, opts...)
	svc.UseSnapshot(s)
	return svc
}

func TestFindWarmIntroductions_SeedOutOfRange(t *testing.T) {
	// O is three hops from T; P is adjacent to T.
	svc := newService(t, snap("v1",
		[]types.Entity{person("O", true), person("P", true), person("x", false), person("y", false), person("T", false)},
		[]types.Edge{
			edge("O", "x", types.KindColleague, 0.9),
			edge("x", "y", types.KindColleague, 0.9),
			edge("y", "T", types.KindColleague, 0.9),
			edge("P", "T", types.KindFounder, 0.7),
		},
	))

	res, err := svc.FindWarmIntroductions(context.Background(), "T", WarmOptions{MaxHops: 2})
	require.NoError(t, err)

	require.Len(t, res.Introductions, 1)
	assert.Equal(t, []string{"P", "T"}, res.Introductions[0].Nodes)
	assert.Equal(t, 2, res.Diagnostics.SeedsConsidered)
	assert.Equal(t, 1, res.Diagnostics.SeedsWithPaths)
	for _, p := range res.Introductions {
		assert.NotEqual(t, "O", p.Source())
	}

	wide, err := svc.FindWarmIntroductions(context.Background(), "T", WarmOptions{MaxHops: 3})
	require.NoError(t, err)
	assert.Len(t, wide.Introductions, 2)
}

func TestFindWarmIntroductions_DedupAcrossSeeds(t *testing.T) {
	// S1 and S2 both reach T through M.
	svc := newService(t, snap("v1",
		[]types.Entity{person("S1", true), person("S2", true), person("M", false), person("T", false)},
		[]types.Edge{
			edge("S1", "M", types.KindColleague, 0.5),
			edge("S2", "M", types.KindFounder, 0.9),
			edge("M", "T", types.KindColleague, 0.8),
		},
	))

	res, err := svc.FindWarmIntroductions(context.Background(), "T", WarmOptions{})
	require.NoError(t, err)

	require.Len(t, res.Introductions, 1)
	best := res.Introductions[0]
	assert.Equal(t, []string{"S2", "M", "T"}, best.Nodes)

	// 0.9*0.8 × 0.8 × avg(0.95, 0.65)
	assert.InDelta(t, 0.4608, best.Score, 1e-12)
	assert.Equal(t, 2, res.Diagnostics.SeedsWithPaths)
}

func TestFindWarmIntroductions_Degradation(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown target", func(t *testing.T) {
		svc := newService(t, snap("v1", []types.Entity{person("a", true)}, nil))
		res, err := svc.FindWarmIntroductions(ctx, "ghost", WarmOptions{})
		require.NoError(t, err)
		assert.Empty(t, res.Introductions)
		assert.True(t, res.Diagnostics.UnknownTarget)
	})

	t.Run("empty seed set", func(t *testing.T) {
		svc := newService(t, snap("v1",
			[]types.Entity{person("a", false), person("b", false)},
			[]types.Edge{edge("a", "b", types.KindContact, 0.5)},
		))
		res, err := svc.FindWarmIntroductions(ctx, "b", WarmOptions{})
		require.NoError(t, err)
		assert.Empty(t, res.Introductions)
		assert.True(t, res.Diagnostics.EmptySeedSet)
	})

	t.Run("target is never its own seed", func(t *testing.T) {
		svc := newService(t, snap("v1", []types.Entity{person("a", true)}, nil))
		res, err := svc.FindWarmIntroductions(ctx, "a", WarmOptions{})
		require.NoError(t, err)
		assert.True(t, res.Diagnostics.EmptySeedSet)
	})

	t.Run("explicit seeds and max seeds", func(t *testing.T) {
		svc := newService(t, snap("v1",
			[]types.Entity{person("a", false), person("b", false), person("t", false)},
			[]types.Edge{edge("a", "t", types.KindContact, 0.5), edge("b", "t", types.KindContact, 0.5)},
		))
		res, err := svc.FindWarmIntroductions(ctx, "t", WarmOptions{Seeds: []string{"b", "a", "nobody"}, MaxSeeds: 1})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Diagnostics.SeedsConsidered)
		require.Len(t, res.Introductions, 1)
		assert.Equal(t, "a", res.Introductions[0].Source())
	})
}

func TestFindWarmIntroductionsBatch(t *testing.T) {
	svc := newService(t, snap("v1",
		[]types.Entity{person("s", true), person("t1", false), person("t2", false)},
		[]types.Edge{edge("s", "t1", types.KindColleague, 0.6)},
	))

	items, err := svc.FindWarmIntroductionsBatch(context.Background(), []string{"t1", "ghost", "t2"}, WarmOptions{})
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, "t1", items[0].Target)
	assert.Len(t, items[0].Result.Introductions, 1)
	assert.True(t, items[1].Result.Diagnostics.UnknownTarget)
	assert.Empty(t, items[2].Result.Introductions)
	for _, it := range items {
		assert.Empty(t, it.Error)
	}
}

func TestFindPaths(t *testing.T) {
	svc := newService(t, snap("v1",
		[]types.Entity{person("A", false), person("B", false), person("C", false)},
		[]types.Edge{
			edge("A", "B", types.KindFounder, 0.9),
			edge("B", "C", types.KindColleague, 0.8),
		},
	))
	ctx := context.Background()

	res, err := svc.FindOptimalPaths(ctx, "A", "C", PathOptions{MaxHops: 3})
	require.NoError(t, err)
	require.Len(t, res.Paths, 1, "duplicate paths from several strategies collapse")
	assert.Equal(t, []string{"A", "B", "C"}, res.Paths[0].Nodes)
	assert.InDelta(t, 0.4608, res.Paths[0].Score, 1e-12)
	assert.False(t, res.Cached)
	assert.Equal(t, "v1", res.SnapshotVersion)

	again, err := svc.FindOptimalPaths(ctx, "A", "C", PathOptions{MaxHops: 3})
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, res.Paths, again.Paths)

	intro, err := svc.FindIntroductionPaths(ctx, "A", "C", PathOptions{MinPathStrength: Strength(0.8)})
	require.NoError(t, err)
	assert.Empty(t, intro.Paths)
	assert.Equal(t, []string{"shortest", "strongest", "hub"}, intro.Strategies)

	unknown, err := svc.FindIntroductionPaths(ctx, "A", "Z", PathOptions{})
	require.NoError(t, err)
	assert.True(t, unknown.UnknownEntity)
	assert.Empty(t, unknown.Paths)
}

func TestFindPaths_SemanticScoring(t *testing.T) {
	entities := []types.Entity{person("A", false), person("B", false), person("C", false)}
	entities[1].Embedding = []float32{1, 0}
	entities[2].Embedding = []float32{1, 0}
	s := snap("v1", entities, []types.Edge{
		edge("A", "B", types.KindFounder, 0.9),
		edge("B", "C", types.KindColleague, 0.8),
	})
	ctx := context.Background()

	t.Run("bonus applied", func(t *testing.T) {
		svc := newService(t, s, WithEmbedder(stubEmbedder{vec: []float32{1, 0}}))
		res, err := svc.FindOptimalPaths(ctx, "A", "C", PathOptions{Query: "fintech"})
		require.NoError(t, err)
		require.Len(t, res.Paths, 1)
		assert.InDelta(t, 0.4608+0.4, res.Paths[0].Score, 1e-9)
		assert.False(t, res.SemanticUnavailable)
	})

	t.Run("provider failure degrades", func(t *testing.T) {
		svc := newService(t, s, WithEmbedder(stubEmbedder{err: errors.New("rate limited")}))
		res, err := svc.FindOptimalPaths(ctx, "A", "C", PathOptions{Query: "fintech"})
		require.NoError(t, err)
		require.Len(t, res.Paths, 1)
		assert.InDelta(t, 0.4608, res.Paths[0].Score, 1e-12)
		assert.True(t, res.SemanticUnavailable)

		again, err := svc.FindOptimalPaths(ctx, "A", "C", PathOptions{Query: "fintech"})
		require.NoError(t, err)
		assert.False(t, again.Cached, "degraded results are not cached")
	})
}

func TestService_NoSnapshot(t *testing.T) {
	svc := NewService(nil, Config{})
	ctx := context.Background()

	_, err := svc.FindWarmIntroductions(ctx, "t", WarmOptions{})
	assert.True(t, errors.Is(err, storage.ErrSnapshotUnavailable))

	_, err = svc.FindOptimalPaths(ctx, "a", "b", PathOptions{})
	assert.True(t, errors.Is(err, storage.ErrSnapshotUnavailable))

	_, err = svc.ComputeNetworkInsights(ctx, 0)
	assert.True(t, errors.Is(err, storage.ErrSnapshotUnavailable))

	_, err = svc.Reload(ctx)
	assert.True(t, errors.Is(err, storage.ErrSnapshotUnavailable))
}

func TestService_Reload(t *testing.T) {
	loader := new(MockLoader)
	first := snap("v1", []types.Entity{person("a", false), person("b", false)}, []types.Edge{edge("a", "b", types.KindContact, 0.5)})
	second := snap("v2", []types.Entity{person("a", false), person("b", false)}, nil)
	loader.On("Load", mock.Anything, mock.Anything).Return(first, nil).Once()
	loader.On("Load", mock.Anything, mock.Anything).Return(second, nil).Once()
	loader.On("Load", mock.Anything, mock.Anything).Return(nil, storage.ErrSnapshotUnavailable).Once()

	svc := NewService(loader, Config{})
	ctx := context.Background()

	sess, err := svc.Reload(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v1", sess.Version)

	res, err := svc.FindOptimalPaths(ctx, "a", "b", PathOptions{})
	require.NoError(t, err)
	assert.Len(t, res.Paths, 1)

	_, err = svc.Reload(ctx)
	require.NoError(t, err)

	res, err = svc.FindOptimalPaths(ctx, "a", "b", PathOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Paths, "new snapshot never sees cached paths of the old one")
	assert.False(t, res.Cached)
	assert.Equal(t, "v2", res.SnapshotVersion)

	_, err = svc.Reload(ctx)
	require.Error(t, err)
	current, err := svc.Session()
	require.NoError(t, err)
	assert.Equal(t, "v2", current.Version, "failed reload keeps the previous session")
	loader.AssertExpectations(t)
}

// sequencedLoader returns snaps in call order. The first call blocks until
// release is closed.
type sequencedLoader struct {
	snaps   []*snapshot.Snapshot
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (l *sequencedLoader) Load(ctx context.Context, _ storage.Filter) (*snapshot.Snapshot, error) {
	n := l.calls.Add(1)
	if n == 1 {
		close(l.started)
		<-l.release
	}
	return l.snaps[n-1], nil
}

func TestService_SlowReloadDoesNotReplaceNewer(t *testing.T) {
	entities := []types.Entity{person("a", false)}
	loader := &sequencedLoader{
		snaps:   []*snapshot.Snapshot{snap("v1", entities, nil), snap("v2", entities, nil)},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	svc := NewService(loader, Config{})
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = svc.Reload(ctx)
	}()
	<-loader.started
	go func() {
		defer wg.Done()
		_, _ = svc.Reload(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), loader.calls.Load(), "second reload waits for the first")
	close(loader.release)
	wg.Wait()

	current, err := svc.Session()
	require.NoError(t, err)
	assert.Equal(t, "v2", current.Version)
}

func TestMinPathStrength_ExplicitZeroOverridesDefault(t *testing.T) {
	s := snap("v1",
		[]types.Entity{person("A", true), person("B", false), person("C", false)},
		[]types.Edge{edge("A", "B", types.KindColleague, 0.9), edge("B", "C", types.KindColleague, 0.8)},
	)
	svc := NewService(nil, Config{MinPathStrength: 0.9, WarmMinPathStrength: 0.9})
	svc.UseSnapshot(s)
	ctx := context.Background()

	res, err := svc.FindIntroductionPaths(ctx, "A", "C", PathOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Paths, "configured threshold applies when unset")

	res, err = svc.FindIntroductionPaths(ctx, "A", "C", PathOptions{MinPathStrength: Strength(0)})
	require.NoError(t, err)
	require.Len(t, res.Paths, 1)
	assert.InDelta(t, 0.72, res.Paths[0].CumulativeStrength, 1e-12)

	warm, err := svc.FindWarmIntroductions(ctx, "C", WarmOptions{})
	require.NoError(t, err)
	assert.Empty(t, warm.Introductions)

	warm, err = svc.FindWarmIntroductions(ctx, "C", WarmOptions{MinPathStrength: Strength(0)})
	require.NoError(t, err)
	assert.Len(t, warm.Introductions, 1)
}

func TestAnalyzeConnectivityAndInsights(t *testing.T) {
	svc := newService(t, snap("v1",
		[]types.Entity{person("a", true), person("b", false)},
		[]types.Edge{edge("a", "b", types.KindContact, 0.5), edge("a", "ghost", types.KindContact, 0.5)},
	))
	ctx := context.Background()

	s, err := svc.AnalyzeConnectivity(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, 1, s.OutgoingConnections)

	none, err := svc.AnalyzeConnectivity(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, none)

	ins, err := svc.ComputeNetworkInsights(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, ins.TotalConnections)
	assert.Equal(t, 1, ins.DroppedEdges)
	assert.Equal(t, "v1", ins.SnapshotVersion)
}
