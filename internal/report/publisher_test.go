package report

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/relgraph/internal/influence"
	"github.com/scrypster/relgraph/internal/storage"
	"github.com/scrypster/relgraph/internal/storage/memory"
	"github.com/scrypster/relgraph/pkg/types"
)

// MockResultStore is a mock implementation of storage.ResultStore for testing.
type MockResultStore struct {
	mock.Mock
}

func (m *MockResultStore) UpsertIntroductionPath(ctx context.Context, rec storage.IntroductionPathRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *MockResultStore) GetIntroductionPath(ctx context.Context, sourceID, targetID string) (*storage.IntroductionPathRecord, error) {
	args := m.Called(ctx, sourceID, targetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.IntroductionPathRecord), args.Error(1)
}

func (m *MockResultStore) SaveNetworkInsights(ctx context.Context, id string, payload []byte) error {
	return m.Called(ctx, id, payload).Error(0)
}

func (m *MockResultStore) GetNetworkInsights(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func path(score float64, nodes ...string) types.Path {
	return types.Path{Nodes: nodes, Hops: len(nodes) - 1, Score: score, Strategy: types.StrategyShortest}
}

func TestPublishIntroductions_BestPerPair(t *testing.T) {
	store := memory.NewStore()
	p := NewPublisher(store, nil)
	fixed := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }
	ctx := context.Background()

	n, err := p.PublishIntroductions(ctx, "t", []types.Path{
		path(0.3, "a", "x", "t"),
		path(0.5, "a", "y", "t"),
		path(0.2, "b", "t"),
		path(0.9, "b", "other"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rec, err := store.GetIntroductionPath(ctx, "a", "t")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "y", "t"}, rec.Path.Nodes)
	assert.InDelta(t, 0.5, rec.Score, 1e-12)
	assert.Equal(t, fixed, rec.ComputedAt)

	_, err = store.GetIntroductionPath(ctx, "b", "other")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Republishing is idempotent.
	_, err = p.PublishIntroductions(ctx, "t", []types.Path{path(0.5, "a", "y", "t"), path(0.2, "b", "t")})
	require.NoError(t, err)
	assert.Len(t, store.IntroductionPaths(), 2)
}

func TestPublishIntroductions_StoreError(t *testing.T) {
	store := new(MockResultStore)
	store.On("UpsertIntroductionPath", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	n, err := NewPublisher(store, nil).PublishIntroductions(context.Background(), "t", []types.Path{path(0.1, "a", "t")})
	require.Error(t, err)
	assert.Equal(t, 0, n)
	assert.Contains(t, err.Error(), "disk full")
}

func TestPublishInsights(t *testing.T) {
	store := new(MockResultStore)
	ins := &influence.NetworkInsights{ID: "ins-1", SnapshotVersion: "v1", TotalEntities: 4}
	store.On("SaveNetworkInsights", mock.Anything, "ins-1", mock.MatchedBy(func(b []byte) bool {
		var doc map[string]interface{}
		return json.Unmarshal(b, &doc) == nil && doc["total_entities"] == float64(4)
	})).Return(nil).Once()

	p := NewPublisher(store, nil)
	require.NoError(t, p.PublishInsights(context.Background(), ins))
	assert.ErrorIs(t, p.PublishInsights(context.Background(), nil), storage.ErrInvalidInput)
	store.AssertExpectations(t)
}
