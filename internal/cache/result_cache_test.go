package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/relgraph/pkg/types"
)

func TestKey_Canonical(t *testing.T) {
	a := Key{Source: "s", Target: "t", MaxHops: 3, Strategies: []types.Strategy{types.StrategyHub, types.StrategyShortest}}
	b := Key{Source: "s", Target: "t", MaxHops: 3, Strategies: []types.Strategy{types.StrategyShortest, types.StrategyHub, types.StrategyHub}}
	assert.Equal(t, a.String(), b.String())

	c := a
	c.MaxHops = 4
	assert.NotEqual(t, a.String(), c.String())

	d := a
	d.Source, d.Target = "t", "s"
	assert.NotEqual(t, a.String(), d.String())

	// Separator characters in IDs must not produce collisions.
	e := Key{Source: "a|b", Target: "c"}
	f := Key{Source: "a", Target: "b|c"}
	assert.NotEqual(t, e.String(), f.String())
}

func TestCache_GetSetClear(t *testing.T) {
	c := New[[]string]("v1", 2)
	k := Key{Source: "s", Target: "t"}

	_, ok := c.Get(k)
	assert.False(t, ok)

	c.Set(k, []string{"s", "t"})
	v, ok := c.Get(k)
	require.True(t, ok)
	assert.Equal(t, []string{"s", "t"}, v)
	assert.Equal(t, 1, c.Len())

	c.Set(Key{Source: "x"}, nil)
	c.Set(Key{Source: "y"}, nil)
	assert.Equal(t, 2, c.Len(), "capacity bounds entries")

	c.Clear()
	assert.Equal(t, 0, c.Len())

	st := c.Stats()
	assert.Equal(t, "v1", st.Version)
	assert.Equal(t, uint64(1), st.Hits)
	assert.Equal(t, uint64(1), st.Misses)
}

func TestCache_GetOrCompute(t *testing.T) {
	c := New[int]("v1", 0)
	k := Key{Source: "s", Target: "t"}

	v, hit, err := c.GetOrCompute(k, func() (int, bool, error) { return 7, true, nil })
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 7, v)

	v, hit, err = c.GetOrCompute(k, func() (int, bool, error) { return 9, true, nil })
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 7, v)
}

func TestCache_GetOrComputeSkipsUncacheable(t *testing.T) {
	c := New[int]("v1", 0)
	k := Key{Source: "s"}

	_, _, _ = c.GetOrCompute(k, func() (int, bool, error) { return 1, false, nil })
	assert.Equal(t, 0, c.Len())

	_, _, err := c.GetOrCompute(k, func() (int, bool, error) { return 0, true, errors.New("boom") })
	assert.Error(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestCache_SingleFlight(t *testing.T) {
	c := New[int]("v1", 0)
	k := Key{Source: "s", Target: "t"}

	var calls atomic.Int32
	release := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, _, err := c.GetOrCompute(k, func() (int, bool, error) {
				calls.Add(1)
				<-release
				return 42, true, nil
			})
			assert.NoError(t, err)
			assert.Equal(t, 42, v)
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}
