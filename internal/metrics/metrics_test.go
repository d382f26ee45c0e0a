package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveSnapshotLoad(t *testing.T) {
	before := testutil.ToFloat64(snapshotLoads.WithLabelValues("success"))
	beforeErr := testutil.ToFloat64(snapshotLoads.WithLabelValues("error"))

	ObserveSnapshotLoad(time.Second, nil)
	ObserveSnapshotLoad(0, errors.New("down"))
	SetSnapshotSize(10, 20, 1)

	assert.Equal(t, before+1, testutil.ToFloat64(snapshotLoads.WithLabelValues("success")))
	assert.Equal(t, beforeErr+1, testutil.ToFloat64(snapshotLoads.WithLabelValues("error")))
	assert.Equal(t, 10.0, testutil.ToFloat64(snapshotSize.WithLabelValues("entities")))
	assert.Equal(t, 1.0, testutil.ToFloat64(snapshotSize.WithLabelValues("dropped_edges")))
}

func TestObserveQueryAndCache(t *testing.T) {
	before := testutil.ToFloat64(queryTruncated.WithLabelValues("test_op"))
	ObserveQuery("test_op", time.Millisecond, 3, true)
	ObserveQuery("test_op", time.Millisecond, 0, false)
	assert.Equal(t, before+1, testutil.ToFloat64(queryTruncated.WithLabelValues("test_op")))

	hits := testutil.ToFloat64(cacheLookups.WithLabelValues("test_op", "hit"))
	ObserveCache("test_op", true)
	ObserveCache("test_op", false)
	assert.Equal(t, hits+1, testutil.ToFloat64(cacheLookups.WithLabelValues("test_op", "hit")))
}
