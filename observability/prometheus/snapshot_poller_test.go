package prometheus

import (
	"context"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casualjim/skein"
)

type staticStats struct {
	stats skein.PoolStats
}

func (s staticStats) Stats() skein.PoolStats { return s.stats }

func TestSnapshotPollerCollect(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, time.Minute)
	require.NoError(t, err)

	poller.RegisterPool("workers", staticStats{stats: skein.PoolStats{
		Name:      "workers",
		Size:      4,
		Active:    2,
		Submitted: 10,
		Completed: 7,
		Failed:    1,
		Closed:    true,
	}})
	poller.Collect()

	assert.Equal(t, float64(4), testutil.ToFloat64(poller.poolSize.WithLabelValues("workers")))
	assert.Equal(t, float64(2), testutil.ToFloat64(poller.poolActive.WithLabelValues("workers")))
	assert.Equal(t, float64(10), testutil.ToFloat64(poller.poolSubmitted.WithLabelValues("workers")))
	assert.Equal(t, float64(7), testutil.ToFloat64(poller.poolCompleted.WithLabelValues("workers")))
	assert.Equal(t, float64(1), testutil.ToFloat64(poller.poolFailed.WithLabelValues("workers")))
	assert.Equal(t, float64(1), testutil.ToFloat64(poller.poolClosed.WithLabelValues("workers")))
}

func TestSnapshotPollerSharedRegistry(t *testing.T) {
	reg := prom.NewRegistry()
	_, err := NewSnapshotPoller(reg, time.Second)
	require.NoError(t, err)

	// A second poller reuses the already registered collectors.
	_, err = NewSnapshotPoller(reg, time.Second)
	assert.NoError(t, err)
}

func TestSnapshotPollerStartStop(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 5*time.Millisecond)
	require.NoError(t, err)

	poller.RegisterPool("p", staticStats{stats: skein.PoolStats{Size: 1}})
	poller.Start(context.Background())
	poller.Start(context.Background()) // idempotent

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(poller.poolSize.WithLabelValues("p")) == 1
	}, time.Second, 5*time.Millisecond)

	poller.Stop()
	poller.Stop() // idempotent

	poller.UnregisterPool("p")
	poller.Collect()
}
