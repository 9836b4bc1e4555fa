package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotEmpty(t *testing.T) {
	c := NewCollector()
	snap := c.Snapshot()

	assert.Nil(t, snap.Generation)
	assert.Nil(t, snap.RenderSubmit)
	assert.GreaterOrEqual(t, snap.UptimeSeconds, 0.0)
}

func TestRecordGeneration(t *testing.T) {
	c := NewCollector()
	c.RecordGeneration(100*time.Millisecond, 50)
	c.RecordGeneration(300*time.Millisecond, 150)

	snap := c.Snapshot()
	require.NotNil(t, snap.Generation)
	assert.Equal(t, int64(2), snap.Generation.Count)
	assert.Equal(t, int64(100), snap.Generation.MinTimeMs)
	assert.Equal(t, int64(300), snap.Generation.MaxTimeMs)
	require.NotNil(t, snap.Generation.TotalTokens)
	assert.Equal(t, int64(200), *snap.Generation.TotalTokens)
	require.NotNil(t, snap.Generation.AvgTokens)
	assert.Equal(t, 100.0, *snap.Generation.AvgTokens)
}

func TestRecordFailure(t *testing.T) {
	c := NewCollector()
	c.RecordTiming(OpRenderSubmit, 10*time.Millisecond)
	c.RecordFailure(OpRenderSubmit, 20*time.Millisecond)

	snap := c.Snapshot()
	require.NotNil(t, snap.RenderSubmit)
	assert.Equal(t, int64(2), snap.RenderSubmit.Count)
	assert.Equal(t, int64(1), snap.RenderSubmit.Failures)
}
