package coordinator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryClaimAndRelease(t *testing.T) {
	reg := New(nil)
	ctx := context.Background()

	require.NoError(t, reg.AddRegion(ctx, 17, 13, 65536))
	require.NoError(t, reg.AddRegion(ctx, 18, 14, 65536))

	r1, ok, err := reg.ClaimNextRegion(ctx, "scanner01")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "17_13", r1.Key())
	assert.Equal(t, StatusScanning, r1.Status)
	assert.Equal(t, "scanner01", r1.AssignedWorker)

	r2, ok, err := reg.ClaimNextRegion(ctx, "scanner02")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "18_14", r2.Key())

	_, ok, err = reg.ClaimNextRegion(ctx, "scanner03")
	require.NoError(t, err)
	assert.False(t, ok, "no pending regions left")

	require.NoError(t, reg.RecordScanned(ctx, r1.Key(), 100))
	require.NoError(t, reg.ReleaseRegion(ctx, r1.Key(), StatusComplete, ""))

	snap := reg.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, StatusComplete, snap[0].Status)
	assert.Equal(t, 100, snap[0].ScannedCells)
	assert.InDelta(t, 100.0/65536.0, snap[0].Progress(), 1e-9)
}

func TestRegistryProgressAggregatesCountsAndSpeed(t *testing.T) {
	reg := New(nil)
	ctx := context.Background()

	require.NoError(t, reg.AddRegion(ctx, 1, 1, 100))
	require.NoError(t, reg.AddRegion(ctx, 2, 2, 100))
	require.NoError(t, reg.AddRegion(ctx, 3, 3, 100))

	_, ok, err := reg.ClaimNextRegion(ctx, "w1")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, reg.RecordScanned(ctx, "1_1", 50))
	require.NoError(t, reg.ReleaseRegion(ctx, "1_1", StatusComplete, ""))

	_, ok, err = reg.ClaimNextRegion(ctx, "w2")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, reg.RecordScanned(ctx, "2_2", 10))

	summary := reg.Progress()
	assert.Equal(t, 300, summary.TotalCells)
	assert.Equal(t, 60, summary.ScannedCells)
	assert.Equal(t, 3, summary.TotalRegions)
	assert.Equal(t, 1, summary.CompleteRegions)
	assert.Equal(t, 1, summary.ScanningRegions)
	assert.Equal(t, 1, summary.PendingRegions)
	assert.GreaterOrEqual(t, summary.CellsPerSecond, 0.0)
}

func TestRegistryReleaseUnknownRegion(t *testing.T) {
	reg := New(nil)
	err := reg.ReleaseRegion(context.Background(), "99_99", StatusComplete, "")
	assert.Error(t, err)
}

func TestRegistrySubscribeReceivesEvents(t *testing.T) {
	reg := New(nil)
	ctx := context.Background()
	ch := reg.Subscribe()
	defer reg.Unsubscribe(ch)

	require.NoError(t, reg.AddRegion(ctx, 1, 1, 10))
	_, ok, err := reg.ClaimNextRegion(ctx, "w1")
	require.NoError(t, err)
	require.True(t, ok)

	select {
	case ev := <-ch:
		assert.Equal(t, "region_update", ev.Type)
		assert.Equal(t, "1_1", ev.Region)
		assert.Equal(t, StatusScanning, ev.Status)
	default:
		t.Fatal("expected an event on the subscriber channel")
	}
}
