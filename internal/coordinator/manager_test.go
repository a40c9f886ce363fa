package coordinator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerNamePadding(t *testing.T) {
	assert.Equal(t, "scanner01", WorkerName("scanner", 1, 12))
	assert.Equal(t, "scanner12", WorkerName("scanner", 12, 12))
	assert.Equal(t, "scanner001", WorkerName("scanner", 1, 150))
}

func TestDiscoverRegionsSkipsMalformedNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "17_13.l2d"), []byte{0xD0, 0, 0}, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "not_a_region_file.l2d"), []byte{}, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte{}, 0o644))

	regions, err := DiscoverRegions(dir)
	require.NoError(t, err)
	assert.Equal(t, [][2]int{{17, 13}}, regions)
}

func TestDiscoverRegionsMissingDir(t *testing.T) {
	regions, err := DiscoverRegions(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.Nil(t, regions)
}

func TestKnownRegionsNonEmpty(t *testing.T) {
	regions := KnownRegions()
	assert.Len(t, regions, 137)
	assert.Contains(t, regions, [2]int{20, 15})
}

func TestManagerAddAndRemoveWorkerAdjustsStatus(t *testing.T) {
	reg := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	blocked := make(chan struct{})
	mgr := NewManager(reg, "scanner", 4, func(ctx context.Context, _ string, _ RegionState) error {
		select {
		case <-blocked:
		case <-ctx.Done():
		}
		return ctx.Err()
	})

	require.NoError(t, reg.AddRegion(ctx, 1, 1, 10))
	require.NoError(t, reg.AddRegion(ctx, 2, 2, 10))
	require.NoError(t, reg.AddRegion(ctx, 3, 3, 10))

	mgr.Start(ctx, 1)
	require.Eventually(t, func() bool { return mgr.Status().WorkerCount == 1 }, time.Second, 10*time.Millisecond)

	mgr.AddWorker()
	require.Eventually(t, func() bool { return mgr.Status().WorkerCount == 2 }, 3*time.Second, 10*time.Millisecond)
	assert.True(t, mgr.Status().Running)

	mgr.RemoveWorker()
	require.Eventually(t, func() bool { return mgr.Status().WorkerCount == 1 }, time.Second, 10*time.Millisecond)

	close(blocked)
	mgr.Stop()
	require.NoError(t, mgr.Wait(ctx))
	assert.False(t, mgr.Status().Running)
}

func TestManagerRunsWorkersAgainstSeededRegions(t *testing.T) {
	reg := New(nil)
	ctx := context.Background()
	require.NoError(t, reg.AddRegion(ctx, 1, 1, 10))
	require.NoError(t, reg.AddRegion(ctx, 2, 2, 10))

	var scanned []string
	mgr := NewManager(reg, "scanner", 2, func(_ context.Context, worker string, region RegionState) error {
		scanned = append(scanned, worker+":"+region.Key())
		return nil
	})

	mgr.Start(ctx, 2)
	require.NoError(t, mgr.Wait(ctx))

	assert.Len(t, scanned, 2)
	for _, r := range reg.Snapshot() {
		assert.Equal(t, StatusComplete, r.Status)
	}
}
