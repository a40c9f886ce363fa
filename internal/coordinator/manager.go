package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/la2geo/geoharvest/internal/apperrors"
	"github.com/la2geo/geoharvest/internal/geodata"
)

// staggerInterval is the delay between successive worker starts, so a fleet
// of N workers never opens N login sockets in the same instant and trips
// the server's flood protection.
const staggerInterval = 2 * time.Second

// WorkerName zero-pads the numeric suffix to width 3 once the fleet reaches
// 100 workers, width 2 otherwise — matching the account names a worker
// fleet this size would actually need to stay sorted and readable.
func WorkerName(prefix string, index, total int) string {
	width := 2
	if total >= 100 {
		width = 3
	}
	return fmt.Sprintf("%s%0*d", prefix, width, index)
}

// DiscoverRegions scans dir for existing "<rx>_<ry>.l2d" files and returns
// the regions they name. A malformed filename is skipped with a warning
// rather than aborting the whole scan. If dir has no .l2d files at all
// (first run against a directory with nothing in it yet), the caller should
// fall back to KnownRegions.
func DiscoverRegions(dir string) ([][2]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperrors.Wrap(apperrors.KindIO, "coordinator.discover", err)
	}

	var out [][2]int
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".l2d") {
			continue
		}
		stem := strings.TrimSuffix(e.Name(), ".l2d")
		parts := strings.SplitN(stem, "_", 2)
		if len(parts) != 2 {
			slog.Warn("skipping malformed region filename", "file", e.Name())
			continue
		}
		rx, errX := strconv.Atoi(parts[0])
		ry, errY := strconv.Atoi(parts[1])
		if errX != nil || errY != nil {
			slog.Warn("skipping malformed region filename", "file", e.Name())
			continue
		}
		out = append(out, [2]int{rx, ry})
	}
	return out, nil
}

// KnownRegions returns the fallback region list used when DiscoverRegions
// finds nothing on disk yet.
func KnownRegions() [][2]int {
	out := make([][2]int, len(knownRegions))
	for i, c := range knownRegions {
		out[i] = [2]int{c.x, c.y}
	}
	return out
}

// TotalCellsFor returns the cell count a region is seeded with under the
// given scan mode: a full 2048x2048 cell-by-cell walk, or the coarser
// 256x256 block-stride walk the harvester actually performs.
func TotalCellsFor(mode string) int {
	if mode == "cell" {
		return geodata.RegionCellsX * geodata.RegionCellsY
	}
	return geodata.RegionBlocksX * geodata.RegionBlocksY
}

// WorkFunc drives one worker's scan of a single region to completion (or a
// retryable failure). The manager does not know how scanning happens — that
// is the harvester's job — it only owns region assignment and lifecycle.
type WorkFunc func(ctx context.Context, worker string, region RegionState) error

// Manager orchestrates a fleet of workers pulling regions from a Registry.
// Constructed with NewManager, never a package-level singleton, so tests can run
// more than one scan concurrently without shared state.
type Manager struct {
	registry    *Registry
	work        WorkFunc
	accountPre  string
	maxInFlight *semaphore.Weighted

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	next    int
	total   int
	workers map[int]context.CancelFunc
	wg      sync.WaitGroup
}

// ManagerStatus is the pool-level metadata an orchestrator dashboard reports
// alongside the registry's own region snapshot.
type ManagerStatus struct {
	Running     bool
	WorkerCount int
}

// NewManager builds a Manager over registry, calling work for each claimed
// region. maxConcurrentConnects bounds how many workers may be inside
// ClaimNextRegion at once; the slot is released before work runs, so it
// does not bound the login handshakes that work itself performs.
func NewManager(registry *Registry, accountPrefix string, maxConcurrentConnects int64, work WorkFunc) *Manager {
	return &Manager{
		registry:    registry,
		work:        work,
		accountPre:  accountPrefix,
		maxInFlight: semaphore.NewWeighted(maxConcurrentConnects),
	}
}

// Start launches numWorkers goroutines, staggered by staggerInterval, each
// repeatedly claiming and scanning regions until the registry runs dry or
// ctx is cancelled. It returns immediately; call Stop (or cancel ctx) to
// shut the fleet down, and Wait to block until every worker has exited.
func (m *Manager) Start(ctx context.Context, numWorkers int) {
	ctx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	m.ctx = ctx
	m.cancel = cancel
	m.running = true
	m.workers = make(map[int]context.CancelFunc, numWorkers)
	m.next = 0
	m.total = numWorkers
	m.mu.Unlock()

	for i := 1; i <= numWorkers; i++ {
		m.AddWorker()
	}
}

// AddWorker starts one more worker against the fleet's current context,
// staggered by staggerInterval behind the worker before it, so growing the
// pool at runtime never bursts logins any more than Start itself would.
// It is a no-op if the pool has not been Started.
func (m *Manager) AddWorker() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.next++
	idx := m.next
	seeded := idx <= m.total
	if idx > m.total {
		m.total = idx
	}
	total := m.total
	ctx, cancel := context.WithCancel(m.ctx)
	m.workers[idx] = cancel
	m.mu.Unlock()

	name := WorkerName(m.accountPre, idx, total)
	delay := staggerInterval
	if seeded {
		// Workers seeded by Start are all added at once; space them out.
		delay = time.Duration(idx-1) * staggerInterval
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			delete(m.workers, idx)
			m.mu.Unlock()
		}()
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
		m.runWorker(ctx, name)
	}()
}

// RemoveWorker cancels the context of the most recently added worker that
// is still running. The work function sees the cancellation mid-region, and
// a region it does not finish is released back to pending. It is a no-op if
// no workers remain.
func (m *Manager) RemoveWorker() {
	m.mu.Lock()
	defer m.mu.Unlock()
	var highest int
	for idx := range m.workers {
		if idx > highest {
			highest = idx
		}
	}
	if highest == 0 {
		return
	}
	m.workers[highest]()
	delete(m.workers, highest)
}

// Status reports the fleet's current running state and worker count.
func (m *Manager) Status() ManagerStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ManagerStatus{Running: m.running, WorkerCount: len(m.workers)}
}

// runWorker repeatedly claims the next pending region and scans it until
// none remain or the context is cancelled.
func (m *Manager) runWorker(ctx context.Context, name string) {
	for {
		if err := m.maxInFlight.Acquire(ctx, 1); err != nil {
			return // context cancelled while waiting for a claim slot
		}
		region, ok, err := m.registry.ClaimNextRegion(ctx, name)
		m.maxInFlight.Release(1)
		if err != nil {
			slog.Error("claim region failed", "worker", name, "error", err)
			return
		}
		if !ok {
			slog.Info("worker idle, no pending regions", "worker", name)
			return
		}

		slog.Info("worker claimed region", "worker", name, "region", region.Key())
		if err := m.work(ctx, name, region); err != nil {
			slog.Error("scan failed, releasing region to pending", "worker", name, "region", region.Key(), "error", err)
			if relErr := m.registry.ReleaseRegion(ctx, region.Key(), StatusPending, err.Error()); relErr != nil {
				slog.Error("failed to release region after error", "region", region.Key(), "error", relErr)
			}
			continue
		}
		if err := m.registry.ReleaseRegion(ctx, region.Key(), StatusComplete, ""); err != nil {
			slog.Error("failed to mark region complete", "region", region.Key(), "error", err)
		}

		if ctx.Err() != nil {
			return
		}
	}
}

// Stop cancels every running worker. It does not wait for them to exit —
// call Wait for that, typically with a bounded context.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.running = false
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until every worker goroutine has returned, or until ctx is
// done — mirroring the reference manager's 10-second join timeout on stop.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return apperrors.Wrap(apperrors.KindTimeout, "coordinator.manager.wait", ctx.Err())
	}
}
