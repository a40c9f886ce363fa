package httpapi

import (
	"context"

	"github.com/la2geo/geoharvest/internal/config"
	"github.com/la2geo/geoharvest/internal/coordinator"
)

// ScanController adapts a coordinator.Registry/Manager pair to the
// dashboard's start/stop/reset/add/remove surface, seeding the registry
// from whatever regions already exist on disk (falling back to the known
// region table) the first time a scan is started.
type ScanController struct {
	cfg      config.Scanner
	registry *coordinator.Registry
	manager  *coordinator.Manager
}

// NewScanController builds a controller over registry, dispatching claimed
// regions to manager's WorkFunc.
func NewScanController(cfg config.Scanner, registry *coordinator.Registry, manager *coordinator.Manager) *ScanController {
	return &ScanController{cfg: cfg, registry: registry, manager: manager}
}

// Start seeds the registry (if it has nothing tracked yet) and launches
// numWorkers against it. mode selects the scan stride: "cell" (step 1) is
// recorded for dashboard display only — the harvester itself always scans
// at block resolution; per-cell granularity is a future enrichment.
func (sc *ScanController) Start(ctx context.Context, numWorkers int, mode string) error {
	if mode == "" {
		mode = sc.cfg.ScanMode
	}
	if len(sc.registry.Snapshot()) == 0 {
		if err := sc.seedRegions(ctx, mode); err != nil {
			return err
		}
	}
	if numWorkers <= 0 {
		numWorkers = sc.cfg.WorkerCount
	}
	sc.manager.Start(ctx, numWorkers)
	return nil
}

func (sc *ScanController) seedRegions(ctx context.Context, mode string) error {
	regions, err := coordinator.DiscoverRegions(sc.cfg.GeodataDir)
	if err != nil {
		return err
	}
	if len(regions) == 0 {
		regions = coordinator.KnownRegions()
	}
	for _, rc := range regions {
		if err := sc.registry.AddRegion(ctx, rc[0], rc[1], coordinator.TotalCellsFor(mode)); err != nil {
			return err
		}
	}
	return nil
}

// Stop signals every worker to exit without waiting for them.
func (sc *ScanController) Stop() {
	sc.manager.Stop()
}

// AddWorker grows the running fleet by one.
func (sc *ScanController) AddWorker() {
	sc.manager.AddWorker()
}

// RemoveWorker shrinks the running fleet by one.
func (sc *ScanController) RemoveWorker() {
	sc.manager.RemoveWorker()
}

// Reset stops the fleet and truncates durable scan state, so the next
// Start reseeds from scratch.
func (sc *ScanController) Reset(ctx context.Context) error {
	sc.manager.Stop()
	return sc.registry.Reset(ctx)
}

// Subscribe returns a channel of registry events for the SSE endpoint.
func (sc *ScanController) Subscribe() chan coordinator.Event {
	return sc.registry.Subscribe()
}

// Unsubscribe releases a channel returned by Subscribe.
func (sc *ScanController) Unsubscribe(ch chan coordinator.Event) {
	sc.registry.Unsubscribe(ch)
}

// Status reports the aggregate snapshot the dashboard polls.
func (sc *ScanController) Status() statusResponse {
	st := sc.manager.Status()
	return statusResponse{
		Running:     st.Running,
		WorkerCount: st.WorkerCount,
		Regions:     sc.registry.Snapshot(),
		Progress:    sc.registry.Progress(),
	}
}
