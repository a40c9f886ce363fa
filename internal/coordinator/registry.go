package coordinator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/la2geo/geoharvest/internal/apperrors"
)

// RegionStatus is the lifecycle state of one region's scan.
type RegionStatus string

const (
	StatusPending  RegionStatus = "pending"
	StatusScanning RegionStatus = "scanning"
	StatusComplete RegionStatus = "complete"
	StatusError    RegionStatus = "error"
)

// RegionState tracks one region's scan progress in memory. The registry's
// mutex is the only thing that may mutate it; everything else gets a copy.
type RegionState struct {
	RegionX        int
	RegionY        int
	Status         RegionStatus
	TotalCells     int
	ScannedCells   int
	AssignedWorker string
	StartedAt      time.Time
	CompletedAt    time.Time
	Error          string
}

// Key is the region's canonical string identity, "{x}_{y}".
func (r RegionState) Key() string {
	return fmt.Sprintf("%d_%d", r.RegionX, r.RegionY)
}

// Progress returns the fraction of cells scanned so far, 0 when there is
// nothing to scan yet.
func (r RegionState) Progress() float64 {
	if r.TotalCells == 0 {
		return 0
	}
	return float64(r.ScannedCells) / float64(r.TotalCells)
}

// Event is one registry state-change notification, delivered to subscribers
// in the order it happened.
type Event struct {
	Type      string
	Region    string
	Worker    string
	Status    RegionStatus
	Error     string
	Done      int
	Total     int
	Timestamp time.Time
}

const subscriberBufferSize = 256

// Registry is the single-writer region tracker. A *Registry is always
// constructed with New — there is no package-level global, so a process can
// run more than one scan (e.g. tests) without cross-talk.
type Registry struct {
	mu          sync.Mutex
	regions     map[string]*RegionState
	subscribers map[chan Event]struct{}
	store       *Store
}

// New builds an empty Registry backed by store. store may be nil, in which
// case state lives only in memory (used by tests and the editor CLI).
func New(store *Store) *Registry {
	return &Registry{
		regions:     make(map[string]*RegionState),
		subscribers: make(map[chan Event]struct{}),
		store:       store,
	}
}

// LoadFromStore warm-starts the registry from durable state, for resuming
// after a restart. Calling it more than once is harmless but re-does the work.
func (reg *Registry) LoadFromStore(ctx context.Context) error {
	if reg.store == nil {
		return nil
	}
	rows, err := reg.store.LoadRegions(ctx)
	if err != nil {
		return err
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for _, row := range rows {
		reg.regions[row.Key] = &RegionState{
			RegionX:        row.RegionX,
			RegionY:        row.RegionY,
			Status:         RegionStatus(row.Status),
			TotalCells:     row.TotalCells,
			ScannedCells:   row.ScannedCells,
			AssignedWorker: row.AssignedWorker,
			Error:          row.Error,
		}
	}
	return nil
}

// AddRegion registers a region for scanning if it is not already tracked.
func (reg *Registry) AddRegion(ctx context.Context, regionX, regionY, totalCells int) error {
	state := &RegionState{RegionX: regionX, RegionY: regionY, Status: StatusPending, TotalCells: totalCells}
	key := state.Key()

	reg.mu.Lock()
	if _, exists := reg.regions[key]; exists {
		reg.mu.Unlock()
		return nil
	}
	reg.regions[key] = state
	reg.mu.Unlock()

	if reg.store != nil {
		if _, err := reg.store.UpsertRegion(ctx, key, regionX, regionY, totalCells); err != nil {
			return err
		}
	}
	return nil
}

// ClaimNextRegion atomically finds the lowest-keyed pending region, marks it
// scanning under worker, and returns a copy. Iteration order is sorted keys,
// matching the deterministic claim order workers rely on for even spread.
func (reg *Registry) ClaimNextRegion(ctx context.Context, worker string) (RegionState, bool, error) {
	reg.mu.Lock()
	keys := make([]string, 0, len(reg.regions))
	for k := range reg.regions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var claimed *RegionState
	for _, k := range keys {
		r := reg.regions[k]
		if r.Status == StatusPending {
			r.Status = StatusScanning
			r.AssignedWorker = worker
			r.StartedAt = time.Now()
			claimed = r
			break
		}
	}
	if claimed == nil {
		reg.mu.Unlock()
		return RegionState{}, false, nil
	}
	out := *claimed
	reg.mu.Unlock()

	reg.publish(Event{Type: "region_update", Region: out.Key(), Worker: worker, Status: out.Status, Timestamp: out.StartedAt})

	if reg.store != nil {
		if err := reg.store.SaveRegionStatus(ctx, out.Key(), string(out.Status), worker, "", true, false); err != nil {
			return out, true, err
		}
	}
	return out, true, nil
}

// ReleaseRegion transitions a region to a terminal or retry status, e.g.
// back to pending on a retryable error or to complete when the harvester
// finishes its last block-row.
func (reg *Registry) ReleaseRegion(ctx context.Context, key string, status RegionStatus, errMsg string) error {
	reg.mu.Lock()
	r, ok := reg.regions[key]
	if !ok {
		reg.mu.Unlock()
		return apperrors.New(apperrors.KindConflict, "coordinator.release", "unknown region "+key)
	}
	r.Status = status
	r.Error = errMsg
	now := time.Now()
	switch status {
	case StatusComplete:
		r.CompletedAt = now
	case StatusPending:
		r.AssignedWorker = ""
		r.StartedAt = time.Time{}
	}
	reg.mu.Unlock()

	reg.publish(Event{Type: "region_update", Region: key, Status: status, Error: errMsg, Timestamp: now})

	if reg.store != nil {
		return reg.store.SaveRegionStatus(ctx, key, string(status), r.AssignedWorker, errMsg, false, status == StatusComplete)
	}
	return nil
}

// RecordScanned bumps a region's scanned-cell counter and persists it.
func (reg *Registry) RecordScanned(ctx context.Context, key string, delta int) error {
	reg.mu.Lock()
	r, ok := reg.regions[key]
	if !ok {
		reg.mu.Unlock()
		return apperrors.New(apperrors.KindConflict, "coordinator.record", "unknown region "+key)
	}
	r.ScannedCells += delta
	scanned := r.ScannedCells
	reg.mu.Unlock()

	if reg.store != nil {
		return reg.store.SaveScannedCount(ctx, key, scanned)
	}
	return nil
}

// RecordCellsBatch persists a batch of scanned cells for key, or is a no-op
// when the registry has no backing store (in-memory tests, editor CLI).
func (reg *Registry) RecordCellsBatch(ctx context.Context, key string, cells []Cell) error {
	if reg.store == nil {
		return nil
	}
	return reg.store.RecordCellsBatch(ctx, key, cells)
}

// Reset clears every in-memory region and, if backed by a store, truncates
// its durable tables too — the dashboard's "start over" operation.
func (reg *Registry) Reset(ctx context.Context) error {
	reg.mu.Lock()
	reg.regions = make(map[string]*RegionState)
	reg.mu.Unlock()

	if reg.store == nil {
		return nil
	}
	return reg.store.TruncateAll(ctx)
}

// PublishBootstrapProgress announces one account's bootstrap outcome,
// letting dashboard subscribers render a running tally without polling.
func (reg *Registry) PublishBootstrapProgress(account string, ok bool, done, total int) {
	errMsg := ""
	if !ok {
		errMsg = "account bootstrap failed"
	}
	reg.publish(Event{Type: "bootstrap_progress", Worker: account, Error: errMsg, Done: done, Total: total, Timestamp: time.Now()})
}

// ProgressSummary aggregates every tracked region's counts into the single
// "how's the scan going" view the dashboard status endpoint reports.
type ProgressSummary struct {
	TotalCells      int
	ScannedCells    int
	TotalRegions    int
	CompleteRegions int
	ScanningRegions int
	ErrorRegions    int
	PendingRegions  int
	CellsPerSecond  float64
	ETASeconds      float64
}

// Progress summarizes every region's counts plus an aggregate scan speed,
// estimated from each in-flight region's own elapsed time, the same
// per-region speed basis `scan_state.py`'s status snapshot sums over workers.
func (reg *Registry) Progress() ProgressSummary {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	var summary ProgressSummary
	now := time.Now()
	for _, r := range reg.regions {
		summary.TotalCells += r.TotalCells
		summary.ScannedCells += r.ScannedCells
		summary.TotalRegions++
		switch r.Status {
		case StatusComplete:
			summary.CompleteRegions++
		case StatusScanning:
			summary.ScanningRegions++
			if elapsed := now.Sub(r.StartedAt).Seconds(); elapsed > 0 {
				summary.CellsPerSecond += float64(r.ScannedCells) / elapsed
			}
		case StatusError:
			summary.ErrorRegions++
		}
	}
	summary.PendingRegions = summary.TotalRegions - summary.CompleteRegions - summary.ScanningRegions - summary.ErrorRegions

	if summary.CellsPerSecond > 0 && summary.ScannedCells < summary.TotalCells {
		summary.ETASeconds = float64(summary.TotalCells-summary.ScannedCells) / summary.CellsPerSecond
	}
	return summary
}

// Snapshot returns a point-in-time copy of every tracked region, sorted by
// key, for dashboards and status endpoints.
func (reg *Registry) Snapshot() []RegionState {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	out := make([]RegionState, 0, len(reg.regions))
	keys := make([]string, 0, len(reg.regions))
	for k := range reg.regions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, *reg.regions[k])
	}
	return out
}

// Subscribe returns a buffered event channel; the caller must call
// Unsubscribe when done watching, or the channel leaks in the subscriber set.
func (reg *Registry) Subscribe() chan Event {
	ch := make(chan Event, subscriberBufferSize)
	reg.mu.Lock()
	reg.subscribers[ch] = struct{}{}
	reg.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (reg *Registry) Unsubscribe(ch chan Event) {
	reg.mu.Lock()
	delete(reg.subscribers, ch)
	reg.mu.Unlock()
	close(ch)
}

// publish fans an event out to every subscriber without blocking; a
// subscriber too slow to keep up drops events instead of stalling the
// registry.
func (reg *Registry) publish(ev Event) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for ch := range reg.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}
