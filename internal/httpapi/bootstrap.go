package httpapi

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/la2geo/geoharvest/internal/client"
	"github.com/la2geo/geoharvest/internal/config"
	"github.com/la2geo/geoharvest/internal/coordinator"
)

const bootstrapAccountDelay = 2 * time.Second

// BootstrapStatus is the point-in-time progress of a bootstrap job.
type BootstrapStatus struct {
	Running bool `json:"running"`
	Total   int  `json:"total"`
	Done    int  `json:"done"`
	Failed  int  `json:"failed"`
}

// BootstrapRunner drives the account-creation job described in the
// dashboard's bootstrap endpoint: one login+game connect-or-create cycle
// per account, 2 seconds apart to respect login server rate limits.
type BootstrapRunner struct {
	cfg      config.Scanner
	registry *coordinator.Registry

	mu      sync.Mutex
	running bool
	total   int
	done    atomic.Int64
	failed  atomic.Int64
}

// NewBootstrapRunner builds a runner against cfg's login host/account
// prefix. registry receives bootstrap_progress events as accounts complete.
func NewBootstrapRunner(cfg config.Scanner, registry *coordinator.Registry) *BootstrapRunner {
	return &BootstrapRunner{cfg: cfg, registry: registry}
}

// Start launches a background job creating count accounts. It is a no-op
// if a job is already running.
func (b *BootstrapRunner) Start(count int) {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return
	}
	b.running = true
	b.total = count
	b.done.Store(0)
	b.failed.Store(0)
	b.mu.Unlock()

	go b.run(count)
}

func (b *BootstrapRunner) run(count int) {
	defer func() {
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
	}()

	for i := 1; i <= count; i++ {
		name := coordinator.WorkerName(b.cfg.AccountPrefix, i, count)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := bootstrapAccount(ctx, b.cfg, name)
		cancel()

		if err != nil {
			b.failed.Add(1)
			slog.Warn("bootstrap account failed", "account", name, "error", err)
		} else {
			b.done.Add(1)
		}
		b.registry.PublishBootstrapProgress(name, err == nil, int(b.done.Load()+b.failed.Load()), count)

		if i < count {
			time.Sleep(bootstrapAccountDelay)
		}
	}
}

// bootstrapAccount runs one login+game connect-or-create cycle and
// disconnects, relying on the login server's auto-create-accounts behavior
// and the game server's empty-character-list path to provision name.
func bootstrapAccount(ctx context.Context, cfg config.Scanner, name string) error {
	lc, err := client.Connect(ctx, cfg.LoginHost, cfg.LoginPort)
	if err != nil {
		return err
	}
	defer lc.Close()

	if err := lc.GGAuth(); err != nil {
		return err
	}
	if err := lc.AuthLogin(name, cfg.AccountPass); err != nil {
		return err
	}
	if err := lc.RequestServerList(); err != nil {
		return err
	}
	if len(lc.Servers) == 0 {
		return nil
	}

	target := lc.Servers[0]
	for _, s := range lc.Servers {
		if s.Up() {
			target = s
			break
		}
	}
	if err := lc.SelectServer(target.ID); err != nil {
		return err
	}

	gc, err := client.ConnectGame(ctx, target.IP, target.Port)
	if err != nil {
		return err
	}
	defer gc.Close()

	count, err := gc.AuthToGame(name, lc.LoginKey1, lc.LoginKey2, lc.PlayKey1, lc.PlayKey2)
	if err != nil {
		return err
	}
	if count == 0 {
		return gc.CreateCharacter(name, 0x00, 0, 0, 0, 0)
	}
	return nil
}

// Status reports the current bootstrap job's progress.
func (b *BootstrapRunner) Status() BootstrapStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BootstrapStatus{
		Running: b.running,
		Total:   b.total,
		Done:    int(b.done.Load()),
		Failed:  int(b.failed.Load()),
	}
}
