package refresher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/metropath/internal/common/logger"
	"github.com/metropath/internal/common/maintenance"
)

type Rebuilder interface {
	Rebuild(ctx context.Context) (int, int, error)
}

type Pruner interface {
	CleanupOldSnapshots(ctx context.Context, keepInactive int) ([]maintenance.CleanupResult, error)
}

type Config struct {
	Interval     time.Duration
	KeepInactive int
	RunOnStart   bool
}

// Refresher rebuilds the graph on a fixed interval and prunes old snapshots
// after each successful rebuild.
type Refresher struct {
	config    Config
	rebuilder Rebuilder
	pruner    Pruner
	logger    logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

// New builds a refresher. pruner may be nil when nothing is persisted.
func New(config Config, rebuilder Rebuilder, pruner Pruner, logger logger.Logger) *Refresher {
	return &Refresher{
		config:    config,
		rebuilder: rebuilder,
		pruner:    pruner,
		logger:    logger,
	}
}

// Start blocks until ctx is cancelled or Stop is called. A zero interval
// disables periodic refresh and Start returns immediately.
func (r *Refresher) Start(ctx context.Context) error {
	if r.config.Interval <= 0 {
		r.logger.Info("Periodic refresh disabled")
		return nil
	}

	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("refresher already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.cancel = nil
		r.mu.Unlock()
		cancel()
	}()

	r.logger.Info("Starting refresher", "interval", r.config.Interval)

	if r.config.RunOnStart {
		if _, _, err := r.Refresh(ctx); err != nil {
			r.logger.Error("Initial refresh failed", "error", err)
		}
	}

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Refresher stopped")
			return nil
		case <-ticker.C:
			if _, _, err := r.Refresh(ctx); err != nil {
				r.logger.Error("Scheduled refresh failed", "error", err)
			}
		}
	}
}

func (r *Refresher) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return fmt.Errorf("refresher not running")
	}
	if r.cancel != nil {
		r.cancel()
	}
	return nil
}

// Refresh rebuilds once and prunes. Prune failures are only logged.
func (r *Refresher) Refresh(ctx context.Context) (int, int, error) {
	stations, edges, err := r.rebuilder.Rebuild(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("rebuilding graph: %w", err)
	}

	if r.pruner != nil {
		pruned, err := r.pruner.CleanupOldSnapshots(ctx, r.config.KeepInactive)
		if err != nil {
			r.logger.Warn("Snapshot cleanup failed", "error", err)
		} else if len(pruned) > 0 {
			r.logger.Debug("Snapshot cleanup finished", "pruned", len(pruned))
		}
	}

	return stations, edges, nil
}
