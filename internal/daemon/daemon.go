package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"vidcast/internal/accounts"
	"vidcast/internal/config"
	"vidcast/internal/logging"
	"vidcast/internal/preflight"
	"vidcast/internal/queue"
	"vidcast/internal/scheduler"
)

// Daemon coordinates the background services and enforces single-instance
// execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *queue.Store
	accounts  *accounts.Store
	scheduler *scheduler.Scheduler
	monitor   *accounts.Monitor
	vault     *accounts.Vault

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	cancel  context.CancelFunc
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, accountStore *accounts.Store, sched *scheduler.Scheduler, monitor *accounts.Monitor, vault *accounts.Vault, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || accountStore == nil || sched == nil || vault == nil {
		return nil, errors.New("daemon requires config, stores, scheduler, and vault")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "vidcastd.lock")
	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		store:     store,
		accounts:  accountStore,
		scheduler: sched,
		monitor:   monitor,
		vault:     vault,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}

	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start acquires the instance lock, recovers interrupted tasks, and launches
// the scheduler and API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another vidcast daemon instance is already running")
	}

	if err := d.runPreflight(ctx); err != nil {
		_ = d.lock.Unlock()
		return err
	}

	requeued, err := d.store.ResetStuckProcessing(ctx)
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("recover interrupted tasks: %w", err)
	}
	if requeued > 0 {
		d.logger.Info("requeued interrupted tasks", logging.Int64("count", requeued))
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.scheduler.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start scheduler: %w", err)
	}
	if d.api != nil {
		if err := d.api.start(runCtx); err != nil {
			d.scheduler.Stop()
			cancel()
			_ = d.lock.Unlock()
			return err
		}
	}

	d.running.Store(true)
	d.logger.Info("vidcast daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.scheduler.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("vidcast daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether the daemon is active.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// runPreflight fails startup on local configuration problems. Platform
// reachability only warns; the scheduler retries uploads anyway.
func (d *Daemon) runPreflight(ctx context.Context) error {
	var failures []string
	for _, result := range preflight.RunAll(ctx, d.cfg) {
		if result.Passed {
			continue
		}
		if result.Name == "Platform endpoint" {
			d.logger.Warn("platform endpoint not reachable",
				logging.String("detail", result.Detail))
			continue
		}
		failures = append(failures, fmt.Sprintf("%s: %s", result.Name, result.Detail))
	}
	if len(failures) > 0 {
		return fmt.Errorf("preflight failed: %s", strings.Join(failures, "; "))
	}
	return nil
}
