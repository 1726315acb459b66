package main

import (
	"fmt"
	"log/slog"

	"vidcast/internal/accounts"
	"vidcast/internal/config"
	"vidcast/internal/daemon"
	"vidcast/internal/notifications"
	"vidcast/internal/platform"
	"vidcast/internal/queue"
	"vidcast/internal/scheduler"
)

// bootstrap wires the daemon's service graph: credential vault, account
// store, platform client, scheduler, and health monitor.
func bootstrap(cfg *config.Config, store *queue.Store, logger *slog.Logger) (*daemon.Daemon, error) {
	accountStore, err := accounts.NewStoreWithDB(store.DB())
	if err != nil {
		return nil, fmt.Errorf("open account store: %w", err)
	}

	key, err := cfg.CredentialKeyBytes()
	if err != nil {
		return nil, err
	}
	vault, err := accounts.NewVault(key)
	if err != nil {
		return nil, fmt.Errorf("init credential vault: %w", err)
	}

	notifier := notifications.NewService(cfg)
	uploader := platform.NewClient(cfg, logger)
	sched := scheduler.New(cfg, store, accountStore, vault, uploader, notifier, logger)
	monitor := accounts.NewMonitor(cfg, accountStore, vault, logger)

	return daemon.New(cfg, store, accountStore, sched, monitor, vault, logger)
}
