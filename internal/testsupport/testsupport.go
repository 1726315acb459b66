// Package testsupport provides shared helpers for package tests: temp-dir
// configs and pre-opened stores.
package testsupport

import (
	"path/filepath"
	"testing"

	"vidcast/internal/config"
	"vidcast/internal/queue"
)

// TestCredentialKey is a fixed hex-encoded 32-byte AES key for tests.
const TestCredentialKey = "6368616e676520746869732070617373776f726420746f206120736563726574"

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Platform.BaseURL = "https://upload.example.test"
	cfg.Accounts.CredentialKey = TestCredentialKey

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithBaseURL overrides the platform base URL on the test config.
func WithBaseURL(url string) ConfigOption {
	return func(c *config.Config) {
		c.Platform.BaseURL = url
	}
}

// WithMaxConcurrent overrides the scheduler worker pool size.
func WithMaxConcurrent(n int) ConfigOption {
	return func(c *config.Config) {
		c.Scheduler.MaxConcurrent = n
	}
}

// MustOpenStore opens the task store and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
