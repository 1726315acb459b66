package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	LogDir     string `toml:"log_dir"`
	APIBind    string `toml:"api_bind"`
	APIToken   string `toml:"api_token"`
}

// Platform contains configuration for the remote video platform.
type Platform struct {
	BaseURL          string `toml:"base_url"`
	UploadProfile    string `toml:"upload_profile"`
	RequestTimeout   int    `toml:"request_timeout"`
	MaxUploadGiB     int    `toml:"max_upload_gib"`
	ChunkParallelism int    `toml:"chunk_parallelism"`
	ChunkRetries     int    `toml:"chunk_retries"`
	ChunkBackoffMS   int    `toml:"chunk_backoff_ms"`
	MergeRetries     int    `toml:"merge_retries"`
}

// Accounts contains configuration for credential storage and health checks.
type Accounts struct {
	// CredentialKey is the hex-encoded 32-byte AES key protecting stored
	// session credentials.
	CredentialKey       string  `toml:"credential_key"`
	WarningWindowDays   int     `toml:"warning_window_days"`
	ProbeTimeout        int     `toml:"probe_timeout"`
	CheckDelaySeconds   int     `toml:"check_delay_seconds"`
	SelectorVipWeight   float64 `toml:"selector_vip_weight"`
	SelectorLevelWeight float64 `toml:"selector_level_weight"`
	SelectorIdleWeight  float64 `toml:"selector_idle_weight"`
}

// Scheduler contains configuration for the upload dispatch loop.
type Scheduler struct {
	MaxConcurrent          int `toml:"max_concurrent"`
	QueuePollInterval      int `toml:"queue_poll_interval"`
	ErrorRetryInterval     int `toml:"error_retry_interval"`
	LockTTLSeconds         int `toml:"lock_ttl_seconds"`
	MaxRetries             int `toml:"max_retries"`
	RetryBackoffSeconds    int `toml:"retry_backoff_seconds"`
	StarvationBoostSeconds int `toml:"starvation_boost_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic           string `toml:"ntfy_topic"`
	RequestTimeout      int    `toml:"request_timeout"`
	TaskEvents          bool   `toml:"task_events"`
	AccountAlerts       bool   `toml:"account_alerts"`
	Progress            bool   `toml:"progress"`
	ProgressStepPercent int    `toml:"progress_step_percent"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for vidcast.
//
// Configuration sections by subsystem:
//   - Paths: directories, API bind address, and API token
//   - Platform: remote upload endpoints, limits, and chunk policy
//   - Accounts: credential encryption key and health check tuning
//   - Scheduler: worker pool size, polling, retries, and lock TTL
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Platform      Platform      `toml:"platform"`
	Accounts      Accounts      `toml:"accounts"`
	Scheduler     Scheduler     `toml:"scheduler"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/vidcast/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.LogDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// WriteSample writes the embedded sample configuration to the given path.
// It refuses to overwrite an existing file unless force is set.
func WriteSample(path string, force bool) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if !force {
		if _, err := os.Stat(expanded); err == nil {
			return fmt.Errorf("config file already exists at %s", expanded)
		}
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o600)
}

// ProbeTimeout returns the account probe timeout as a duration.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Accounts.ProbeTimeout) * time.Second
}

// PlatformTimeout returns the platform request timeout as a duration.
func (c *Config) PlatformTimeout() time.Duration {
	return time.Duration(c.Platform.RequestTimeout) * time.Second
}

// LockTTL returns the resource lock time-to-live as a duration.
func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.Scheduler.LockTTLSeconds) * time.Second
}

// MaxUploadBytes returns the platform upload ceiling in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Platform.MaxUploadGiB) << 30
}
