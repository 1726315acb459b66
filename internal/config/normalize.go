package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizePlatform()
	c.normalizeAccounts()
	c.normalizeScheduler()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		c.Paths.StagingDir = defaultStagingDir
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizePlatform() {
	c.Platform.BaseURL = strings.TrimRight(strings.TrimSpace(c.Platform.BaseURL), "/")
	if strings.TrimSpace(c.Platform.UploadProfile) == "" {
		c.Platform.UploadProfile = defaultUploadProfile
	}
	if c.Platform.RequestTimeout <= 0 {
		c.Platform.RequestTimeout = defaultRequestTimeout
	}
	if c.Platform.MaxUploadGiB <= 0 {
		c.Platform.MaxUploadGiB = defaultMaxUploadGiB
	}
	if c.Platform.ChunkParallelism <= 0 {
		c.Platform.ChunkParallelism = defaultChunkParallelism
	}
	if c.Platform.ChunkRetries < 0 {
		c.Platform.ChunkRetries = defaultChunkRetries
	}
	if c.Platform.ChunkBackoffMS <= 0 {
		c.Platform.ChunkBackoffMS = defaultChunkBackoffMS
	}
	if c.Platform.MergeRetries < 0 {
		c.Platform.MergeRetries = defaultMergeRetries
	}
}

func (c *Config) normalizeAccounts() {
	if c.Accounts.CredentialKey == "" {
		if value, ok := os.LookupEnv("VIDCAST_CREDENTIAL_KEY"); ok {
			c.Accounts.CredentialKey = value
		}
	}
	c.Accounts.CredentialKey = strings.TrimSpace(c.Accounts.CredentialKey)
	if c.Accounts.WarningWindowDays <= 0 {
		c.Accounts.WarningWindowDays = defaultWarningWindow
	}
	if c.Accounts.ProbeTimeout <= 0 {
		c.Accounts.ProbeTimeout = defaultProbeTimeout
	}
	if c.Accounts.CheckDelaySeconds < 1 {
		c.Accounts.CheckDelaySeconds = defaultCheckDelay
	}
	if c.Accounts.SelectorVipWeight <= 0 {
		c.Accounts.SelectorVipWeight = defaultVipWeight
	}
	if c.Accounts.SelectorLevelWeight <= 0 {
		c.Accounts.SelectorLevelWeight = defaultLevelWeight
	}
	if c.Accounts.SelectorIdleWeight <= 0 {
		c.Accounts.SelectorIdleWeight = defaultIdleWeight
	}
}

func (c *Config) normalizeScheduler() {
	if c.Scheduler.MaxConcurrent <= 0 {
		c.Scheduler.MaxConcurrent = defaultMaxConcurrent
	}
	if c.Scheduler.QueuePollInterval <= 0 {
		c.Scheduler.QueuePollInterval = defaultPollInterval
	}
	if c.Scheduler.ErrorRetryInterval <= 0 {
		c.Scheduler.ErrorRetryInterval = defaultErrorRetry
	}
	if c.Scheduler.LockTTLSeconds <= 0 {
		c.Scheduler.LockTTLSeconds = defaultLockTTLSeconds
	}
	if c.Scheduler.MaxRetries < 0 {
		c.Scheduler.MaxRetries = defaultMaxRetries
	}
	if c.Scheduler.RetryBackoffSeconds <= 0 {
		c.Scheduler.RetryBackoffSeconds = defaultRetryBackoff
	}
	if c.Scheduler.StarvationBoostSeconds <= 0 {
		c.Scheduler.StarvationBoostSeconds = defaultStarvationBoost
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
	if c.Notifications.ProgressStepPercent <= 0 || c.Notifications.ProgressStepPercent > 100 {
		c.Notifications.ProgressStepPercent = defaultProgressStep
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.New("resolve home directory")
		}
		if trimmed == "~" {
			return home, nil
		}
		return filepath.Join(home, trimmed[2:]), nil
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve path %q: %w", trimmed, err)
	}
	return abs, nil
}
