package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePlatform(); err != nil {
		return err
	}
	if err := c.validateAccounts(); err != nil {
		return err
	}
	if err := c.validateScheduler(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePlatform() error {
	if strings.TrimSpace(c.Platform.BaseURL) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/vidcast/config.toml"
		}
		return fmt.Errorf("platform.base_url is required. Edit %s (create with 'vidcast config init')", defaultPath)
	}
	if c.Platform.ChunkParallelism > 4 {
		return errors.New("platform.chunk_parallelism must be 4 or less")
	}
	return nil
}

func (c *Config) validateAccounts() error {
	key := strings.TrimSpace(c.Accounts.CredentialKey)
	if key == "" {
		return errors.New("accounts.credential_key is required. Set VIDCAST_CREDENTIAL_KEY env var or add it to the config file")
	}
	decoded, err := hex.DecodeString(key)
	if err != nil {
		return fmt.Errorf("accounts.credential_key must be hex encoded: %w", err)
	}
	if len(decoded) != 32 {
		return fmt.Errorf("accounts.credential_key must decode to 32 bytes, got %d", len(decoded))
	}
	return nil
}

func (c *Config) validateScheduler() error {
	if c.Scheduler.MaxConcurrent > 16 {
		return errors.New("scheduler.max_concurrent must be 16 or less")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}

// CredentialKeyBytes returns the decoded credential encryption key.
func (c *Config) CredentialKeyBytes() ([]byte, error) {
	decoded, err := hex.DecodeString(strings.TrimSpace(c.Accounts.CredentialKey))
	if err != nil {
		return nil, fmt.Errorf("decode credential key: %w", err)
	}
	return decoded, nil
}
