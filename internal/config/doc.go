// Package config loads, normalizes, and validates the TOML configuration for
// the vidcast daemon and CLI.
package config
