// Package logging wires log/slog for the daemon and CLI: console and JSON
// handlers, standardized field names, attribute helpers, and context-derived
// loggers so every record carries the task, account, and phase it belongs to.
package logging
