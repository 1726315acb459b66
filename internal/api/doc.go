// Package api defines the wire representations served by the daemon's HTTP
// interface and ships the matching client used by the CLI.
//
// It owns request/response DTOs and conversions between queue and account
// models and their lightweight wire forms. The client decorates calls with
// bearer auth and context deadlines so CLI commands fail fast when the daemon
// is offline.
package api
