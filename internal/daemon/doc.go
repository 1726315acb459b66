// Package daemon wires the scheduler, stores, and HTTP API into a
// single-instance background service.
package daemon
