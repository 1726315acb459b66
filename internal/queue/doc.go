// Package queue persists upload tasks in SQLite and exposes the lifecycle
// operations the scheduler drives: submission, priority dispatch, status
// transitions, retry bookkeeping, and maintenance sweeps.
package queue
