// Package locks provides timeout-based mutual exclusion keyed by resource id,
// preventing two tasks from concurrently processing the same source project.
// It is an in-process primitive: one daemon owns the lock table.
package locks
