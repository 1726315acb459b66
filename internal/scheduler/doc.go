// Package scheduler coordinates upload task dispatch: it pulls dispatchable
// tasks from the queue, assigns accounts, guards source resources with TTL
// locks, and runs uploads through a bounded worker pool.
package scheduler
