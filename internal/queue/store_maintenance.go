package queue

import (
	"context"
	"fmt"
	"time"
)

// ResetStuckProcessing requeues tasks left in processing by a previous daemon
// run. Retry counters are untouched; the interruption was not the task's fault.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	now := formatTime(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE upload_tasks
         SET status = ?, progress = 0, error_message = ?, updated_at = ?
         WHERE status = ?`,
		StatusQueued, DaemonStopReason, now, StatusProcessing,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck tasks: %w", err)
	}
	return res.RowsAffected()
}

// BoostStarved raises the priority of queued tasks that have waited longer
// than the threshold without a boost, one level per sweep, capped at urgent.
// Returns the number of boosted tasks.
func (s *Store) BoostStarved(ctx context.Context, olderThan time.Duration) (int64, error) {
	now := time.Now().UTC()
	cutoff := formatTime(now.Add(-olderThan))
	timestamp := formatTime(now)

	res, err := s.execWithRetry(
		ctx,
		`UPDATE upload_tasks
         SET priority = MIN(priority + 1, ?), last_boost_at = ?, updated_at = ?
         WHERE status = ? AND priority < ?
           AND COALESCE(last_boost_at, created_at) <= ?`,
		int(PriorityUrgent), timestamp, timestamp,
		StatusQueued, int(PriorityUrgent),
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("boost starved tasks: %w", err)
	}
	return res.RowsAffected()
}

// ClearTerminal deletes completed, failed, and cancelled tasks.
func (s *Store) ClearTerminal(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM upload_tasks WHERE status IN (?, ?, ?)`,
		StatusCompleted, StatusFailed, StatusCancelled,
	)
	if err != nil {
		return 0, fmt.Errorf("clear terminal tasks: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed moves failed tasks back to queued with reset retry counters.
func (s *Store) RetryFailed(ctx context.Context, ids ...string) (int64, error) {
	now := formatTime(time.Now())
	if len(ids) == 0 {
		res, err := s.execWithRetry(
			ctx,
			`UPDATE upload_tasks
             SET status = ?, retry_count = 0, progress = 0, error_message = NULL,
                 not_before = NULL, updated_at = ?
             WHERE status = ?`,
			StatusQueued, now, StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed tasks: %w", err)
		}
		return res.RowsAffected()
	}

	args := make([]any, 0, len(ids)+3)
	args = append(args, StatusQueued, now, StatusFailed)
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE upload_tasks
         SET status = ?, retry_count = 0, progress = 0, error_message = NULL,
             not_before = NULL, updated_at = ?
         WHERE status = ? AND id IN (`+makePlaceholders(len(ids))+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("retry selected tasks: %w", err)
	}
	return res.RowsAffected()
}
