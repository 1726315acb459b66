package queue

import (
	"context"
	"fmt"
	"time"
)

// MarkProcessing transitions a queued task to processing, recording the
// account it was dispatched with. Returns false when the task was no longer
// queued (raced with a cancel or another worker).
func (s *Store) MarkProcessing(ctx context.Context, id, accountID string) (bool, error) {
	now := formatTime(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE upload_tasks
         SET status = ?, account_id = ?, error_message = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusProcessing, accountID, now, id, StatusQueued,
	)
	if err != nil {
		return false, fmt.Errorf("mark processing: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// MarkCompleted records protocol success along with the platform content id.
func (s *Store) MarkCompleted(ctx context.Context, id, contentID string) error {
	now := formatTime(time.Now())
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE upload_tasks
         SET status = ?, content_id = ?, progress = 100, error_message = NULL, updated_at = ?
         WHERE id = ?`,
		StatusCompleted, contentID, now, id,
	); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return nil
}

// MarkFailed records a terminal failure with the surfaced error message.
func (s *Store) MarkFailed(ctx context.Context, id, message string) error {
	now := formatTime(time.Now())
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE upload_tasks
         SET status = ?, error_message = ?, updated_at = ?
         WHERE id = ?`,
		StatusFailed, message, now, id,
	); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// Requeue puts a processing task back in the queue with an incremented retry
// count and a backoff delay before it becomes eligible again.
func (s *Store) Requeue(ctx context.Context, id, message string, backoff time.Duration) error {
	now := time.Now().UTC()
	eligible := formatTime(now.Add(backoff))
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE upload_tasks
         SET status = ?, retry_count = retry_count + 1, error_message = ?,
             progress = 0, not_before = ?, updated_at = ?
         WHERE id = ?`,
		StatusQueued, message, eligible, formatTime(now), id,
	); err != nil {
		return fmt.Errorf("requeue task: %w", err)
	}
	return nil
}

// MarkCancelled transitions a task to cancelled. Returns false when the task
// was already terminal.
func (s *Store) MarkCancelled(ctx context.Context, id string) (bool, error) {
	now := formatTime(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE upload_tasks
         SET status = ?, updated_at = ?
         WHERE id = ? AND status IN (?, ?, ?)`,
		StatusCancelled, now, id, StatusPending, StatusQueued, StatusProcessing,
	)
	if err != nil {
		return false, fmt.Errorf("mark cancelled: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// SetProgress updates the task's progress percentage and negotiated upload id.
func (s *Store) SetProgress(ctx context.Context, id string, progress float64, uploadID string) error {
	now := formatTime(time.Now())
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE upload_tasks
         SET progress = ?, upload_id = COALESCE(?, upload_id), updated_at = ?
         WHERE id = ?`,
		progress, nullableString(uploadID), now, id,
	); err != nil {
		return fmt.Errorf("set progress: %w", err)
	}
	return nil
}
