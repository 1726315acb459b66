package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewTaskParams carries the caller-supplied fields for a task submission.
type NewTaskParams struct {
	ResourceID  string
	SourcePath  string
	Title       string
	Description string
	Tags        []string
	CategoryID  int
	AccountID   string
	Priority    Priority
	MaxRetries  int
}

// Submit inserts a new upload task and immediately queues it for dispatch.
func (s *Store) Submit(ctx context.Context, params NewTaskParams) (*Task, error) {
	if strings.TrimSpace(params.SourcePath) == "" {
		return nil, errors.New("source path is required")
	}
	if strings.TrimSpace(params.Title) == "" {
		return nil, errors.New("title is required")
	}
	resourceID := strings.TrimSpace(params.ResourceID)
	if resourceID == "" {
		resourceID = params.SourcePath
	}
	maxRetries := params.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	timestamp := formatTime(now)

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO upload_tasks (
            id, resource_id, source_path, title, description, tags_json,
            category_id, account_id, priority, status, progress,
            retry_count, max_retries, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		resourceID,
		params.SourcePath,
		params.Title,
		nullableString(params.Description),
		marshalTags(params.Tags),
		params.CategoryID,
		nullableString(params.AccountID),
		int(params.Priority),
		StatusQueued,
		0.0,
		0,
		maxRetries,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches an upload task by identifier.
func (s *Store) GetByID(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM upload_tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// Update persists changes to an existing task.
func (s *Store) Update(ctx context.Context, task *Task) error {
	if task == nil {
		return errors.New("task is nil")
	}
	task.UpdatedAt = time.Now().UTC()
	_, err := s.execWithRetry(
		ctx,
		`UPDATE upload_tasks
         SET resource_id = ?, source_path = ?, title = ?, description = ?, tags_json = ?,
             category_id = ?, account_id = ?, priority = ?, status = ?, progress = ?,
             retry_count = ?, max_retries = ?, error_message = ?, upload_id = ?,
             content_id = ?, not_before = ?, last_boost_at = ?, updated_at = ?
         WHERE id = ?`,
		task.ResourceID,
		task.SourcePath,
		task.Title,
		nullableString(task.Description),
		marshalTags(task.Tags),
		task.CategoryID,
		nullableString(task.AccountID),
		int(task.Priority),
		task.Status,
		task.Progress,
		task.RetryCount,
		task.MaxRetries,
		nullableString(task.ErrorMessage),
		nullableString(task.UploadID),
		nullableString(task.ContentID),
		nullableTime(task.NotBefore),
		nullableTime(task.LastBoostAt),
		formatTime(task.UpdatedAt),
		task.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

// NextForDispatch returns the highest-priority queued task that is eligible
// now, skipping tasks whose resource is in the exclusion list. Ties within a
// priority level are broken by earliest submission.
func (s *Store) NextForDispatch(ctx context.Context, excludeResources ...string) (*Task, error) {
	now := formatTime(time.Now())

	query := `SELECT ` + taskColumns + ` FROM upload_tasks
        WHERE status = ? AND (not_before IS NULL OR not_before <= ?)`
	args := []any{StatusQueued, now}
	if len(excludeResources) > 0 {
		query += ` AND resource_id NOT IN (` + makePlaceholders(len(excludeResources)) + `)`
		for _, resource := range excludeResources {
			args = append(args, resource)
		}
	}
	query += ` ORDER BY priority DESC, created_at ASC LIMIT 1`

	row := s.db.QueryRowContext(ctx, query, args...)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next for dispatch: %w", err)
	}
	return task, nil
}

// List returns tasks filtered by the provided statuses, newest first. With no
// statuses it returns every task.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Task, error) {
	query := `SELECT ` + taskColumns + ` FROM upload_tasks`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

// Remove deletes a task by identifier.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM upload_tasks WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Health aggregates queue counts per lifecycle state.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM upload_tasks GROUP BY status`)
	if err != nil {
		return HealthSummary{}, fmt.Errorf("queue health: %w", err)
	}
	defer rows.Close()

	var summary HealthSummary
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return HealthSummary{}, fmt.Errorf("scan health row: %w", err)
		}
		summary.Total += count
		switch Status(status) {
		case StatusQueued, StatusPending:
			summary.Queued += count
		case StatusProcessing:
			summary.Processing += count
		case StatusCompleted:
			summary.Completed += count
		case StatusFailed:
			summary.Failed += count
		case StatusCancelled:
			summary.Cancelled += count
		}
	}
	if err := rows.Err(); err != nil {
		return HealthSummary{}, fmt.Errorf("iterate health rows: %w", err)
	}
	return summary, nil
}
