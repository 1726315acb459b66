package queue

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

const taskColumns = "id, resource_id, source_path, title, description, tags_json, category_id, account_id, priority, status, progress, retry_count, max_retries, error_message, upload_id, content_id, not_before, last_boost_at, created_at, updated_at"

// timeLayout is RFC 3339 with a fixed-width fractional second. The queue
// compares stored timestamps as strings in SQL, and RFC3339Nano trims
// trailing zeros, which breaks lexicographic ordering for sub-second values.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(value time.Time) string {
	return value.UTC().Format(timeLayout)
}

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		id           string
		resourceID   string
		sourcePath   string
		title        string
		description  sql.NullString
		tagsJSON     sql.NullString
		categoryID   sql.NullInt64
		accountID    sql.NullString
		priority     int64
		statusStr    string
		progress     sql.NullFloat64
		retryCount   sql.NullInt64
		maxRetries   sql.NullInt64
		errorMessage sql.NullString
		uploadID     sql.NullString
		contentID    sql.NullString
		notBeforeRaw sql.NullString
		lastBoostRaw sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&resourceID,
		&sourcePath,
		&title,
		&description,
		&tagsJSON,
		&categoryID,
		&accountID,
		&priority,
		&statusStr,
		&progress,
		&retryCount,
		&maxRetries,
		&errorMessage,
		&uploadID,
		&contentID,
		&notBeforeRaw,
		&lastBoostRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	task := &Task{
		ID:           id,
		ResourceID:   resourceID,
		SourcePath:   sourcePath,
		Title:        title,
		Description:  description.String,
		CategoryID:   int(categoryID.Int64),
		AccountID:    accountID.String,
		Priority:     Priority(priority),
		Status:       Status(statusStr),
		Progress:     progress.Float64,
		RetryCount:   int(retryCount.Int64),
		MaxRetries:   int(maxRetries.Int64),
		ErrorMessage: errorMessage.String,
		UploadID:     uploadID.String,
		ContentID:    contentID.String,
	}

	if tagsJSON.Valid && tagsJSON.String != "" {
		var tags []string
		if err := json.Unmarshal([]byte(tagsJSON.String), &tags); err == nil {
			task.Tags = tags
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		task.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		task.UpdatedAt = updated
	}
	if notBeforeRaw.Valid {
		if t, err := parseTimeString(notBeforeRaw.String); err == nil {
			task.NotBefore = &t
		}
	}
	if lastBoostRaw.Valid {
		if t, err := parseTimeString(lastBoostRaw.String); err == nil {
			task.LastBoostAt = &t
		}
	}
	return task, nil
}

func marshalTags(tags []string) any {
	if len(tags) == 0 {
		return nil
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return nil
	}
	return string(data)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
