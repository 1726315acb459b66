package api

import (
	"time"

	"vidcast/internal/accounts"
	"vidcast/internal/queue"
)

// Task is the wire representation of an upload task.
type Task struct {
	ID          string   `json:"id"`
	ResourceID  string   `json:"resource_id"`
	SourcePath  string   `json:"source_path"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	CategoryID  int      `json:"category_id,omitempty"`
	AccountID   string   `json:"account_id,omitempty"`
	Priority    string   `json:"priority"`
	Status      string   `json:"status"`
	Progress    float64  `json:"progress"`
	RetryCount  int      `json:"retry_count"`
	MaxRetries  int      `json:"max_retries"`
	Error       string   `json:"error,omitempty"`
	UploadID    string   `json:"upload_id,omitempty"`
	ContentID   string   `json:"content_id,omitempty"`
	NotBefore   string   `json:"not_before,omitempty"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

// NewTask converts a queue task into its wire form.
func NewTask(task *queue.Task) Task {
	view := Task{
		ID:          task.ID,
		ResourceID:  task.ResourceID,
		SourcePath:  task.SourcePath,
		Title:       task.Title,
		Description: task.Description,
		Tags:        task.Tags,
		CategoryID:  task.CategoryID,
		AccountID:   task.AccountID,
		Priority:    task.Priority.String(),
		Status:      string(task.Status),
		Progress:    task.Progress,
		RetryCount:  task.RetryCount,
		MaxRetries:  task.MaxRetries,
		Error:       task.ErrorMessage,
		UploadID:    task.UploadID,
		ContentID:   task.ContentID,
		CreatedAt:   task.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   task.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if task.NotBefore != nil {
		view.NotBefore = task.NotBefore.UTC().Format(time.RFC3339)
	}
	return view
}

// Account is the wire representation of an upload account. It deliberately
// omits the sealed credential blob.
type Account struct {
	ID            string `json:"id"`
	Label         string `json:"label"`
	HealthStatus  string `json:"health_status"`
	HealthDetails string `json:"health_details,omitempty"`
	Level         int    `json:"level"`
	VIP           bool   `json:"vip"`
	ExpiresAt     string `json:"credential_expires_at,omitempty"`
	LastUsedAt    string `json:"last_used_at,omitempty"`
	LastCheckedAt string `json:"last_health_check_at,omitempty"`
}

// NewAccount converts an account into its wire form.
func NewAccount(account *accounts.Account) Account {
	view := Account{
		ID:            account.ID,
		Label:         account.Label,
		HealthStatus:  string(account.HealthStatus),
		HealthDetails: account.HealthDetails,
		Level:         account.Level,
		VIP:           account.VIP,
	}
	if account.CredentialExpiresAt != nil {
		view.ExpiresAt = account.CredentialExpiresAt.UTC().Format(time.RFC3339)
	}
	if account.LastUsedAt != nil {
		view.LastUsedAt = account.LastUsedAt.UTC().Format(time.RFC3339)
	}
	if account.LastHealthCheckAt != nil {
		view.LastCheckedAt = account.LastHealthCheckAt.UTC().Format(time.RFC3339)
	}
	return view
}

// HealthReport is the wire representation of an account health verdict.
type HealthReport struct {
	AccountID string                 `json:"account_id"`
	Status    string                 `json:"status"`
	Summary   string                 `json:"summary,omitempty"`
	Checks    []accounts.CheckResult `json:"checks"`
	CheckedAt string                 `json:"checked_at"`
}

// NewHealthReport converts a health report into its wire form.
func NewHealthReport(report *accounts.HealthReport) HealthReport {
	return HealthReport{
		AccountID: report.AccountID,
		Status:    string(report.Status),
		Summary:   report.Summary,
		Checks:    report.Checks,
		CheckedAt: report.CheckedAt.UTC().Format(time.RFC3339),
	}
}

// Status is the combined daemon and queue status snapshot.
type Status struct {
	Running       bool                `json:"running"`
	ActiveUploads int                 `json:"active_uploads"`
	MaxConcurrent int                 `json:"max_concurrent"`
	Queue         queue.HealthSummary `json:"queue"`
}

// SubmitTaskRequest enqueues a new upload task.
type SubmitTaskRequest struct {
	SourcePath  string   `json:"source_path"`
	ResourceID  string   `json:"resource_id,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	CategoryID  int      `json:"category_id,omitempty"`
	AccountID   string   `json:"account_id,omitempty"`
	Priority    string   `json:"priority,omitempty"`
	MaxRetries  int      `json:"max_retries,omitempty"`
}

// AddAccountRequest registers a platform account with plaintext credentials.
// The daemon seals them before anything touches disk.
type AddAccountRequest struct {
	Label     string `json:"label"`
	Session   string `json:"session"`
	CSRF      string `json:"csrf"`
	UserID    string `json:"user_id"`
	Level     int    `json:"level,omitempty"`
	VIP       bool   `json:"vip,omitempty"`
	ExpiresAt string `json:"credential_expires_at,omitempty"`
}

// RetryRequest selects failed tasks to requeue. Empty means all failed tasks.
type RetryRequest struct {
	IDs []string `json:"ids,omitempty"`
}

// ClearResult reports how many terminal tasks were removed.
type ClearResult struct {
	Removed int64 `json:"removed"`
}

// RetryResult reports how many failed tasks were requeued.
type RetryResult struct {
	Retried int64 `json:"retried"`
}

// ErrorResponse carries a human-readable failure message.
type ErrorResponse struct {
	Error string `json:"error"`
}
