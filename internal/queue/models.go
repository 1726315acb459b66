package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of an upload task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// DaemonStopReason is the error message set when tasks are requeued due to daemon shutdown.
const DaemonStopReason = "Daemon stopped"

var allStatuses = []Status{
	StatusPending,
	StatusQueued,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var terminalStatuses = map[Status]struct{}{
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminalStatus reports whether a status ends the task lifecycle.
func IsTerminalStatus(status Status) bool {
	_, ok := terminalStatuses[status]
	return ok
}

// Priority orders tasks in the dispatch queue. Higher values dispatch first.
type Priority int

const (
	PriorityLow    Priority = 0
	PriorityNormal Priority = 1
	PriorityHigh   Priority = 2
	PriorityUrgent Priority = 3
)

// ParsePriority converts a string into a known Priority.
func ParsePriority(value string) (Priority, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "low":
		return PriorityLow, true
	case "normal", "":
		return PriorityNormal, true
	case "high":
		return PriorityHigh, true
	case "urgent":
		return PriorityUrgent, true
	default:
		return PriorityNormal, false
	}
}

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return "normal"
	}
}

// Boosted returns the priority one level up, capped at Urgent.
func (p Priority) Boosted() Priority {
	if p >= PriorityUrgent {
		return PriorityUrgent
	}
	return p + 1
}

// Task represents an upload task persisted in SQLite.
type Task struct {
	ID           string
	ResourceID   string
	SourcePath   string
	Title        string
	Description  string
	Tags         []string
	CategoryID   int
	AccountID    string
	Priority     Priority
	Status       Status
	Progress     float64
	RetryCount   int
	MaxRetries   int
	ErrorMessage string
	UploadID     string
	ContentID    string
	NotBefore    *time.Time
	LastBoostAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsTerminal reports whether the task has reached a terminal status.
func (t Task) IsTerminal() bool {
	return IsTerminalStatus(t.Status)
}

// Dispatchable reports whether the task is eligible for dispatch at the given instant.
func (t Task) Dispatchable(now time.Time) bool {
	if t.Status != StatusQueued {
		return false
	}
	return t.NotBefore == nil || !now.Before(*t.NotBefore)
}

// HealthSummary describes aggregated queue counts per key lifecycle states.
type HealthSummary struct {
	Total      int `json:"total"`
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
}
