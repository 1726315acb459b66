package accounts

import (
	"strings"
	"time"
)

// HealthStatus is the composite verdict of an account health check.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
	HealthExpired  HealthStatus = "expired"
	HealthUnknown  HealthStatus = "unknown"
)

var healthSeverity = map[HealthStatus]int{
	HealthHealthy:  0,
	HealthUnknown:  1,
	HealthWarning:  2,
	HealthCritical: 3,
	HealthExpired:  4,
}

// ParseHealthStatus converts a string into a known HealthStatus.
func ParseHealthStatus(value string) (HealthStatus, bool) {
	normalized := HealthStatus(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case HealthHealthy, HealthWarning, HealthCritical, HealthExpired, HealthUnknown:
		return normalized, true
	default:
		return HealthUnknown, false
	}
}

// WorseOf returns the more severe of two statuses.
func WorseOf(a, b HealthStatus) HealthStatus {
	if healthSeverity[b] > healthSeverity[a] {
		return b
	}
	return a
}

// Usable reports whether an account in this state may be assigned work.
func (s HealthStatus) Usable() bool {
	return s == HealthHealthy || s == HealthWarning
}

// Account represents a credentialed platform account.
type Account struct {
	ID                  string
	Label               string
	Credential          []byte // sealed; reveal through the Vault
	HealthStatus        HealthStatus
	HealthDetails       string
	CredentialExpiresAt *time.Time
	LastUsedAt          *time.Time
	LastHealthCheckAt   *time.Time
	Level               int
	VIP                 bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Credential is the decrypted session material for one account.
type Credential struct {
	Session string `json:"session"`
	CSRF    string `json:"csrf"`
	UserID  string `json:"user_id"`
}

// Complete reports whether all required credential fields are present.
func (c Credential) Complete() bool {
	return strings.TrimSpace(c.Session) != "" &&
		strings.TrimSpace(c.CSRF) != "" &&
		strings.TrimSpace(c.UserID) != ""
}

// CheckResult is one sub-check of a health pass.
type CheckResult struct {
	Name    string       `json:"name"`
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// HealthReport is the composite verdict of one health pass over an account.
type HealthReport struct {
	AccountID string        `json:"account_id"`
	Status    HealthStatus  `json:"status"`
	Checks    []CheckResult `json:"checks"`
	Summary   string        `json:"summary,omitempty"`
	CheckedAt time.Time     `json:"checked_at"`
}

// Aggregate computes the composite status and summary from the sub-checks.
// The worst sub-check status wins; the summary concatenates the messages of
// every sub-check that is not healthy.
func (r *HealthReport) Aggregate() {
	status := HealthHealthy
	var parts []string
	for _, check := range r.Checks {
		status = WorseOf(status, check.Status)
		if check.Status != HealthHealthy && check.Message != "" {
			parts = append(parts, check.Message)
		}
	}
	r.Status = status
	r.Summary = strings.Join(parts, "; ")
}
