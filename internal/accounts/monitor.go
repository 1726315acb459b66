package accounts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"vidcast/internal/config"
	"vidcast/internal/logging"
)

// HTTPDoer describes the HTTP client used by the health monitor.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

const (
	checkCredential  = "credential"
	checkExpiry      = "expiry"
	checkLogin       = "login"
	checkEntitlement = "entitlement"
)

// Platform response codes surfaced by the probe endpoints.
const (
	codeOK               = 0
	codePermissionDenied = -403
	codeRateLimited      = -412
)

type probeResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Monitor validates stored session credentials, login state, and upload
// entitlement for accounts, and writes the verdicts back to the store.
type Monitor struct {
	store         *Store
	vault         *Vault
	client        HTTPDoer
	baseURL       string
	warningWindow time.Duration
	limiter       *rate.Limiter
	logger        *slog.Logger

	now func() time.Time
}

// NewMonitor constructs a health monitor from configuration.
func NewMonitor(cfg *config.Config, store *Store, vault *Vault, logger *slog.Logger) *Monitor {
	delay := time.Duration(cfg.Accounts.CheckDelaySeconds) * time.Second
	if delay < time.Second {
		delay = time.Second
	}
	return &Monitor{
		store:         store,
		vault:         vault,
		client:        &http.Client{Timeout: cfg.ProbeTimeout()},
		baseURL:       cfg.Platform.BaseURL,
		warningWindow: time.Duration(cfg.Accounts.WarningWindowDays) * 24 * time.Hour,
		limiter:       rate.NewLimiter(rate.Every(delay), 1),
		logger:        logging.NewComponentLogger(logger, "health"),
		now:           time.Now,
	}
}

// SetHTTPClient overrides the probe HTTP client (used in tests).
func (m *Monitor) SetHTTPClient(client HTTPDoer) {
	if client != nil {
		m.client = client
	}
}

// Check performs one best-effort health pass over an account and persists the
// verdict. Probe retries are the caller's policy, not the monitor's.
func (m *Monitor) Check(ctx context.Context, account *Account) (*HealthReport, error) {
	if account == nil {
		return nil, fmt.Errorf("account is nil")
	}
	report := &HealthReport{
		AccountID: account.ID,
		CheckedAt: m.now().UTC(),
	}

	cred, err := m.vault.Reveal(account.Credential)
	switch {
	case err != nil:
		report.Checks = append(report.Checks, CheckResult{
			Name:    checkCredential,
			Status:  HealthCritical,
			Message: "stored credential cannot be decrypted",
		})
	case !cred.Complete():
		report.Checks = append(report.Checks, CheckResult{
			Name:    checkCredential,
			Status:  HealthCritical,
			Message: "credential missing session, csrf token, or user id",
		})
	default:
		report.Checks = append(report.Checks, CheckResult{Name: checkCredential, Status: HealthHealthy})
	}

	// A broken credential fails the pass outright; probing with it would only
	// produce noise.
	if report.Checks[0].Status == HealthCritical {
		return m.finish(ctx, account, report)
	}

	if expiry := m.expiryCheck(account); expiry != nil {
		report.Checks = append(report.Checks, *expiry)
		if expiry.Status == HealthExpired {
			return m.finish(ctx, account, report)
		}
	}

	report.Checks = append(report.Checks, m.loginProbe(ctx, cred))
	report.Checks = append(report.Checks, m.entitlementProbe(ctx, cred))

	return m.finish(ctx, account, report)
}

// CheckAll runs Check over every account sequentially with an inter-account
// delay to avoid remote-side throttling. Individual failures do not abort the
// batch.
func (m *Monitor) CheckAll(ctx context.Context) ([]*HealthReport, error) {
	pool, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}

	reports := make([]*HealthReport, 0, len(pool))
	for _, account := range pool {
		// Waiting before every check, not just between them, means the
		// limiter's stored token is spent on the first account and each
		// later check has to sit out a full interval.
		if err := m.limiter.Wait(ctx); err != nil {
			return reports, err
		}
		report, err := m.Check(ctx, account)
		if err != nil {
			m.logger.Warn("account health check failed",
				logging.String(logging.FieldAccountID, account.ID),
				logging.Error(err),
				logging.String(logging.FieldEventType, "health_check_failed"),
			)
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func (m *Monitor) finish(ctx context.Context, account *Account, report *HealthReport) (*HealthReport, error) {
	report.Aggregate()
	if err := m.store.SaveHealth(ctx, report); err != nil {
		return report, err
	}
	account.HealthStatus = report.Status
	checkedAt := report.CheckedAt
	account.LastHealthCheckAt = &checkedAt

	m.logger.Info("account health checked",
		logging.String(logging.FieldAccountID, account.ID),
		logging.String("status", string(report.Status)),
		logging.String("summary", report.Summary),
	)
	return report, nil
}

func (m *Monitor) expiryCheck(account *Account) *CheckResult {
	if account.CredentialExpiresAt == nil {
		return nil
	}
	remaining := account.CredentialExpiresAt.Sub(m.now())
	switch {
	case remaining <= 0:
		return &CheckResult{
			Name:    checkExpiry,
			Status:  HealthExpired,
			Message: "session credential has expired",
		}
	case remaining <= m.warningWindow:
		days := int(remaining.Hours() / 24)
		return &CheckResult{
			Name:    checkExpiry,
			Status:  HealthWarning,
			Message: fmt.Sprintf("session credential expires in %d days", days),
		}
	default:
		return &CheckResult{Name: checkExpiry, Status: HealthHealthy}
	}
}

func (m *Monitor) loginProbe(ctx context.Context, cred Credential) CheckResult {
	resp, err := m.probe(ctx, "/api/account/profile", cred)
	if err != nil {
		// Network trouble is not evidence of a bad credential.
		return CheckResult{
			Name:    checkLogin,
			Status:  HealthUnknown,
			Message: fmt.Sprintf("login probe unreachable: %v", err),
		}
	}
	if resp.Code != codeOK {
		return CheckResult{
			Name:    checkLogin,
			Status:  HealthCritical,
			Message: fmt.Sprintf("login rejected: %s", resp.Message),
		}
	}
	return CheckResult{Name: checkLogin, Status: HealthHealthy}
}

func (m *Monitor) entitlementProbe(ctx context.Context, cred Credential) CheckResult {
	resp, err := m.probe(ctx, "/api/upload/pre-check", cred)
	if err != nil {
		return CheckResult{
			Name:    checkEntitlement,
			Status:  HealthUnknown,
			Message: fmt.Sprintf("entitlement probe unreachable: %v", err),
		}
	}
	switch resp.Code {
	case codeOK:
		return CheckResult{Name: checkEntitlement, Status: HealthHealthy}
	case codePermissionDenied:
		return CheckResult{
			Name:    checkEntitlement,
			Status:  HealthCritical,
			Message: fmt.Sprintf("upload permission denied: %s", resp.Message),
		}
	case codeRateLimited:
		return CheckResult{
			Name:    checkEntitlement,
			Status:  HealthWarning,
			Message: "upload entitlement rate limited",
		}
	default:
		return CheckResult{
			Name:    checkEntitlement,
			Status:  HealthWarning,
			Message: fmt.Sprintf("ambiguous entitlement response (code %d)", resp.Code),
		}
	}
}

func (m *Monitor) probe(ctx context.Context, path string, cred Credential) (*probeResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build probe request: %w", err)
	}
	req.Header.Set("Cookie", "SESSION="+cred.Session)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return &probeResponse{Code: codeRateLimited}, nil
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &probeResponse{Code: codePermissionDenied, Message: resp.Status}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("probe returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read probe body: %w", err)
	}
	var decoded probeResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode probe body: %w", err)
	}
	return &decoded, nil
}
