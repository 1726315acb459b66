package accounts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"vidcast/internal/config"
	"vidcast/internal/queue"
)

const accountColumns = "id, label, credential, health_status, health_details, credential_expires_at, last_used_at, last_health_check_at, level, vip, created_at, updated_at"

const accountSchema = `
CREATE TABLE IF NOT EXISTS accounts (
    id TEXT PRIMARY KEY,
    label TEXT NOT NULL,
    credential BLOB NOT NULL,
    health_status TEXT NOT NULL DEFAULT 'unknown',
    health_details TEXT,
    credential_expires_at TEXT,
    last_used_at TEXT,
    last_health_check_at TEXT,
    level INTEGER NOT NULL DEFAULT 0,
    vip INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`

// Store manages account persistence. It shares the daemon's SQLite database.
type Store struct {
	db *sql.DB
}

// OpenStore connects to the shared database and ensures the accounts table.
func OpenStore(cfg *config.Config) (*Store, error) {
	db, _, err := queue.OpenDatabase(cfg)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if _, err := db.ExecContext(context.Background(), accountSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply accounts schema: %w", err)
	}
	return store, nil
}

// NewStoreWithDB wraps an existing database handle (used when the task store
// already owns the connection).
func NewStoreWithDB(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if _, err := db.ExecContext(context.Background(), accountSchema); err != nil {
		return nil, fmt.Errorf("apply accounts schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Add inserts a new account with a sealed credential blob.
func (s *Store) Add(ctx context.Context, label string, sealed []byte, level int, vip bool, expiresAt *time.Time) (*Account, error) {
	if strings.TrimSpace(label) == "" {
		return nil, errors.New("label is required")
	}
	if len(sealed) == 0 {
		return nil, errors.New("credential blob is required")
	}

	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO accounts (
            id, label, credential, health_status, credential_expires_at,
            level, vip, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		label,
		sealed,
		HealthUnknown,
		nullableTimeValue(expiresAt),
		level,
		boolToInt(vip),
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert account: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches an account by identifier.
func (s *Store) GetByID(ctx context.Context, id string) (*Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

// List returns every account ordered by label.
func (s *Store) List(ctx context.Context) ([]*Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY label, id`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return accounts, nil
}

// TouchUsed records that the account was just dispatched with.
func (s *Store) TouchUsed(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.db.ExecContext(
		ctx,
		`UPDATE accounts SET last_used_at = ?, updated_at = ? WHERE id = ?`,
		now, now, id,
	); err != nil {
		return fmt.Errorf("touch account: %w", err)
	}
	return nil
}

// SaveHealth writes a health report back to the account record.
func (s *Store) SaveHealth(ctx context.Context, report *HealthReport) error {
	if report == nil {
		return errors.New("report is nil")
	}
	details, err := json.Marshal(report.Checks)
	if err != nil {
		return fmt.Errorf("encode health details: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.db.ExecContext(
		ctx,
		`UPDATE accounts
         SET health_status = ?, health_details = ?, last_health_check_at = ?, updated_at = ?
         WHERE id = ?`,
		report.Status,
		string(details),
		report.CheckedAt.UTC().Format(time.RFC3339Nano),
		now,
		report.AccountID,
	); err != nil {
		return fmt.Errorf("save health: %w", err)
	}
	return nil
}

// Remove deletes an account by identifier.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete account: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func scanAccount(scanner interface{ Scan(dest ...any) error }) (*Account, error) {
	var (
		id            string
		label         string
		credential    []byte
		healthStatus  string
		healthDetails sql.NullString
		expiresRaw    sql.NullString
		lastUsedRaw   sql.NullString
		lastCheckRaw  sql.NullString
		level         sql.NullInt64
		vip           sql.NullInt64
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&label,
		&credential,
		&healthStatus,
		&healthDetails,
		&expiresRaw,
		&lastUsedRaw,
		&lastCheckRaw,
		&level,
		&vip,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	status, _ := ParseHealthStatus(healthStatus)
	account := &Account{
		ID:            id,
		Label:         label,
		Credential:    credential,
		HealthStatus:  status,
		HealthDetails: healthDetails.String,
		Level:         int(level.Int64),
		VIP:           vip.Int64 != 0,
	}
	if t, err := parseTime(expiresRaw); err == nil {
		account.CredentialExpiresAt = t
	}
	if t, err := parseTime(lastUsedRaw); err == nil {
		account.LastUsedAt = t
	}
	if t, err := parseTime(lastCheckRaw); err == nil {
		account.LastHealthCheckAt = t
	}
	if createdRaw.Valid {
		if t, err := time.Parse(time.RFC3339Nano, createdRaw.String); err == nil {
			account.CreatedAt = t
		}
	}
	if updatedRaw.Valid {
		if t, err := time.Parse(time.RFC3339Nano, updatedRaw.String); err == nil {
			account.UpdatedAt = t
		}
	}
	return account, nil
}

func parseTime(raw sql.NullString) (*time.Time, error) {
	if !raw.Valid || raw.String == "" {
		return nil, errors.New("empty")
	}
	t, err := time.Parse(time.RFC3339Nano, raw.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullableTimeValue(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
