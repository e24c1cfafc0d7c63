// Package audits persists the billable work products of an account: site
// audit runs and keyword searches. Creation of either is quota-gated at
// the API layer; this package only records them.
package audits

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunStatus tracks an audit run through its lifecycle
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// AuditRun is a single site audit request
type AuditRun struct {
	ID        string    `json:"id"`
	AccountID int64     `json:"account_id"`
	TargetURL string    `json:"target_url"`
	MaxPages  int       `json:"max_pages"`
	Status    RunStatus `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// KeywordSearch is a single keyword research query
type KeywordSearch struct {
	ID        string    `json:"id"`
	AccountID int64     `json:"account_id"`
	Query     string    `json:"query"`
	Country   string    `json:"country"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrRunNotFound indicates the audit run does not exist
var ErrRunNotFound = errors.New("audit run not found")

// Store persists audit runs and keyword searches
type Store interface {
	CreateAuditRun(ctx context.Context, run *AuditRun) error
	GetAuditRun(ctx context.Context, accountID int64, id string) (*AuditRun, error)
	ListAuditRuns(ctx context.Context, accountID int64, limit int) ([]*AuditRun, error)
	CreateKeywordSearch(ctx context.Context, search *KeywordSearch) error
}

// PostgresStore is the PostgreSQL-backed Store
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgresStore over an existing connection pool
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// CreateAuditRun inserts a new audit run. A missing ID is generated and a
// missing status defaults to queued.
func (s *PostgresStore) CreateAuditRun(ctx context.Context, run *AuditRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Status == "" {
		run.Status = RunStatusQueued
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_runs (id, account_id, target_url, max_pages, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, run.AccountID, run.TargetURL, run.MaxPages, run.Status, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create audit run: %w", err)
	}
	return nil
}

// GetAuditRun fetches a single audit run scoped to the owning account
func (s *PostgresStore) GetAuditRun(ctx context.Context, accountID int64, id string) (*AuditRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, account_id, target_url, max_pages, status, created_at
		FROM audit_runs
		WHERE account_id = $1 AND id = $2`,
		accountID, id)

	var run AuditRun
	err := row.Scan(&run.ID, &run.AccountID, &run.TargetURL, &run.MaxPages, &run.Status, &run.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit run: %w", err)
	}
	return &run, nil
}

// ListAuditRuns returns the account's most recent audit runs
func (s *PostgresStore) ListAuditRuns(ctx context.Context, accountID int64, limit int) ([]*AuditRun, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, target_url, max_pages, status, created_at
		FROM audit_runs
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit runs: %w", err)
	}
	defer rows.Close()

	var runs []*AuditRun
	for rows.Next() {
		var run AuditRun
		if err := rows.Scan(&run.ID, &run.AccountID, &run.TargetURL, &run.MaxPages, &run.Status, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit run: %w", err)
		}
		runs = append(runs, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit runs: %w", err)
	}
	return runs, nil
}

// CreateKeywordSearch inserts a new keyword search record
func (s *PostgresStore) CreateKeywordSearch(ctx context.Context, search *KeywordSearch) error {
	if search.ID == "" {
		search.ID = uuid.New().String()
	}
	if search.CreatedAt.IsZero() {
		search.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO keyword_searches (id, account_id, query, country, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		search.ID, search.AccountID, search.Query, search.Country, search.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create keyword search: %w", err)
	}
	return nil
}
