package usage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rankforge/rankforge/pkg/plans"
)

// Record represents one resource-consuming action
type Record struct {
	ID           int64              `json:"id"`
	AccountID    int64              `json:"account_id"`
	Kind         plans.ResourceKind `json:"resource_kind"`
	OccurredAt   time.Time          `json:"occurred_at"`
	PeriodBucket time.Time          `json:"period_bucket"`
}

// Ledger defines the usage ledger operations consumed by the quota gate and
// the quota query API
type Ledger interface {
	RecordUsage(ctx context.Context, accountID int64, kind plans.ResourceKind, at time.Time) error
	CountUsage(ctx context.Context, accountID int64, kind plans.ResourceKind, periodStart, periodEnd time.Time) (int64, error)
}

// CurrentPeriod returns the half-open billing period [start, end) containing
// now. Periods are calendar months anchored to UTC.
func CurrentPeriod(now time.Time) (start, end time.Time) {
	now = now.UTC()
	start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 1, 0)
	return start, end
}

// PeriodBucket returns the period bucket (first day of the UTC month) for a
// timestamp
func PeriodBucket(at time.Time) time.Time {
	start, _ := CurrentPeriod(at)
	return start
}

// PostgresLedger implements Ledger using PostgreSQL
type PostgresLedger struct {
	db *sql.DB
}

// NewPostgresLedger creates a new PostgresLedger
func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// RecordUsage appends one usage record for the account
func (l *PostgresLedger) RecordUsage(ctx context.Context, accountID int64, kind plans.ResourceKind, at time.Time) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown resource kind %q", kind)
	}

	query := `
		INSERT INTO usage_records (account_id, resource_kind, occurred_at, period_bucket)
		VALUES ($1, $2, $3, $4)
	`
	_, err := l.db.ExecContext(ctx, query, accountID, kind, at.UTC(), PeriodBucket(at))
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

// CountUsage counts usage records for the account and resource kind within
// the half-open interval [periodStart, periodEnd)
func (l *PostgresLedger) CountUsage(ctx context.Context, accountID int64, kind plans.ResourceKind, periodStart, periodEnd time.Time) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM usage_records
		WHERE account_id = $1 AND resource_kind = $2
		  AND occurred_at >= $3 AND occurred_at < $4
	`
	var count int64
	err := l.db.QueryRowContext(ctx, query, accountID, kind, periodStart.UTC(), periodEnd.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count usage: %w", err)
	}
	return count, nil
}
