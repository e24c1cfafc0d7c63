package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rankforge/rankforge/pkg/plans"
)

// ErrSubscriptionNotFound indicates no subscription row exists for the
// lookup key
var ErrSubscriptionNotFound = errors.New("subscription not found")

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const subscriptionColumns = `
	id, account_id, tier, status, stripe_customer_id, stripe_subscription_id,
	cancel_at_period_end, cancel_reason, grace_period_end, grace_invoice_id,
	created_at, updated_at`

func (s *PostgresStore) scanSubscription(row *sql.Row) (*Subscription, error) {
	sub := &Subscription{}
	var customerID, subscriptionID, cancelReason, graceInvoiceID sql.NullString
	var graceEnd sql.NullTime

	err := row.Scan(
		&sub.ID, &sub.AccountID, &sub.Tier, &sub.Status, &customerID, &subscriptionID,
		&sub.CancelAtPeriodEnd, &cancelReason, &graceEnd, &graceInvoiceID,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan subscription: %w", err)
	}

	sub.StripeCustomerID = customerID.String
	sub.StripeSubscriptionID = subscriptionID.String
	sub.CancelReason = CancelReason(cancelReason.String)
	sub.GraceInvoiceID = graceInvoiceID.String
	if graceEnd.Valid {
		t := graceEnd.Time
		sub.GracePeriodEnd = &t
	}

	return sub, nil
}

// GetByAccount retrieves the subscription for an account
func (s *PostgresStore) GetByAccount(ctx context.Context, accountID int64) (*Subscription, error) {
	query := `SELECT` + subscriptionColumns + `
		FROM subscriptions
		WHERE account_id = $1`
	return s.scanSubscription(s.db.QueryRowContext(ctx, query, accountID))
}

// GetByCustomerID retrieves the subscription linked to a provider customer
// identifier
func (s *PostgresStore) GetByCustomerID(ctx context.Context, customerID string) (*Subscription, error) {
	query := `SELECT` + subscriptionColumns + `
		FROM subscriptions
		WHERE stripe_customer_id = $1`
	return s.scanSubscription(s.db.QueryRowContext(ctx, query, customerID))
}

// Upsert creates or updates the subscription row for an account as a single
// atomic write.
//
// Grace-period columns are owned by the dunning controller: a sync that
// leaves the subscription past_due preserves the current grace window, while
// any other synced status clears it, keeping grace_period_end and status
// mutually consistent.
func (s *PostgresStore) Upsert(ctx context.Context, sub *Subscription) error {
	query := `
		INSERT INTO subscriptions
			(account_id, tier, status, stripe_customer_id, stripe_subscription_id, cancel_at_period_end)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (account_id) DO UPDATE
		SET tier = EXCLUDED.tier,
		    status = EXCLUDED.status,
		    stripe_customer_id = EXCLUDED.stripe_customer_id,
		    stripe_subscription_id = EXCLUDED.stripe_subscription_id,
		    cancel_at_period_end = EXCLUDED.cancel_at_period_end,
		    grace_period_end = CASE WHEN EXCLUDED.status = 'past_due'
		        THEN subscriptions.grace_period_end ELSE NULL END,
		    grace_invoice_id = CASE WHEN EXCLUDED.status = 'past_due'
		        THEN subscriptions.grace_invoice_id ELSE NULL END,
		    updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		sub.AccountID, sub.Tier, sub.Status, sub.StripeCustomerID,
		sub.StripeSubscriptionID, sub.CancelAtPeriodEnd).
		Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return nil
}

// StartGrace puts the subscription into its grace period as a single atomic
// row write: status past_due, grace window end, and the invoice that opened
// the window
func (s *PostgresStore) StartGrace(ctx context.Context, accountID int64, invoiceID string, until time.Time) error {
	query := `
		UPDATE subscriptions
		SET status = $1, grace_period_end = $2, grace_invoice_id = $3, updated_at = NOW()
		WHERE account_id = $4
	`
	result, err := s.db.ExecContext(ctx, query, StatusPastDue, until.UTC(), invoiceID, accountID)
	if err != nil {
		return fmt.Errorf("failed to start grace period: %w", err)
	}
	return requireRow(result)
}

// ClearGrace ends the grace period and restores active status
func (s *PostgresStore) ClearGrace(ctx context.Context, accountID int64) error {
	query := `
		UPDATE subscriptions
		SET status = $1, grace_period_end = NULL, grace_invoice_id = NULL, updated_at = NOW()
		WHERE account_id = $2
	`
	result, err := s.db.ExecContext(ctx, query, StatusActive, accountID)
	if err != nil {
		return fmt.Errorf("failed to clear grace period: %w", err)
	}
	return requireRow(result)
}

// MarkCanceled transitions the subscription to canceled, clears any grace
// period, and downgrades the tier so quota treatment changes immediately.
// The row is retained for reporting.
func (s *PostgresStore) MarkCanceled(ctx context.Context, accountID int64, reason CancelReason, downgradeTo plans.Tier) error {
	query := `
		UPDATE subscriptions
		SET status = $1, cancel_reason = $2, tier = $3,
		    grace_period_end = NULL, grace_invoice_id = NULL,
		    cancel_at_period_end = FALSE, updated_at = NOW()
		WHERE account_id = $4
	`
	result, err := s.db.ExecContext(ctx, query, StatusCanceled, reason, downgradeTo, accountID)
	if err != nil {
		return fmt.Errorf("failed to cancel subscription: %w", err)
	}
	return requireRow(result)
}

// MarkEventProcessed records an event id in the dedup log. It returns true
// when this is the first time the event was seen.
func (s *PostgresStore) MarkEventProcessed(ctx context.Context, eventID string, eventType EventType) (bool, error) {
	query := `
		INSERT INTO billing_events (event_id, event_type)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, query, eventID, eventType)
	if err != nil {
		return false, fmt.Errorf("failed to record event: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// UnmarkEvent removes an event id from the dedup log so a redelivery of
// the same event is processed again. Used when a handler fails after the
// dedup entry was recorded.
func (s *PostgresStore) UnmarkEvent(ctx context.Context, eventID string) error {
	query := `DELETE FROM billing_events WHERE event_id = $1`
	if _, err := s.db.ExecContext(ctx, query, eventID); err != nil {
		return fmt.Errorf("failed to unmark event: %w", err)
	}
	return nil
}

// ExpireOverdue cancels every subscription whose grace period elapsed
// without a successful payment, downgrading each to downgradeTo. Returns
// the number of subscriptions transitioned.
func (s *PostgresStore) ExpireOverdue(ctx context.Context, now time.Time, downgradeTo plans.Tier) (int64, error) {
	query := `
		UPDATE subscriptions
		SET status = $1, cancel_reason = $2, tier = $3,
		    grace_period_end = NULL, grace_invoice_id = NULL, updated_at = NOW()
		WHERE status = $4 AND grace_period_end IS NOT NULL AND grace_period_end <= $5
	`
	result, err := s.db.ExecContext(ctx, query,
		StatusCanceled, CancelReasonNonpayment, downgradeTo, StatusPastDue, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to expire overdue subscriptions: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

func requireRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}
