package billing

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/rankforge/rankforge/pkg/plans"
)

// Status represents the status of a subscription
type Status string

const (
	StatusActive   Status = "active"
	StatusTrialing Status = "trialing"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
)

// CancelReason distinguishes why a subscription ended. Voluntary deletion
// and nonpayment converge to the same quota treatment but are reported
// separately.
type CancelReason string

const (
	CancelReasonNone       CancelReason = ""
	CancelReasonVoluntary  CancelReason = "voluntary"
	CancelReasonNonpayment CancelReason = "nonpayment"
)

// Subscription represents the authoritative local subscription record,
// one per account.
//
// Invariant: a non-nil GracePeriodEnd implies Status == StatusPastDue, and
// StatusCanceled implies GracePeriodEnd is nil. StartGrace, ClearGrace and
// MarkCanceled maintain this as single-row writes.
type Subscription struct {
	ID                   int64        `json:"id"`
	AccountID            int64        `json:"account_id"`
	Tier                 plans.Tier   `json:"tier"`
	Status               Status       `json:"status"`
	StripeCustomerID     string       `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID string       `json:"stripe_subscription_id,omitempty"`
	CancelAtPeriodEnd    bool         `json:"cancel_at_period_end"`
	CancelReason         CancelReason `json:"cancel_reason,omitempty"`
	GracePeriodEnd       *time.Time   `json:"grace_period_end,omitempty"`
	GraceInvoiceID       string       `json:"-"`
	CreatedAt            time.Time    `json:"created_at"`
	UpdatedAt            time.Time    `json:"updated_at"`
}

// EffectiveStatus returns the subscription status as of now, applying the
// grace-period expiry that the periodic sweep may not have persisted yet.
// Readers must use this rather than Status so an elapsed grace period is
// observable before any sweep runs.
func (s *Subscription) EffectiveStatus(now time.Time) Status {
	if s.Status == StatusPastDue && s.GracePeriodEnd != nil && !now.Before(*s.GracePeriodEnd) {
		return StatusCanceled
	}
	return s.Status
}

// InGrace reports whether the subscription is inside an unexpired grace
// period
func (s *Subscription) InGrace(now time.Time) bool {
	return s.Status == StatusPastDue && s.GracePeriodEnd != nil && now.Before(*s.GracePeriodEnd)
}

// EventType identifies a provider lifecycle event
type EventType string

const (
	EventSubscriptionCreated EventType = "customer.subscription.created"
	EventSubscriptionUpdated EventType = "customer.subscription.updated"
	EventSubscriptionDeleted EventType = "customer.subscription.deleted"
	EventTrialWillEnd        EventType = "customer.subscription.trial_will_end"
	EventPaymentSucceeded    EventType = "invoice.payment_succeeded"
	EventPaymentFailed       EventType = "invoice.payment_failed"
)

// Event is the provider webhook envelope. Data.Object is the provider's
// snapshot of the subscription or invoice at emission time.
type Event struct {
	ID      string    `json:"id"`
	Type    EventType `json:"type"`
	Created int64     `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// ProviderSubscription is the provider's view of a subscription, as embedded
// in webhook payloads and returned by the retrieval API
type ProviderSubscription struct {
	ID                string            `json:"id"`
	Customer          string            `json:"customer"`
	Status            string            `json:"status"`
	CancelAtPeriodEnd bool              `json:"cancel_at_period_end"`
	Metadata          map[string]string `json:"metadata"`
	Items             struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

// PriceID returns the price identifier of the first subscription item
func (ps *ProviderSubscription) PriceID() string {
	if len(ps.Items.Data) == 0 {
		return ""
	}
	return ps.Items.Data[0].Price.ID
}

// ProviderInvoice is the provider's view of an invoice, as embedded in
// invoice.* webhook payloads
type ProviderInvoice struct {
	ID           string            `json:"id"`
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

// mapProviderStatus maps a provider status string onto the local status
// enumeration. Provider statuses with no local equivalent (incomplete,
// paused) map to active; the dunning controller, not the provider string,
// decides when access is revoked.
func mapProviderStatus(s string) Status {
	switch s {
	case "trialing":
		return StatusTrialing
	case "past_due":
		return StatusPastDue
	case "canceled", "unpaid", "incomplete_expired":
		return StatusCanceled
	default:
		return StatusActive
	}
}

// AccountLookup is the tagged result of extracting an account reference
// from a provider metadata bag
type AccountLookup int

const (
	AccountFound AccountLookup = iota
	AccountAbsent
	AccountMalformed
)

// ExtractAccountID pulls the internal account id out of a provider metadata
// bag. The tagged result lets callers separate "provider never carried the
// id" from "the id is present but corrupt", which are different operational
// problems.
func ExtractAccountID(metadata map[string]string) (int64, AccountLookup) {
	raw, ok := metadata["account_id"]
	if !ok || raw == "" {
		return 0, AccountAbsent
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, AccountMalformed
	}
	return id, AccountFound
}

// Store defines the subscription state store operations used by the
// Reconciler, the DunningController and the quota gate
type Store interface {
	GetByAccount(ctx context.Context, accountID int64) (*Subscription, error)
	GetByCustomerID(ctx context.Context, customerID string) (*Subscription, error)
	Upsert(ctx context.Context, sub *Subscription) error
	StartGrace(ctx context.Context, accountID int64, invoiceID string, until time.Time) error
	ClearGrace(ctx context.Context, accountID int64) error
	MarkCanceled(ctx context.Context, accountID int64, reason CancelReason, downgradeTo plans.Tier) error
	MarkEventProcessed(ctx context.Context, eventID string, eventType EventType) (bool, error)
	UnmarkEvent(ctx context.Context, eventID string) error
	ExpireOverdue(ctx context.Context, now time.Time, downgradeTo plans.Tier) (int64, error)
}

// Provider defines the provider retrieval API consumed for canonical
// re-reads
type Provider interface {
	GetSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error)
}
