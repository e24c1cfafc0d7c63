package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rankforge/rankforge/pkg/observability"
	"github.com/rankforge/rankforge/pkg/plans"
)

// ErrMalformedEvent indicates a payload that passed signature verification
// but cannot be parsed as an event envelope
var ErrMalformedEvent = errors.New("malformed event payload")

// Dispatch outcomes recorded in metrics
const (
	outcomeApplied    = "applied"
	outcomeDuplicate  = "duplicate"
	outcomeIgnored    = "ignored"
	outcomeUnresolved = "unresolved"
	outcomeError      = "error"
)

// ReconcilerConfig holds the policy knobs for webhook processing, loaded
// once at startup
type ReconcilerConfig struct {
	WebhookSecret      string
	SignatureTolerance time.Duration
	ProviderTimeout    time.Duration
}

// Reconciler consumes provider lifecycle events and applies idempotent
// state transitions to the subscription store.
//
// HandleEvent returns an error only for authentication failures, malformed
// envelopes, and internal faults. Business anomalies (unresolvable account,
// unknown price) are logged, counted, and acknowledged so the provider does
// not retry-storm the endpoint; the metrics make the reconciliation gap
// operator-visible.
type Reconciler struct {
	store    Store
	provider Provider
	dunning  *DunningController
	catalog  *plans.Catalog
	cfg      ReconcilerConfig
	logger   *observability.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewReconciler creates a reconciler. provider may be nil, in which case
// canonical re-fetches are skipped and event payloads are trusted.
func NewReconciler(store Store, provider Provider, dunning *DunningController, catalog *plans.Catalog, cfg ReconcilerConfig, logger *observability.Logger, metrics *observability.Metrics) *Reconciler {
	if cfg.SignatureTolerance <= 0 {
		cfg.SignatureTolerance = DefaultSignatureTolerance
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = DefaultProviderTimeout
	}
	return &Reconciler{
		store:    store,
		provider: provider,
		dunning:  dunning,
		catalog:  catalog,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// HandleEvent verifies, deduplicates and dispatches one webhook delivery.
// The raw payload must be the exact bytes the provider signed.
func (r *Reconciler) HandleEvent(ctx context.Context, payload []byte, signature string) error {
	if err := VerifySignature(payload, signature, r.cfg.WebhookSecret, r.cfg.SignatureTolerance, r.now()); err != nil {
		return err
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if event.ID == "" || event.Type == "" {
		return fmt.Errorf("%w: missing event id or type", ErrMalformedEvent)
	}

	var handler func(context.Context, *Event) (string, error)
	switch event.Type {
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		handler = r.handleSubscriptionSync
	case EventSubscriptionDeleted:
		handler = r.handleSubscriptionDeleted
	case EventPaymentSucceeded:
		handler = r.handlePaymentSucceeded
	case EventPaymentFailed:
		handler = r.handlePaymentFailed
	case EventTrialWillEnd:
		handler = r.handleTrialWillEnd
	default:
		// Forward-compatible: acknowledge event types this version does
		// not know about.
		r.logger.WithField("event_type", string(event.Type)).Debug("ignoring unknown event type")
		r.metrics.BillingEventsTotal.WithLabelValues(string(event.Type), outcomeIgnored).Inc()
		return nil
	}

	first, err := r.store.MarkEventProcessed(ctx, event.ID, event.Type)
	if err != nil {
		r.metrics.BillingEventsTotal.WithLabelValues(string(event.Type), outcomeError).Inc()
		return fmt.Errorf("failed to record event for dedup: %w", err)
	}
	if !first {
		r.logger.WithFields(map[string]interface{}{
			"event_id":   event.ID,
			"event_type": string(event.Type),
		}).Debug("duplicate event delivery, already applied")
		r.metrics.BillingEventsTotal.WithLabelValues(string(event.Type), outcomeDuplicate).Inc()
		return nil
	}

	outcome, err := handler(ctx, &event)
	if err != nil {
		// Release the dedup entry so the provider's retry is processed
		// again instead of being acknowledged as a duplicate. Handlers are
		// idempotent, so a partial first attempt is safe to repeat.
		if unmarkErr := r.store.UnmarkEvent(ctx, event.ID); unmarkErr != nil {
			r.logger.WithError(unmarkErr).WithField("event_id", event.ID).
				Error("failed to release dedup entry, redelivery will be dropped")
		}
		r.metrics.BillingEventsTotal.WithLabelValues(string(event.Type), outcomeError).Inc()
		return err
	}
	r.metrics.BillingEventsTotal.WithLabelValues(string(event.Type), outcome).Inc()
	return nil
}

// handleSubscriptionSync applies subscription.created and
// subscription.updated by upserting the local record from the event's
// subscription snapshot. cancel_at_period_end is recorded but does not
// change status; cancellation is applied only when the deletion event
// arrives.
func (r *Reconciler) handleSubscriptionSync(ctx context.Context, event *Event) (string, error) {
	var ps ProviderSubscription
	if err := json.Unmarshal(event.Data.Object, &ps); err != nil {
		r.eventAnomaly(event, "unparseable subscription object", err)
		return outcomeUnresolved, nil
	}

	tier, ok := r.catalog.TierForPrice(ps.PriceID())
	if !ok {
		r.eventAnomaly(event, fmt.Sprintf("no tier mapped for price %q", ps.PriceID()), nil)
		return outcomeUnresolved, nil
	}

	accountID, existing, err := r.resolveAccount(ctx, ps.Customer, ps.Metadata, event)
	if err != nil {
		return outcomeError, err
	}
	if accountID == 0 {
		return outcomeUnresolved, nil
	}

	return r.applySnapshot(ctx, accountID, existing, &ps, tier)
}

// handleSubscriptionDeleted cancels the subscription immediately: no grace
// period, tier downgraded so quotas change at once
func (r *Reconciler) handleSubscriptionDeleted(ctx context.Context, event *Event) (string, error) {
	var ps ProviderSubscription
	if err := json.Unmarshal(event.Data.Object, &ps); err != nil {
		r.eventAnomaly(event, "unparseable subscription object", err)
		return outcomeUnresolved, nil
	}

	accountID, _, err := r.resolveAccount(ctx, ps.Customer, ps.Metadata, event)
	if err != nil {
		return outcomeError, err
	}
	if accountID == 0 {
		return outcomeUnresolved, nil
	}

	if err := r.store.MarkCanceled(ctx, accountID, CancelReasonVoluntary, r.dunning.DowngradeTier()); err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			r.eventAnomaly(event, "deletion for unknown subscription", err)
			return outcomeUnresolved, nil
		}
		return outcomeError, err
	}

	r.logger.WithField("account_id", accountID).Info("subscription canceled by provider deletion")
	return outcomeApplied, nil
}

// handlePaymentSucceeded re-syncs from the provider's canonical subscription
// object rather than trusting the invoice payload. A timed-out or failed
// re-fetch degrades to trusting the event: the webhook must answer within
// the provider's SLA.
func (r *Reconciler) handlePaymentSucceeded(ctx context.Context, event *Event) (string, error) {
	var invoice ProviderInvoice
	if err := json.Unmarshal(event.Data.Object, &invoice); err != nil {
		r.eventAnomaly(event, "unparseable invoice object", err)
		return outcomeUnresolved, nil
	}

	accountID, existing, err := r.resolveAccount(ctx, invoice.Customer, invoice.Metadata, event)
	if err != nil {
		return outcomeError, err
	}
	if accountID == 0 {
		return outcomeUnresolved, nil
	}

	if r.provider != nil && invoice.Subscription != "" {
		fetchCtx, cancel := context.WithTimeout(ctx, r.cfg.ProviderTimeout)
		ps, fetchErr := r.provider.GetSubscription(fetchCtx, invoice.Subscription)
		cancel()
		if fetchErr == nil {
			tier := r.tierOrCurrent(ps.PriceID(), existing)
			return r.applySnapshot(ctx, accountID, existing, ps, tier)
		}
		r.logger.WithError(fetchErr).WithField("account_id", accountID).
			Warn("provider re-fetch failed, trusting payment event")
	}

	if err := r.dunning.HandlePaymentSucceeded(ctx, accountID); err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			r.eventAnomaly(event, "payment success for unknown subscription", err)
			return outcomeUnresolved, nil
		}
		return outcomeError, err
	}
	return outcomeApplied, nil
}

// handlePaymentFailed delegates grace-period management to the dunning
// controller. An unresolvable account here is a data-integrity problem, not
// a retryable condition: it is logged and counted but still acknowledged.
func (r *Reconciler) handlePaymentFailed(ctx context.Context, event *Event) (string, error) {
	var invoice ProviderInvoice
	if err := json.Unmarshal(event.Data.Object, &invoice); err != nil {
		r.eventAnomaly(event, "unparseable invoice object", err)
		return outcomeUnresolved, nil
	}

	accountID, _, err := r.resolveAccount(ctx, invoice.Customer, invoice.Metadata, event)
	if err != nil {
		return outcomeError, err
	}
	if accountID == 0 {
		return outcomeUnresolved, nil
	}

	if err := r.dunning.HandlePaymentFailed(ctx, accountID, invoice.ID); err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			r.eventAnomaly(event, "payment failure for unknown subscription", err)
			return outcomeUnresolved, nil
		}
		return outcomeError, err
	}
	return outcomeApplied, nil
}

// handleTrialWillEnd is informational only. Reserved extension point for
// notification fan-out.
func (r *Reconciler) handleTrialWillEnd(ctx context.Context, event *Event) (string, error) {
	var ps ProviderSubscription
	if err := json.Unmarshal(event.Data.Object, &ps); err == nil {
		r.logger.WithField("customer", ps.Customer).Info("trial ending soon")
	}
	return outcomeApplied, nil
}

// applySnapshot writes a provider subscription snapshot to the local record
// as one row write. A snapshot that resolves to canceled goes through
// MarkCanceled so the tier downgrade applies with it.
func (r *Reconciler) applySnapshot(ctx context.Context, accountID int64, existing *Subscription, ps *ProviderSubscription, tier plans.Tier) (string, error) {
	status := mapProviderStatus(ps.Status)

	if status == StatusCanceled {
		if err := r.store.MarkCanceled(ctx, accountID, CancelReasonVoluntary, r.dunning.DowngradeTier()); err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
			return outcomeError, err
		}
		return outcomeApplied, nil
	}

	sub := &Subscription{
		AccountID:            accountID,
		Tier:                 tier,
		Status:               status,
		StripeCustomerID:     ps.Customer,
		StripeSubscriptionID: ps.ID,
		CancelAtPeriodEnd:    ps.CancelAtPeriodEnd,
	}
	if err := r.store.Upsert(ctx, sub); err != nil {
		return outcomeError, err
	}

	r.logger.WithFields(map[string]interface{}{
		"account_id": accountID,
		"tier":       string(tier),
		"status":     string(status),
	}).Info("subscription synced from provider")
	return outcomeApplied, nil
}

// resolveAccount maps a provider customer id (or, failing that, the
// payload's metadata bag) to a local account. A zero account id with a nil
// error means the account could not be resolved; the caller acknowledges
// the event after eventAnomaly has recorded the gap.
func (r *Reconciler) resolveAccount(ctx context.Context, customerID string, metadata map[string]string, event *Event) (int64, *Subscription, error) {
	if customerID != "" {
		sub, err := r.store.GetByCustomerID(ctx, customerID)
		if err == nil {
			return sub.AccountID, sub, nil
		}
		if !errors.Is(err, ErrSubscriptionNotFound) {
			return 0, nil, err
		}
	}

	accountID, result := ExtractAccountID(metadata)
	switch result {
	case AccountFound:
		return accountID, nil, nil
	case AccountMalformed:
		r.eventAnomaly(event, "malformed account_id in provider metadata", nil)
	default:
		r.eventAnomaly(event, fmt.Sprintf("no local account for provider customer %q", customerID), nil)
	}
	return 0, nil, nil
}

// tierOrCurrent maps a price id to a tier, falling back to the account's
// current tier when the price is unmapped
func (r *Reconciler) tierOrCurrent(priceID string, existing *Subscription) plans.Tier {
	if tier, ok := r.catalog.TierForPrice(priceID); ok {
		return tier
	}
	if existing != nil {
		return existing.Tier
	}
	return r.dunning.DowngradeTier()
}

// eventAnomaly records a business anomaly that is acknowledged to the
// provider but must not stay silent: operators alert on the unresolved
// counter.
func (r *Reconciler) eventAnomaly(event *Event, reason string, err error) {
	logger := r.logger.WithFields(map[string]interface{}{
		"event_id":   event.ID,
		"event_type": string(event.Type),
		"reason":     reason,
	})
	if err != nil {
		logger = logger.WithError(err)
	}
	logger.Error("billing event could not be reconciled")
	r.metrics.BillingUnresolvedTotal.WithLabelValues(string(event.Type)).Inc()
}
