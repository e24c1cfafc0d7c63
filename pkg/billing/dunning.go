package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/rankforge/rankforge/pkg/observability"
	"github.com/rankforge/rankforge/pkg/plans"
)

// DefaultGracePeriod is the window granted after a failed payment before
// access is revoked
const DefaultGracePeriod = 7 * 24 * time.Hour

// DunningController manages the grace-period state machine that follows
// failed payments. It is the only writer of the grace-period columns.
//
// States per subscription: active -> past_due (in grace) -> canceled for
// nonpayment, with payment success returning the subscription to active at
// any point before expiry. The expiry transition is time-driven: it is
// persisted by the periodic sweep (ExpireOverdue) and applied lazily at
// read time via Subscription.EffectiveStatus.
type DunningController struct {
	store       Store
	gracePeriod time.Duration
	downgradeTo plans.Tier
	logger      *observability.Logger
	now         func() time.Time
}

// NewDunningController creates a dunning controller. gracePeriod and
// downgradeTo are policy constants loaded from configuration.
func NewDunningController(store Store, gracePeriod time.Duration, downgradeTo plans.Tier, logger *observability.Logger) *DunningController {
	if gracePeriod <= 0 {
		gracePeriod = DefaultGracePeriod
	}
	if !downgradeTo.Valid() {
		downgradeTo = plans.TierStarter
	}
	return &DunningController{
		store:       store,
		gracePeriod: gracePeriod,
		downgradeTo: downgradeTo,
		logger:      logger,
		now:         time.Now,
	}
}

// HandlePaymentFailed starts or extends the grace period for an account.
//
// A repeated failure for the invoice that opened the current grace period
// is a no-op, so provider payment retries cannot extend the window
// indefinitely. A failure for a different (later) invoice restarts the
// window.
func (d *DunningController) HandlePaymentFailed(ctx context.Context, accountID int64, invoiceID string) error {
	sub, err := d.store.GetByAccount(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to load subscription: %w", err)
	}

	now := d.now()

	if sub.Status == StatusCanceled {
		d.logger.WithFields(map[string]interface{}{
			"account_id": accountID,
			"invoice_id": invoiceID,
		}).Warn("payment failure for canceled subscription, ignoring")
		return nil
	}

	// Grace elapsed but the sweep has not persisted the cancellation yet.
	// Persist it now rather than opening a fresh window.
	if sub.EffectiveStatus(now) == StatusCanceled {
		if err := d.store.MarkCanceled(ctx, accountID, CancelReasonNonpayment, d.downgradeTo); err != nil {
			return fmt.Errorf("failed to expire subscription: %w", err)
		}
		d.logger.WithField("account_id", accountID).Info("grace period already elapsed, subscription canceled for nonpayment")
		return nil
	}

	if sub.InGrace(now) && sub.GraceInvoiceID == invoiceID {
		d.logger.WithFields(map[string]interface{}{
			"account_id": accountID,
			"invoice_id": invoiceID,
		}).Debug("repeat payment failure for grace-opening invoice, window unchanged")
		return nil
	}

	until := now.Add(d.gracePeriod)
	if err := d.store.StartGrace(ctx, accountID, invoiceID, until); err != nil {
		return fmt.Errorf("failed to start grace period: %w", err)
	}

	d.logger.WithFields(map[string]interface{}{
		"account_id":       accountID,
		"invoice_id":       invoiceID,
		"grace_period_end": until,
	}).Info("payment failed, grace period started")
	return nil
}

// HandlePaymentSucceeded reactivates a past-due subscription after a
// successful payment, clearing the grace period.
//
// The stored Status is checked deliberately, not EffectiveStatus: a payment
// landing after the grace deadline but before the expiry sweep persisted
// the cancellation still reactivates the subscription, because the payment
// genuinely cleared. Once the sweep has written canceled_for_nonpayment,
// a late success no longer reactivates.
func (d *DunningController) HandlePaymentSucceeded(ctx context.Context, accountID int64) error {
	sub, err := d.store.GetByAccount(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to load subscription: %w", err)
	}

	if sub.Status != StatusPastDue {
		return nil
	}

	if err := d.store.ClearGrace(ctx, accountID); err != nil {
		return fmt.Errorf("failed to clear grace period: %w", err)
	}

	d.logger.WithField("account_id", accountID).Info("payment succeeded, subscription reactivated")
	return nil
}

// ExpireOverdue persists the cancellation of every subscription whose grace
// period has elapsed. Intended to run on a schedule; read paths do not
// depend on it having run.
func (d *DunningController) ExpireOverdue(ctx context.Context) (int64, error) {
	count, err := d.store.ExpireOverdue(ctx, d.now(), d.downgradeTo)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		d.logger.WithField("count", count).Info("expired overdue subscriptions")
	}
	return count, nil
}

// DowngradeTier returns the tier applied to canceled subscriptions
func (d *DunningController) DowngradeTier() plans.Tier {
	return d.downgradeTo
}
