package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rankforge/rankforge/pkg/billing"
	"github.com/rankforge/rankforge/pkg/observability"
	"github.com/rankforge/rankforge/pkg/plans"
	"github.com/rankforge/rankforge/pkg/usage"
)

// mockSubs is a mock SubscriptionReader for testing
type mockSubs struct {
	getByAccountFunc func(ctx context.Context, accountID int64) (*billing.Subscription, error)
	calls            int
}

func (m *mockSubs) GetByAccount(ctx context.Context, accountID int64) (*billing.Subscription, error) {
	m.calls++
	if m.getByAccountFunc != nil {
		return m.getByAccountFunc(ctx, accountID)
	}
	return nil, billing.ErrSubscriptionNotFound
}

// mockLedger is a mock usage.Ledger for testing
type mockLedger struct {
	recordUsageFunc func(ctx context.Context, accountID int64, kind plans.ResourceKind, at time.Time) error
	countUsageFunc  func(ctx context.Context, accountID int64, kind plans.ResourceKind, periodStart, periodEnd time.Time) (int64, error)
}

func (m *mockLedger) RecordUsage(ctx context.Context, accountID int64, kind plans.ResourceKind, at time.Time) error {
	if m.recordUsageFunc != nil {
		return m.recordUsageFunc(ctx, accountID, kind, at)
	}
	return nil
}

func (m *mockLedger) CountUsage(ctx context.Context, accountID int64, kind plans.ResourceKind, periodStart, periodEnd time.Time) (int64, error) {
	if m.countUsageFunc != nil {
		return m.countUsageFunc(ctx, accountID, kind, periodStart, periodEnd)
	}
	return 0, nil
}

func newTestGate(subs *mockSubs, ledger *mockLedger, cfg Config) *Gate {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	return NewGate(subs, ledger, plans.DefaultCatalog(), cfg, metrics)
}

func activeSub(tier plans.Tier) *billing.Subscription {
	return &billing.Subscription{
		ID:        1,
		AccountID: 42,
		Tier:      tier,
		Status:    billing.StatusActive,
	}
}

func fixedSubs(sub *billing.Subscription) *mockSubs {
	return &mockSubs{
		getByAccountFunc: func(ctx context.Context, accountID int64) (*billing.Subscription, error) {
			return sub, nil
		},
	}
}

func fixedUsage(used int64) *mockLedger {
	return &mockLedger{
		countUsageFunc: func(ctx context.Context, accountID int64, kind plans.ResourceKind, periodStart, periodEnd time.Time) (int64, error) {
			return used, nil
		},
	}
}

func TestGate_CheckAndReserve(t *testing.T) {
	ctx := context.Background()

	t.Run("allows under limit", func(t *testing.T) {
		gate := newTestGate(fixedSubs(activeSub(plans.TierStarter)), fixedUsage(9), Config{})

		decision, err := gate.CheckAndReserve(ctx, 42, plans.ResourceAudit)
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.Equal(t, plans.TierStarter, decision.Tier)
		require.NotNil(t, decision.Report.Remaining)
		assert.Equal(t, int64(1), *decision.Report.Remaining)
	})

	t.Run("denies at limit boundary", func(t *testing.T) {
		// Starter tier allows 10 audits; the 11th is refused
		gate := newTestGate(fixedSubs(activeSub(plans.TierStarter)), fixedUsage(10), Config{})

		decision, err := gate.CheckAndReserve(ctx, 42, plans.ResourceAudit)
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Equal(t, ReasonQuotaExceeded, decision.Reason)
		require.NotNil(t, decision.Report.Remaining)
		assert.Equal(t, int64(0), *decision.Report.Remaining)
		require.NotNil(t, decision.Report.Percentage)
		assert.Equal(t, 100, *decision.Report.Percentage)
	})

	t.Run("unlimited tier never consults the ledger count for denial", func(t *testing.T) {
		ledger := &mockLedger{
			countUsageFunc: func(ctx context.Context, accountID int64, kind plans.ResourceKind, periodStart, periodEnd time.Time) (int64, error) {
				t.Fatal("CountUsage should not be called for unlimited resources")
				return 0, nil
			},
		}
		gate := newTestGate(fixedSubs(activeSub(plans.TierAgency)), ledger, Config{})

		decision, err := gate.CheckAndReserve(ctx, 42, plans.ResourceAudit)
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.Nil(t, decision.Report.Limit)
		assert.Nil(t, decision.Report.Remaining)
		assert.Nil(t, decision.Report.Percentage)
	})

	t.Run("denies when no subscription exists", func(t *testing.T) {
		gate := newTestGate(&mockSubs{}, fixedUsage(0), Config{})

		decision, err := gate.CheckAndReserve(ctx, 42, plans.ResourceAudit)
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Equal(t, ReasonNoSubscription, decision.Reason)
	})

	t.Run("denies unknown resource kind", func(t *testing.T) {
		gate := newTestGate(fixedSubs(activeSub(plans.TierStarter)), fixedUsage(0), Config{})

		decision, err := gate.CheckAndReserve(ctx, 42, plans.ResourceKind("gpu_hours"))
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Equal(t, ReasonUnknownResource, decision.Reason)
	})

	t.Run("propagates store errors", func(t *testing.T) {
		subs := &mockSubs{
			getByAccountFunc: func(ctx context.Context, accountID int64) (*billing.Subscription, error) {
				return nil, errors.New("db down")
			},
		}
		gate := newTestGate(subs, fixedUsage(0), Config{})

		_, err := gate.CheckAndReserve(ctx, 42, plans.ResourceAudit)
		assert.Error(t, err)
	})

	t.Run("elapsed grace downgrades tier before any sweep", func(t *testing.T) {
		// Professional account in past_due with an expired grace window
		// must be treated on starter limits immediately.
		graceEnd := time.Now().Add(-time.Hour)
		sub := activeSub(plans.TierProfessional)
		sub.Status = billing.StatusPastDue
		sub.GracePeriodEnd = &graceEnd

		gate := newTestGate(fixedSubs(sub), fixedUsage(15), Config{DowngradeTier: plans.TierStarter})

		decision, err := gate.CheckAndReserve(ctx, 42, plans.ResourceAudit)
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Equal(t, ReasonQuotaExceeded, decision.Reason)
		assert.Equal(t, plans.TierStarter, decision.Tier)
	})

	t.Run("unexpired grace keeps paid tier limits", func(t *testing.T) {
		graceEnd := time.Now().Add(time.Hour)
		sub := activeSub(plans.TierProfessional)
		sub.Status = billing.StatusPastDue
		sub.GracePeriodEnd = &graceEnd

		gate := newTestGate(fixedSubs(sub), fixedUsage(15), Config{DowngradeTier: plans.TierStarter})

		decision, err := gate.CheckAndReserve(ctx, 42, plans.ResourceAudit)
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.Equal(t, plans.TierProfessional, decision.Tier)
	})

	t.Run("canceled subscription falls to downgrade tier", func(t *testing.T) {
		sub := activeSub(plans.TierAgency)
		sub.Status = billing.StatusCanceled

		gate := newTestGate(fixedSubs(sub), fixedUsage(10), Config{DowngradeTier: plans.TierStarter})

		decision, err := gate.CheckAndReserve(ctx, 42, plans.ResourceAudit)
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Equal(t, plans.TierStarter, decision.Tier)
	})
}

func TestGate_SubscriptionCache(t *testing.T) {
	ctx := context.Background()

	t.Run("second check within TTL hits cache", func(t *testing.T) {
		subs := fixedSubs(activeSub(plans.TierStarter))
		gate := newTestGate(subs, fixedUsage(0), Config{CacheTTL: time.Minute})

		_, err := gate.CheckAndReserve(ctx, 42, plans.ResourceAudit)
		require.NoError(t, err)
		_, err = gate.CheckAndReserve(ctx, 42, plans.ResourceAudit)
		require.NoError(t, err)

		assert.Equal(t, 1, subs.calls)
	})

	t.Run("zero TTL disables cache", func(t *testing.T) {
		subs := fixedSubs(activeSub(plans.TierStarter))
		gate := newTestGate(subs, fixedUsage(0), Config{})

		_, err := gate.CheckAndReserve(ctx, 42, plans.ResourceAudit)
		require.NoError(t, err)
		_, err = gate.CheckAndReserve(ctx, 42, plans.ResourceAudit)
		require.NoError(t, err)

		assert.Equal(t, 2, subs.calls)
	})
}

func TestGate_QuotasFor(t *testing.T) {
	ctx := context.Background()

	t.Run("builds full summary", func(t *testing.T) {
		gate := newTestGate(fixedSubs(activeSub(plans.TierProfessional)), fixedUsage(25), Config{})

		summary, err := gate.QuotasFor(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, plans.TierProfessional, summary.Tier)
		assert.Equal(t, billing.StatusActive, summary.Status)

		report, ok := summary.Quotas[plans.ResourceAudit]
		require.True(t, ok)
		require.NotNil(t, report.Limit)
		assert.Equal(t, int64(100), *report.Limit)
		assert.Equal(t, int64(25), report.Used)
		require.NotNil(t, report.Remaining)
		assert.Equal(t, int64(75), *report.Remaining)
		require.NotNil(t, report.Percentage)
		assert.Equal(t, 25, *report.Percentage)

		assert.Contains(t, summary.Quotas, plans.ResourceKeywordSearch)
		assert.NotEmpty(t, summary.Features)
	})

	t.Run("unlimited resources report nil limits", func(t *testing.T) {
		gate := newTestGate(fixedSubs(activeSub(plans.TierAgency)), fixedUsage(12345), Config{})

		summary, err := gate.QuotasFor(ctx, 42)
		require.NoError(t, err)

		report := summary.Quotas[plans.ResourceAudit]
		assert.Nil(t, report.Limit)
		assert.Equal(t, int64(12345), report.Used)
		assert.Nil(t, report.Remaining)
		assert.Nil(t, report.Percentage)
	})

	t.Run("bypasses cache for user-facing status", func(t *testing.T) {
		subs := fixedSubs(activeSub(plans.TierStarter))
		gate := newTestGate(subs, fixedUsage(0), Config{CacheTTL: time.Minute})

		// Prime the admission cache, then confirm QuotasFor still hits the
		// store directly.
		_, err := gate.CheckAndReserve(ctx, 42, plans.ResourceAudit)
		require.NoError(t, err)
		_, err = gate.QuotasFor(ctx, 42)
		require.NoError(t, err)

		assert.Equal(t, 2, subs.calls)
	})

	t.Run("elapsed grace reported as canceled", func(t *testing.T) {
		graceEnd := time.Now().Add(-time.Minute)
		sub := activeSub(plans.TierProfessional)
		sub.Status = billing.StatusPastDue
		sub.GracePeriodEnd = &graceEnd

		gate := newTestGate(fixedSubs(sub), fixedUsage(0), Config{DowngradeTier: plans.TierStarter})

		summary, err := gate.QuotasFor(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, billing.StatusCanceled, summary.Status)
		assert.Equal(t, plans.TierStarter, summary.Tier)
	})

	t.Run("not found propagates", func(t *testing.T) {
		gate := newTestGate(&mockSubs{}, fixedUsage(0), Config{})

		_, err := gate.QuotasFor(ctx, 42)
		assert.ErrorIs(t, err, billing.ErrSubscriptionNotFound)
	})
}

var _ usage.Ledger = (*mockLedger)(nil)
