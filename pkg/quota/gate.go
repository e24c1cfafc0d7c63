package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/rankforge/rankforge/pkg/billing"
	"github.com/rankforge/rankforge/pkg/observability"
	"github.com/rankforge/rankforge/pkg/plans"
	"github.com/rankforge/rankforge/pkg/usage"
)

// Reason classifies why an admission check was denied
type Reason string

const (
	ReasonQuotaExceeded   Reason = "quota_exceeded"
	ReasonNoSubscription  Reason = "no_subscription"
	ReasonUnknownResource Reason = "unknown_resource"
)

// Decision is the result of an admission check
type Decision struct {
	Allowed bool         `json:"allowed"`
	Reason  Reason       `json:"reason,omitempty"`
	Tier    plans.Tier   `json:"tier,omitempty"`
	Report  usage.Report `json:"report"`
}

// Summary is the full quota view of an account, served by the quota query
// API
type Summary struct {
	Tier     plans.Tier                          `json:"tier"`
	Status   billing.Status                      `json:"status"`
	Quotas   map[plans.ResourceKind]usage.Report `json:"quotas"`
	Features []plans.Feature                     `json:"features"`
}

// SubscriptionReader is the read-only slice of the subscription store the
// gate depends on
type SubscriptionReader interface {
	GetByAccount(ctx context.Context, accountID int64) (*billing.Subscription, error)
}

// Config holds gate policy. CacheTTL <= 0 disables the subscription cache.
type Config struct {
	DowngradeTier plans.Tier
	CacheTTL      time.Duration
	CacheSize     int
}

// Gate performs request-time quota admission
type Gate struct {
	subs    SubscriptionReader
	ledger  usage.Ledger
	catalog *plans.Catalog
	cfg     Config
	cache   *lru.LRU[int64, *billing.Subscription]
	metrics *observability.Metrics
	now     func() time.Time
}

// NewGate creates a quota gate
func NewGate(subs SubscriptionReader, ledger usage.Ledger, catalog *plans.Catalog, cfg Config, metrics *observability.Metrics) *Gate {
	if !cfg.DowngradeTier.Valid() {
		cfg.DowngradeTier = plans.TierStarter
	}
	var cache *lru.LRU[int64, *billing.Subscription]
	if cfg.CacheTTL > 0 {
		size := cfg.CacheSize
		if size <= 0 {
			size = 10000
		}
		cache = lru.NewLRU[int64, *billing.Subscription](size, nil, cfg.CacheTTL)
	}
	return &Gate{
		subs:    subs,
		ledger:  ledger,
		catalog: catalog,
		cfg:     cfg,
		cache:   cache,
		metrics: metrics,
		now:     time.Now,
	}
}

// CheckAndReserve decides whether the account may consume one unit of the
// resource kind right now. The caller appends the usage record after the
// resource is created; see the package comment for the concurrency bound.
func (g *Gate) CheckAndReserve(ctx context.Context, accountID int64, kind plans.ResourceKind) (*Decision, error) {
	decision, err := g.check(ctx, accountID, kind)
	if err != nil {
		g.metrics.QuotaChecksTotal.WithLabelValues(string(kind), "error").Inc()
		return nil, err
	}
	label := "allowed"
	if !decision.Allowed {
		label = string(decision.Reason)
	}
	g.metrics.QuotaChecksTotal.WithLabelValues(string(kind), label).Inc()
	return decision, nil
}

func (g *Gate) check(ctx context.Context, accountID int64, kind plans.ResourceKind) (*Decision, error) {
	if !kind.Valid() {
		return &Decision{Allowed: false, Reason: ReasonUnknownResource}, nil
	}

	sub, err := g.subscription(ctx, accountID)
	if errors.Is(err, billing.ErrSubscriptionNotFound) {
		return &Decision{Allowed: false, Reason: ReasonNoSubscription}, nil
	}
	if err != nil {
		return nil, err
	}

	now := g.now()
	tier := g.effectiveTier(sub, now)

	limit, ok := g.catalog.Limit(tier, kind)
	if !ok {
		return &Decision{Allowed: false, Reason: ReasonUnknownResource, Tier: tier}, nil
	}
	if plans.IsUnlimited(limit) {
		return &Decision{Allowed: true, Tier: tier}, nil
	}
	if limit <= 0 {
		return nil, fmt.Errorf("tier %s resource %s: %w: %d", tier, kind, usage.ErrInvalidQuotaLimit, limit)
	}

	periodStart, periodEnd := usage.CurrentPeriod(now)
	used, err := g.ledger.CountUsage(ctx, accountID, kind, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}

	report, err := usage.BuildReport(limit, used)
	if err != nil {
		return nil, err
	}

	if used >= limit {
		return &Decision{Allowed: false, Reason: ReasonQuotaExceeded, Tier: tier, Report: report}, nil
	}
	return &Decision{Allowed: true, Tier: tier, Report: report}, nil
}

// QuotasFor builds the full quota summary for an account. Unlike
// CheckAndReserve it always reads the store directly: user-facing status
// must not be served from the admission cache.
func (g *Gate) QuotasFor(ctx context.Context, accountID int64) (*Summary, error) {
	sub, err := g.subs.GetByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	now := g.now()
	status := sub.EffectiveStatus(now)
	tier := g.effectiveTier(sub, now)

	periodStart, periodEnd := usage.CurrentPeriod(now)
	quotas := make(map[plans.ResourceKind]usage.Report)
	for _, kind := range g.catalog.ResourceKinds(tier) {
		limit, _ := g.catalog.Limit(tier, kind)
		used, err := g.ledger.CountUsage(ctx, accountID, kind, periodStart, periodEnd)
		if err != nil {
			return nil, err
		}
		report, err := usage.BuildReport(limit, used)
		if err != nil {
			return nil, err
		}
		quotas[kind] = report
	}

	return &Summary{
		Tier:     tier,
		Status:   status,
		Quotas:   quotas,
		Features: g.catalog.Features(tier),
	}, nil
}

// effectiveTier applies the lazy grace-expiry fallback: an elapsed grace
// period that no sweep has persisted yet is treated as canceled, so quota
// treatment downgrades immediately.
func (g *Gate) effectiveTier(sub *billing.Subscription, now time.Time) plans.Tier {
	if sub.EffectiveStatus(now) == billing.StatusCanceled {
		return g.cfg.DowngradeTier
	}
	return sub.Tier
}

func (g *Gate) subscription(ctx context.Context, accountID int64) (*billing.Subscription, error) {
	if g.cache != nil {
		if sub, ok := g.cache.Get(accountID); ok {
			g.metrics.CacheHitsTotal.WithLabelValues("subscription").Inc()
			return sub, nil
		}
		g.metrics.CacheMissesTotal.WithLabelValues("subscription").Inc()
	}
	sub, err := g.subs.GetByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if g.cache != nil {
		g.cache.Add(accountID, sub)
	}
	return sub, nil
}
