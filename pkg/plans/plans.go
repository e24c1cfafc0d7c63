package plans

import "sort"

// Tier represents a named subscription level
type Tier string

const (
	TierStarter      Tier = "starter"
	TierProfessional Tier = "professional"
	TierAgency       Tier = "agency"
)

// Valid reports whether t is a known tier
func (t Tier) Valid() bool {
	switch t {
	case TierStarter, TierProfessional, TierAgency:
		return true
	}
	return false
}

// ResourceKind identifies a quota-gated resource
type ResourceKind string

const (
	ResourceAudit         ResourceKind = "audit"
	ResourceKeywordSearch ResourceKind = "keyword_search"
)

// Valid reports whether k is a known resource kind
func (k ResourceKind) Valid() bool {
	switch k {
	case ResourceAudit, ResourceKeywordSearch:
		return true
	}
	return false
}

// Unlimited is the sentinel limit for tiers with no usage ceiling.
// It must never be compared numerically against a usage count; use
// IsUnlimited before doing any quota arithmetic.
const Unlimited int64 = -1

// IsUnlimited reports whether limit is the unlimited sentinel
func IsUnlimited(limit int64) bool {
	return limit == Unlimited
}

// Feature represents a tier entitlement flag
type Feature string

const (
	FeatureScheduledAudits    Feature = "scheduled_audits"
	FeatureWhiteLabelReports  Feature = "white_label_reports"
	FeatureAPIAccess          Feature = "api_access"
	FeatureCompetitorTracking Feature = "competitor_tracking"
)

// TierDefinition holds the quota limits and features for one tier
type TierDefinition struct {
	Tier     Tier
	Limits   map[ResourceKind]int64
	Features map[Feature]bool
}

// Catalog is the immutable tier catalog. Construct it once at startup with
// NewCatalog and share it; it is safe for concurrent reads.
type Catalog struct {
	tiers  map[Tier]TierDefinition
	prices map[string]Tier
}

// NewCatalog creates a catalog with the default tier definitions and the
// given provider price-id to tier mapping
func NewCatalog(priceIDs map[string]Tier) *Catalog {
	prices := make(map[string]Tier, len(priceIDs))
	for id, tier := range priceIDs {
		prices[id] = tier
	}
	return &Catalog{
		tiers:  defaultTiers(),
		prices: prices,
	}
}

// DefaultCatalog returns a catalog without any price-id mapping, suitable
// for tests and tools that never see provider payloads
func DefaultCatalog() *Catalog {
	return NewCatalog(nil)
}

// defaultTiers returns the default quota limits and features for each tier
func defaultTiers() map[Tier]TierDefinition {
	return map[Tier]TierDefinition{
		TierStarter: {
			Tier: TierStarter,
			Limits: map[ResourceKind]int64{
				ResourceAudit:         10,
				ResourceKeywordSearch: 50,
			},
			Features: map[Feature]bool{},
		},
		TierProfessional: {
			Tier: TierProfessional,
			Limits: map[ResourceKind]int64{
				ResourceAudit:         100,
				ResourceKeywordSearch: 1000,
			},
			Features: map[Feature]bool{
				FeatureScheduledAudits: true,
				FeatureAPIAccess:       true,
			},
		},
		TierAgency: {
			Tier: TierAgency,
			Limits: map[ResourceKind]int64{
				ResourceAudit:         Unlimited,
				ResourceKeywordSearch: Unlimited,
			},
			Features: map[Feature]bool{
				FeatureScheduledAudits:    true,
				FeatureAPIAccess:          true,
				FeatureWhiteLabelReports:  true,
				FeatureCompetitorTracking: true,
			},
		},
	}
}

// Limit returns the usage limit for a tier and resource kind. The second
// return value is false when either the tier or the kind is unknown.
func (c *Catalog) Limit(tier Tier, kind ResourceKind) (int64, bool) {
	def, ok := c.tiers[tier]
	if !ok {
		return 0, false
	}
	limit, ok := def.Limits[kind]
	return limit, ok
}

// HasFeature reports whether a tier is entitled to a feature
func (c *Catalog) HasFeature(tier Tier, feature Feature) bool {
	def, ok := c.tiers[tier]
	if !ok {
		return false
	}
	return def.Features[feature]
}

// Features returns the sorted list of features a tier is entitled to
func (c *Catalog) Features(tier Tier) []Feature {
	def, ok := c.tiers[tier]
	if !ok {
		return nil
	}
	features := make([]Feature, 0, len(def.Features))
	for f, enabled := range def.Features {
		if enabled {
			features = append(features, f)
		}
	}
	sort.Slice(features, func(i, j int) bool { return features[i] < features[j] })
	return features
}

// ResourceKinds returns the resource kinds defined for a tier, sorted
func (c *Catalog) ResourceKinds(tier Tier) []ResourceKind {
	def, ok := c.tiers[tier]
	if !ok {
		return nil
	}
	kinds := make([]ResourceKind, 0, len(def.Limits))
	for k := range def.Limits {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// TierForPrice maps a provider price identifier to an internal tier
func (c *Catalog) TierForPrice(priceID string) (Tier, bool) {
	tier, ok := c.prices[priceID]
	return tier, ok
}
