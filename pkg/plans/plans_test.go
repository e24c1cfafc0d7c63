package plans

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierValid(t *testing.T) {
	tests := []struct {
		name  string
		tier  Tier
		valid bool
	}{
		{"starter", TierStarter, true},
		{"professional", TierProfessional, true},
		{"agency", TierAgency, true},
		{"unknown", Tier("platinum"), false},
		{"empty", Tier(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.tier.Valid())
		})
	}
}

func TestResourceKindValid(t *testing.T) {
	assert.True(t, ResourceAudit.Valid())
	assert.True(t, ResourceKeywordSearch.Valid())
	assert.False(t, ResourceKind("backlink_report").Valid())
}

func TestCatalogLimit(t *testing.T) {
	catalog := DefaultCatalog()

	limit, ok := catalog.Limit(TierStarter, ResourceAudit)
	require.True(t, ok)
	assert.Equal(t, int64(10), limit)

	limit, ok = catalog.Limit(TierProfessional, ResourceKeywordSearch)
	require.True(t, ok)
	assert.Equal(t, int64(1000), limit)
}

func TestCatalogLimitUnknown(t *testing.T) {
	catalog := DefaultCatalog()

	_, ok := catalog.Limit(Tier("platinum"), ResourceAudit)
	assert.False(t, ok)

	_, ok = catalog.Limit(TierStarter, ResourceKind("backlink_report"))
	assert.False(t, ok)
}

func TestAgencyTierIsUnlimited(t *testing.T) {
	catalog := DefaultCatalog()

	for _, kind := range []ResourceKind{ResourceAudit, ResourceKeywordSearch} {
		limit, ok := catalog.Limit(TierAgency, kind)
		require.True(t, ok)
		assert.True(t, IsUnlimited(limit), "agency %s should be unlimited", kind)
	}
}

func TestIsUnlimited(t *testing.T) {
	assert.True(t, IsUnlimited(Unlimited))
	assert.False(t, IsUnlimited(0))
	assert.False(t, IsUnlimited(100))
}

func TestCatalogFeatures(t *testing.T) {
	catalog := DefaultCatalog()

	assert.False(t, catalog.HasFeature(TierStarter, FeatureAPIAccess))
	assert.True(t, catalog.HasFeature(TierProfessional, FeatureAPIAccess))
	assert.True(t, catalog.HasFeature(TierAgency, FeatureWhiteLabelReports))
	assert.False(t, catalog.HasFeature(Tier("platinum"), FeatureAPIAccess))

	features := catalog.Features(TierAgency)
	assert.Len(t, features, 4)
	// Sorted output
	assert.Equal(t, FeatureAPIAccess, features[0])
}

func TestCatalogResourceKinds(t *testing.T) {
	catalog := DefaultCatalog()

	kinds := catalog.ResourceKinds(TierStarter)
	require.Len(t, kinds, 2)
	assert.Equal(t, ResourceAudit, kinds[0])
	assert.Equal(t, ResourceKeywordSearch, kinds[1])

	assert.Nil(t, catalog.ResourceKinds(Tier("platinum")))
}

func TestTierForPrice(t *testing.T) {
	catalog := NewCatalog(map[string]Tier{
		"price_starter_monthly": TierStarter,
		"price_agency_monthly":  TierAgency,
	})

	tier, ok := catalog.TierForPrice("price_agency_monthly")
	require.True(t, ok)
	assert.Equal(t, TierAgency, tier)

	_, ok = catalog.TierForPrice("price_unknown")
	assert.False(t, ok)

	_, ok = DefaultCatalog().TierForPrice("price_starter_monthly")
	assert.False(t, ok)
}
