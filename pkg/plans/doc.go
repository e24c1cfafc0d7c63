// Package plans defines the subscription tier catalog: the static mapping
// from tier to per-resource quota limits and entitled features, and the
// mapping from billing-provider price identifiers to internal tiers.
//
// The catalog is constructed once at process start and is immutable
// afterwards. Quota limits may be Unlimited, a sentinel that callers must
// never compare numerically against usage counts.
package plans
