// Package middleware provides HTTP middleware for quota enforcement
//
// # CRITICAL: Middleware Ordering Requirements
//
// Quota middleware has strict ordering dependencies. Incorrect order will cause
// quota checks to silently fail (returning 0 for account ID).
//
// REQUIRED ORDERING (outer to inner):
//  1. AccountContextMiddleware - Extracts account ID from the request path
//  2. Quota check middleware - EnforceQuota, rate limiters
//
// Example (correct):
//
//	router.Use(middleware.AccountContextMiddleware)       // 1. Sets account ID
//	router.Handle("/api/accounts/{account_id}/audits",
//	    quotaMiddleware.EnforceQuota(plans.ResourceAudit)(handler)).
//	    Methods("POST")                                   // 2. Checks quota
//
// Example (WRONG - will not work):
//
//	router.Use(quotaMiddleware.EnforceQuota(plans.ResourceAudit)) // FAILS: No account ID in context yet
//	router.Use(middleware.AccountContextMiddleware)
//
// WHY THIS MATTERS:
//   - If quota middleware runs before AccountContextMiddleware,
//     AccountIDFromContext() returns 0 and enforcement is silently skipped
package middleware

import (
	"net/http"

	"github.com/rankforge/rankforge/pkg/httputil"
	"github.com/rankforge/rankforge/pkg/observability"
	"github.com/rankforge/rankforge/pkg/plans"
	"github.com/rankforge/rankforge/pkg/quota"
)

// QuotaMiddleware enforces per-account resource quotas on API requests
//
// IMPORTANT: See package documentation for middleware ordering requirements.
// Quota middleware will not work correctly if ordering is wrong.
type QuotaMiddleware struct {
	gate   *quota.Gate
	logger *observability.Logger
}

// NewQuotaMiddleware creates a new QuotaMiddleware
func NewQuotaMiddleware(gate *quota.Gate, logger *observability.Logger) *QuotaMiddleware {
	return &QuotaMiddleware{
		gate:   gate,
		logger: logger,
	}
}

// EnforceQuota checks whether the account may consume one unit of the given
// resource kind before the handler runs.
//
// REQUIRES: AccountContextMiddleware must run before this middleware
// Returns: 429 Too Many Requests when the quota is exhausted,
// 402 Payment Required when the account has no subscription,
// 400 Bad Request for an unknown resource kind.
//
// If no account ID is in context (AccountContextMiddleware not run), the
// check is skipped.
func (m *QuotaMiddleware) EnforceQuota(kind plans.ResourceKind) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accountID := AccountIDFromContext(r)
			if accountID == 0 {
				next.ServeHTTP(w, r)
				return
			}

			decision, err := m.gate.CheckAndReserve(r.Context(), accountID, kind)
			if err != nil {
				m.logger.WithError(err).WithField("account_id", accountID).Error("quota check failed")
				httputil.WriteInternalError(w, err)
				return
			}

			if !decision.Allowed {
				m.denyResponse(w, decision)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (m *QuotaMiddleware) denyResponse(w http.ResponseWriter, decision *quota.Decision) {
	status := http.StatusTooManyRequests
	switch decision.Reason {
	case quota.ReasonNoSubscription:
		status = http.StatusPaymentRequired
	case quota.ReasonUnknownResource:
		status = http.StatusBadRequest
	}
	httputil.WriteJSON(w, status, decision)
}
