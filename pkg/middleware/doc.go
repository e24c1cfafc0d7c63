// Package middleware provides HTTP middleware for account scoping, quota
// enforcement, and rate limiting.
//
// # Overview
//
// This package implements request processing middleware including account
// context extraction, per-account quota enforcement, and rate limiting
// (in-memory and Redis-backed).
//
// # Middleware Components
//
// AccountContextMiddleware: Extract account ID from the request path
//
//	router.Use(middleware.AccountContextMiddleware)
//	// Parses {account_id}, adds it to the request context
//
// QuotaMiddleware: Per-account resource quota enforcement
//
//	qm := middleware.NewQuotaMiddleware(gate, logger)
//	router.Handle("/api/accounts/{account_id}/audits",
//	    qm.EnforceQuota(plans.ResourceAudit)(createAuditHandler)).Methods("POST")
//
// RateLimitMiddleware: In-memory rate limiting
//
//	router.Use(middleware.NewRateLimitMiddleware().Handler)
//
// DistributedRateLimitMiddleware: Redis-backed rate limiting
//
//	router.Use(middleware.NewDistributedRateLimitMiddleware(redisClient).Handler)
//
// # Rate Limiting
//
// Default (Anonymous): 100 req/min, 10 burst
// Per-Account: 1000 req/min, 50 burst
//
// # Related Packages
//
//   - pkg/quota: Admission decisions
//   - pkg/contextkeys: Context key definitions
package middleware
