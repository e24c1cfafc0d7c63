// Package api implements the public HTTP API: the billing webhook
// endpoint and the account-scoped subscription, quota, and audit routes.
//
// # Routes
//
// Webhook ingestion:
//
//	POST /webhooks/billing
//
// Account-scoped (all under /api/accounts/{account_id}):
//
//	GET  /subscription
//	GET  /quotas
//	POST /audits             (quota-gated)
//	GET  /audits
//	GET  /audits/{run_id}
//	POST /keyword-searches   (quota-gated)
//
// Quota-gated routes run through middleware.EnforceQuota, which denies
// with 429 (quota exhausted), 402 (no subscription), or 400 (unknown
// resource) before the handler executes. The handler appends the usage
// record after the resource row exists.
//
// # Related Packages
//
//   - pkg/billing: webhook reconciliation and subscription state
//   - pkg/quota: admission decisions
//   - pkg/audits: persistence for audit runs and keyword searches
package api
