// Package billing owns subscription state and its reconciliation with the
// billing provider.
//
// The provider is the source of truth for what a customer pays for; this
// package is the source of truth for what the rest of the system may assume
// about an account. The two are kept consistent by the Reconciler, which
// consumes signed provider webhook events, and by the DunningController,
// which manages the grace period that follows a failed payment.
//
// Subscription rows are mutated only by the Reconciler and the
// DunningController. Request handlers read subscription state through
// PostgresStore (or the quota gate) and never write it.
//
// Webhook processing is idempotent: every event identifier is recorded in a
// durable dedup log before its side effects are applied, so provider
// redeliveries are acknowledged without being re-applied.
package billing
