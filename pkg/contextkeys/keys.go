// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//   import "github.com/rankforge/rankforge/pkg/contextkeys"
//   ctx = contextkeys.WithAccountID(ctx, accountID)
//   accountID := contextkeys.GetAccountID(ctx)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// AccountKey contains the account ID scoping the request
	// Set by: middleware.AccountContextMiddleware (pkg/middleware/account.go)
	// Required by: Quota middleware, account-scoped endpoints
	// Type: int64
	AccountKey Key = "account_id"
)

// WithAccountID adds the account ID to the context
func WithAccountID(ctx context.Context, accountID int64) context.Context {
	return context.WithValue(ctx, AccountKey, accountID)
}

// GetAccountID retrieves the account ID from context, or 0 when unset
func GetAccountID(ctx context.Context) int64 {
	if accountID, ok := ctx.Value(AccountKey).(int64); ok {
		return accountID
	}
	return 0
}
