package contextkeys

import (
	"context"
	"testing"
)

func TestAccountIDRoundTrip(t *testing.T) {
	ctx := WithAccountID(context.Background(), 42)
	if got := GetAccountID(ctx); got != 42 {
		t.Errorf("GetAccountID() = %d, want 42", got)
	}
}

func TestGetAccountIDUnset(t *testing.T) {
	if got := GetAccountID(context.Background()); got != 0 {
		t.Errorf("GetAccountID() = %d, want 0 on a bare context", got)
	}
}

func TestGetAccountIDWrongType(t *testing.T) {
	// Values stored under the same key with the wrong type must not leak
	// through as account ids.
	ctx := context.WithValue(context.Background(), AccountKey, "42")
	if got := GetAccountID(ctx); got != 0 {
		t.Errorf("GetAccountID() = %d, want 0 for a non-int64 value", got)
	}
}
