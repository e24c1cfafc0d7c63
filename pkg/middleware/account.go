package middleware

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/rankforge/rankforge/pkg/contextkeys"
)

// AccountContextMiddleware extracts the account ID from the request path and
// adds it to the request context.
//
// Routes without an {account_id} path variable pass through unchanged; quota
// middleware downstream skips enforcement when no account is in scope.
func AccountContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		idStr, ok := vars["account_id"]
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		accountID, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil || accountID <= 0 {
			http.Error(w, "Invalid account ID", http.StatusBadRequest)
			return
		}

		ctx := contextkeys.WithAccountID(r.Context(), accountID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AccountIDFromContext retrieves the account ID set by AccountContextMiddleware
func AccountIDFromContext(r *http.Request) int64 {
	return contextkeys.GetAccountID(r.Context())
}
