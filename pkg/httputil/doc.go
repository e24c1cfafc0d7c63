// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Overview
//
// This package offers helper functions for JSON encoding/decoding, error responses,
// query parameter parsing, and common HTTP middleware patterns.
//
// # Response Helpers
//
// JSON responses:
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteSuccess(w, data)
//	httputil.WriteCreated(w, resource)
//
// Error responses:
//
//	httputil.WriteError(w, http.StatusBadRequest, err)
//	httputil.WriteBadRequest(w, "Invalid input")
//	httputil.WriteNotFoundError(w, "audit run not found")
//	httputil.WriteTooManyRequests(w, "rate limit exceeded")
//
// # Request Parsing
//
// JSON parsing:
//
//	var req createAuditRunRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//
// Query parameters:
//
//	limit, err := httputil.ParseQueryInt(r, "limit", 100)
//	country := httputil.ParseQueryString(r, "country", "us")
//
// # Middleware
//
//	handler = httputil.RequestIDMiddleware(handler)
//	handler = httputil.MaxBytesMiddleware(1 << 20)(handler)
//
// # Related Packages
//
//   - pkg/middleware: Account scoping, quota enforcement and rate limiting middleware
package httputil
