// Package quota implements the request-time admission check that gates
// resource-creating operations against the account's tier limits.
//
// The gate reads subscription state, counts usage for the current billing
// period, and produces a typed decision: callers can distinguish a quota
// denial (render an upgrade prompt) from a missing subscription or an
// unknown resource kind (render an error).
//
// The check and the eventual usage-record insert are two steps; concurrent
// requests for the same account may both pass the check, bounding
// over-admission at the number of in-flight requests rather than zero. If
// exactness is required, serialize the insert with a conditional statement
// on the usage table.
package quota
