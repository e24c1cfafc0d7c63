// Package usage implements the append-only usage ledger and the quota
// arithmetic derived from it.
//
// Every resource-consuming action (an audit run, a keyword search) appends
// one usage record. Records are never updated or deleted by this package;
// quota decisions read them only in aggregate, counting within half-open
// billing periods anchored to UTC calendar months.
package usage
