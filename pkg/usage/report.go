package usage

import (
	"errors"
	"fmt"
	"math"

	"github.com/rankforge/rankforge/pkg/plans"
)

// ErrInvalidQuotaLimit indicates a tier was configured with a zero or
// negative finite limit. This is a configuration fault, not a user error.
var ErrInvalidQuotaLimit = errors.New("invalid quota limit")

// Report describes usage against a single resource limit.
//
// For unlimited tiers Limit, Remaining and Percentage are all nil; they are
// never reported as computed numbers.
type Report struct {
	Limit      *int64 `json:"limit"`
	Used       int64  `json:"used"`
	Remaining  *int64 `json:"remaining"`
	Percentage *int   `json:"percentage"`
}

// BuildReport computes a usage report for a finite or unlimited limit.
// A zero or negative finite limit returns ErrInvalidQuotaLimit.
func BuildReport(limit, used int64) (Report, error) {
	if plans.IsUnlimited(limit) {
		return Report{Used: used}, nil
	}
	if limit <= 0 {
		return Report{}, fmt.Errorf("%w: %d", ErrInvalidQuotaLimit, limit)
	}

	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	percentage := int(math.Round(float64(used) * 100 / float64(limit)))
	if percentage > 100 {
		percentage = 100
	}

	return Report{
		Limit:      &limit,
		Used:       used,
		Remaining:  &remaining,
		Percentage: &percentage,
	}, nil
}
