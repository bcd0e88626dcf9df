package domain

import "math"

// Decision is the outcome of an entitlement check.
type Decision struct {
	OK        bool      `json:"ok"`
	Plan      Plan      `json:"plan"`
	Kind      EventKind `json:"kind"`
	Used      float64   `json:"used"`
	Limit     float64   `json:"limit"`
	Remaining float64   `json:"remaining"`
	// Replayed is set when the request id had already been charged.
	Replayed bool `json:"replayed,omitempty"`
}

// quantityPrecision is the resolution usage is accounted at.
const quantityPrecision = 1e9

// RoundQuantity rounds v to the accounting resolution so summed fractional
// minutes compare and print as their decimal values.
func RoundQuantity(v float64) float64 {
	return math.Round(v*quantityPrecision) / quantityPrecision
}

// Admits reports whether charging qty on top of used stays within limit.
// Reaching the limit exactly is admitted.
func Admits(limit, used, qty float64) bool {
	return RoundQuantity(used+qty) <= limit
}

// Remaining returns limit-used floored at zero.
func Remaining(limit, used float64) float64 {
	used = RoundQuantity(used)
	if used >= limit {
		return 0
	}
	return RoundQuantity(limit - used)
}

// KindUsage is the usage snapshot of one kind.
type KindUsage struct {
	Used      float64 `json:"used"`
	Limit     float64 `json:"limit"`
	Remaining float64 `json:"remaining"`
}

// UsageStatus is a read-only view of a user's plan and month-to-date usage.
type UsageStatus struct {
	UserID string                  `json:"user_id"`
	Plan   Plan                    `json:"plan"`
	Active bool                    `json:"active"`
	Kinds  map[EventKind]KindUsage `json:"kinds"`
}
