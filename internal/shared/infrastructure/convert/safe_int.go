// Package convert narrows integers for driver parameters.
package convert

import "math"

// ClampInt32 converts v to int32, saturating at the int32 bounds.
func ClampInt32(v int) int32 {
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	if v < math.MinInt32 {
		return math.MinInt32
	}
	return int32(v)
}

// PositiveInt32 is ClampInt32 for sizes and limits: a non-positive v
// selects fallback.
func PositiveInt32(v, fallback int) int32 {
	if v <= 0 {
		v = fallback
	}
	return ClampInt32(v)
}
