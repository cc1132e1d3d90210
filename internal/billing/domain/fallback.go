package domain

import "strings"

// DefaultPlan is the baseline plan assigned when neither the caller nor the
// stored record names one.
const DefaultPlan = "free"

// FirstNonEmpty returns the first value that is not blank.
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// FirstNonNil returns the first non-nil pointer.
func FirstNonNil[T any](values ...*T) *T {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

// ResolvePlan applies the plan fallback chain: supplied, then existing, then DefaultPlan.
func ResolvePlan(supplied, existing string) string {
	return FirstNonEmpty(supplied, existing, DefaultPlan)
}
