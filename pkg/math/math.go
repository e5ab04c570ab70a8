package math

import stdmath "math"

// Maximum calculates the maximum value among two integers
func Maximum(a int, b int) int {
	if a > b {
		return a
	}
	return b
}

// Minimum calculates the minimum value among two integers
func Minimum(a int, b int) int {
	if a > b {
		return b
	}
	return a
}

// Adjustment returns the number of targets covered by the given fraction of
// the total, rounded up
func Adjustment(fraction float64, total int) int {
	if total <= 0 || fraction <= 0 {
		return 0
	}
	return int(stdmath.Ceil(fraction * float64(total)))
}
