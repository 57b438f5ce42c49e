package maths

import (
	"math"
)

// RoundFloat64ToInt64 rounds v to the nearest int64, treating NaN and Inf as zero.
func RoundFloat64ToInt64(v float64) int64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return int64(math.Round(v))
}
