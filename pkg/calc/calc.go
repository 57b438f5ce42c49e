package calc

import (
	"math"
	"time"
)

// Progress calculates the percentage for a given pair of byte counts.
func Progress(downloaded, total int64) float64 {
	if total > 0 {
		return math.Round(float64(downloaded)/float64(total)*10000) / 100
	}
	return 0
}

// ETA calculates the estimated time remaining based on bytes moved since started.
func ETA(downloaded, total int64, started time.Time) time.Duration {
	if total > 0 && downloaded > 0 {
		elapsed := time.Since(started)
		eta := time.Duration(float64(elapsed) * (float64(total)/float64(downloaded) - 1))
		return eta
	}
	return 0
}

// Speed calculates bytes per second for a delta of bytes over a delta of time.
func Speed(deltaBytes int64, deltaTime time.Duration) int64 {
	if deltaTime <= 0 || deltaBytes <= 0 {
		return 0
	}
	return int64(float64(deltaBytes) / deltaTime.Seconds())
}
