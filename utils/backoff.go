package utils

import "time"

// ExponentialBackoff returns base * 2^(attempts-1), capped at limit.
func ExponentialBackoff(base, limit time.Duration, attempts int) time.Duration {
	if attempts <= 0 {
		return 0
	}
	d := base
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= limit {
			return limit
		}
	}
	if d > limit {
		return limit
	}
	return d
}
