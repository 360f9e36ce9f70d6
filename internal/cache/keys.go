package cache

import (
	"fmt"
	"time"
)

// AnalysisKey is where the output for a pair fingerprint is cached.
func AnalysisKey(fingerprint string) string {
	return "analysis:" + fingerprint
}

// RateLimitKey is the counter for one API key prefix in the window that
// starts at windowStart.
func RateLimitKey(keyPrefix string, windowStart time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%d", keyPrefix, windowStart.Unix())
}
