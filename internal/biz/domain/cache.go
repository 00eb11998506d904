package domain

import "time"

// CacheEntry is one memoised classification
type CacheEntry struct {
	Result     ClassificationResult
	CreatedAt  time.Time
	LastUsedAt time.Time
	HitCount   int
}

// ExpiredAt reports whether the entry is older than ttl at now
func (e *CacheEntry) ExpiredAt(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.CreatedAt) > ttl
}
