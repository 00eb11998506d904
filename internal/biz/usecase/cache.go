package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chopstar001/chat-intent-bridge/internal/biz/domain"
	"github.com/chopstar001/chat-intent-bridge/internal/clock"
)

// CacheConfig contains analysis cache configuration
type CacheConfig struct {
	Capacity      int           // Soft bound on entries
	TTL           time.Duration // Hard bound on entry age
	SweepInterval time.Duration // Opportunistic sweep cadence
	ForceRatio    float64       // Set forces a cleanup at this occupancy
	TargetRatio   float64       // Cleanup evicts down to this occupancy
}

// DefaultCacheConfig returns default cache configuration
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Capacity:      1000,
		TTL:           5 * time.Minute,
		SweepInterval: 15 * time.Minute,
		ForceRatio:    0.9,
		TargetRatio:   0.8,
	}
}

// CacheStats is a point-in-time view of cache counters
type CacheStats struct {
	Entries   int    `json:"entries"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

// AnalysisCache memoises classification results for repeated texts
type AnalysisCache struct {
	clock  clock.Clock
	config CacheConfig

	mu        sync.Mutex
	entries   map[string]*domain.CacheEntry
	lastSweep time.Time
	hits      uint64
	misses    uint64
	evictions uint64
}

// NewAnalysisCache creates a new analysis cache
func NewAnalysisCache(clk clock.Clock, config CacheConfig) *AnalysisCache {
	defaults := DefaultCacheConfig()
	if config.Capacity <= 0 {
		config.Capacity = defaults.Capacity
	}
	if config.TTL <= 0 {
		config.TTL = defaults.TTL
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = defaults.SweepInterval
	}
	if config.ForceRatio <= 0 {
		config.ForceRatio = defaults.ForceRatio
	}
	if config.TargetRatio <= 0 {
		config.TargetRatio = defaults.TargetRatio
	}
	return &AnalysisCache{
		clock:     clk,
		config:    config,
		entries:   make(map[string]*domain.CacheEntry),
		lastSweep: clk.Now(),
	}
}

// CacheKey derives the cache key for a message text: the first 16 hex
// characters of SHA-256 over the trimmed, lower-cased text
func CacheKey(text string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(text))))
	return hex.EncodeToString(sum[:])[:16]
}

// Get returns the cached result for key if present and not expired
func (c *AnalysisCache) Get(key string) (domain.ClassificationResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	c.maybeSweepLocked(now)

	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return domain.ClassificationResult{}, false
	}
	if entry.ExpiredAt(now, c.config.TTL) {
		delete(c.entries, key)
		c.evict(1)
		c.misses++
		return domain.ClassificationResult{}, false
	}

	entry.HitCount++
	entry.LastUsedAt = now
	c.hits++
	return entry.Result.Clone(), true
}

// Set stores result under key
func (c *AnalysisCache) Set(key string, result domain.ClassificationResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	c.maybeSweepLocked(now)

	if _, exists := c.entries[key]; !exists && float64(len(c.entries)) >= c.config.ForceRatio*float64(c.config.Capacity) {
		c.cleanupLocked(now, true)
	}

	c.entries[key] = &domain.CacheEntry{
		Result:     result.Clone(),
		CreatedAt:  now,
		LastUsedAt: now,
		HitCount:   1,
	}
}

// Cleanup removes expired entries and, when over the target occupancy or
// forced, the lowest-ranked entries. Returns the number removed.
func (c *AnalysisCache) Cleanup(force bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cleanupLocked(c.clock.Now(), force)
}

// Len returns the number of stored entries, expired or not
func (c *AnalysisCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns cache counters
func (c *AnalysisCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Entries:   len(c.entries),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

func (c *AnalysisCache) maybeSweepLocked(now time.Time) {
	if now.Sub(c.lastSweep) >= c.config.SweepInterval {
		c.cleanupLocked(now, false)
	}
}

func (c *AnalysisCache) cleanupLocked(now time.Time, force bool) int {
	c.lastSweep = now
	removed := 0

	for key, entry := range c.entries {
		if entry.ExpiredAt(now, c.config.TTL) {
			delete(c.entries, key)
			removed++
		}
	}

	target := int(c.config.TargetRatio * float64(c.config.Capacity))
	occupancy := len(c.entries)
	if occupancy > 0 && (occupancy > target || force) {
		n := occupancy / 5
		if over := occupancy - target; over > n {
			n = over
		}
		removed += c.evictLowestLocked(n)
	}

	if removed > 0 {
		c.evict(removed)
		log.Debug().
			Str("component", "cache").
			Int("removed", removed).
			Int("remaining", len(c.entries)).
			Bool("forced", force).
			Msg("cache cleanup")
	}
	return removed
}

// evictLowestLocked removes the n entries with the fewest hits, oldest use first
func (c *AnalysisCache) evictLowestLocked(n int) int {
	if n <= 0 {
		return 0
	}
	type ranked struct {
		key   string
		entry *domain.CacheEntry
	}
	all := make([]ranked, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, ranked{k, e})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].entry.HitCount != all[j].entry.HitCount {
			return all[i].entry.HitCount < all[j].entry.HitCount
		}
		return all[i].entry.LastUsedAt.Before(all[j].entry.LastUsedAt)
	})
	if n > len(all) {
		n = len(all)
	}
	for _, r := range all[:n] {
		delete(c.entries, r.key)
	}
	return n
}

func (c *AnalysisCache) evict(n int) {
	c.evictions += uint64(n)
	cacheEvictionsTotal.Add(float64(n))
}
