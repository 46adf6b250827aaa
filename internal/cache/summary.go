package cache

import (
	"time"

	"famledger/internal/analytics"
)

// SummaryKey identifies a month summary computed at a given store revision.
// A newer revision never hits an older entry.
type SummaryKey struct {
	Year     int
	Month    time.Month
	Revision uint64
}

// SummaryCache memoizes analytics.MonthSummary results.
type SummaryCache struct {
	*LRU[SummaryKey, analytics.Summary]
}

func NewSummaryCache(size int, ttl time.Duration) *SummaryCache {
	return &SummaryCache{LRU: NewLRU[SummaryKey, analytics.Summary](size, ttl)}
}

// GetOrCompute returns the cached summary for key or computes and stores it.
func (c *SummaryCache) GetOrCompute(key SummaryKey, compute func() analytics.Summary) (analytics.Summary, bool) {
	if s, ok := c.Get(key); ok {
		return s, true
	}
	s := compute()
	c.Set(key, s)
	return s, false
}
