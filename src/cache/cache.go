package cache

import (
	"sync"
	"time"

	"tickstream/src/models"
)

// -----------------------------------------------------------------------------
// TickCache
// -----------------------------------------------------------------------------

// TickCache holds the most recent tick per instrument token plus a
// time-bounded cache of 52-week ranges. Writes arrive from the feed's
// delivery goroutine while reads come from the broadcast cycle and on-demand
// lookups, so every access goes through the RWMutex.
type TickCache struct {
	mu       sync.RWMutex
	ticks    map[int64]models.MTick
	ranges   map[int64]rangeEntry
	rangeTTL time.Duration
}

type rangeEntry struct {
	rng       models.MWeekRange
	fetchedAt time.Time
}

// -----------------------------------------------------------------------------

// NewTickCache creates a cache whose range entries stay fresh for rangeTTL.
func NewTickCache(rangeTTL time.Duration) *TickCache {
	return &TickCache{
		ticks:    make(map[int64]models.MTick),
		ranges:   make(map[int64]rangeEntry),
		rangeTTL: rangeTTL,
	}
}

// -----------------------------------------------------------------------------

// RecordTick overwrites the stored tick unconditionally (last write wins).
// The feed carries no sequence indicator, so a reordered delivery can replace
// a newer tick with an older one; see the exchange-timestamp note on MTick.
func (c *TickCache) RecordTick(tick models.MTick) {
	c.mu.Lock()
	c.ticks[tick.Token] = tick
	c.mu.Unlock()
}

// -----------------------------------------------------------------------------

// GetTick returns the last recorded tick for a token, if any.
func (c *TickCache) GetTick(token int64) (models.MTick, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.ticks[token]
	return t, ok
}

// -----------------------------------------------------------------------------

// PutRange stores a 52-week range with its fetch time.
func (c *TickCache) PutRange(token int64, rng models.MWeekRange, fetchedAt time.Time) {
	c.mu.Lock()
	c.ranges[token] = rangeEntry{rng: rng, fetchedAt: fetchedAt}
	c.mu.Unlock()
}

// -----------------------------------------------------------------------------

// GetRange returns the cached range for a token. Entries older than the TTL
// are treated as absent so callers refetch before reuse.
func (c *TickCache) GetRange(token int64) (models.MWeekRange, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.ranges[token]
	if !ok {
		return models.MWeekRange{}, false
	}
	if time.Since(e.fetchedAt) >= c.rangeTTL {
		return models.MWeekRange{}, false
	}
	return e.rng, true
}

// -----------------------------------------------------------------------------

// Clear drops all ticks and ranges. Used on logout and auth failure.
func (c *TickCache) Clear() {
	c.mu.Lock()
	c.ticks = make(map[int64]models.MTick)
	c.ranges = make(map[int64]rangeEntry)
	c.mu.Unlock()
}

// -----------------------------------------------------------------------------

// TickCount returns the number of cached ticks.
func (c *TickCache) TickCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ticks)
}
