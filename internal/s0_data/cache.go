package s0_data

import (
	"fmt"
	"sync"

	"github.com/wangshuile/jb-quant/internal/contracts"
)

// DefaultCacheSize bounds the series cache
const DefaultCacheSize = 1000

// SeriesKey identifies one fetched series
type SeriesKey struct {
	Symbol string
	Freq   contracts.Frequency
	Count  int
}

func (k SeriesKey) String() string {
	return fmt.Sprintf("%s_%s_%d", k.Symbol, k.Freq, k.Count)
}

type seriesEntry struct {
	bars     []contracts.Bar
	accesses int
	seq      uint64 // insertion order, tie-break for eviction
}

// CacheStats is a point-in-time view of the cache
type CacheStats struct {
	Size      int `json:"size"`
	MaxSize   int `json:"max_size"`
	Hits      int `json:"hits"`
	Misses    int `json:"misses"`
	Evictions int `json:"evictions"`
}

// SeriesCache is a bounded least-frequently-used memo of price series.
// Every hit and every set counts as an access; when full, inserting a new
// key evicts the entry with the fewest accesses, oldest insertion first on ties.
// ⭐ SSOT: 시계열 캐시는 여기서만 (장 시작 시 Clear)
type SeriesCache struct {
	mu      sync.Mutex
	entries map[SeriesKey]*seriesEntry
	maxSize int
	nextSeq uint64

	hits      int
	misses    int
	evictions int
}

// NewSeriesCache creates a cache bounded at maxSize entries (DefaultCacheSize if <= 0)
func NewSeriesCache(maxSize int) *SeriesCache {
	if maxSize <= 0 {
		maxSize = DefaultCacheSize
	}
	return &SeriesCache{
		entries: make(map[SeriesKey]*seriesEntry),
		maxSize: maxSize,
	}
}

// Get returns the cached series
func (c *SeriesCache) Get(key SeriesKey) ([]contracts.Bar, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	e.accesses++
	c.hits++
	return e.bars, true
}

// Set stores a series, evicting the least-frequently-used entry when full
func (c *SeriesCache) Set(key SeriesKey, bars []contracts.Bar) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.bars = bars
		e.accesses++
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictLocked()
	}

	c.nextSeq++
	c.entries[key] = &seriesEntry{bars: bars, accesses: 1, seq: c.nextSeq}
}

func (c *SeriesCache) evictLocked() {
	var (
		victim SeriesKey
		best   *seriesEntry
	)
	for k, e := range c.entries {
		if best == nil || e.accesses < best.accesses || (e.accesses == best.accesses && e.seq < best.seq) {
			victim, best = k, e
		}
	}
	if best != nil {
		delete(c.entries, victim)
		c.evictions++
	}
}

// AccessCount returns the access counter of key (0 when absent)
func (c *SeriesCache) AccessCount(key SeriesKey) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return e.accesses
	}
	return 0
}

// Len returns the number of cached series
func (c *SeriesCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear wipes entries and access counters
func (c *SeriesCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[SeriesKey]*seriesEntry)
	c.nextSeq = 0
}

// Stats returns cache statistics
func (c *SeriesCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Size:      len(c.entries),
		MaxSize:   c.maxSize,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}
