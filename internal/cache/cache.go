// Package cache implements a memory-bounded in-process cache with LRU
// eviction and optional per-entry TTL. The dashboard fronts report metadata
// computation with it, keyed by report identity, and invalidates entries
// explicitly when report content is mutated.
package cache

import (
	"container/list"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"
)

// DefaultMaxMemoryBytes bounds the cache when no limit is configured.
const DefaultMaxMemoryBytes = 100 << 20 // 100MB

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Entries        int    `json:"entries"`
	SizeBytes      int64  `json:"size_bytes"`
	MaxMemoryBytes int64  `json:"max_memory_bytes"`
	Hits           uint64 `json:"hits"`
	Misses         uint64 `json:"misses"`
	Evictions      uint64 `json:"evictions"`
}

type entry struct {
	key       string
	value     any
	size      int64
	expiresAt time.Time
	elem      *list.Element
}

// Cache is safe for concurrent use. Recency is tracked with an intrusive
// list: front is least recently used, back is most recently used.
type Cache struct {
	mu      sync.Mutex
	max     int64
	used    int64
	entries map[string]*entry
	recency *list.List

	hits      uint64
	misses    uint64
	evictions uint64
}

// New builds a cache bounded to maxMemoryBytes of estimated entry size.
// Non-positive limits fall back to DefaultMaxMemoryBytes.
func New(maxMemoryBytes int64) *Cache {
	if maxMemoryBytes <= 0 {
		maxMemoryBytes = DefaultMaxMemoryBytes
	}
	return &Cache{
		max:     maxMemoryBytes,
		entries: map[string]*entry{},
		recency: list.New(),
	}
}

// Get returns the cached value for key. Entries past their TTL are removed
// lazily and count as misses. A hit moves the key to most-recently-used.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if !item.expiresAt.IsZero() && time.Now().After(item.expiresAt) {
		c.removeLocked(item)
		c.misses++
		return nil, false
	}
	c.recency.MoveToBack(item.elem)
	c.hits++
	return item.value, true
}

// Set stores value under key with an optional TTL (ttl <= 0 means no
// expiry), evicting least-recently-used entries until the new entry fits.
// Values whose estimated size alone exceeds the memory bound are not stored.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	size := estimateSize(value)
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[key]; ok {
		c.removeLocked(existing)
	}
	if size > c.max {
		slog.Warn("cache entry larger than memory bound, not cached", "key", key, "size_bytes", size)
		return
	}
	for c.used+size > c.max {
		oldest := c.recency.Front()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest.Value.(*entry))
		c.evictions++
	}
	item := &entry{key: key, value: value, size: size}
	if ttl > 0 {
		item.expiresAt = time.Now().Add(ttl)
	}
	item.elem = c.recency.PushBack(item)
	c.entries[key] = item
	c.used += size
}

// Has reports whether key holds a live entry without touching recency or
// hit/miss counters.
func (c *Cache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.entries[key]
	if !ok {
		return false
	}
	if !item.expiresAt.IsZero() && time.Now().After(item.expiresAt) {
		c.removeLocked(item)
		return false
	}
	return true
}

// Delete removes key if present.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if item, ok := c.entries[key]; ok {
		c.removeLocked(item)
	}
}

// Clear drops every entry, keeping counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string]*entry{}
	c.recency.Init()
	c.used = 0
}

// GetStats snapshots the cache counters.
func (c *Cache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:        len(c.entries),
		SizeBytes:      c.used,
		MaxMemoryBytes: c.max,
		Hits:           c.hits,
		Misses:         c.misses,
		Evictions:      c.evictions,
	}
}

func (c *Cache) removeLocked(item *entry) {
	c.recency.Remove(item.elem)
	delete(c.entries, item.key)
	c.used -= item.size
}

// containerOverhead is the fixed bookkeeping charge added per array or
// object during size estimation.
const containerOverhead = 16

// estimateSize approximates the in-memory footprint of a value: two bytes
// per string character, eight per number, four per boolean, recursive sums
// for containers, and twice the serialized JSON length for anything else.
func estimateSize(value any) int64 {
	switch v := value.(type) {
	case nil:
		return 8
	case string:
		return int64(2 * utf8.RuneCountInString(v))
	case bool:
		return 4
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return 8
	case []any:
		total := int64(containerOverhead)
		for _, item := range v {
			total += estimateSize(item)
		}
		return total
	case map[string]any:
		total := int64(containerOverhead)
		for key, item := range v {
			total += int64(2*utf8.RuneCountInString(key)) + estimateSize(item)
		}
		return total
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return 64
		}
		return int64(2 * len(data))
	}
}
