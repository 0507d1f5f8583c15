package logstream

import "sync"

// DefaultCacheSize is the number of entries retained when no size is configured.
const DefaultCacheSize = 1000

// Cache is a bounded, insertion-ordered log buffer. Once full, the oldest
// entries are dropped first.
type Cache struct {
	mu      sync.RWMutex
	max     int
	entries []LogEntry
}

// NewCache returns a cache holding at most max entries.
func NewCache(max int) *Cache {
	if max <= 0 {
		max = DefaultCacheSize
	}
	return &Cache{max: max}
}

// Append stores entry and trims the front so Len never exceeds Max.
func (c *Cache) Append(entry LogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
	if over := len(c.entries) - c.max; over > 0 {
		n := copy(c.entries, c.entries[over:])
		clear(c.entries[n:])
		c.entries = c.entries[:n]
	}
}

// Snapshot returns a copy of the cached entries, oldest first.
func (c *Cache) Snapshot() []LogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]LogEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Tail returns up to n of the newest entries, oldest first.
func (c *Cache) Tail(n int) []LogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if n <= 0 || n > len(c.entries) {
		n = len(c.entries)
	}
	out := make([]LogEntry, n)
	copy(out, c.entries[len(c.entries)-n:])
	return out
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Max reports the configured capacity.
func (c *Cache) Max() int {
	return c.max
}
