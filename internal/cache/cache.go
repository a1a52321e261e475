package cache

import (
	"container/list"
	"strings"
	"sync"
	"time"
)

const (
	DefaultCapacity = 1000
	DefaultTTL      = 5 * time.Minute
)

// Config configures a Cache.
type Config struct {
	Capacity   int           // Maximum number of entries (default: 1000)
	DefaultTTL time.Duration // TTL used when Set is called without one (default: 5 minutes)
	Now        func() time.Time
}

// Stats is a point-in-time view of cache usage.
type Stats struct {
	Size      int     `json:"size"`
	Capacity  int     `json:"max_size"`
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Evictions uint64  `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
}

// Cache is a process-local key/value store with per-entry TTL and a capacity bound.
//
// Eviction is FIFO by insertion order: when a new key is inserted at capacity the
// oldest inserted entry is dropped, regardless of how recently it was read. Reads
// neither refresh TTL nor change an entry's position. Expired entries are removed
// lazily on Get; there is no background sweeper.
type Cache struct {
	capacity   int
	defaultTTL time.Duration
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
	order   *list.List // front = oldest insertion

	hits      uint64
	misses    uint64
	evictions uint64

	flight flightGroup
	// fills maps keys with a producer in flight to that fill's token. Deleting
	// a key drops its token so a fill started before the delete is not stored.
	fills   map[string]uint64
	fillSeq uint64
}

type entry struct {
	key      string
	data     any
	storedAt time.Time
	ttl      time.Duration
	element  *list.Element
}

func (e *entry) expired(now time.Time) bool {
	return now.After(e.storedAt.Add(e.ttl))
}

// New creates a cache. Zero values in cfg fall back to the package defaults.
func New(cfg Config) *Cache {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Cache{
		capacity:   cfg.Capacity,
		defaultTTL: cfg.DefaultTTL,
		now:        cfg.Now,
		entries:    make(map[string]*entry),
		order:      list.New(),
		fills:      make(map[string]uint64),
	}
}

// Get returns the value stored under key. An entry past its TTL is removed and
// reported as absent.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}

	if e.expired(c.now()) {
		c.removeEntry(e)
		c.misses++
		return nil, false
	}

	c.hits++
	return e.data, true
}

// Set stores value under key with the default TTL.
func (c *Cache) Set(key string, value any) {
	c.SetWithTTL(key, value, 0)
}

// SetWithTTL stores value under key. A ttl <= 0 uses the default TTL.
// Overwriting an existing key keeps its insertion position.
func (c *Cache) SetWithTTL(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, value, ttl)
}

// setLocked must be called with lock held.
func (c *Cache) setLocked(key string, value any, ttl time.Duration) {
	now := c.now()

	if e, ok := c.entries[key]; ok {
		e.data = value
		e.storedAt = now
		e.ttl = ttl
		return
	}

	if len(c.entries) >= c.capacity {
		c.evictOldest()
	}

	e := &entry{
		key:      key,
		data:     value,
		storedAt: now,
		ttl:      ttl,
	}
	e.element = c.order.PushBack(e)
	c.entries[key] = e
}

// Delete removes key and reports whether it was present.
func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.dropFill(key)
	e, ok := c.entries[key]
	if !ok {
		return false
	}
	c.removeEntry(e)
	return true
}

// DeletePrefix removes every key starting with prefix and returns the count removed.
func (c *Cache) DeletePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var toDelete []*entry
	for key, e := range c.entries {
		if strings.HasPrefix(key, prefix) {
			toDelete = append(toDelete, e)
		}
	}
	for _, e := range toDelete {
		c.removeEntry(e)
	}
	for key := range c.fills {
		if strings.HasPrefix(key, prefix) {
			c.dropFill(key)
		}
	}
	return len(toDelete)
}

// Clear removes all entries. Counters are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	c.order.Init()
	for key := range c.fills {
		c.dropFill(key)
	}
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Size:      len(c.entries),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// DefaultTTL returns the TTL applied when none is given.
func (c *Cache) DefaultTTL() time.Duration {
	return c.defaultTTL
}

// evictOldest drops the first inserted entry. Must be called with lock held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	c.removeEntry(front.Value.(*entry))
	c.evictions++
}

// beginFill registers a producer run for key and returns its token.
func (c *Cache) beginFill(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fillSeq++
	c.fills[key] = c.fillSeq
	return c.fillSeq
}

// commitFill stores value only if no delete or newer fill superseded token.
func (c *Cache) commitFill(key string, token uint64, value any, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if current, ok := c.fills[key]; !ok || current != token {
		return false
	}
	delete(c.fills, key)
	c.setLocked(key, value, ttl)
	return true
}

func (c *Cache) abortFill(key string, token uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fills[key] == token {
		delete(c.fills, key)
	}
}

// dropFill detaches key from any in-flight producer so later callers start a
// fresh one. Must be called with lock held.
func (c *Cache) dropFill(key string) {
	if _, ok := c.fills[key]; !ok {
		return
	}
	delete(c.fills, key)
	c.flight.Forget(key)
}

// removeEntry must be called with lock held.
func (c *Cache) removeEntry(e *entry) {
	c.order.Remove(e.element)
	delete(c.entries, e.key)
}
