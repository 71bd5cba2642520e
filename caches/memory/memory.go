// Package memory provides an in-process cache with TTL eviction.
// It is the L1 tier of the dual cache and the default backend when
// no Redis is configured.
package memory

import (
	"container/heap"
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BerriAI/litellm-go/pkg/cache"
)

// Cache implements cache.Cache backed by a map with a min-heap of
// expirations. A janitor goroutine sweeps expired entries; reads also
// expire lazily.
type Cache struct {
	mu sync.RWMutex

	data map[string]*entry
	ttls map[string]int64 // key -> expiration unix nano, mirrors heap entries

	expirations expirationHeap

	maxSize     int
	defaultTTL  time.Duration
	maxItemSize int
	janitor     *time.Ticker
	stopJanitor chan struct{}

	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
}

type entry struct {
	value      []byte
	expiration int64
}

type expirationEntry struct {
	key        string
	expiration int64
	index      int
}

type expirationHeap []*expirationEntry

func (h expirationHeap) Len() int           { return len(h) }
func (h expirationHeap) Less(i, j int) bool { return h[i].expiration < h[j].expiration }
func (h expirationHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *expirationHeap) Push(x any) {
	e, ok := x.(*expirationEntry)
	if !ok {
		return
	}
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *expirationHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Config holds configuration for the in-memory cache.
type Config struct {
	MaxSize         int           // Maximum number of items (default: 1000)
	DefaultTTL      time.Duration // Default TTL (default: 10 minutes)
	MaxItemSize     int           // Maximum size per item in bytes (default: 1MB)
	CleanupInterval time.Duration // Janitor sweep interval (default: 1 minute)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxSize:         1000,
		DefaultTTL:      10 * time.Minute,
		MaxItemSize:     1024 * 1024,
		CleanupInterval: time.Minute,
	}
}

// New creates an in-memory cache and starts its janitor.
func New(cfg Config) *Cache {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 1000
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 10 * time.Minute
	}
	if cfg.MaxItemSize <= 0 {
		cfg.MaxItemSize = 1024 * 1024
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}

	c := &Cache{
		data:        make(map[string]*entry),
		ttls:        make(map[string]int64),
		expirations: make(expirationHeap, 0),
		maxSize:     cfg.MaxSize,
		defaultTTL:  cfg.DefaultTTL,
		maxItemSize: cfg.MaxItemSize,
		stopJanitor: make(chan struct{}),
	}
	heap.Init(&c.expirations)

	c.janitor = time.NewTicker(cfg.CleanupInterval)
	go c.janitorLoop()

	return c
}

func (c *Cache) janitorLoop() {
	for {
		select {
		case <-c.janitor.C:
			c.evictExpired()
		case <-c.stopJanitor:
			return
		}
	}
}

func (c *Cache) evictExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UnixNano()
	for c.expirations.Len() > 0 {
		top := c.expirations[0]
		// Stale heap entries: the key was overwritten with a new expiration.
		if stored, ok := c.ttls[top.key]; !ok || stored != top.expiration {
			heap.Pop(&c.expirations)
			continue
		}
		if top.expiration <= now {
			heap.Pop(&c.expirations)
			delete(c.data, top.key)
			delete(c.ttls, top.key)
		} else {
			break
		}
	}
}

// evictForSpace frees room when the cache is at capacity. Must hold the lock.
func (c *Cache) evictForSpace() {
	now := time.Now().UnixNano()
	for c.expirations.Len() > 0 && len(c.data) >= c.maxSize {
		top := c.expirations[0]
		if stored, ok := c.ttls[top.key]; !ok || stored != top.expiration {
			heap.Pop(&c.expirations)
			continue
		}
		if top.expiration <= now || len(c.data) >= c.maxSize {
			heap.Pop(&c.expirations)
			delete(c.data, top.key)
			delete(c.ttls, top.key)
		} else {
			break
		}
	}
}

// Get retrieves a value. Returns nil, nil on miss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	e, ok := c.data[key]
	c.mu.RUnlock()

	if !ok {
		c.misses.Add(1)
		return nil, nil
	}

	if e.expiration > 0 && e.expiration <= time.Now().UnixNano() {
		c.misses.Add(1)
		c.mu.Lock()
		delete(c.data, key)
		delete(c.ttls, key)
		c.mu.Unlock()
		return nil, nil
	}

	c.hits.Add(1)
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

// Set stores a value with the given TTL (default TTL when zero).
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if len(value) > c.maxItemSize {
		return nil // oversized items are skipped, not errors
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	expiration := time.Now().Add(ttl).UnixNano()

	v := make([]byte, len(value))
	copy(v, value)

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.data) >= c.maxSize {
		c.evictForSpace()
	}

	c.data[key] = &entry{value: v, expiration: expiration}
	c.ttls[key] = expiration
	heap.Push(&c.expirations, &expirationEntry{key: key, expiration: expiration})

	c.sets.Add(1)
	return nil
}

// Delete removes a key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	delete(c.ttls, key)
	return nil
}

// SetPipeline performs batch sets.
func (c *Cache) SetPipeline(ctx context.Context, entries []cache.Entry) error {
	for _, e := range entries {
		if err := c.Set(ctx, e.Key, e.Value, e.TTL); err != nil {
			return err
		}
	}
	return nil
}

// GetMulti retrieves multiple keys; missing keys are omitted.
func (c *Cache) GetMulti(ctx context.Context, keys []string) (map[string][]byte, error) {
	result := make(map[string][]byte, len(keys))

	c.mu.RLock()
	now := time.Now().UnixNano()
	for _, key := range keys {
		if e, ok := c.data[key]; ok && (e.expiration == 0 || e.expiration > now) {
			v := make([]byte, len(e.value))
			copy(v, e.value)
			result[key] = v
			c.hits.Add(1)
		} else {
			c.misses.Add(1)
		}
	}
	c.mu.RUnlock()

	return result, nil
}

// IncrEx atomically increments a counter and applies the TTL when the
// counter is created by this call. Expired counters restart from zero.
func (c *Cache) IncrEx(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UnixNano()
	var current int64
	e, ok := c.data[key]
	if ok && (e.expiration == 0 || e.expiration > now) {
		current = parseInt64(e.value)
		current += delta
		e.value = formatInt64(current)
		return current, nil
	}

	current = delta
	expiration := time.Now().Add(ttl).UnixNano()
	c.data[key] = &entry{value: formatInt64(current), expiration: expiration}
	c.ttls[key] = expiration
	heap.Push(&c.expirations, &expirationEntry{key: key, expiration: expiration})
	return current, nil
}

// SetNX stores the value only when the key is absent, returning whether
// the write happened. Used for single-flight build locks.
func (c *Cache) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UnixNano()
	if e, ok := c.data[key]; ok && (e.expiration == 0 || e.expiration > now) {
		return false, nil
	}

	v := make([]byte, len(value))
	copy(v, value)
	expiration := time.Now().Add(ttl).UnixNano()
	c.data[key] = &entry{value: v, expiration: expiration}
	c.ttls[key] = expiration
	heap.Push(&c.expirations, &expirationEntry{key: key, expiration: expiration})
	c.sets.Add(1)
	return true, nil
}

// Ping always succeeds for the in-memory cache.
func (c *Cache) Ping(ctx context.Context) error {
	return nil
}

// Close stops the janitor.
func (c *Cache) Close() error {
	c.janitor.Stop()
	close(c.stopJanitor)
	return nil
}

// Stats returns cache statistics.
func (c *Cache) Stats() cache.Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	total := hits + misses

	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return cache.Stats{
		Hits:    hits,
		Misses:  misses,
		Sets:    c.sets.Load(),
		HitRate: hitRate,
	}
}

// Len returns the number of live items.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Flush removes all entries.
func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]*entry)
	c.ttls = make(map[string]int64)
	c.expirations = make(expirationHeap, 0)
	heap.Init(&c.expirations)
}

func parseInt64(b []byte) int64 {
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func formatInt64(n int64) []byte {
	return strconv.AppendInt(nil, n, 10)
}
