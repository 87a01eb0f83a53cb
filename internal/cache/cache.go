// Package cache implements a two-tier, TTL-bounded, LRU-evicted in-process
// cache for episodic memories. It sits in front of the store as best-effort
// acceleration: an inconsistency self-heals on the next expiry or explicit
// invalidation and never blocks a request.
package cache

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/engramdev/engram/internal/models"
)

// Config holds cache construction options.
type Config struct {
	RecentSize          int           // capacity of the recent tier (default: 100)
	ImportantSize       int           // capacity of the important tier (default: 50)
	ImportanceThreshold int           // minimum importance for the important tier (default: 8)
	DefaultTTL          time.Duration // entry lifetime when Set is called without a TTL (default: 5 minutes)
	EnableCleanup       bool          // run a background janitor removing expired entries
	CleanupInterval     time.Duration // janitor period (default: 1 minute)
}

// DefaultConfig returns the standard two-tier sizing.
func DefaultConfig() Config {
	return Config{
		RecentSize:          100,
		ImportantSize:       50,
		ImportanceThreshold: 8,
		DefaultTTL:          5 * time.Minute,
		EnableCleanup:       false,
		CleanupInterval:     time.Minute,
	}
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Evictions   int64 `json:"evictions"`
	Expirations int64 `json:"expirations"`
}

type entry struct {
	memory    *models.Memory
	expiresAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// Cache is an explicitly constructed object with its own lifecycle; multiple
// instances in one process never share state.
type Cache struct {
	cfg       Config
	recent    *lru.Cache[string, *entry]
	important *lru.Cache[string, *entry]
	logger    *slog.Logger

	hits        atomic.Int64
	misses      atomic.Int64
	evictions   atomic.Int64
	expirations atomic.Int64

	stopOnce sync.Once
	stop     chan struct{}
}

// New creates a cache and, when configured, starts its cleanup janitor.
// Callers own the lifecycle and must Close it.
func New(cfg Config, logger *slog.Logger) (*Cache, error) {
	if cfg.RecentSize <= 0 {
		cfg.RecentSize = 100
	}
	if cfg.ImportantSize <= 0 {
		cfg.ImportantSize = 50
	}
	if cfg.ImportanceThreshold <= 0 {
		cfg.ImportanceThreshold = 8
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 5 * time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}

	recent, err := lru.New[string, *entry](cfg.RecentSize)
	if err != nil {
		return nil, err
	}
	important, err := lru.New[string, *entry](cfg.ImportantSize)
	if err != nil {
		return nil, err
	}

	c := &Cache{
		cfg:       cfg,
		recent:    recent,
		important: important,
		logger:    logger,
		stop:      make(chan struct{}),
	}

	if cfg.EnableCleanup {
		go c.janitor()
	}
	return c, nil
}

// Get returns a cached memory, checking the recent tier first. An expired
// entry counts as a miss and is evicted lazily.
func (c *Cache) Get(id string) (*models.Memory, bool) {
	now := time.Now()

	if e, ok := c.recent.Get(id); ok {
		if !e.expired(now) {
			c.hits.Add(1)
			return e.memory, true
		}
		c.recent.Remove(id)
		c.expirations.Add(1)
	}

	if e, ok := c.important.Get(id); ok {
		if !e.expired(now) {
			c.hits.Add(1)
			return e.memory, true
		}
		c.important.Remove(id)
		c.expirations.Add(1)
	}

	c.misses.Add(1)
	return nil, false
}

// Set writes a memory into the recent tier and, when its importance clears
// the threshold, into the important tier as well. A non-positive ttl falls
// back to the configured default.
func (c *Cache) Set(m *models.Memory, ttl time.Duration) {
	if m == nil || m.ID == "" {
		return
	}
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}
	e := &entry{memory: m, expiresAt: time.Now().Add(ttl)}

	// Add reports an LRU eviction only when inserting a new key into a full
	// tier; updating an existing key never evicts.
	if c.recent.Add(m.ID, e) {
		c.evictions.Add(1)
	}
	if m.Importance >= c.cfg.ImportanceThreshold {
		if c.important.Add(m.ID, e) {
			c.evictions.Add(1)
		}
	}
}

// Invalidate removes a memory from both tiers.
func (c *Cache) Invalidate(id string) {
	c.recent.Remove(id)
	c.important.Remove(id)
}

// Cleanup removes every expired entry from both tiers and returns how many
// were dropped.
func (c *Cache) Cleanup() int {
	now := time.Now()
	removed := 0

	for _, tier := range []*lru.Cache[string, *entry]{c.recent, c.important} {
		for _, id := range tier.Keys() {
			if e, ok := tier.Peek(id); ok && e.expired(now) {
				tier.Remove(id)
				c.expirations.Add(1)
				removed++
			}
		}
	}
	return removed
}

// Len returns the number of live entries per tier (expired entries included
// until a read or cleanup drops them).
func (c *Cache) Len() (recent, important int) {
	return c.recent.Len(), c.important.Len()
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Evictions:   c.evictions.Load(),
		Expirations: c.expirations.Load(),
	}
}

// ResetStats zeroes the counters without touching cached entries.
func (c *Cache) ResetStats() {
	c.hits.Store(0)
	c.misses.Store(0)
	c.evictions.Store(0)
	c.expirations.Store(0)
}

// Close stops the janitor. The cache remains usable afterwards; entries just
// expire lazily.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache) janitor() {
	ticker := time.NewTicker(c.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := c.Cleanup(); n > 0 && c.logger != nil {
				c.logger.Debug("cache cleanup", "expired", n)
			}
		case <-c.stop:
			return
		}
	}
}
