package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramdev/engram/internal/models"
)

func newTestCache(t *testing.T, cfg Config) *Cache {
	t.Helper()
	c, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func mem(id string, importance int) *models.Memory {
	return &models.Memory{ID: id, Content: "content of " + id, Importance: importance}
}

func TestCacheHitAndMiss(t *testing.T) {
	c := newTestCache(t, DefaultConfig())

	m := mem("m1", 5)
	c.Set(m, 0)

	got, ok := c.Get("m1")
	require.True(t, ok)
	assert.Equal(t, m, got)

	_, ok = c.Get("absent")
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestCacheTTLExpiry(t *testing.T) {
	c := newTestCache(t, DefaultConfig())

	c.Set(mem("short", 5), 10*time.Millisecond)

	_, ok := c.Get("short")
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	_, ok = c.Get("short")
	require.False(t, ok, "expired entry must read as a miss")

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Expirations)
	assert.Equal(t, int64(1), stats.Misses)

	// The lazy eviction must have removed the entry, not just hidden it.
	recent, _ := c.Len()
	assert.Equal(t, 0, recent)
}

func TestCacheLRUEviction(t *testing.T) {
	c := newTestCache(t, Config{RecentSize: 3, ImportantSize: 2})

	for i := 0; i < 4; i++ {
		c.Set(mem(fmt.Sprintf("m%d", i), 5), 0)
	}

	_, ok := c.Get("m0")
	assert.False(t, ok, "oldest entry should have been evicted")
	_, ok = c.Get("m3")
	assert.True(t, ok)

	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestCacheImportantTierSurvivesRecentEviction(t *testing.T) {
	c := newTestCache(t, Config{RecentSize: 2, ImportantSize: 5, ImportanceThreshold: 8})

	c.Set(mem("vip", 9), 0)
	c.Set(mem("a", 5), 0)
	c.Set(mem("b", 5), 0) // pushes vip out of the recent tier

	got, ok := c.Get("vip")
	require.True(t, ok, "important memory must still be cached")
	assert.Equal(t, 9, got.Importance)

	recent, important := c.Len()
	assert.Equal(t, 2, recent)
	assert.Equal(t, 1, important)
}

func TestCacheInvalidate(t *testing.T) {
	c := newTestCache(t, DefaultConfig())

	c.Set(mem("both", 9), 0)
	c.Invalidate("both")

	_, ok := c.Get("both")
	assert.False(t, ok)
}

func TestCacheCleanup(t *testing.T) {
	c := newTestCache(t, DefaultConfig())

	c.Set(mem("stale1", 5), 5*time.Millisecond)
	c.Set(mem("stale2", 9), 5*time.Millisecond)
	c.Set(mem("fresh", 5), time.Minute)

	time.Sleep(10 * time.Millisecond)

	removed := c.Cleanup()
	// stale2 sits in both tiers, so cleanup sees three expired entries.
	assert.Equal(t, 3, removed)

	_, ok := c.Get("fresh")
	assert.True(t, ok)
}

func TestCacheResetStats(t *testing.T) {
	c := newTestCache(t, DefaultConfig())

	c.Set(mem("x", 5), 0)
	c.Get("x")
	c.Get("y")

	c.ResetStats()
	assert.Equal(t, Stats{}, c.Stats())

	_, ok := c.Get("x")
	assert.True(t, ok, "reset must not drop entries")
}
