package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, ttl time.Duration) *QueryCache {
	t.Helper()
	c, err := NewQueryCache(t.TempDir(), ttl, zerolog.Nop())
	require.NoError(t, err)
	return c
}

func TestKeyDeterministic(t *testing.T) {
	k1 := Key("prompt", "context", "claude-sonnet")
	k2 := Key("prompt", "context", "claude-sonnet")
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 64)

	assert.NotEqual(t, k1, Key("prompt", "context", "claude-haiku"))
	assert.NotEqual(t, k1, Key("prompt", "other", "claude-sonnet"))
}

func TestQueryCacheRoundTrip(t *testing.T) {
	c := newTestCache(t, time.Hour)
	key := Key("p", "c", "m")

	_, ok := c.Get(key)
	assert.False(t, ok)

	require.NoError(t, c.Set(key, "the answer", 120, "m"))

	result, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, "the answer", result)

	stats := c.Stats()
	assert.Equal(t, 1, stats.Hits)
	assert.Equal(t, 1, stats.Misses)
	assert.Equal(t, 0.5, stats.HitRate)
	assert.Equal(t, 120, stats.TokensSaved)
}

func TestQueryCacheCorruptEntryRemoved(t *testing.T) {
	c := newTestCache(t, time.Hour)
	key := Key("p", "c", "m")

	path := filepath.Join(c.dir, key+".json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, ok := c.Get(key)
	assert.False(t, ok)
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestQueryCacheExpiry(t *testing.T) {
	c := newTestCache(t, time.Hour)
	key := Key("p", "c", "m")

	stale := entry{
		Result:    "old",
		CreatedAt: time.Now().Add(-2 * time.Hour).Format(time.RFC3339),
	}
	data, err := json.Marshal(stale)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(c.dir, key+".json"), data, 0o644))

	_, ok := c.Get(key)
	assert.False(t, ok)
}

func TestQueryCacheClear(t *testing.T) {
	c := newTestCache(t, time.Hour)
	require.NoError(t, c.Set(Key("a", "", "m"), "1", 0, "m"))
	require.NoError(t, c.Set(Key("b", "", "m"), "2", 0, "m"))

	assert.Equal(t, 2, c.Clear())
	assert.Equal(t, 0, c.Clear())
}

func TestCleanupExpired(t *testing.T) {
	c := newTestCache(t, time.Hour)

	require.NoError(t, c.Set(Key("fresh", "", "m"), "keep", 0, "m"))

	stale := entry{Result: "old", CreatedAt: time.Now().Add(-2 * time.Hour).Format(time.RFC3339)}
	data, _ := json.Marshal(stale)
	require.NoError(t, os.WriteFile(filepath.Join(c.dir, Key("stale", "", "m")+".json"), data, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(c.dir, "broken.json"), []byte("x"), 0o644))

	assert.Equal(t, 2, c.CleanupExpired())

	_, ok := c.Get(Key("fresh", "", "m"))
	assert.True(t, ok)
}
