// Package cache provides disk-backed caches for model query results and
// security pattern analyses. Each entry is one JSON file keyed by a SHA-256
// hash; corrupt or expired files are deleted and treated as absent.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTTL is the query cache expiry when none is configured.
const DefaultTTL = 24 * time.Hour

// entry is the on-disk shape of one cached query result.
type entry struct {
	Result      string `json:"result"`
	CreatedAt   string `json:"created_at"`
	TokensSaved int    `json:"tokens_saved"`
	Model       string `json:"model"`
	PromptHash  string `json:"prompt_hash"`
}

// Stats summarizes cache effectiveness for the current process.
type Stats struct {
	Hits        int     `json:"hits"`
	Misses      int     `json:"misses"`
	HitRate     float64 `json:"hit_rate"`
	TokensSaved int     `json:"tokens_saved"`
}

// QueryCache is a disk-backed cache for model query results. Hit/miss
// counters are in-memory and per-process; the entries themselves persist.
// Safe for concurrent use.
type QueryCache struct {
	dir string
	ttl time.Duration
	log zerolog.Logger

	mu          sync.Mutex
	hits        int
	misses      int
	tokensSaved int
}

// NewQueryCache creates a cache rooted at dir with the given TTL. The
// directory is created if missing; ttl <= 0 uses DefaultTTL.
func NewQueryCache(dir string, ttl time.Duration, log zerolog.Logger) (*QueryCache, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "rlm_cache")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &QueryCache{dir: dir, ttl: ttl, log: log}, nil
}

// Key derives the cache key for a prompt, context and model combination.
func Key(prompt, contextData, model string) string {
	sum := sha256.Sum256([]byte(prompt + "|" + contextData + "|" + model))
	return hex.EncodeToString(sum[:])
}

func (c *QueryCache) path(key string) string {
	return filepath.Join(c.dir, key+".json")
}

// Get returns the cached result for key if present and unexpired. Corrupt
// and expired files are deleted and reported as absent.
func (c *QueryCache) Get(key string) (string, bool) {
	path := c.path(key)

	data, err := os.ReadFile(path)
	if err != nil {
		c.recordMiss()
		return "", false
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		c.log.Debug().Str("key", key).Msg("corrupt cache entry removed")
		os.Remove(path)
		c.recordMiss()
		return "", false
	}

	created, err := time.Parse(time.RFC3339, e.CreatedAt)
	if err != nil || time.Since(created) > c.ttl {
		os.Remove(path)
		c.recordMiss()
		return "", false
	}

	c.mu.Lock()
	c.hits++
	c.tokensSaved += e.TokensSaved
	c.mu.Unlock()
	return e.Result, true
}

// Set stores a result under key, recording the tokens a future hit saves.
func (c *QueryCache) Set(key, result string, tokens int, model string) error {
	e := entry{
		Result:      result,
		CreatedAt:   time.Now().Format(time.RFC3339),
		TokensSaved: tokens,
		Model:       model,
		PromptHash:  key[:16],
	}
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.path(key), data, 0o644)
}

// Stats returns the per-process hit/miss counters.
func (c *QueryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{Hits: c.hits, Misses: c.misses, HitRate: rate, TokensSaved: c.tokensSaved}
}

// Clear removes every entry and returns the number removed.
func (c *QueryCache) Clear() int {
	files, _ := filepath.Glob(filepath.Join(c.dir, "*.json"))
	count := 0
	for _, f := range files {
		if os.Remove(f) == nil {
			count++
		}
	}
	return count
}

// CleanupExpired removes expired and unparsable entries, returning the
// number removed.
func (c *QueryCache) CleanupExpired() int {
	files, _ := filepath.Glob(filepath.Join(c.dir, "*.json"))
	count := 0
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		var e entry
		if err := json.Unmarshal(data, &e); err != nil {
			os.Remove(f)
			count++
			continue
		}
		created, err := time.Parse(time.RFC3339, e.CreatedAt)
		if err != nil || time.Since(created) > c.ttl {
			os.Remove(f)
			count++
		}
	}
	return count
}

func (c *QueryCache) recordMiss() {
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
}
