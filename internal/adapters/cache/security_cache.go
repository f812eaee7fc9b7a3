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

// SecurityTTL is the default expiry for security pattern entries. Security
// patterns are more stable than general query results, so they live a week
// rather than a day.
const SecurityTTL = 168 * time.Hour

// securityEntry is the on-disk shape of one cached analysis.
type securityEntry struct {
	Result    json.RawMessage `json:"result"`
	CreatedAt string          `json:"created_at"`
	IOC       string          `json:"ioc"`
	IOCType   string          `json:"ioc_type"`
}

// SecurityCache caches per-IOC analyses and MITRE mappings, separate from
// the general query cache. Safe for concurrent use.
type SecurityCache struct {
	dir string
	ttl time.Duration
	log zerolog.Logger

	mu     sync.Mutex
	hits   int
	misses int
}

// NewSecurityCache creates a security pattern cache rooted at dir.
func NewSecurityCache(dir string, ttl time.Duration, log zerolog.Logger) (*SecurityCache, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "security_cache")
	}
	if ttl <= 0 {
		ttl = SecurityTTL
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &SecurityCache{dir: dir, ttl: ttl, log: log}, nil
}

func securityKey(ioc, iocType, analysisType string) string {
	sum := sha256.Sum256([]byte(iocType + ":" + ioc + ":" + analysisType))
	return hex.EncodeToString(sum[:])
}

func (c *SecurityCache) path(key string) string {
	return filepath.Join(c.dir, "sec_"+key+".json")
}

// GetIOCAnalysis returns the cached analysis for an IOC, unmarshalled into
// out, if present and unexpired.
func (c *SecurityCache) GetIOCAnalysis(ioc, iocType string, out any) bool {
	return c.get(securityKey(ioc, iocType, "general"), out)
}

// CacheIOCAnalysis stores an analysis result for an IOC.
func (c *SecurityCache) CacheIOCAnalysis(ioc, iocType string, analysis any) error {
	return c.set(securityKey(ioc, iocType, "general"), ioc, iocType, analysis)
}

// GetMITREMapping returns the cached technique list for an alert signature.
func (c *SecurityCache) GetMITREMapping(alertSignature string) ([]string, bool) {
	var techniques []string
	if !c.get(securityKey(alertSignature, "mitre", "mapping"), &techniques) {
		return nil, false
	}
	return techniques, true
}

// CacheMITREMapping stores a technique mapping for an alert signature.
func (c *SecurityCache) CacheMITREMapping(alertSignature string, techniques []string) error {
	return c.set(securityKey(alertSignature, "mitre", "mapping"), alertSignature, "mitre", techniques)
}

func (c *SecurityCache) get(key string, out any) bool {
	path := c.path(key)

	data, err := os.ReadFile(path)
	if err != nil {
		c.recordMiss()
		return false
	}

	var e securityEntry
	if err := json.Unmarshal(data, &e); err != nil {
		c.log.Debug().Str("key", key).Msg("corrupt security cache entry removed")
		os.Remove(path)
		c.recordMiss()
		return false
	}

	created, err := time.Parse(time.RFC3339, e.CreatedAt)
	if err != nil || time.Since(created) > c.ttl {
		os.Remove(path)
		c.recordMiss()
		return false
	}

	if err := json.Unmarshal(e.Result, out); err != nil {
		os.Remove(path)
		c.recordMiss()
		return false
	}

	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
	return true
}

func (c *SecurityCache) set(key, ioc, iocType string, result any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	e := securityEntry{
		Result:    raw,
		CreatedAt: time.Now().Format(time.RFC3339),
		IOC:       ioc,
		IOCType:   iocType,
	}
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.path(key), data, 0o644)
}

// Stats returns the per-process hit/miss counters.
func (c *SecurityCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{Hits: c.hits, Misses: c.misses, HitRate: rate}
}

// Clear removes every security cache entry and returns the number removed.
func (c *SecurityCache) Clear() int {
	files, _ := filepath.Glob(filepath.Join(c.dir, "sec_*.json"))
	count := 0
	for _, f := range files {
		if os.Remove(f) == nil {
			count++
		}
	}
	return count
}

func (c *SecurityCache) recordMiss() {
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
}
