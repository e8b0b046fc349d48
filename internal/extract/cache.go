package extract

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/selitys/selitys/internal/facts"
)

// CacheKey identifies one extraction result. Any change to the file
// content or the extractor invalidates the entry via a key miss; stale
// entries age out of the LRU, there is no explicit invalidation.
type CacheKey struct {
	Path        string `json:"path"`
	Fingerprint string `json:"fingerprint"`
	Version     string `json:"version"`
}

// Cache memoizes per-file extraction results across runs.
type Cache struct {
	lru *lru.Cache[CacheKey, []facts.Fact]
}

// NewCache creates a cache holding at most size entries.
func NewCache(size int) (*Cache, error) {
	c, err := lru.New[CacheKey, []facts.Fact](size)
	if err != nil {
		return nil, fmt.Errorf("creating extraction cache: %w", err)
	}
	return &Cache{lru: c}, nil
}

// Get returns the cached facts for the key, if present.
func (c *Cache) Get(key CacheKey) ([]facts.Fact, bool) {
	return c.lru.Get(key)
}

// Put stores the facts for the key.
func (c *Cache) Put(key CacheKey, ff []facts.Fact) {
	c.lru.Add(key, ff)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// cacheEntry is the on-disk form of one cache slot.
type cacheEntry struct {
	Key   CacheKey     `json:"key"`
	Facts []facts.Fact `json:"facts"`
}

// Save writes the cache contents to path as JSON, oldest entry first so
// a later Load repopulates the LRU in recency order.
func (c *Cache) Save(path string) error {
	entries := make([]cacheEntry, 0, c.lru.Len())
	for _, key := range c.lru.Keys() {
		if ff, ok := c.lru.Peek(key); ok {
			entries = append(entries, cacheEntry{Key: key, Facts: ff})
		}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encoding cache: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing cache %s: %w", path, err)
	}
	return nil
}

// Load reads previously saved entries into the cache. A missing file is
// a clean start; a corrupt file is logged and treated as empty, never
// an error.
func (c *Cache) Load(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[cache] reading %s: %v", path, err)
		}
		return
	}
	var entries []cacheEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		log.Printf("[cache] %s is corrupt, starting empty: %v", path, err)
		return
	}
	for _, e := range entries {
		c.lru.Add(e.Key, e.Facts)
	}
}
