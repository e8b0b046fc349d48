package extract

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/selitys/selitys/internal/facts"
)

func TestCachePutGet(t *testing.T) {
	c, err := NewCache(8)
	if err != nil {
		t.Fatal(err)
	}

	key := CacheKey{Path: "main.py", Fingerprint: "abc", Version: "python/1"}
	ff := []facts.Fact{facts.New(facts.KindEntryPoint, "Application entry point",
		facts.Evidence{File: "main.py", Confidence: facts.High})}

	if _, ok := c.Get(key); ok {
		t.Fatal("hit on empty cache")
	}
	c.Put(key, ff)
	got, ok := c.Get(key)
	if !ok || len(got) != 1 || got[0].Summary != "Application entry point" {
		t.Fatalf("get = %v, %v", got, ok)
	}

	// Changed fingerprint misses.
	if _, ok := c.Get(CacheKey{Path: "main.py", Fingerprint: "def", Version: "python/1"}); ok {
		t.Error("hit despite changed fingerprint")
	}
	// Changed extractor version misses.
	if _, ok := c.Get(CacheKey{Path: "main.py", Fingerprint: "abc", Version: "python/2"}); ok {
		t.Error("hit despite changed extractor version")
	}
}

func TestCacheEviction(t *testing.T) {
	c, err := NewCache(2)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{"a.py", "b.py", "c.py"} {
		c.Put(CacheKey{Path: p, Fingerprint: "f", Version: "v"}, nil)
	}
	if c.Len() != 2 {
		t.Errorf("len = %d, want 2", c.Len())
	}
	if _, ok := c.Get(CacheKey{Path: "a.py", Fingerprint: "f", Version: "v"}); ok {
		t.Error("oldest entry should have been evicted")
	}
}

func TestCacheSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")

	c, err := NewCache(8)
	if err != nil {
		t.Fatal(err)
	}
	key := CacheKey{Path: "routes.py", Fingerprint: "ff00", Version: "python/1"}
	c.Put(key, []facts.Fact{facts.New(facts.KindRoute, "GET /users",
		facts.Evidence{File: "routes.py", LineStart: 4, Confidence: facts.High})})
	if err := c.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := NewCache(8)
	if err != nil {
		t.Fatal(err)
	}
	loaded.Load(path)

	ff, ok := loaded.Get(key)
	if !ok {
		t.Fatal("entry lost in round trip")
	}
	if ff[0].Summary != "GET /users" || ff[0].Evidence[0].LineStart != 4 {
		t.Errorf("loaded fact = %+v", ff[0])
	}
}

func TestCacheLoadCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := NewCache(8)
	if err != nil {
		t.Fatal(err)
	}
	c.Load(path)
	if c.Len() != 0 {
		t.Errorf("len = %d, want 0 after corrupt load", c.Len())
	}
}

func TestCacheLoadMissingFileIsClean(t *testing.T) {
	c, err := NewCache(8)
	if err != nil {
		t.Fatal(err)
	}
	c.Load(filepath.Join(t.TempDir(), "absent.json"))
	if c.Len() != 0 {
		t.Errorf("len = %d, want 0", c.Len())
	}
}
