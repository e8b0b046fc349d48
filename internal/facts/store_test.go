package facts

import (
	"bytes"
	"path/filepath"
	"sync"
	"testing"
)

func routeFact(file, summary string) Fact {
	return New(KindRoute, summary, Evidence{File: file, LineStart: 1, Confidence: High})
}

func TestStoreAddAndIndexes(t *testing.T) {
	s := NewStore()
	s.Add(
		routeFact("routes/user.py", "GET /users"),
		routeFact("routes/order.py", "GET /orders"),
		New(KindFramework, "FastAPI (Web Framework)", Evidence{File: "main.py", Confidence: High}),
	)

	if s.Count() != 3 {
		t.Fatalf("count = %d, want 3", s.Count())
	}
	if got := len(s.ByKind(KindRoute)); got != 2 {
		t.Errorf("routes = %d, want 2", got)
	}
	if got := len(s.ByFile("main.py")); got != 1 {
		t.Errorf("facts in main.py = %d, want 1", got)
	}
	if got := len(s.Files()); got != 3 {
		t.Errorf("files = %d, want 3", got)
	}
}

func TestStoreConcurrentAdd(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				s.Add(routeFact("routes/a.py", "GET /a"))
			}
		}()
	}
	wg.Wait()
	if s.Count() != 400 {
		t.Errorf("count = %d, want 400", s.Count())
	}
}

func TestStoreJSONLRoundTrip(t *testing.T) {
	s := NewStore()
	s.Add(
		routeFact("routes/user.py", "GET /users").WithAttrs("method", "GET", "path", "/users"),
		Unparseable("bad.py", "timeout"),
	)

	var buf bytes.Buffer
	if err := s.WriteJSONL(&buf); err != nil {
		t.Fatal(err)
	}

	loaded := NewStore()
	if err := loaded.ReadJSONL(&buf); err != nil {
		t.Fatal(err)
	}
	if loaded.Count() != s.Count() {
		t.Fatalf("loaded %d facts, want %d", loaded.Count(), s.Count())
	}
	routes := loaded.ByKind(KindRoute)
	if len(routes) != 1 || routes[0].Attr("path") != "/users" {
		t.Errorf("route attrs lost in round trip: %+v", routes)
	}
}

func TestStoreJSONLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "facts.jsonl")

	s := NewStore()
	s.Add(routeFact("a.py", "GET /a"), routeFact("b.py", "GET /b"))
	if err := s.WriteJSONLFile(path); err != nil {
		t.Fatal(err)
	}

	loaded := NewStore()
	if err := loaded.ReadJSONLFile(path); err != nil {
		t.Fatal(err)
	}
	if loaded.Count() != 2 {
		t.Errorf("count = %d, want 2", loaded.Count())
	}
}

func TestStoreClear(t *testing.T) {
	s := NewStore()
	s.Add(routeFact("a.py", "GET /a"))
	s.Clear()
	if s.Count() != 0 || len(s.ByKind(KindRoute)) != 0 {
		t.Error("clear left facts behind")
	}
}
