package merge

import (
	"math/rand"
	"reflect"
	"testing"

	"github.com/selitys/selitys/internal/facts"
)

func route(file, method, path string, line int, conf facts.Confidence) facts.Fact {
	return facts.New(facts.KindRoute, method+" "+path,
		facts.Evidence{File: file, LineStart: line, LineEnd: line, Confidence: conf},
	).WithAttrs("method", method, "path", path, "file", file)
}

func TestMergeDeterministicUnderPermutation(t *testing.T) {
	ff := []facts.Fact{
		route("routes/user.py", "GET", "/users", 10, facts.High),
		route("routes/user.py", "POST", "/users", 20, facts.High),
		route("routes/order.py", "GET", "/orders", 5, facts.High),
		facts.New(facts.KindFramework, "FastAPI (Web Framework)",
			facts.Evidence{File: "main.py", LineStart: 1, Confidence: facts.High},
		).WithAttrs("name", "FastAPI", "category", "Web Framework"),
		facts.New(facts.KindEnvVar, "Environment variable PORT",
			facts.Evidence{File: "config.py", LineStart: 3, Confidence: facts.High},
		).WithAttrs("name", "PORT"),
	}

	base := Merge(ff)
	rng := rand.New(rand.NewSource(42))
	for range 10 {
		shuffled := make([]facts.Fact, len(ff))
		copy(shuffled, ff)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		if got := Merge(shuffled); !reflect.DeepEqual(got, base) {
			t.Fatal("merge output differs under input permutation")
		}
	}
}

func TestMergeDeduplicatesSameClaim(t *testing.T) {
	ff := []facts.Fact{
		route("routes/user.py", "GET", "/users", 10, facts.High),
		route("routes/user.py", "GET", "/users", 10, facts.Low),
	}
	merged := Merge(ff)
	if len(merged) != 1 {
		t.Fatalf("merged = %d facts, want 1", len(merged))
	}
	if merged[0].Confidence != facts.High {
		t.Errorf("confidence = %q, want high (stronger wins)", merged[0].Confidence)
	}
}

func TestMergeConflictKeepsLoserEvidence(t *testing.T) {
	strong := route("routes/user.py", "GET", "/users", 10, facts.High)
	weak := facts.New(facts.KindRoute, "GET /users",
		facts.Evidence{File: "routes/user.py", LineStart: 12, Symbol: "alt_handler", Confidence: facts.Low},
	).WithAttrs("method", "GET", "path", "/users", "file", "routes/user.py")

	merged := Merge([]facts.Fact{weak, strong})
	if len(merged) != 1 {
		t.Fatalf("merged = %d facts, want 1", len(merged))
	}
	if merged[0].Confidence != facts.High {
		t.Errorf("confidence = %q, want high", merged[0].Confidence)
	}
	if len(merged[0].Evidence) != 2 {
		t.Errorf("evidence = %+v, want both sightings retained", merged[0].Evidence)
	}
}

func TestMergeFrameworksGlobalAcrossFiles(t *testing.T) {
	fw := func(file string) facts.Fact {
		return facts.New(facts.KindFramework, "FastAPI (Web Framework)",
			facts.Evidence{File: file, LineStart: 1, Confidence: facts.High},
		).WithAttrs("name", "FastAPI", "category", "Web Framework")
	}
	merged := Merge([]facts.Fact{fw("main.py"), fw("routes/user.py"), fw("routes/order.py")})
	if len(merged) != 1 {
		t.Fatalf("merged = %d framework facts, want 1", len(merged))
	}
	if len(merged[0].Evidence) != 3 {
		t.Errorf("evidence from all files should accumulate, got %d", len(merged[0].Evidence))
	}
}

func TestMergeDistinctRoutesSurvive(t *testing.T) {
	ff := []facts.Fact{
		route("a.py", "GET", "/users", 1, facts.High),
		route("a.py", "POST", "/users", 2, facts.High),
		route("b.py", "GET", "/users", 1, facts.High), // same route shape, different file
	}
	if merged := Merge(ff); len(merged) != 3 {
		t.Errorf("merged = %d, want 3 distinct routes", len(merged))
	}
}

func TestApplyRouterPrefixesCrossFile(t *testing.T) {
	files := []string{"app/main.py", "app/routes/user.py"}
	ff := []facts.Fact{
		facts.New(facts.KindPatternHint, "Router mount /api",
			facts.Evidence{File: "app/main.py", LineStart: 8, Confidence: facts.High},
		).WithAttrs("pattern", "router_include", "prefix", "/api", "target_module", "app.routes.user"),
		route("app/routes/user.py", "GET", "/users", 5, facts.High),
	}

	out := ApplyRouterPrefixes(ff, files)

	var got facts.Fact
	for _, f := range out {
		if f.Kind == facts.KindRoute {
			got = f
		}
	}
	if got.Attr("path") != "/api/users" {
		t.Errorf("path = %q, want /api/users", got.Attr("path"))
	}
	if got.Summary != "GET /api/users" {
		t.Errorf("summary = %q", got.Summary)
	}
}

func TestApplyRouterPrefixesNested(t *testing.T) {
	files := []string{"main.py", "api/v1.py", "api/users.py"}
	ff := []facts.Fact{
		facts.New(facts.KindPatternHint, "Router mount /api",
			facts.Evidence{File: "main.py", Confidence: facts.High},
		).WithAttrs("pattern", "router_include", "prefix", "/api", "target_module", "api.v1"),
		facts.New(facts.KindPatternHint, "Router mount /v1",
			facts.Evidence{File: "api/v1.py", Confidence: facts.High},
		).WithAttrs("pattern", "router_include", "prefix", "/v1", "target_module", "api.users"),
		route("api/users.py", "GET", "/me", 3, facts.High),
	}

	out := ApplyRouterPrefixes(ff, files)
	for _, f := range out {
		if f.Kind == facts.KindRoute && f.Attr("path") != "/api/v1/me" {
			t.Errorf("path = %q, want /api/v1/me", f.Attr("path"))
		}
	}
}

func TestApplyRouterPrefixesAlreadyPrefixed(t *testing.T) {
	files := []string{"main.py", "routes/user.py"}
	ff := []facts.Fact{
		facts.New(facts.KindPatternHint, "Router mount /api",
			facts.Evidence{File: "main.py", Confidence: facts.High},
		).WithAttrs("pattern", "router_include", "prefix", "/api", "target_module", "routes.user"),
		route("routes/user.py", "GET", "/api/users", 5, facts.High),
	}

	out := ApplyRouterPrefixes(ff, files)
	for _, f := range out {
		if f.Kind == facts.KindRoute && f.Attr("path") != "/api/users" {
			t.Errorf("path = %q, prefix must not double up", f.Attr("path"))
		}
	}
}
