package merge

import (
	"testing"

	"github.com/selitys/selitys/internal/facts"
	"github.com/selitys/selitys/internal/scan"
)

func scanResult(files ...string) *scan.Result {
	res := &scan.Result{Root: "/repo/demo"}
	for _, p := range files {
		res.Files = append(res.Files, scan.SourceFile{Path: p, Language: "Python", Lines: 10})
	}
	return res
}

func TestBuildModelCollections(t *testing.T) {
	merged := []facts.Fact{
		facts.New(facts.KindEntryPoint, "Application entry point",
			facts.Evidence{File: "main.py", LineStart: 1, Confidence: facts.High},
		).WithAttrs("file", "main.py", "description", "Application entry point"),
		route("routes/user.py", "GET", "/users", 5, facts.High).WithAttrs("handler", "list_users"),
		facts.New(facts.KindFramework, "FastAPI (Web Framework)",
			facts.Evidence{File: "main.py", Confidence: facts.High},
		).WithAttrs("name", "FastAPI", "category", "Web Framework"),
		facts.New(facts.KindDomainEntity, "Model class User (table: users)",
			facts.Evidence{File: "models/user.py", Confidence: facts.Medium},
		).WithAttrs("class", "User", "table", "users"),
		facts.New(facts.KindEnvVar, "Environment variable PORT",
			facts.Evidence{File: "config.py", LineStart: 2, Confidence: facts.High},
		).WithAttrs("name", "PORT", "has_default", "true", "default_value", "8080"),
		facts.New(facts.KindConfigFile, "Application configuration module",
			facts.Evidence{File: "config.py", Confidence: facts.High},
		).WithAttrs("file_type", "Python", "description", "Application configuration module", "settings_count", "4"),
		facts.Unparseable("broken.py", "timeout"),
	}
	res := scanResult("main.py", "routes/user.py", "models/user.py", "config.py", "broken.py")
	res.Skipped = []scan.SkippedFile{{Path: "big.bin", Reason: "binary file"}}

	m := BuildModel(merged, res)

	if m.RepoName != "demo" || m.RepoPath != "/repo/demo" {
		t.Errorf("repo = %q at %q", m.RepoName, m.RepoPath)
	}
	if len(m.EntryPoints) != 1 || m.EntryPoints[0].Path != "main.py" {
		t.Errorf("entry points = %+v", m.EntryPoints)
	}
	if len(m.APIEndpoints) != 1 || m.APIEndpoints[0].Handler != "list_users" {
		t.Errorf("endpoints = %+v", m.APIEndpoints)
	}
	if len(m.Frameworks) != 1 || m.Frameworks[0].Name != "FastAPI" {
		t.Errorf("frameworks = %+v", m.Frameworks)
	}
	if len(m.DomainEntities) != 1 || m.DomainEntities[0].Table != "users" {
		t.Errorf("entities = %+v", m.DomainEntities)
	}
	if len(m.EnvVars) != 1 || !m.EnvVars[0].HasDefault || m.EnvVars[0].DefaultValue != "8080" {
		t.Errorf("env vars = %+v", m.EnvVars)
	}
	if len(m.ConfigFiles) != 1 || m.ConfigFiles[0].SettingsCount != 4 {
		t.Errorf("config files = %+v", m.ConfigFiles)
	}
	if len(m.UnparseableFiles) != 1 || m.UnparseableFiles[0] != "broken.py" {
		t.Errorf("unparseable = %v", m.UnparseableFiles)
	}
	if len(m.SkippedFiles) != 1 || m.SkippedFiles[0].Path != "big.bin" {
		t.Errorf("skipped = %+v", m.SkippedFiles)
	}
	if len(m.Graph.Nodes) != 5 {
		t.Errorf("graph nodes = %d, want 5", len(m.Graph.Nodes))
	}
	for _, n := range m.Graph.Nodes {
		switch n.ID {
		case "routes/user.py":
			if n.Subsystem != "Routing" {
				t.Errorf("subsystem for %s = %q, want Routing", n.ID, n.Subsystem)
			}
		case "models/user.py":
			if n.Subsystem != "Data Models" {
				t.Errorf("subsystem for %s = %q, want Data Models", n.ID, n.Subsystem)
			}
		case "main.py":
			if n.Subsystem != "" {
				t.Errorf("root file must have no subsystem, got %q", n.Subsystem)
			}
		}
	}
}

func TestDetectSubsystems(t *testing.T) {
	files := []string{
		"app/services/user_service.py",
		"app/services/order_service.py",
		"app/services/__init__.py",
		"app/models/user.py",
		"app/middleware/auth.py",
		"app/other/thing.py",
	}
	subs := detectSubsystems(files)

	byName := make(map[string]facts.Subsystem)
	for _, s := range subs {
		byName[s.Name] = s
	}
	svc, ok := byName["Services"]
	if !ok {
		t.Fatalf("services subsystem missing: %+v", subs)
	}
	if svc.Directory != "app/services" {
		t.Errorf("directory = %q", svc.Directory)
	}
	if len(svc.KeyFiles) != 2 {
		t.Errorf("key files = %v, __init__.py must be excluded", svc.KeyFiles)
	}
	if _, ok := byName["Data Models"]; !ok {
		t.Error("models subsystem missing")
	}
	if _, ok := byName["Middleware"]; !ok {
		t.Error("middleware subsystem missing")
	}
}

func TestDetectSubsystemsShallowestWins(t *testing.T) {
	files := []string{
		"services/a.py",
		"vendor/pkg/services/b.py",
	}
	subs := detectSubsystems(files)
	for _, s := range subs {
		if s.Name == "Services" && s.Directory != "services" {
			t.Errorf("directory = %q, want shallow services", s.Directory)
		}
	}
}
