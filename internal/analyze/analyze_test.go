package analyze

import (
	"testing"

	"github.com/selitys/selitys/internal/facts"
	"github.com/selitys/selitys/internal/scan"
)

func modelWithGraph(g facts.DependencyGraph, ff ...facts.Fact) *facts.UnifiedModel {
	return &facts.UnifiedModel{Graph: g, Facts: ff}
}

func emptyScan() *scan.Result {
	return &scan.Result{Root: "/repo"}
}

func TestLayeredArchitectureDetected(t *testing.T) {
	g := facts.DependencyGraph{
		Nodes: []facts.GraphNode{
			{ID: "routes/user.py", NodeType: facts.NodeRoute},
			{ID: "services/user_service.py", NodeType: facts.NodeService},
			{ID: "models/user.py", NodeType: facts.NodeModel},
		},
		Edges: []facts.GraphEdge{
			{From: "routes/user.py", To: "services/user_service.py"},
			{From: "services/user_service.py", To: "models/user.py"},
			{From: "routes/user.py", To: "models/user.py"},
		},
		Layers: []facts.Layer{
			{Name: facts.NodeRoute, Files: []string{"routes/user.py"}},
			{Name: facts.NodeService, Files: []string{"services/user_service.py"}},
			{Name: facts.NodeModel, Files: []string{"models/user.py"}},
		},
	}
	m := modelWithGraph(g)
	Run(m, emptyScan())

	found := false
	for _, p := range m.Patterns {
		if p.Name == "Layered architecture" {
			found = true
			if len(p.Evidence) == 0 {
				t.Error("pattern has no evidence")
			}
		}
	}
	if !found {
		t.Errorf("layered architecture not detected: %+v", m.Patterns)
	}
}

func TestLayeredArchitectureRejectedWhenUpward(t *testing.T) {
	g := facts.DependencyGraph{
		Nodes: []facts.GraphNode{
			{ID: "routes/user.py", NodeType: facts.NodeRoute},
			{ID: "services/user_service.py", NodeType: facts.NodeService},
			{ID: "models/user.py", NodeType: facts.NodeModel},
		},
		Edges: []facts.GraphEdge{
			{From: "models/user.py", To: "routes/user.py"},
			{From: "services/user_service.py", To: "routes/user.py"},
			{From: "routes/user.py", To: "services/user_service.py"},
		},
		Layers: []facts.Layer{
			{Name: facts.NodeRoute, Files: []string{"routes/user.py"}},
			{Name: facts.NodeService, Files: []string{"services/user_service.py"}},
			{Name: facts.NodeModel, Files: []string{"models/user.py"}},
		},
	}
	m := modelWithGraph(g)
	Run(m, emptyScan())

	for _, p := range m.Patterns {
		if p.Name == "Layered architecture" {
			t.Error("mostly-upward edges must not count as layered")
		}
	}
}

func TestLayeredArchitectureNeedsTwoLayers(t *testing.T) {
	g := facts.DependencyGraph{
		Nodes: []facts.GraphNode{{ID: "routes/a.py", NodeType: facts.NodeRoute}},
		Edges: nil,
		Layers: []facts.Layer{
			{Name: facts.NodeRoute, Files: []string{"routes/a.py"}},
		},
	}
	m := modelWithGraph(g)
	Run(m, emptyScan())
	for _, p := range m.Patterns {
		if p.Name == "Layered architecture" {
			t.Error("single populated layer must not be layered architecture")
		}
	}
}

func TestDependencyInjectionFromHints(t *testing.T) {
	hint := facts.New(facts.KindPatternHint, "Dependency injection",
		facts.Evidence{File: "main.py", LineStart: 12, Confidence: facts.Medium},
	).WithAttrs("pattern", "dependency_injection")

	m := modelWithGraph(facts.DependencyGraph{}, hint)
	Run(m, emptyScan())

	found := false
	for _, p := range m.Patterns {
		if p.Name == "Dependency injection" && len(p.Evidence) == 1 {
			found = true
		}
	}
	if !found {
		t.Errorf("patterns = %+v", m.Patterns)
	}
}

func TestRisksFromHints(t *testing.T) {
	hint := facts.New(facts.KindRiskHint, "Possible hardcoded password",
		facts.Evidence{File: "db.py", LineStart: 2, Confidence: facts.High},
	).WithAttrs("severity", "high", "description", "Detected pattern matching hardcoded password - review for exposed credentials")

	m := modelWithGraph(facts.DependencyGraph{}, hint)
	Run(m, emptyScan())

	if len(m.RiskAreas) != 1 {
		t.Fatalf("risks = %+v", m.RiskAreas)
	}
	r := m.RiskAreas[0]
	if r.RiskType != "Possible hardcoded password" || r.Severity != "high" || r.Location != "db.py" {
		t.Errorf("risk = %+v", r)
	}
	if len(r.Evidence) == 0 {
		t.Error("risk has no evidence")
	}
}

func TestOversizedFileRisk(t *testing.T) {
	res := &scan.Result{Root: "/repo", Files: []scan.SourceFile{
		{Path: "huge.py", Language: "Python", Lines: 900},
		{Path: "data/huge.md", Language: "Markdown", Lines: 900},
		{Path: "ok.py", Language: "Python", Lines: 100},
	}}
	m := modelWithGraph(facts.DependencyGraph{})
	Run(m, res)

	flagged := make(map[string]string)
	for _, r := range m.RiskAreas {
		if r.RiskType == "Large file" {
			flagged[r.Location] = r.Severity
		}
	}
	// Any scanned file over the limit counts, code or not.
	for _, want := range []string{"huge.py", "data/huge.md"} {
		if flagged[want] != "low" {
			t.Errorf("%s not flagged low, got %+v", want, m.RiskAreas)
		}
	}
	if _, ok := flagged["ok.py"]; ok {
		t.Error("100-line file wrongly flagged")
	}
}

func TestLimitedTestCoverageRisk(t *testing.T) {
	files := []scan.SourceFile{
		{Path: "a.py", Language: "Python", Lines: 10},
		{Path: "b.py", Language: "Python", Lines: 10},
		{Path: "c.py", Language: "Python", Lines: 10},
		{Path: "d.py", Language: "Python", Lines: 10},
		{Path: "e.py", Language: "Python", Lines: 10},
		{Path: "f.py", Language: "Python", Lines: 10},
	}
	m := modelWithGraph(facts.DependencyGraph{})
	Run(m, &scan.Result{Root: "/repo", Files: files})

	found := false
	for _, r := range m.RiskAreas {
		if r.RiskType == "Limited test coverage" {
			found = true
			if r.Severity != "medium" {
				t.Errorf("severity = %q, want medium", r.Severity)
			}
			if r.Location != "tests/" {
				t.Errorf("location = %q, want the repo-relative tests/ marker", r.Location)
			}
		}
	}
	if !found {
		t.Error("zero tests for six code files not flagged")
	}

	// Add enough tests and the risk disappears.
	withTests := append(files,
		scan.SourceFile{Path: "tests/test_a.py", Language: "Python", Lines: 10},
		scan.SourceFile{Path: "tests/test_b.py", Language: "Python", Lines: 10},
	)
	m2 := modelWithGraph(facts.DependencyGraph{})
	Run(m2, &scan.Result{Root: "/repo", Files: withTests})
	for _, r := range m2.RiskAreas {
		if r.RiskType == "Limited test coverage" {
			t.Error("adequate test ratio still flagged")
		}
	}
}
