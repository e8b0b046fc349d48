package analyze

import (
	"fmt"
	"sort"
	"strings"

	"github.com/selitys/selitys/internal/facts"
	"github.com/selitys/selitys/internal/scan"
)

const (
	oversizedLineCount = 500
	testCoverageRatio  = 0.2
	layeredEdgeShare   = 0.7
)

// Run fills the model's pattern and risk collections. Everything here
// works on the assembled model and scan metadata; extraction already
// read the files, so this stage never touches the filesystem.
func Run(m *facts.UnifiedModel, scanRes *scan.Result) {
	m.Patterns = detectPatterns(m)
	m.RiskAreas = detectRisks(m, scanRes)
}

func detectPatterns(m *facts.UnifiedModel) []facts.PatternDetected {
	var out []facts.PatternDetected

	if p, ok := layeredArchitecture(&m.Graph); ok {
		out = append(out, p)
	}

	var diEvidence []facts.Evidence
	for _, f := range m.Facts {
		if f.Kind == facts.KindPatternHint && f.Attr("pattern") == "dependency_injection" {
			diEvidence = append(diEvidence, f.Evidence...)
		}
	}
	if len(diEvidence) > 0 {
		out = append(out, facts.PatternDetected{
			Name:        "Dependency injection",
			Description: "Handlers receive dependencies through an injection mechanism",
			Evidence:    diEvidence,
		})
	}

	if len(m.APIEndpoints) > 0 && len(m.DomainEntities) > 0 {
		ev := make([]facts.Evidence, 0, 2)
		ev = append(ev, m.APIEndpoints[0].Evidence...)
		ev = append(ev, m.DomainEntities[0].Evidence...)
		out = append(out, facts.PatternDetected{
			Name:        "API over domain model",
			Description: "HTTP endpoints expose operations on persistent domain entities",
			Evidence:    ev,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// layeredArchitecture checks the dependency graph for a layered shape:
// at least two of the route/service/model layers populated, and at
// least 70% of the edges that cross layers pointing downward in the
// layer ordering.
func layeredArchitecture(g *facts.DependencyGraph) (facts.PatternDetected, bool) {
	layerRank := map[string]int{
		facts.NodeEntryPoint: 0,
		facts.NodeRoute:      1,
		facts.NodeService:    2,
		facts.NodeModel:      3,
		facts.NodeConfig:     4,
		facts.NodeModule:     5,
		facts.NodeTest:       6,
	}

	populated := 0
	for _, l := range g.Layers {
		if l.Name == facts.NodeRoute || l.Name == facts.NodeService || l.Name == facts.NodeModel {
			populated++
		}
	}
	if populated < 2 {
		return facts.PatternDetected{}, false
	}

	rankByNode := make(map[string]int, len(g.Nodes))
	for _, n := range g.Nodes {
		rankByNode[n.ID] = layerRank[n.NodeType]
	}

	crossing, downward := 0, 0
	var sampleEdge *facts.GraphEdge
	for i, e := range g.Edges {
		from, to := rankByNode[e.From], rankByNode[e.To]
		if from == to {
			continue
		}
		crossing++
		if from < to {
			downward++
			if sampleEdge == nil {
				sampleEdge = &g.Edges[i]
			}
		}
	}
	if crossing == 0 || float64(downward)/float64(crossing) < layeredEdgeShare {
		return facts.PatternDetected{}, false
	}

	ev := []facts.Evidence{{
		File:       sampleEdge.From,
		Snippet:    fmt.Sprintf("%d of %d cross-layer imports point toward lower layers", downward, crossing),
		Confidence: facts.Medium,
	}}
	return facts.PatternDetected{
		Name:        "Layered architecture",
		Description: "Routes, services and models form distinct layers with dependencies flowing downward",
		Evidence:    ev,
	}, true
}

func detectRisks(m *facts.UnifiedModel, scanRes *scan.Result) []facts.RiskArea {
	var out []facts.RiskArea

	for _, f := range m.Facts {
		if f.Kind != facts.KindRiskHint {
			continue
		}
		out = append(out, facts.RiskArea{
			RiskType:    f.Summary,
			Location:    f.File(),
			Description: f.Attr("description"),
			Severity:    f.Attr("severity"),
			Evidence:    f.Evidence,
		})
	}

	testFiles, codeFiles := 0, 0
	for _, sf := range scanRes.Files {
		// Size applies to any scanned file; the coverage ratio only
		// counts code.
		if sf.Lines > oversizedLineCount {
			out = append(out, facts.RiskArea{
				RiskType:    "Large file",
				Location:    sf.Path,
				Description: fmt.Sprintf("File has %d lines, may be difficult to maintain", sf.Lines),
				Severity:    "low",
				Evidence: []facts.Evidence{{
					File:       sf.Path,
					LineStart:  1,
					LineEnd:    sf.Lines,
					Confidence: facts.Low,
				}},
			})
		}
		if !isCodeLanguage(sf.Language) {
			continue
		}
		if looksLikeTestPath(sf.Path) {
			testFiles++
		} else {
			codeFiles++
		}
	}

	if codeFiles > 0 && float64(testFiles) < float64(codeFiles)*testCoverageRatio {
		out = append(out, facts.RiskArea{
			RiskType:    "Limited test coverage",
			Location:    "tests/",
			Description: fmt.Sprintf("Only %d test files for %d code files", testFiles, codeFiles),
			Severity:    "medium",
			Evidence: []facts.Evidence{{
				File:       "tests/",
				Snippet:    fmt.Sprintf("%d test files, %d code files", testFiles, codeFiles),
				Confidence: facts.Medium,
			}},
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Location != out[j].Location {
			return out[i].Location < out[j].Location
		}
		return out[i].RiskType < out[j].RiskType
	})
	return out
}

func isCodeLanguage(lang string) bool {
	switch lang {
	case "Python", "JavaScript", "TypeScript", "JavaScript (React)", "TypeScript (React)",
		"Go", "Java", "Ruby":
		return true
	}
	return false
}

func looksLikeTestPath(p string) bool {
	lower := strings.ToLower(p)
	return strings.Contains(lower, "test") || strings.Contains(lower, "spec")
}
