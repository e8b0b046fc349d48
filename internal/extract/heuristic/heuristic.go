package heuristic

import (
	"context"
	"path"
	"regexp"
	"strings"

	"github.com/selitys/selitys/internal/extract"
	"github.com/selitys/selitys/internal/facts"
	"github.com/selitys/selitys/internal/scan"
)

// Extractor is the fallback for languages without a dedicated parser.
// It works on regular expressions only, so every fact it emits is
// capped at low confidence.
type Extractor struct{}

// New creates a heuristic extractor.
func New() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Name() string    { return "heuristic" }
func (e *Extractor) Version() string { return "1" }

var entryNames = map[string]string{
	"main":        "Likely application entry point",
	"index":       "Likely application entry point",
	"app":         "Likely application entry point",
	"server":      "Likely server entry point",
	"application": "Likely application entry point",
}

// routeLiteral matches route registrations like get("/users") or
// @GetMapping("/users") across languages.
var routeLiteral = regexp.MustCompile(`(?i)\b(get|post|put|delete|patch)(?:mapping)?\s*\(\s*["'](/[^"'\s]*)["']`)

// Extract scans one file with text patterns only.
func (e *Extractor) Extract(ctx context.Context, file scan.SourceFile, src []byte) []facts.Fact {
	var out []facts.Fact

	base := path.Base(file.Path)
	stem := strings.TrimSuffix(base, path.Ext(base))
	if desc, ok := entryNames[strings.ToLower(stem)]; ok && strings.Count(file.Path, "/") <= 1 {
		out = append(out, facts.New(facts.KindEntryPoint, desc, facts.Evidence{
			File:       file.Path,
			LineStart:  1,
			LineEnd:    1,
			Confidence: facts.Low,
		}).WithAttrs("file", file.Path, "description", desc))
	}

	for i, l := range strings.Split(string(src), "\n") {
		m := routeLiteral.FindStringSubmatch(l)
		if m == nil {
			continue
		}
		method := strings.ToUpper(m[1])
		out = append(out, facts.New(facts.KindRoute, method+" "+m[2], facts.Evidence{
			File:       file.Path,
			LineStart:  i + 1,
			LineEnd:    i + 1,
			Snippet:    strings.TrimSpace(l),
			Confidence: facts.Low,
		}).WithAttrs("method", method, "path", m[2], "file", file.Path))
	}

	if cf, ok := extract.ConfigFileFact(file.Path, src); ok {
		out = append(out, cf)
	}
	out = append(out, extract.EnvVarFacts(file.Path, src, facts.Low)...)
	out = append(out, extract.RiskFacts(file.Path, src)...)

	for i := range out {
		out[i] = out[i].ForceLow()
	}

	select {
	case <-ctx.Done():
		return out
	default:
	}
	return out
}
