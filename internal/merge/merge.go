package merge

import (
	"sort"
	"strconv"
	"strings"

	"github.com/selitys/selitys/internal/facts"
)

// Merge deduplicates and orders facts. The result is independent of
// arrival order: facts are sorted by (file, line, kind, summary) and
// duplicates collapse onto one primary fact. When duplicates disagree
// on confidence the strongest wins; the losers' evidence is kept on the
// primary so nothing observed is discarded.
func Merge(ff []facts.Fact) []facts.Fact {
	sorted := make([]facts.Fact, len(ff))
	copy(sorted, ff)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.File() != b.File() {
			return a.File() < b.File()
		}
		if a.Line() != b.Line() {
			return a.Line() < b.Line()
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Summary < b.Summary
	})

	byKey := make(map[string]int)
	out := make([]facts.Fact, 0, len(sorted))
	for _, f := range sorted {
		key := dedupeKey(f)
		idx, seen := byKey[key]
		if !seen {
			byKey[key] = len(out)
			out = append(out, f)
			continue
		}
		out[idx] = combine(out[idx], f)
	}
	return out
}

// dedupeKey identifies facts that make the same claim. The key shape is
// per kind: a route is the same route regardless of which extractor saw
// it, a framework is repo-global, an env var is named once.
func dedupeKey(f facts.Fact) string {
	switch f.Kind {
	case facts.KindRoute:
		return join("route", f.Attr("method"), f.Attr("path"), f.File())
	case facts.KindFramework:
		return join("framework", f.Attr("name"))
	case facts.KindEntryPoint:
		return join("entry", f.File())
	case facts.KindDomainEntity:
		return join("entity", f.Attr("class"), f.File())
	case facts.KindConfigFile:
		return join("config", f.File())
	case facts.KindEnvVar:
		return join("envvar", f.Attr("name"))
	case facts.KindImport:
		return join("import", f.File(), f.Attr("module"))
	case facts.KindExport:
		return join("export", f.File(), f.Attr("symbol"))
	case facts.KindSubsystem:
		return join("subsystem", f.Attr("directory"))
	case facts.KindPatternHint:
		return join("pattern", f.Attr("pattern"), f.File(), f.Attr("prefix"), f.Attr("target_module"))
	case facts.KindRiskHint:
		return join("risk", f.Summary, f.File())
	case facts.KindUnparseable:
		return join("unparseable", f.File())
	}
	return join(string(f.Kind), f.Summary, f.File(), strconv.Itoa(f.Line()))
}

func join(parts ...string) string {
	return strings.Join(parts, "\x00")
}

// combine folds a duplicate into the primary. The stronger fact keeps
// its summary and attrs; evidence accumulates either way.
func combine(primary, dup facts.Fact) facts.Fact {
	if dup.Confidence.Stronger(primary.Confidence) {
		primary, dup = dup, primary
	}
	seen := make(map[string]bool, len(primary.Evidence))
	for _, ev := range primary.Evidence {
		seen[evKey(ev)] = true
	}
	for _, ev := range dup.Evidence {
		if !seen[evKey(ev)] {
			seen[evKey(ev)] = true
			primary.Evidence = append(primary.Evidence, ev)
		}
	}
	return primary
}

func evKey(ev facts.Evidence) string {
	return ev.File + "\x00" + strconv.Itoa(ev.LineStart) + "\x00" + ev.Symbol
}

// ApplyRouterPrefixes propagates router-mount prefixes across files:
// when main.py does app.include_router(user.router, prefix="/api"),
// routes declared in user.py gain the /api prefix. Mount hints carry a
// dotted target module, resolved through the repository's module index;
// nested mounts compose along the mount tree.
func ApplyRouterPrefixes(ff []facts.Fact, filePaths []string) []facts.Fact {
	type edge struct {
		source, child, prefix string
	}
	moduleIndex := facts.PythonModuleIndex(filePaths)

	var edges []edge
	for _, f := range ff {
		if f.Kind != facts.KindPatternHint || f.Attr("pattern") != "router_include" {
			continue
		}
		child := resolveModuleFile(f.Attr("target_module"), moduleIndex)
		if child == "" || f.Attr("prefix") == "" {
			continue
		}
		edges = append(edges, edge{source: f.File(), child: child, prefix: f.Attr("prefix")})
	}
	if len(edges) == 0 {
		return ff
	}

	outgoing := make(map[string][]edge)
	incoming := make(map[string]int)
	nodes := make(map[string]bool)
	for _, e := range edges {
		outgoing[e.source] = append(outgoing[e.source], e)
		incoming[e.child]++
		nodes[e.source] = true
		nodes[e.child] = true
	}

	prefixesByFile := make(map[string][]string)
	var walk func(node, prefix string, onPath map[string]bool)
	walk = func(node, prefix string, onPath map[string]bool) {
		if onPath[node] {
			return
		}
		onPath[node] = true
		defer delete(onPath, node)
		for _, e := range outgoing[node] {
			joined := joinPath(prefix, e.prefix)
			prefixesByFile[e.child] = append(prefixesByFile[e.child], joined)
			walk(e.child, joined, onPath)
		}
	}
	for node := range nodes {
		if incoming[node] == 0 {
			walk(node, "", map[string]bool{})
		}
	}

	for i, f := range ff {
		if f.Kind != facts.KindRoute {
			continue
		}
		p := f.Attr("path")
		prefixes := prefixesByFile[f.File()]
		if p == "" || len(prefixes) == 0 {
			continue
		}
		prefix := prefixes[0]
		for _, cand := range prefixes {
			if len(cand) > len(prefix) {
				prefix = cand
			}
		}
		if strings.HasPrefix(p, prefix) {
			continue
		}
		joined := joinPath(prefix, p)
		ff[i] = f.WithAttrs("path", joined)
		ff[i].Summary = strings.TrimSpace(f.Attr("method") + " " + joined)
	}
	return ff
}

func resolveModuleFile(module string, index map[string]string) string {
	cur := module
	for cur != "" {
		if p, ok := index[cur]; ok {
			return p
		}
		i := strings.LastIndex(cur, ".")
		if i < 0 {
			return ""
		}
		cur = cur[:i]
	}
	return ""
}

func joinPath(prefix, p string) string {
	if prefix == "" {
		return p
	}
	return strings.TrimSuffix(prefix, "/") + "/" + strings.TrimPrefix(p, "/")
}
