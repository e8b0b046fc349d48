package facts

import (
	"path"
	"sort"
	"strings"
)

// DependencyGraph is the file-level import graph. Nodes are scanned source
// files, edges are resolved intra-repository imports. Imports that do not
// resolve to a scanned file are tallied in ExternalImports instead of
// producing edges, so every edge endpoint is a known node.
type DependencyGraph struct {
	Nodes           []GraphNode    `json:"nodes"`
	Edges           []GraphEdge    `json:"edges"`
	Layers          []Layer        `json:"layers"`
	ExternalImports map[string]int `json:"external_imports,omitempty"`
}

// GraphNode is one file in the dependency graph. Subsystem is filled in
// during model assembly, once subsystem directories are known.
type GraphNode struct {
	ID              string `json:"id"` // repo-relative path
	NodeType        string `json:"node_type"`
	Subsystem       string `json:"subsystem,omitempty"`
	ImportsCount    int    `json:"imports_count"`
	ImportedByCount int    `json:"imported_by_count"`
}

// GraphEdge is a directed import relationship between two files.
type GraphEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Layer groups files of the same role. Layers partition the node set:
// every node appears in exactly one layer.
type Layer struct {
	Name  string   `json:"name"`
	Files []string `json:"files"`
}

// layerOrder is the emission order of layers, outermost first.
var layerOrder = []string{
	NodeEntryPoint, NodeRoute, NodeService, NodeModel, NodeConfig, NodeModule, NodeTest,
}

// Node type names used in GraphNode.NodeType and Layer.Name.
const (
	NodeEntryPoint = "entry_point"
	NodeRoute      = "route"
	NodeService    = "service"
	NodeModel      = "model"
	NodeConfig     = "config"
	NodeModule     = "module"
	NodeTest       = "test"
)

// jsExtensions are tried in order when resolving an extensionless
// JS/TS import specifier.
var jsExtensions = []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs"}

// BuildGraph constructs the dependency graph from merged facts and the
// full list of scanned file paths. A file becomes a node when it
// produced at least one fact or participates in an edge; scanned files
// with neither stay out of the graph. The result is deterministic:
// nodes, edges, and layer contents are sorted, independent of fact
// arrival order.
func BuildGraph(ff []Fact, filePaths []string) DependencyGraph {
	fileSet := make(map[string]bool, len(filePaths))
	for _, p := range filePaths {
		fileSet[p] = true
	}

	pyIndex := PythonModuleIndex(filePaths)

	// First pass: bucket facts by file so node typing sees the whole file.
	kindsByFile := make(map[string]map[Kind]bool)
	for _, f := range ff {
		file := f.File()
		if file == "" {
			continue
		}
		if kindsByFile[file] == nil {
			kindsByFile[file] = make(map[Kind]bool)
		}
		kindsByFile[file][f.Kind] = true
	}

	// Second pass: resolve import facts into edges or external tallies.
	edgeSet := make(map[GraphEdge]bool)
	external := make(map[string]int)
	for _, f := range ff {
		if f.Kind != KindImport {
			continue
		}
		from := f.File()
		spec := f.Attr("module")
		if from == "" || spec == "" || !fileSet[from] {
			continue
		}
		to := resolveImport(from, spec, fileSet, pyIndex)
		if to == "" {
			external[externalName(spec)]++
			continue
		}
		if to == from {
			continue
		}
		edgeSet[GraphEdge{From: from, To: to}] = true
	}

	edges := make([]GraphEdge, 0, len(edgeSet))
	for e := range edgeSet {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})

	outDeg := make(map[string]int)
	inDeg := make(map[string]int)
	for _, e := range edges {
		outDeg[e.From]++
		inDeg[e.To]++
	}

	include := make(map[string]bool)
	for file := range kindsByFile {
		if fileSet[file] {
			include[file] = true
		}
	}
	for e := range edgeSet {
		include[e.From] = true
		include[e.To] = true
	}

	sorted := make([]string, 0, len(include))
	for _, p := range filePaths {
		if include[p] {
			sorted = append(sorted, p)
		}
	}
	sort.Strings(sorted)

	nodes := make([]GraphNode, 0, len(sorted))
	byType := make(map[string][]string)
	for _, p := range sorted {
		nt := classifyNode(p, kindsByFile[p])
		nodes = append(nodes, GraphNode{
			ID:              p,
			NodeType:        nt,
			ImportsCount:    outDeg[p],
			ImportedByCount: inDeg[p],
		})
		byType[nt] = append(byType[nt], p)
	}

	layers := make([]Layer, 0, len(layerOrder))
	for _, name := range layerOrder {
		files := byType[name]
		if len(files) == 0 {
			continue
		}
		layers = append(layers, Layer{Name: name, Files: files})
	}

	if len(external) == 0 {
		external = nil
	}
	return DependencyGraph{
		Nodes:           nodes,
		Edges:           edges,
		Layers:          layers,
		ExternalImports: external,
	}
}

// classifyNode assigns a single node type per file. Explicit facts win
// over naming; test naming is checked before the module default so a
// plain test file is never classified as a module.
func classifyNode(file string, kinds map[Kind]bool) string {
	switch {
	case kinds[KindEntryPoint]:
		return NodeEntryPoint
	case kinds[KindRoute]:
		return NodeRoute
	case looksLikeService(file):
		return NodeService
	case kinds[KindDomainEntity]:
		return NodeModel
	case looksLikeModel(file):
		return NodeModel
	case kinds[KindConfigFile]:
		return NodeConfig
	case looksLikeTest(file):
		return NodeTest
	default:
		return NodeModule
	}
}

func looksLikeService(file string) bool {
	for _, seg := range strings.Split(file, "/") {
		base := strings.TrimSuffix(seg, path.Ext(seg))
		if strings.Contains(base, "service") {
			return true
		}
	}
	return false
}

func looksLikeModel(file string) bool {
	for _, seg := range strings.Split(file, "/") {
		base := strings.TrimSuffix(seg, path.Ext(seg))
		if base == "models" || base == "model" || base == "entities" || base == "schemas" {
			return true
		}
	}
	return false
}

func looksLikeTest(file string) bool {
	base := path.Base(file)
	name := strings.TrimSuffix(base, path.Ext(base))
	if strings.HasPrefix(name, "test_") || strings.HasSuffix(name, "_test") {
		return true
	}
	if strings.HasSuffix(name, ".test") || strings.HasSuffix(name, ".spec") {
		return true
	}
	for _, seg := range strings.Split(path.Dir(file), "/") {
		if seg == "tests" || seg == "test" || seg == "__tests__" {
			return true
		}
	}
	return false
}

// PythonModuleIndex maps dotted module paths to files, so that
// "app.services.user" resolves to "app/services/user.py" or
// "app/services/user/__init__.py". Packages are indexed by their
// __init__.py.
func PythonModuleIndex(filePaths []string) map[string]string {
	idx := make(map[string]string)
	for _, p := range filePaths {
		if !strings.HasSuffix(p, ".py") {
			continue
		}
		trimmed := strings.TrimSuffix(p, ".py")
		if path.Base(trimmed) == "__init__" {
			trimmed = path.Dir(trimmed)
			if trimmed == "." {
				continue
			}
		}
		dotted := strings.ReplaceAll(trimmed, "/", ".")
		if _, exists := idx[dotted]; !exists {
			idx[dotted] = p
		}
	}
	return idx
}

// resolveImport maps an import specifier to a scanned file, or "" when
// the import is external. Relative JS specifiers resolve against the
// importing file's directory; dotted Python specifiers resolve through
// the module index, trimming trailing symbol components.
func resolveImport(from, spec string, fileSet map[string]bool, pyIndex map[string]string) string {
	if strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../") {
		return resolveRelative(path.Dir(from), spec, fileSet)
	}
	if strings.HasSuffix(from, ".py") {
		return resolvePython(spec, pyIndex)
	}
	// Bare specifiers in JS/TS are package imports; a few repos alias
	// source roots, so try the specifier as a repo path before giving up.
	if resolved := resolveRelative(".", "./"+spec, fileSet); resolved != "" {
		return resolved
	}
	return ""
}

func resolveRelative(dir, spec string, fileSet map[string]bool) string {
	target := path.Clean(path.Join(dir, spec))
	if strings.HasPrefix(target, "../") {
		return ""
	}
	if fileSet[target] {
		return target
	}
	for _, ext := range jsExtensions {
		if fileSet[target+ext] {
			return target + ext
		}
	}
	for _, ext := range jsExtensions {
		if fileSet[target+"/index"+ext] {
			return target + "/index" + ext
		}
	}
	return ""
}

func resolvePython(spec string, pyIndex map[string]string) string {
	// "from a.b import c" arrives as "a.b.c" where c may be a symbol,
	// so walk up the dotted path until a module matches.
	cur := spec
	for cur != "" {
		if p, ok := pyIndex[cur]; ok {
			return p
		}
		i := strings.LastIndex(cur, ".")
		if i < 0 {
			break
		}
		cur = cur[:i]
	}
	return ""
}

// externalName reduces an unresolved specifier to a package name for
// the external tally: scoped npm packages keep two segments, dotted
// Python imports keep the top-level module.
func externalName(spec string) string {
	if strings.HasPrefix(spec, "@") {
		parts := strings.SplitN(spec, "/", 3)
		if len(parts) >= 2 {
			return parts[0] + "/" + parts[1]
		}
		return spec
	}
	if i := strings.IndexAny(spec, "/."); i > 0 {
		return spec[:i]
	}
	return spec
}
