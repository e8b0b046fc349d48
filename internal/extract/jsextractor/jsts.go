package jsextractor

import (
	"context"
	"path"
	"strings"
	"unsafe"

	sitter "github.com/tree-sitter/go-tree-sitter"
	javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"github.com/selitys/selitys/internal/extract"
	"github.com/selitys/selitys/internal/facts"
	"github.com/selitys/selitys/internal/scan"
)

// Extractor parses JavaScript, TypeScript and TSX source with
// tree-sitter, selecting the grammar per file extension.
type Extractor struct{}

// New creates a JS/TS extractor.
func New() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Name() string    { return "js-ts" }
func (e *Extractor) Version() string { return "1" }

var importFrameworks = map[string][2]string{
	"express":      {"Express", "Web Framework (Node.js)"},
	"next":         {"Next.js", "React Framework"},
	"react":        {"React", "UI Library"},
	"@nestjs/core": {"NestJS", "Web Framework (Node.js)"},
	"fastify":      {"Fastify", "Web Framework (Node.js)"},
	"koa":          {"Koa", "Web Framework (Node.js)"},
}

var routeMethods = map[string]bool{
	"get": true, "post": true, "put": true, "delete": true, "patch": true,
}

var routeReceivers = map[string]bool{
	"app": true, "router": true, "api": true, "server": true,
}

// Extract parses one JS/TS file, degrading to pattern scans when the
// grammar rejects the content.
func (e *Extractor) Extract(ctx context.Context, file scan.SourceFile, src []byte) []facts.Fact {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(sitter.NewLanguage(grammarFor(file.Path)))

	tree := parser.Parse(src, nil)
	if tree == nil {
		return degraded(file.Path, src, "tree-sitter parse returned no tree")
	}
	defer tree.Close()

	var out []facts.Fact
	if f, ok := entryPointFact(file.Path, src); ok {
		out = append(out, f)
	}

	s := &fileScan{path: file.Path, src: src}
	s.walk(tree.RootNode())

	out = append(out, s.frameworks...)
	out = append(out, s.imports...)
	out = append(out, s.routes...)
	out = append(out, s.exports...)

	if s.injectable != nil {
		out = append(out, facts.New(facts.KindPatternHint, "Dependency injection",
			evidence(file.Path, s.injectable, "Injectable", facts.Medium),
		).WithAttrs("pattern", "dependency_injection",
			"description", "NestJS @Injectable decorator used for dependency injection"))
	}

	if cf, ok := extract.ConfigFileFact(file.Path, src); ok {
		out = append(out, cf)
	}
	out = append(out, extract.EnvVarFacts(file.Path, src, facts.High)...)
	out = append(out, extract.RiskFacts(file.Path, src)...)

	select {
	case <-ctx.Done():
		return out
	default:
	}
	return out
}

func grammarFor(filePath string) unsafe.Pointer {
	switch path.Ext(filePath) {
	case ".ts":
		return typescript.LanguageTypescript()
	case ".tsx":
		return typescript.LanguageTSX()
	default:
		return javascript.Language()
	}
}

func degraded(filePath string, src []byte, reason string) []facts.Fact {
	out := []facts.Fact{facts.Unparseable(filePath, reason)}
	out = append(out, extract.EnvVarFacts(filePath, src, facts.Low)...)
	out = append(out, extract.RiskFacts(filePath, src)...)
	return out
}

// entryPointFact recognizes well-known JS/TS entry files by name and
// position in the tree.
func entryPointFact(filePath string, src []byte) (facts.Fact, bool) {
	base := path.Base(filePath)
	depth := strings.Count(filePath, "/") + 1
	content := strings.ToLower(string(src))

	desc := ""
	switch base {
	case "index.js", "index.ts", "main.js", "main.ts":
		if depth <= 2 {
			desc = "Application entry point"
			if strings.Contains(content, "express") {
				desc = "Express server entry point"
			} else if strings.Contains(string(src), "createServer") {
				desc = "HTTP server entry point"
			}
		}
	case "server.js", "server.ts":
		desc = "Server entry point"
	case "app.js", "app.ts", "app.tsx":
		if depth <= 2 {
			desc = "Application entry point"
		}
	case "_app.tsx", "_app.js":
		desc = "Next.js application wrapper"
	case "layout.tsx", "layout.js":
		if path.Base(path.Dir(filePath)) == "app" {
			desc = "Next.js App Router layout"
		}
	}
	if desc == "" {
		return facts.Fact{}, false
	}

	f := facts.New(facts.KindEntryPoint, desc, facts.Evidence{
		File:       filePath,
		LineStart:  1,
		LineEnd:    1,
		Confidence: facts.High,
	})
	return f.WithAttrs("file", filePath, "description", desc), true
}

type fileScan struct {
	path string
	src  []byte

	seenFrameworks map[string]bool
	frameworks     []facts.Fact
	imports        []facts.Fact
	routes         []facts.Fact
	exports        []facts.Fact
	injectable     *sitter.Node
}

func (s *fileScan) walk(node *sitter.Node) {
	switch node.Kind() {
	case "import_statement":
		s.handleImport(node)
	case "call_expression":
		s.handleCall(node)
	case "export_statement":
		s.handleExport(node)
	case "decorator":
		s.handleDecorator(node)
	}
	for i := range node.ChildCount() {
		s.walk(node.Child(i))
	}
}

func (s *fileScan) handleImport(node *sitter.Node) {
	source := childOfKind(node, "string")
	if source == nil {
		return
	}
	s.addImport(node, stringContent(s.text(source)))
}

func (s *fileScan) handleCall(node *sitter.Node) {
	fn := node.ChildByFieldName("function")
	if fn == nil {
		return
	}
	switch fn.Kind() {
	case "identifier":
		if s.text(fn) == "require" {
			if mod := s.firstStringArg(node); mod != "" {
				s.addImport(node, mod)
			}
		}
	case "member_expression":
		s.handleRouteCall(node, fn)
	}
}

func (s *fileScan) addImport(node *sitter.Node, mod string) {
	if mod == "" {
		return
	}
	line := int(node.StartPosition().Row) + 1
	s.imports = append(s.imports, facts.New(facts.KindImport, "import "+mod, facts.Evidence{
		File:       s.path,
		LineStart:  line,
		LineEnd:    line,
		Symbol:     mod,
		Confidence: facts.High,
	}).WithAttrs("module", mod))

	if fw, ok := importFrameworks[mod]; ok {
		if s.seenFrameworks == nil {
			s.seenFrameworks = make(map[string]bool)
		}
		if !s.seenFrameworks[fw[0]] {
			s.seenFrameworks[fw[0]] = true
			s.frameworks = append(s.frameworks, facts.New(facts.KindFramework, fw[0]+" ("+fw[1]+")",
				evidence(s.path, node, mod, facts.High),
			).WithAttrs("name", fw[0], "category", fw[1]))
		}
	}
}

// handleRouteCall matches app.get("/path", handler) style registrations
// on conventional receiver names.
func (s *fileScan) handleRouteCall(call, fn *sitter.Node) {
	obj := fn.ChildByFieldName("object")
	prop := fn.ChildByFieldName("property")
	if obj == nil || prop == nil || obj.Kind() != "identifier" {
		return
	}
	receiver := strings.ToLower(s.text(obj))
	if !routeReceivers[receiver] && !strings.HasSuffix(receiver, "router") {
		return
	}
	method := s.text(prop)
	if !routeMethods[method] {
		return
	}
	routePath := s.firstStringArg(call)

	conf := facts.High
	summary := strings.ToUpper(method) + " " + routePath
	if routePath == "" {
		conf = facts.Medium
		summary = strings.ToUpper(method) + " <path>"
	}
	s.routes = append(s.routes, facts.New(facts.KindRoute, summary,
		evidence(s.path, call, method, conf),
	).WithAttrs("method", strings.ToUpper(method), "path", routePath,
		"router", s.text(obj), "file", s.path))
}

func (s *fileScan) handleExport(node *sitter.Node) {
	name := exportedName(node, s.src)
	if name == "" {
		return
	}
	s.exports = append(s.exports, facts.New(facts.KindExport, "export "+name,
		evidence(s.path, node, name, facts.High),
	).WithAttrs("symbol", name))
}

func exportedName(node *sitter.Node, src []byte) string {
	for i := range node.ChildCount() {
		child := node.Child(i)
		switch child.Kind() {
		case "function_declaration", "class_declaration", "interface_declaration",
			"type_alias_declaration", "enum_declaration":
			for j := range child.ChildCount() {
				c := child.Child(j)
				if c.Kind() == "identifier" || c.Kind() == "type_identifier" {
					return string(src[c.StartByte():c.EndByte()])
				}
			}
		case "lexical_declaration", "variable_declaration":
			if decl := childOfKind(child, "variable_declarator"); decl != nil {
				if name := decl.ChildByFieldName("name"); name != nil && name.Kind() == "identifier" {
					return string(src[name.StartByte():name.EndByte()])
				}
			}
		}
	}
	return ""
}

func (s *fileScan) handleDecorator(node *sitter.Node) {
	if s.injectable != nil {
		return
	}
	text := s.text(node)
	if strings.HasPrefix(text, "@Injectable") || strings.HasPrefix(text, "@Controller") {
		s.injectable = node
	}
}

func (s *fileScan) firstStringArg(call *sitter.Node) string {
	args := call.ChildByFieldName("arguments")
	if args == nil {
		return ""
	}
	for i := range args.ChildCount() {
		c := args.Child(i)
		if c.Kind() == "string" || c.Kind() == "template_string" {
			return stringContent(s.text(c))
		}
	}
	return ""
}

func (s *fileScan) text(node *sitter.Node) string {
	return string(s.src[node.StartByte():node.EndByte()])
}

func childOfKind(node *sitter.Node, kind string) *sitter.Node {
	for i := range node.ChildCount() {
		if c := node.Child(i); c.Kind() == kind {
			return c
		}
	}
	return nil
}

func evidence(filePath string, node *sitter.Node, symbol string, conf facts.Confidence) facts.Evidence {
	return facts.Evidence{
		File:       filePath,
		LineStart:  int(node.StartPosition().Row) + 1,
		LineEnd:    int(node.EndPosition().Row) + 1,
		Symbol:     symbol,
		Confidence: conf,
	}
}

func stringContent(lit string) string {
	return strings.Trim(lit, "\"'`")
}
