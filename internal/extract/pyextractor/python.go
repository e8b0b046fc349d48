package pyextractor

import (
	"context"
	"path"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
	python "github.com/tree-sitter/tree-sitter-python/bindings/go"

	"github.com/selitys/selitys/internal/extract"
	"github.com/selitys/selitys/internal/facts"
	"github.com/selitys/selitys/internal/scan"
)

// Extractor parses Python source with tree-sitter and emits
// architectural facts.
type Extractor struct{}

// New creates a Python extractor.
func New() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Name() string    { return "python" }
func (e *Extractor) Version() string { return "1" }

// frameworkModules maps top-level import names to framework facts.
var frameworkModules = map[string][2]string{
	"fastapi":    {"FastAPI", "Web Framework"},
	"flask":      {"Flask", "Web Framework"},
	"django":     {"Django", "Web Framework"},
	"sqlalchemy": {"SQLAlchemy", "ORM"},
	"pydantic":   {"Pydantic", "Data Validation"},
	"alembic":    {"Alembic", "Database Migrations"},
	"celery":     {"Celery", "Task Queue"},
	"redis":      {"Redis", "Cache/Message Broker"},
}

var routeMethods = map[string]bool{
	"get": true, "post": true, "put": true, "delete": true, "patch": true,
}

var entryPointNames = map[string]string{
	"main.py":   "Application entry point",
	"app.py":    "Application factory or entry point",
	"manage.py": "Django management script",
	"wsgi.py":   "WSGI application entry",
	"asgi.py":   "ASGI application entry",
}

// importTarget records what a local name was imported as.
type importTarget struct {
	module string
	attr   string
}

// Extract parses one Python file. A failed parse degrades to an
// unparseable fact plus pattern-based scans; it never errors out.
func (e *Extractor) Extract(ctx context.Context, file scan.SourceFile, src []byte) []facts.Fact {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(sitter.NewLanguage(python.Language()))

	tree := parser.Parse(src, nil)
	if tree == nil {
		return degraded(file.Path, src, "tree-sitter parse returned no tree")
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.Kind() != "module" {
		return degraded(file.Path, src, "unexpected root node "+root.Kind())
	}

	var out []facts.Fact
	out = append(out, entryPointFacts(file.Path)...)
	hasNamedEntry := len(out) > 0

	s := &fileScan{
		path:    file.Path,
		src:     src,
		module:  dottedModule(file.Path),
		imports: make(map[string]importTarget),
	}
	s.walk(root)

	if !hasNamedEntry && s.fastAPIApp != nil {
		out = append(out, facts.New(facts.KindEntryPoint, "FastAPI application instance",
			evidence(file.Path, s.fastAPIApp, "FastAPI", facts.High),
		).WithAttrs("file", file.Path, "description", "FastAPI application instance"))
	}

	out = append(out, s.frameworks...)
	out = append(out, applyRouterPrefixes(s.routes, s.routerPrefixes)...)
	out = append(out, s.models...)
	out = append(out, s.importFacts...)
	out = append(out, s.includes...)

	if s.usesDepends {
		out = append(out, facts.New(facts.KindPatternHint, "Dependency injection",
			evidence(file.Path, s.dependsNode, "Depends", facts.Medium),
		).WithAttrs("pattern", "dependency_injection",
			"description", "FastAPI Depends() used for dependency injection"))
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

func degraded(filePath string, src []byte, reason string) []facts.Fact {
	out := []facts.Fact{facts.Unparseable(filePath, reason)}
	out = append(out, extract.EnvVarFacts(filePath, src, facts.Low)...)
	out = append(out, extract.RiskFacts(filePath, src)...)
	return out
}

func entryPointFacts(filePath string) []facts.Fact {
	desc, ok := entryPointNames[path.Base(filePath)]
	if !ok {
		return nil
	}
	f := facts.New(facts.KindEntryPoint, desc, facts.Evidence{
		File:       filePath,
		LineStart:  1,
		LineEnd:    1,
		Confidence: facts.High,
	})
	return []facts.Fact{f.WithAttrs("file", filePath, "description", desc)}
}

// fileScan accumulates per-file state during a single AST walk.
type fileScan struct {
	path   string
	src    []byte
	module string

	imports        map[string]importTarget
	seenFrameworks map[string]bool
	frameworks     []facts.Fact
	routes         []facts.Fact
	routerPrefixes map[string]string // router variable -> APIRouter prefix
	models         []facts.Fact
	importFacts    []facts.Fact
	includes       []facts.Fact
	fastAPIApp     *sitter.Node
	usesDepends    bool
	dependsNode    *sitter.Node
}

func (s *fileScan) walk(node *sitter.Node) {
	switch node.Kind() {
	case "import_statement":
		s.handleImport(node)
	case "import_from_statement":
		s.handleImportFrom(node)
	case "decorated_definition":
		s.handleDecorated(node)
	case "class_definition":
		s.handleClass(node)
	case "call":
		s.handleCall(node)
	case "assignment":
		s.handleAssignment(node)
	}
	for i := range node.ChildCount() {
		s.walk(node.Child(i))
	}
}

// handleImport covers "import a.b" and "import a.b as c".
func (s *fileScan) handleImport(node *sitter.Node) {
	for i := range node.ChildCount() {
		child := node.Child(i)
		switch child.Kind() {
		case "dotted_name":
			mod := s.text(child)
			s.addImport(node, mod)
		case "aliased_import":
			name := child.ChildByFieldName("name")
			alias := child.ChildByFieldName("alias")
			if name == nil {
				continue
			}
			mod := s.text(name)
			s.addImport(node, mod)
			if alias != nil {
				s.imports[s.text(alias)] = importTarget{module: mod}
			}
		}
	}
}

// handleImportFrom covers "from x import a, b as c" including relative
// levels, which resolve against this file's dotted module path.
func (s *fileScan) handleImportFrom(node *sitter.Node) {
	moduleNode := node.ChildByFieldName("module_name")
	if moduleNode == nil {
		return
	}
	mod := s.resolveRelativeModule(s.text(moduleNode))
	if mod == "" {
		return
	}
	s.addImport(node, mod)

	for i := range node.ChildCount() {
		child := node.Child(i)
		switch child.Kind() {
		case "dotted_name":
			if child.StartByte() == moduleNode.StartByte() {
				continue
			}
			name := s.text(child)
			s.imports[name] = importTarget{module: mod, attr: name}
			if looksLikeSubmodule(name) {
				s.addImport(node, mod+"."+name)
			}
		case "aliased_import":
			name := child.ChildByFieldName("name")
			alias := child.ChildByFieldName("alias")
			if name == nil || alias == nil {
				continue
			}
			s.imports[s.text(alias)] = importTarget{module: mod, attr: s.text(name)}
			if n := s.text(name); looksLikeSubmodule(n) {
				s.addImport(node, mod+"."+n)
			}
		}
	}
}

// looksLikeSubmodule reports whether an imported name follows module
// naming, so "from routes import user" also records routes.user as an
// import edge candidate. CapWords names are classes, not modules.
func looksLikeSubmodule(name string) bool {
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return name != ""
}

func (s *fileScan) addImport(node *sitter.Node, mod string) {
	line := int(node.StartPosition().Row) + 1
	s.importFacts = append(s.importFacts, facts.New(facts.KindImport, "import "+mod, facts.Evidence{
		File:       s.path,
		LineStart:  line,
		LineEnd:    line,
		Symbol:     mod,
		Confidence: facts.High,
	}).WithAttrs("module", mod))

	top, _, _ := strings.Cut(mod, ".")
	if fw, ok := frameworkModules[top]; ok {
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

// resolveRelativeModule turns "..models.user" into an absolute dotted
// path using the current file's package.
func (s *fileScan) resolveRelativeModule(mod string) string {
	level := 0
	for level < len(mod) && mod[level] == '.' {
		level++
	}
	if level == 0 {
		return mod
	}
	rest := mod[level:]
	parts := strings.Split(s.module, ".")
	if level > len(parts) {
		parts = nil
	} else {
		parts = parts[:len(parts)-level]
	}
	if rest != "" {
		parts = append(parts, rest)
	}
	return strings.Join(parts, ".")
}

// handleDecorated finds route registrations on function definitions.
func (s *fileScan) handleDecorated(node *sitter.Node) {
	var fn *sitter.Node
	var decorators []*sitter.Node
	for i := range node.ChildCount() {
		child := node.Child(i)
		switch child.Kind() {
		case "decorator":
			decorators = append(decorators, child)
		case "function_definition":
			fn = child
		}
	}
	if fn == nil {
		return
	}
	handlerNode := fn.ChildByFieldName("name")
	handler := ""
	if handlerNode != nil {
		handler = s.text(handlerNode)
	}

	for _, dec := range decorators {
		call := childOfKind(dec, "call")
		if call == nil {
			continue
		}
		fnNode := call.ChildByFieldName("function")
		if fnNode == nil || fnNode.Kind() != "attribute" {
			continue
		}
		attrNode := fnNode.ChildByFieldName("attribute")
		objNode := fnNode.ChildByFieldName("object")
		if attrNode == nil {
			continue
		}
		method := strings.ToLower(s.text(attrNode))
		if !routeMethods[method] {
			continue
		}
		router := ""
		if objNode != nil && objNode.Kind() == "identifier" {
			router = s.text(objNode)
		}
		routePath := s.firstStringArg(call)

		conf := facts.High
		summary := strings.ToUpper(method) + " " + routePath
		if routePath == "" {
			conf = facts.Medium
			summary = strings.ToUpper(method) + " <path>"
		}
		f := facts.New(facts.KindRoute, summary, evidence(s.path, call, handler, conf)).
			WithAttrs("method", strings.ToUpper(method), "path", routePath,
				"handler", handler, "router", router, "file", s.path)
		s.routes = append(s.routes, f)
	}
}

// handleClass emits domain-entity facts for ORM-style model classes.
func (s *fileScan) handleClass(node *sitter.Node) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	bases := s.baseNames(node)
	if !looksLikeModel(bases) {
		return
	}
	className := s.text(nameNode)
	table := s.findTableName(node)

	summary := "Model class " + className
	if table != "" {
		summary += " (table: " + table + ")"
	}
	f := facts.New(facts.KindDomainEntity, summary,
		evidence(s.path, node, className, facts.Medium),
	).WithAttrs("class", className, "table", table, "file", s.path)
	s.models = append(s.models, f)
}

func (s *fileScan) baseNames(class *sitter.Node) []string {
	supers := class.ChildByFieldName("superclasses")
	if supers == nil {
		return nil
	}
	var names []string
	for i := range supers.ChildCount() {
		child := supers.Child(i)
		switch child.Kind() {
		case "identifier":
			names = append(names, s.text(child))
		case "attribute":
			if attr := child.ChildByFieldName("attribute"); attr != nil {
				names = append(names, s.text(attr))
			}
		}
	}
	return names
}

func looksLikeModel(bases []string) bool {
	for _, b := range bases {
		if b == "Base" || b == "DeclarativeBase" || strings.HasSuffix(b, "Base") {
			return true
		}
	}
	return false
}

func (s *fileScan) findTableName(class *sitter.Node) string {
	body := class.ChildByFieldName("body")
	if body == nil {
		return ""
	}
	for i := range body.ChildCount() {
		stmt := body.Child(i)
		if stmt.Kind() != "expression_statement" {
			continue
		}
		assign := childOfKind(stmt, "assignment")
		if assign == nil {
			continue
		}
		left := assign.ChildByFieldName("left")
		right := assign.ChildByFieldName("right")
		if left == nil || right == nil {
			continue
		}
		if left.Kind() == "identifier" && s.text(left) == "__tablename__" && right.Kind() == "string" {
			return stringContent(s.text(right))
		}
	}
	return ""
}

// handleCall watches for FastAPI(), Depends() and include_router().
func (s *fileScan) handleCall(node *sitter.Node) {
	fnNode := node.ChildByFieldName("function")
	if fnNode == nil {
		return
	}
	switch fnNode.Kind() {
	case "identifier":
		switch s.text(fnNode) {
		case "FastAPI":
			if s.fastAPIApp == nil {
				s.fastAPIApp = node
			}
		case "Depends":
			if !s.usesDepends {
				s.usesDepends = true
				s.dependsNode = node
			}
		}
	case "attribute":
		attr := fnNode.ChildByFieldName("attribute")
		if attr != nil && s.text(attr) == "include_router" {
			s.handleIncludeRouter(node)
		}
	}
}

// handleIncludeRouter records app.include_router(x.router, prefix="/api")
// as a router-mount hint so route paths in the mounted file get the
// prefix applied during merge.
func (s *fileScan) handleIncludeRouter(call *sitter.Node) {
	prefix := s.keywordStringArg(call, "prefix")
	if prefix == "" {
		return
	}
	args := call.ChildByFieldName("arguments")
	if args == nil || args.ChildCount() == 0 {
		return
	}
	var first *sitter.Node
	for i := range args.ChildCount() {
		c := args.Child(i)
		if c.Kind() == "identifier" || c.Kind() == "attribute" {
			first = c
			break
		}
	}
	if first == nil {
		return
	}

	target := ""
	switch first.Kind() {
	case "identifier":
		if t, ok := s.imports[s.text(first)]; ok {
			if t.attr != "" && t.attr != "router" {
				return
			}
			target = t.module
		}
	case "attribute":
		obj := first.ChildByFieldName("object")
		if obj != nil && obj.Kind() == "identifier" {
			if t, ok := s.imports[s.text(obj)]; ok && t.attr == "" {
				target = t.module
			} else if t.attr != "" {
				target = t.module + "." + t.attr
			}
		}
	}
	if target == "" {
		return
	}

	s.includes = append(s.includes, facts.New(facts.KindPatternHint, "Router mount "+prefix,
		evidence(s.path, call, "include_router", facts.High),
	).WithAttrs("pattern", "router_include", "prefix", prefix, "target_module", target))
}

// handleAssignment records router variables: x = APIRouter(prefix="/v1").
func (s *fileScan) handleAssignment(node *sitter.Node) {
	left := node.ChildByFieldName("left")
	right := node.ChildByFieldName("right")
	if left == nil || right == nil || left.Kind() != "identifier" || right.Kind() != "call" {
		return
	}
	fnNode := right.ChildByFieldName("function")
	if fnNode == nil || fnNode.Kind() != "identifier" || s.text(fnNode) != "APIRouter" {
		return
	}
	if s.routerPrefixes == nil {
		s.routerPrefixes = make(map[string]string)
	}
	s.routerPrefixes[s.text(left)] = s.keywordStringArg(right, "prefix")
}

// applyRouterPrefixes joins same-file APIRouter prefixes onto routes.
func applyRouterPrefixes(routes []facts.Fact, prefixes map[string]string) []facts.Fact {
	if len(prefixes) == 0 {
		return routes
	}
	for i, r := range routes {
		prefix := prefixes[r.Attr("router")]
		p := r.Attr("path")
		if prefix == "" || p == "" || strings.HasPrefix(p, prefix) {
			continue
		}
		joined := joinRoutePath(prefix, p)
		routes[i] = r.WithAttrs("path", joined)
		routes[i].Summary = r.Attr("method") + " " + joined
	}
	return routes
}

func joinRoutePath(prefix, p string) string {
	return strings.TrimSuffix(prefix, "/") + "/" + strings.TrimPrefix(p, "/")
}

func (s *fileScan) firstStringArg(call *sitter.Node) string {
	args := call.ChildByFieldName("arguments")
	if args == nil {
		return ""
	}
	for i := range args.ChildCount() {
		c := args.Child(i)
		if c.Kind() == "keyword_argument" {
			return ""
		}
		if c.Kind() == "string" {
			return stringContent(s.text(c))
		}
	}
	return ""
}

func (s *fileScan) keywordStringArg(call *sitter.Node, name string) string {
	args := call.ChildByFieldName("arguments")
	if args == nil {
		return ""
	}
	for i := range args.ChildCount() {
		c := args.Child(i)
		if c.Kind() != "keyword_argument" {
			continue
		}
		key := c.ChildByFieldName("name")
		val := c.ChildByFieldName("value")
		if key == nil || val == nil || s.text(key) != name {
			continue
		}
		if val.Kind() == "string" {
			return stringContent(s.text(val))
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

// stringContent strips quotes and prefixes from a Python string literal.
func stringContent(lit string) string {
	lit = strings.TrimLeft(lit, "rbufRBUF")
	for _, q := range []string{`"""`, "'''", `"`, `'`} {
		if strings.HasPrefix(lit, q) && strings.HasSuffix(lit, q) && len(lit) >= 2*len(q) {
			return lit[len(q) : len(lit)-len(q)]
		}
	}
	return lit
}

// dottedModule converts a repo-relative path into its dotted module path.
func dottedModule(filePath string) string {
	trimmed := strings.TrimSuffix(filePath, ".py")
	if path.Base(trimmed) == "__init__" {
		trimmed = path.Dir(trimmed)
		if trimmed == "." {
			return ""
		}
	}
	return strings.ReplaceAll(trimmed, "/", ".")
}
