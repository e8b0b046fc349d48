package scan

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gobwas/glob"
)

// SourceFile describes one scanned file. Immutable for the run.
type SourceFile struct {
	Path        string    `json:"path"`     // relative to root, slash-separated
	AbsPath     string    `json:"-"`        // absolute path on disk
	Language    string    `json:"language"` // detected language, "" if unknown
	Size        int64     `json:"size"`
	Lines       int       `json:"lines"`
	Fingerprint string    `json:"fingerprint"` // sha256 hex of content
	ModTime     time.Time `json:"mod_time"`
}

// SkippedFile records a file excluded from the scan and why.
type SkippedFile struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Result is the deterministic output of one scan.
type Result struct {
	Root      string         `json:"root"`
	Files     []SourceFile   `json:"files"`
	Skipped   []SkippedFile  `json:"skipped,omitempty"`
	Warnings  []string       `json:"warnings,omitempty"`
	Languages map[string]int `json:"languages"` // language -> line count
}

// Options configures a scan.
type Options struct {
	Root           string
	Include        []string // glob patterns; empty = include everything
	Exclude        []string // glob patterns
	MaxFileSize    int64    // bytes; <=0 means no limit
	RespectIgnores bool     // honor .gitignore entries
}

// Directories that are never scanned, regardless of configuration.
var defaultIgnoredDirs = map[string]struct{}{
	".git":          {},
	".hg":           {},
	".svn":          {},
	"__pycache__":   {},
	".pytest_cache": {},
	".mypy_cache":   {},
	".ruff_cache":   {},
	"node_modules":  {},
	".venv":         {},
	"venv":          {},
	"env":           {},
	"dist":          {},
	"build":         {},
	".tox":          {},
	".nox":          {},
	"htmlcov":       {},
	".idea":         {},
	".vscode":       {},
	".next":         {},
	".selitys":      {},
}

var binaryExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".bmp": {}, ".ico": {}, ".webp": {},
	".pdf": {}, ".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {}, ".ppt": {}, ".pptx": {},
	".zip": {}, ".tar": {}, ".gz": {}, ".bz2": {}, ".7z": {}, ".rar": {},
	".exe": {}, ".dll": {}, ".so": {}, ".dylib": {},
	".pyc": {}, ".pyo": {}, ".class": {},
	".woff": {}, ".woff2": {}, ".ttf": {}, ".eot": {},
	".mp3": {}, ".mp4": {}, ".avi": {}, ".mov": {}, ".wav": {},
	".sqlite": {}, ".db": {},
}

var languageByExtension = map[string]string{
	".py":    "Python",
	".js":    "JavaScript",
	".ts":    "TypeScript",
	".jsx":   "JavaScript (React)",
	".tsx":   "TypeScript (React)",
	".mjs":   "JavaScript",
	".cjs":   "JavaScript",
	".java":  "Java",
	".go":    "Go",
	".rs":    "Rust",
	".rb":    "Ruby",
	".php":   "PHP",
	".cs":    "C#",
	".cpp":   "C++",
	".c":     "C",
	".h":     "C/C++ Header",
	".swift": "Swift",
	".kt":    "Kotlin",
	".scala": "Scala",
	".sql":   "SQL",
	".sh":    "Shell",
	".yml":   "YAML",
	".yaml":  "YAML",
	".json":  "JSON",
	".xml":   "XML",
	".html":  "HTML",
	".css":   "CSS",
	".scss":  "SCSS",
	".md":    "Markdown",
	".toml":  "TOML",
	".ini":   "INI",
	".cfg":   "Config",
}

// Scanner walks a repository tree and produces a path-sorted Result.
type Scanner struct {
	opts    Options
	include []glob.Glob
	exclude []glob.Glob
	ignores []glob.Glob // compiled from .gitignore when RespectIgnores is set
}

// New creates a Scanner. Invalid glob patterns are rejected up front.
func New(opts Options) (*Scanner, error) {
	s := &Scanner{opts: opts}

	var err error
	if s.include, err = compileGlobs(opts.Include); err != nil {
		return nil, fmt.Errorf("include patterns: %w", err)
	}
	if s.exclude, err = compileGlobs(opts.Exclude); err != nil {
		return nil, fmt.Errorf("exclude patterns: %w", err)
	}
	return s, nil
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	matchers := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		m, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("compiling %q: %w", pattern, err)
		}
		matchers = append(matchers, m)
	}
	return matchers, nil
}

// Scan walks the tree and returns the Result. A single unreadable file is
// recorded as a warning; the scan itself only fails if the root is unusable.
func (s *Scanner) Scan() (*Result, error) {
	root, err := filepath.Abs(s.opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", root)
	}

	if s.opts.RespectIgnores {
		s.ignores = loadGitignore(root)
	}

	result := &Result{Root: root, Languages: make(map[string]int)}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %v", path, walkErr))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}

		if d.IsDir() {
			if s.dirIgnored(rel, d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		s.visitFile(result, root, rel, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	sort.Slice(result.Files, func(i, j int) bool {
		return result.Files[i].Path < result.Files[j].Path
	})
	sort.Slice(result.Skipped, func(i, j int) bool {
		return result.Skipped[i].Path < result.Skipped[j].Path
	})

	log.Printf("[scan] %d files, %d skipped, %d warnings in %s",
		len(result.Files), len(result.Skipped), len(result.Warnings), root)
	return result, nil
}

func (s *Scanner) visitFile(result *Result, root, rel, abs string) {
	if s.pathExcluded(rel) {
		return
	}
	if len(s.include) > 0 && !matchAny(s.include, rel) {
		return
	}

	info, err := os.Stat(abs)
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %v", rel, err))
		return
	}

	if s.opts.MaxFileSize > 0 && info.Size() > s.opts.MaxFileSize {
		result.Skipped = append(result.Skipped, SkippedFile{
			Path:   rel,
			Reason: fmt.Sprintf("size %d exceeds limit %d", info.Size(), s.opts.MaxFileSize),
		})
		return
	}

	ext := strings.ToLower(filepath.Ext(rel))
	if _, ok := binaryExtensions[ext]; ok {
		result.Skipped = append(result.Skipped, SkippedFile{Path: rel, Reason: "binary file"})
		return
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %v", rel, err))
		return
	}

	if looksBinary(data) {
		result.Skipped = append(result.Skipped, SkippedFile{Path: rel, Reason: "binary content"})
		return
	}

	sum := sha256.Sum256(data)
	lines := countLines(data)
	lang := detectLanguage(rel, data)

	result.Files = append(result.Files, SourceFile{
		Path:        rel,
		AbsPath:     abs,
		Language:    lang,
		Size:        info.Size(),
		Lines:       lines,
		Fingerprint: hex.EncodeToString(sum[:]),
		ModTime:     info.ModTime().UTC(),
	})
	if lang != "" {
		result.Languages[lang] += lines
	}
}

func (s *Scanner) dirIgnored(rel, name string) bool {
	if _, ok := defaultIgnoredDirs[name]; ok {
		return true
	}
	if strings.HasSuffix(name, ".egg-info") {
		return true
	}
	if s.pathExcluded(rel) {
		return true
	}
	return matchAny(s.ignores, rel+"/")
}

func (s *Scanner) pathExcluded(rel string) bool {
	if matchAny(s.exclude, rel) {
		return true
	}
	return matchAny(s.ignores, rel)
}

func matchAny(matchers []glob.Glob, path string) bool {
	for _, m := range matchers {
		if m.Match(path) {
			return true
		}
	}
	return false
}

// loadGitignore compiles .gitignore entries into glob matchers. Negations and
// other advanced gitignore syntax are not supported; unsupported lines are
// dropped with a log line rather than failing the scan.
func loadGitignore(root string) []glob.Glob {
	f, err := os.Open(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	defer f.Close()

	var matchers []glob.Glob
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		for _, pattern := range gitignoreToGlobs(line) {
			m, err := glob.Compile(pattern, '/')
			if err != nil {
				log.Printf("[scan] skipping gitignore pattern %q: %v", line, err)
				continue
			}
			matchers = append(matchers, m)
		}
	}
	return matchers
}

// gitignoreToGlobs translates one gitignore line into glob patterns matched
// against slash-relative paths (directories carry a trailing slash).
func gitignoreToGlobs(line string) []string {
	anchored := strings.HasPrefix(line, "/")
	line = strings.TrimPrefix(line, "/")
	dirOnly := strings.HasSuffix(line, "/")
	line = strings.TrimSuffix(line, "/")
	if line == "" {
		return nil
	}

	var patterns []string
	if anchored {
		patterns = append(patterns, line)
	} else {
		patterns = append(patterns, line, "**/"+line)
	}

	out := make([]string, 0, len(patterns)*2)
	for _, p := range patterns {
		if dirOnly {
			out = append(out, p+"/", p+"/**")
		} else {
			out = append(out, p, p+"/**")
		}
	}
	return out
}

// looksBinary samples the leading bytes for NUL or a high ratio of
// non-text content.
func looksBinary(data []byte) bool {
	sample := data
	if len(sample) > 512 {
		sample = sample[:512]
	}
	if bytes.IndexByte(sample, 0) >= 0 {
		return true
	}
	if len(sample) == 0 {
		return false
	}
	nonText := 0
	for _, b := range sample {
		if b < 0x07 || (b > 0x0d && b < 0x20) {
			nonText++
		}
	}
	return nonText*10 > len(sample)
}

func countLines(data []byte) int {
	if len(data) == 0 {
		return 0
	}
	n := bytes.Count(data, []byte{'\n'})
	if data[len(data)-1] != '\n' {
		n++
	}
	return n
}

func detectLanguage(rel string, data []byte) string {
	ext := strings.ToLower(filepath.Ext(rel))
	if lang, ok := languageByExtension[ext]; ok {
		return lang
	}
	if ext == "" {
		return languageFromShebang(data)
	}
	return ""
}

// languageFromShebang inspects the first line of an extensionless script.
func languageFromShebang(data []byte) string {
	if !bytes.HasPrefix(data, []byte("#!")) {
		return ""
	}
	line := data
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	switch {
	case bytes.Contains(line, []byte("python")):
		return "Python"
	case bytes.Contains(line, []byte("node")):
		return "JavaScript"
	case bytes.Contains(line, []byte("bash")), bytes.Contains(line, []byte("/sh")):
		return "Shell"
	case bytes.Contains(line, []byte("ruby")):
		return "Ruby"
	}
	return ""
}
