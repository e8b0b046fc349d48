package extract

import (
	"context"

	"github.com/selitys/selitys/internal/facts"
	"github.com/selitys/selitys/internal/scan"
)

// Extractor parses a single source file and emits architectural facts.
// Extract receives the file content so the router reads each file once;
// it must honor ctx and return whatever facts it has when cancelled.
type Extractor interface {
	// Name returns the extractor identifier (e.g. "python", "js-ts").
	Name() string
	// Version participates in cache keys; bump it when extraction
	// output changes for identical input.
	Version() string
	// Extract parses one file and returns its facts.
	Extract(ctx context.Context, file scan.SourceFile, src []byte) []facts.Fact
}

// Registry routes files to extractors by language. Registration order
// matters: the first extractor claiming a language wins.
type Registry struct {
	extractors []Extractor
	byLanguage map[string]Extractor
	fallback   Extractor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byLanguage: make(map[string]Extractor)}
}

// Register adds an extractor for the given languages. Languages already
// claimed by an earlier registration keep their original extractor.
func (r *Registry) Register(e Extractor, languages ...string) {
	r.extractors = append(r.extractors, e)
	for _, lang := range languages {
		if _, taken := r.byLanguage[lang]; !taken {
			r.byLanguage[lang] = e
		}
	}
}

// SetFallback sets the extractor used for files no registration claims.
func (r *Registry) SetFallback(e Extractor) {
	r.fallback = e
}

// For returns the extractor responsible for the file: the one registered
// for its language, else the fallback, else nil.
func (r *Registry) For(file scan.SourceFile) Extractor {
	if e, ok := r.byLanguage[file.Language]; ok {
		return e
	}
	return r.fallback
}

// Get returns the extractor with the given name, or nil if not found.
func (r *Registry) Get(name string) Extractor {
	for _, e := range r.extractors {
		if e.Name() == name {
			return e
		}
	}
	return nil
}

// All returns all registered extractors plus the fallback.
func (r *Registry) All() []Extractor {
	out := make([]Extractor, len(r.extractors))
	copy(out, r.extractors)
	if r.fallback != nil && r.Get(r.fallback.Name()) == nil {
		out = append(out, r.fallback)
	}
	return out
}
