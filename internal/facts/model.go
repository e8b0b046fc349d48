package facts

// Confidence marks how reliable a piece of evidence is.
type Confidence string

const (
	High   Confidence = "high"
	Medium Confidence = "medium"
	Low    Confidence = "low"
)

// rank orders confidences for conflict resolution.
func (c Confidence) rank() int {
	switch c {
	case High:
		return 3
	case Medium:
		return 2
	case Low:
		return 1
	}
	return 0
}

// Stronger reports whether c outranks other.
func (c Confidence) Stronger(other Confidence) bool {
	return c.rank() > other.rank()
}

// Kind identifies the type of claim a Fact makes.
type Kind string

const (
	KindEntryPoint   Kind = "entry_point"
	KindFramework    Kind = "framework"
	KindRoute        Kind = "route"
	KindDomainEntity Kind = "domain_entity"
	KindConfigFile   Kind = "config_file"
	KindEnvVar       Kind = "env_var"
	KindImport       Kind = "import"
	KindExport       Kind = "export"
	KindSubsystem    Kind = "subsystem"
	KindPatternHint  Kind = "pattern_hint"
	KindRiskHint     Kind = "risk_hint"
	KindUnparseable  Kind = "unparseable"
)

// Evidence is the provenance of a Fact: file, line range, symbol or
// snippet, and a confidence marker. LineStart/LineEnd of 0 mean the
// match is symbol-only with no line information.
type Evidence struct {
	File       string     `json:"file"`
	LineStart  int        `json:"line_start,omitempty"`
	LineEnd    int        `json:"line_end,omitempty"`
	Symbol     string     `json:"symbol,omitempty"`
	Snippet    string     `json:"snippet,omitempty"`
	Confidence Confidence `json:"confidence"`
}

// Fact is a single evidenced claim extracted from one file. Facts are
// never mutated after creation, only aggregated.
type Fact struct {
	Kind       Kind              `json:"kind"`
	Summary    string            `json:"summary"`
	Confidence Confidence        `json:"confidence"`
	Evidence   []Evidence        `json:"evidence"`
	Attrs      map[string]string `json:"attrs,omitempty"`
}

// New builds a Fact, enforcing the at-least-one-Evidence invariant and
// deriving the fact confidence from its strongest evidence.
func New(kind Kind, summary string, ev ...Evidence) Fact {
	if len(ev) == 0 {
		ev = []Evidence{{Confidence: Low}}
	}
	best := Low
	for i := range ev {
		if ev[i].Confidence == "" {
			ev[i].Confidence = Low
		}
		if ev[i].Confidence.Stronger(best) {
			best = ev[i].Confidence
		}
	}
	return Fact{Kind: kind, Summary: summary, Confidence: best, Evidence: ev}
}

// WithAttrs returns a copy of the fact with the given attributes set.
// The attribute map is copied, so the receiver is never mutated even
// when it is shared (facts handed out by the cache are aliased).
func (f Fact) WithAttrs(kv ...string) Fact {
	attrs := make(map[string]string, len(f.Attrs)+len(kv)/2)
	for k, v := range f.Attrs {
		attrs[k] = v
	}
	for i := 0; i+1 < len(kv); i += 2 {
		attrs[kv[i]] = kv[i+1]
	}
	f.Attrs = attrs
	return f
}

// Attr returns the named attribute or "".
func (f Fact) Attr(name string) string {
	if f.Attrs == nil {
		return ""
	}
	return f.Attrs[name]
}

// File returns the file of the primary evidence entry.
func (f Fact) File() string {
	if len(f.Evidence) == 0 {
		return ""
	}
	return f.Evidence[0].File
}

// Line returns the starting line of the primary evidence entry.
func (f Fact) Line() int {
	if len(f.Evidence) == 0 {
		return 0
	}
	return f.Evidence[0].LineStart
}

// ForceLow caps the fact and all its evidence at Low confidence.
// Heuristic-only extraction must never claim more. The evidence slice
// is copied so shared facts are not mutated.
func (f Fact) ForceLow() Fact {
	f.Confidence = Low
	evs := make([]Evidence, len(f.Evidence))
	copy(evs, f.Evidence)
	for i := range evs {
		evs[i].Confidence = Low
	}
	f.Evidence = evs
	return f
}

// Unparseable is the degraded fact emitted when a file cannot be parsed.
func Unparseable(path, reason string) Fact {
	f := New(KindUnparseable, "Unparseable file", Evidence{
		File:       path,
		Snippet:    reason,
		Confidence: Low,
	})
	return f.WithAttrs("reason", reason)
}
