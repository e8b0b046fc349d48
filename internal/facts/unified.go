package facts

// UnifiedModel is the merged, cross-file representation of the analyzed
// repository. It is rebuilt fully on each run and handed to downstream
// renderers/UI/Q&A as an in-process value; the core never persists it.
type UnifiedModel struct {
	RepoName string `json:"repo_name"`
	RepoPath string `json:"repo_path"`

	// Partial is set when the run was cancelled before all files were
	// extracted. The model is still structurally valid.
	Partial bool `json:"partial,omitempty"`

	EntryPoints    []EntryPoint      `json:"entry_points"`
	Frameworks     []Framework       `json:"frameworks"`
	APIEndpoints   []APIEndpoint     `json:"api_endpoints"`
	DomainEntities []DomainEntity    `json:"domain_entities"`
	ConfigFiles    []ConfigFile      `json:"config_files"`
	EnvVars        []EnvVar          `json:"env_vars"`
	Subsystems     []Subsystem       `json:"subsystems"`
	Graph          DependencyGraph   `json:"dependency_graph"`
	Patterns       []PatternDetected `json:"patterns_detected"`
	RiskAreas      []RiskArea        `json:"risk_areas"`

	// UnparseableFiles lists files that degraded to a low-confidence
	// unparseable fact, so consumers can distinguish "no facts" from
	// "facts absent due to parse failure".
	UnparseableFiles []string `json:"unparseable_files,omitempty"`

	// SkippedFiles and Warnings carry the scan's exclusion record into
	// the model; skipped files never silently vanish from output.
	SkippedFiles []SkippedRecord `json:"skipped_files,omitempty"`
	Warnings     []string        `json:"warnings,omitempty"`

	Facts []Fact `json:"facts"`
}

// SkippedRecord mirrors the scanner's skipped-file entry in the model.
type SkippedRecord struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// EntryPoint is a place where the application starts.
type EntryPoint struct {
	Path        string     `json:"path"`
	Description string     `json:"description"`
	Evidence    []Evidence `json:"evidence"`
}

// Framework is a detected framework or significant library.
type Framework struct {
	Name     string     `json:"name"`
	Category string     `json:"category"`
	Evidence []Evidence `json:"evidence"`
}

// APIEndpoint is one registered HTTP route.
type APIEndpoint struct {
	Method   string     `json:"method"`
	Path     string     `json:"path"`
	Handler  string     `json:"handler,omitempty"`
	Evidence []Evidence `json:"evidence"`
}

// DomainEntity is an ORM-model-like declaration.
type DomainEntity struct {
	Name     string     `json:"name"`
	Table    string     `json:"table,omitempty"`
	File     string     `json:"file"`
	Evidence []Evidence `json:"evidence"`
}

// ConfigFile is a recognized configuration file.
type ConfigFile struct {
	Path          string     `json:"path"`
	FileType      string     `json:"file_type"`
	Description   string     `json:"description"`
	SettingsCount int        `json:"settings_count,omitempty"`
	Evidence      []Evidence `json:"evidence"`
}

// EnvVar is an environment variable the code reads.
type EnvVar struct {
	Name         string     `json:"name"`
	SourceFile   string     `json:"source_file"`
	HasDefault   bool       `json:"has_default"`
	DefaultValue string     `json:"default_value,omitempty"`
	Evidence     []Evidence `json:"evidence"`
}

// Subsystem is a detected component grouping.
type Subsystem struct {
	Name        string     `json:"name"`
	Directory   string     `json:"directory"`
	Description string     `json:"description"`
	KeyFiles    []string   `json:"key_files"`
	Evidence    []Evidence `json:"evidence"`
}

// RiskArea is an evidenced, severity-rated concern.
type RiskArea struct {
	RiskType    string     `json:"risk_type"`
	Location    string     `json:"location"`
	Description string     `json:"description"`
	Severity    string     `json:"severity"` // low | medium | high
	Evidence    []Evidence `json:"evidence"`
}

// PatternDetected is an evidenced architectural idiom.
type PatternDetected struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Evidence    []Evidence `json:"evidence"`
}
