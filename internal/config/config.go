package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the selitys.yaml run configuration.
type Config struct {
	Root           string       `yaml:"root"`
	Include        []string     `yaml:"include"`
	Exclude        []string     `yaml:"exclude"`
	MaxFileSize    int64        `yaml:"max_file_size"`
	RespectIgnores bool         `yaml:"respect_ignores"`
	Workers        int          `yaml:"workers"`
	FileTimeout    Duration     `yaml:"file_timeout"`
	CacheSize      int          `yaml:"cache_size"`
	Output         OutputConfig `yaml:"output"`
}

// OutputConfig controls where run artifacts are written.
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// Duration wraps time.Duration for YAML decoding of values like "10s".
type Duration time.Duration

// UnmarshalYAML decodes a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML encodes the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Root:           ".",
		MaxFileSize:    2_000_000,
		RespectIgnores: true,
		Workers:        runtime.NumCPU(),
		FileTimeout:    Duration(10 * time.Second),
		CacheSize:      8192,
		Output: OutputConfig{
			Dir: ".selitys",
		},
	}
}

// Load reads a configuration file from the given path.
// Missing fields are filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	// Ensure required defaults
	if cfg.Root == "" {
		cfg.Root = "."
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.FileTimeout <= 0 {
		cfg.FileTimeout = Duration(10 * time.Second)
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 8192
	}
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = ".selitys"
	}

	return cfg, nil
}
