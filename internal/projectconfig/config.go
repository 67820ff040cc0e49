// Package projectconfig provides the ProjectConfig struct and loader for
// .dea.yaml project-level configuration files.
package projectconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the project configuration file looked up by Load.
const FileName = ".dea.yaml"

// Default values for project configuration. New() references them and no
// other code should duplicate them.
const (
	DefaultDataFile = "dmus.tsv"

	DefaultWorkers   = 1
	DefaultTolerance = 1e-6
	DefaultDecimals  = 4
	DefaultTimeout   = 5 * time.Minute

	DefaultFormat          = "table"
	DefaultConfidenceLevel = 0.95

	DefaultCacheDir = ".dea-cache"

	DefaultServerPort        = 3000
	DefaultServerMaxBodySize = 10 << 20
)

// SolverConfig holds parameters passed to the CCR solver.
type SolverConfig struct {
	Workers   int           `yaml:"workers,omitempty"`
	Tolerance float64       `yaml:"tolerance,omitempty"`
	Decimals  *int          `yaml:"decimals,omitempty"`
	Timeout   time.Duration `yaml:"timeout,omitempty"`
}

// OutputConfig holds report rendering settings.
type OutputConfig struct {
	Format          string  `yaml:"format,omitempty"`
	Chart           *bool   `yaml:"chart,omitempty"`
	Summary         *bool   `yaml:"summary,omitempty"`
	ConfidenceLevel float64 `yaml:"confidence_level,omitempty"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Dir     string `yaml:"dir,omitempty"`
}

// ServerConfig holds `dea serve` settings.
type ServerConfig struct {
	Port        int   `yaml:"port,omitempty"`
	MaxBodySize int64 `yaml:"max_body_size,omitempty"`
}

// ProjectConfig is the top-level configuration loaded from .dea.yaml.
type ProjectConfig struct {
	// Data is the table used by `dea run` when no file argument is given.
	Data   string       `yaml:"data,omitempty"`
	Solver SolverConfig `yaml:"solver,omitempty"`
	Output OutputConfig `yaml:"output,omitempty"`
	Cache  CacheConfig  `yaml:"cache,omitempty"`
	Server ServerConfig `yaml:"server,omitempty"`

	// path is the file the config was loaded from, empty for defaults.
	path string
}

// Path returns the file the configuration was read from, or "" when only
// defaults are in effect.
func (c *ProjectConfig) Path() string {
	return c.path
}

// New returns a ProjectConfig with all hard-coded defaults populated.
func New() *ProjectConfig {
	return &ProjectConfig{
		Data: DefaultDataFile,
		Solver: SolverConfig{
			Workers:   DefaultWorkers,
			Tolerance: DefaultTolerance,
			Decimals:  intPtr(DefaultDecimals),
			Timeout:   DefaultTimeout,
		},
		Output: OutputConfig{
			Format:          DefaultFormat,
			Chart:           boolPtr(false),
			Summary:         boolPtr(false),
			ConfidenceLevel: DefaultConfidenceLevel,
		},
		Cache: CacheConfig{
			Enabled: boolPtr(false),
			Dir:     DefaultCacheDir,
		},
		Server: ServerConfig{
			Port:        DefaultServerPort,
			MaxBodySize: DefaultServerMaxBodySize,
		},
	}
}

// Load finds .dea.yaml by walking up from startDir (max 10 levels),
// unmarshals it, and fills in missing fields with defaults.
// If no config file is found, returns defaults with a nil error.
// Real I/O errors (e.g. permission denied) are returned to the caller.
func Load(startDir string) (*ProjectConfig, error) {
	cfg := New()

	path, data, err := findConfigFile(startDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("loading %s: %w", FileName, err)
	}

	var fileCfg ProjectConfig
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	mergeConfig(cfg, &fileCfg)
	cfg.path = path
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports values that the solver or server cannot use.
func (c *ProjectConfig) Validate() error {
	var errs []error
	if c.Solver.Workers < 1 {
		errs = append(errs, fmt.Errorf("solver.workers must be at least 1, got %d", c.Solver.Workers))
	}
	if c.Solver.Tolerance < 0 {
		errs = append(errs, fmt.Errorf("solver.tolerance must not be negative, got %g", c.Solver.Tolerance))
	}
	if c.Solver.Decimals != nil && (*c.Solver.Decimals < 0 || *c.Solver.Decimals > 15) {
		errs = append(errs, fmt.Errorf("solver.decimals must be between 0 and 15, got %d", *c.Solver.Decimals))
	}
	if c.Solver.Timeout < 0 {
		errs = append(errs, fmt.Errorf("solver.timeout must not be negative, got %s", c.Solver.Timeout))
	}
	if l := c.Output.ConfidenceLevel; l <= 0 || l >= 1 {
		errs = append(errs, fmt.Errorf("output.confidence_level must be in (0, 1), got %g", l))
	}
	if p := c.Server.Port; p < 0 || p > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", p))
	}
	return errors.Join(errs...)
}

// Dir returns the directory containing the loaded config file, or "" when
// only defaults are in effect. Relative paths in the file resolve against it.
func (c *ProjectConfig) Dir() string {
	if c.path == "" {
		return ""
	}
	return filepath.Dir(c.path)
}

// Resolve makes p absolute relative to Dir when p is relative and a config
// file was loaded.
func (c *ProjectConfig) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || c.path == "" {
		return p
	}
	return filepath.Join(c.Dir(), p)
}

// findConfigFile walks up from dir looking for .dea.yaml (max 10 levels).
// Returns os.ErrNotExist if no config file is found.
func findConfigFile(dir string) (string, []byte, error) {
	// Convert to absolute path so filepath.Dir(".") walks correctly.
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", nil, fmt.Errorf("resolving path %q: %w", dir, err)
	}
	dir = absDir

	for i := 0; i < 10; i++ {
		p := filepath.Join(dir, FileName)
		data, err := os.ReadFile(p)
		if err == nil {
			return p, data, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", nil, fmt.Errorf("reading %q: %w", p, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break // reached filesystem root
		}
		dir = parent
	}
	return "", nil, os.ErrNotExist
}

// mergeConfig overlays non-zero values from src onto dst.
func mergeConfig(dst, src *ProjectConfig) {
	if src.Data != "" {
		dst.Data = src.Data
	}

	// Solver
	if src.Solver.Workers != 0 {
		dst.Solver.Workers = src.Solver.Workers
	}
	if src.Solver.Tolerance != 0 {
		dst.Solver.Tolerance = src.Solver.Tolerance
	}
	if src.Solver.Decimals != nil {
		dst.Solver.Decimals = src.Solver.Decimals
	}
	if src.Solver.Timeout != 0 {
		dst.Solver.Timeout = src.Solver.Timeout
	}

	// Output
	if src.Output.Format != "" {
		dst.Output.Format = src.Output.Format
	}
	if src.Output.Chart != nil {
		dst.Output.Chart = src.Output.Chart
	}
	if src.Output.Summary != nil {
		dst.Output.Summary = src.Output.Summary
	}
	if src.Output.ConfidenceLevel != 0 {
		dst.Output.ConfidenceLevel = src.Output.ConfidenceLevel
	}

	// Cache
	if src.Cache.Enabled != nil {
		dst.Cache.Enabled = src.Cache.Enabled
	}
	if src.Cache.Dir != "" {
		dst.Cache.Dir = src.Cache.Dir
	}

	// Server
	if src.Server.Port != 0 {
		dst.Server.Port = src.Server.Port
	}
	if src.Server.MaxBodySize != 0 {
		dst.Server.MaxBodySize = src.Server.MaxBodySize
	}
}

// Marshal renders the config as YAML, as written by `dea init`.
func (c *ProjectConfig) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

func boolPtr(b bool) *bool {
	return &b
}

func intPtr(i int) *int {
	return &i
}
