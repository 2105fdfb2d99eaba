package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/abramin/callrisk/internal/analysis"
	"github.com/abramin/callrisk/internal/graph"
)

// FileName is the configuration file looked up when no path is given.
const FileName = "callrisk.yaml"

// Config represents the callrisk configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Index    IndexConfig    `yaml:"index"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int             `yaml:"port"`
	ReadTimeout     time.Duration   `yaml:"read_timeout"`
	WriteTimeout    time.Duration   `yaml:"write_timeout"`
	IdleTimeout     time.Duration   `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout"`
	CORSOrigins     []string        `yaml:"cors_origins"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig is the token bucket applied to analysis routes.
// A zero RPS disables limiting.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// AnalysisConfig holds defaults and bounds for analyses.
type AnalysisConfig struct {
	MaxPaths      int                      `yaml:"max_paths"`
	MinSeverity   string                   `yaml:"min_severity"`
	MaxStates     int                      `yaml:"max_states"`
	MaxTracePaths int                      `yaml:"max_trace_paths"`
	RiskLimit     int                      `yaml:"risk_limit"`
	Scoring       *analysis.ScoringFactors `yaml:"scoring"`
}

// IngestConfig bounds the size of an ingested graph.
type IngestConfig struct {
	MaxFunctions       int `yaml:"max_functions"`
	MaxEdges           int `yaml:"max_edges"`
	MaxVulnerabilities int `yaml:"max_vulnerabilities"`
}

// IndexConfig controls call graph extraction from Go source.
type IndexConfig struct {
	Exclude            ExcludeConfig `yaml:"exclude"`
	EntrypointFuncs    []string      `yaml:"entrypoint_funcs"`
	EntrypointPackages []string      `yaml:"entrypoint_packages"`
	IncludeTests       bool          `yaml:"include_tests"`
}

// ExcludeConfig defines patterns to exclude from indexing.
type ExcludeConfig struct {
	Dirs      []string `yaml:"dirs"`
	FilesGlob []string `yaml:"files_glob"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"` // json or console
	Development bool   `yaml:"development"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	scoring := analysis.DefaultScoringFactors()
	return &Config{
		Server: ServerConfig{
			Port:            3000,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimit:       RateLimitConfig{RPS: 20, Burst: 40},
		},
		Analysis: AnalysisConfig{
			MaxPaths:      analysis.DefaultAttackPathLimit,
			MinSeverity:   string(graph.SeverityHigh),
			MaxStates:     analysis.DefaultMaxStates,
			MaxTracePaths: analysis.DefaultTraceLimit,
			RiskLimit:     analysis.DefaultRiskLimit,
			Scoring:       &scoring,
		},
		Ingest: IngestConfig{
			MaxFunctions:       10000,
			MaxEdges:           50000,
			MaxVulnerabilities: 1000,
		},
		Index: IndexConfig{
			Exclude: ExcludeConfig{
				Dirs:      []string{"vendor", "third_party", "testdata"},
				FilesGlob: []string{"**/*.pb.go", "**/*_gen.go", "**/*_mock.go"},
			},
			EntrypointFuncs:    []string{"main.main"},
			EntrypointPackages: []string{"**/handlers/**", "**/http/**", "**/api/**"},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from file, falling back to defaults.
// If configPath is empty, it looks for callrisk.yaml in the current directory.
// Fields set in the file replace the corresponding defaults.
func Load(configPath string) (*Config, error) {
	defaults := Default()

	if configPath == "" {
		configPath = FileName
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// No config file, use defaults
			return defaults, nil
		}
		return nil, err
	}

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
	}

	defaults.Merge(&fileCfg)
	if err := defaults.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	return defaults, nil
}

// LoadFromDir loads configuration from the specified directory.
func LoadFromDir(dir string) (*Config, error) {
	return Load(filepath.Join(dir, FileName))
}

// Merge combines another config into this one, with other taking precedence
// for every non-zero field.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	s, o := &c.Server, other.Server
	if o.Port != 0 {
		s.Port = o.Port
	}
	if o.ReadTimeout != 0 {
		s.ReadTimeout = o.ReadTimeout
	}
	if o.WriteTimeout != 0 {
		s.WriteTimeout = o.WriteTimeout
	}
	if o.IdleTimeout != 0 {
		s.IdleTimeout = o.IdleTimeout
	}
	if o.ShutdownTimeout != 0 {
		s.ShutdownTimeout = o.ShutdownTimeout
	}
	if len(o.CORSOrigins) > 0 {
		s.CORSOrigins = o.CORSOrigins
	}
	if o.RateLimit.RPS != 0 {
		s.RateLimit.RPS = o.RateLimit.RPS
	}
	if o.RateLimit.Burst != 0 {
		s.RateLimit.Burst = o.RateLimit.Burst
	}

	a, oa := &c.Analysis, other.Analysis
	if oa.MaxPaths != 0 {
		a.MaxPaths = oa.MaxPaths
	}
	if oa.MinSeverity != "" {
		a.MinSeverity = oa.MinSeverity
	}
	if oa.MaxStates != 0 {
		a.MaxStates = oa.MaxStates
	}
	if oa.MaxTracePaths != 0 {
		a.MaxTracePaths = oa.MaxTracePaths
	}
	if oa.RiskLimit != 0 {
		a.RiskLimit = oa.RiskLimit
	}
	if oa.Scoring != nil {
		a.Scoring = oa.Scoring
	}

	in, oi := &c.Ingest, other.Ingest
	if oi.MaxFunctions != 0 {
		in.MaxFunctions = oi.MaxFunctions
	}
	if oi.MaxEdges != 0 {
		in.MaxEdges = oi.MaxEdges
	}
	if oi.MaxVulnerabilities != 0 {
		in.MaxVulnerabilities = oi.MaxVulnerabilities
	}

	ix, ox := &c.Index, other.Index
	if len(ox.Exclude.Dirs) > 0 {
		ix.Exclude.Dirs = ox.Exclude.Dirs
	}
	if len(ox.Exclude.FilesGlob) > 0 {
		ix.Exclude.FilesGlob = ox.Exclude.FilesGlob
	}
	if len(ox.EntrypointFuncs) > 0 {
		ix.EntrypointFuncs = ox.EntrypointFuncs
	}
	if len(ox.EntrypointPackages) > 0 {
		ix.EntrypointPackages = ox.EntrypointPackages
	}
	if ox.IncludeTests {
		ix.IncludeTests = true
	}

	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.Format != "" {
		c.Log.Format = other.Log.Format
	}
	if other.Log.Development {
		c.Log.Development = true
	}
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Server.Port > 0 && c.Server.Port <= 65535, "server.port must be between 1 and 65535, got %d", c.Server.Port)
	check(c.Server.RateLimit.RPS >= 0, "server.rate_limit.rps must not be negative")
	check(c.Server.RateLimit.RPS == 0 || c.Server.RateLimit.Burst > 0, "server.rate_limit.burst must be positive when rps is set")

	check(c.Analysis.MaxPaths > 0, "analysis.max_paths must be positive")
	check(c.Analysis.MaxStates > 0, "analysis.max_states must be positive")
	check(c.Analysis.MaxTracePaths > 0, "analysis.max_trace_paths must be positive")
	check(c.Analysis.RiskLimit > 0, "analysis.risk_limit must be positive")
	if _, err := graph.ParseSeverity(c.Analysis.MinSeverity); err != nil {
		errs = append(errs, fmt.Errorf("analysis.min_severity: %w", err))
	}
	if f := c.Analysis.Scoring; f != nil {
		for name, v := range map[string]int{
			"critical": f.Critical, "high": f.High, "medium": f.Medium, "low": f.Low,
			"reachability_bonus": f.ReachabilityBonus, "package_risk": f.PackageRisk, "ai_risk": f.AIRisk,
		} {
			check(v >= 0, "analysis.scoring.%s must not be negative", name)
		}
	}

	check(c.Ingest.MaxFunctions > 0, "ingest.max_functions must be positive")
	check(c.Ingest.MaxEdges >= 0, "ingest.max_edges must not be negative")
	check(c.Ingest.MaxVulnerabilities >= 0, "ingest.max_vulnerabilities must not be negative")

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level))
	}
	check(c.Log.Format == "json" || c.Log.Format == "console", "log.format must be json or console, got %q", c.Log.Format)

	return errors.Join(errs...)
}

// ScoringFactors returns the configured scoring weights.
func (c *Config) ScoringFactors() analysis.ScoringFactors {
	if c.Analysis.Scoring == nil {
		return analysis.DefaultScoringFactors()
	}
	return *c.Analysis.Scoring
}

// IsExcludedDir checks if a directory should be excluded from indexing.
func (c *Config) IsExcludedDir(dir string) bool {
	base := filepath.Base(dir)
	for _, excluded := range c.Index.Exclude.Dirs {
		if base == excluded {
			return true
		}
	}
	return false
}

// IsExcludedFile checks a source file against the exclude globs.
// A leading "**/" matches any directory.
func (c *Config) IsExcludedFile(file string) bool {
	file = filepath.ToSlash(file)
	for _, pattern := range c.Index.Exclude.FilesGlob {
		if rest, ok := strings.CutPrefix(pattern, "**/"); ok {
			if matched, err := path.Match(rest, path.Base(file)); err == nil && matched {
				return true
			}
			continue
		}
		if matched, err := path.Match(pattern, file); err == nil && matched {
			return true
		}
	}
	return false
}

// IsEntrypoint reports whether a function should be treated as an entry point.
// Function patterns match "pkgname.Func" or the bare function name; package
// patterns apply to exported functions only.
func (c *Config) IsEntrypoint(pkgPath, pkgName, funcName string, exported bool) bool {
	qualified := pkgName + "." + funcName
	for _, pattern := range c.Index.EntrypointFuncs {
		for _, name := range []string{qualified, funcName} {
			if matched, err := path.Match(pattern, name); err == nil && matched {
				return true
			}
		}
	}
	if !exported {
		return false
	}
	for _, pattern := range c.Index.EntrypointPackages {
		if matchPackagePattern(pattern, pkgPath) {
			return true
		}
	}
	return false
}

// matchPackagePattern matches a package path against a pattern.
// Supports ** for matching any number of path components.
// Example: "**/handlers/**" matches "myapp/internal/handlers/user"
func matchPackagePattern(pattern, pkgPath string) bool {
	if len(pattern) >= 4 && pattern[:2] == "**" && pattern[len(pattern)-2:] == "**" {
		middle := pattern[2 : len(pattern)-2] // e.g., "/handlers/"
		if strings.Contains(pkgPath+"/", middle) {
			return true
		}
		// Also match if it starts with the middle part (without leading slash)
		if len(middle) > 0 && middle[0] == '/' {
			if strings.HasPrefix(pkgPath+"/", middle[1:]) {
				return true
			}
		}
		return false
	}

	matched, err := path.Match(pattern, pkgPath)
	return err == nil && matched
}
