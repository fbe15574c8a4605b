package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/standardbeagle/reflens/internal/types"
)

// Config holds all settings for the reference accounting engine.
type Config struct {
	Version     int
	Project     Project
	Accounting  Accounting
	Scan        Scan
	Performance Performance
	Watch       Watch
	Include     []string
	Exclude     []string
}

type Project struct {
	Root string
	Name string
}

// Accounting controls how raw references are turned into effective counts.
type Accounting struct {
	IncludeImports bool // count import-style references as usage
	CooldownMs     int  // staleness cooldown for cached per-file results
}

// Scan controls workspace file enumeration.
type Scan struct {
	Extensions       []string // file-extension allow-list, e.g. ".go", ".ts"
	MaxFileSize      int64
	RespectGitignore bool // process .gitignore files for additional exclusions
	FollowSymlinks   bool
}

type Performance struct {
	DebounceMs          int // delay between an edit event and the accounting pass
	RetryAttempts       int // symbol oracle warm-up retries
	RetryBackoffMs      int // fixed delay between retries
	ParallelFileWorkers int // 0 = auto-detect (NumCPU)
}

type Watch struct {
	Enabled    bool
	DebounceMs int // debounce for raw file system events
}

// DefaultExtensions covers the languages the built-in oracle understands.
var DefaultExtensions = []string{".go", ".js", ".jsx", ".ts", ".tsx", ".py"}

// DefaultExcludes keeps dependency and build trees out of accounting.
var DefaultExcludes = []string{
	"**/node_modules/**",
	"**/vendor/**",
	"**/.git/**",
	"**/dist/**",
	"**/build/**",
}

// Default returns a Config populated with defaults. Callers layer file and
// flag values on top.
func Default() *Config {
	return &Config{
		Version: 1,
		Project: Project{Root: "."},
		Accounting: Accounting{
			IncludeImports: false,
			CooldownMs:     types.DefaultCooldownMs,
		},
		Scan: Scan{
			Extensions:       append([]string(nil), DefaultExtensions...),
			MaxFileSize:      types.DefaultMaxFileSize,
			RespectGitignore: true,
		},
		Performance: Performance{
			DebounceMs:     types.DefaultDebounceMs,
			RetryAttempts:  types.DefaultRetryAttempts,
			RetryBackoffMs: types.DefaultRetryBackoffMs,
		},
		Watch: Watch{
			Enabled:    false,
			DebounceMs: 200,
		},
		Include: []string{},
		Exclude: append([]string(nil), DefaultExcludes...),
	}
}

// Validate checks that configuration values are usable.
func (c *Config) Validate() error {
	if c.Performance.DebounceMs < 0 {
		return fmt.Errorf("performance.debounce_ms must be >= 0, got %d", c.Performance.DebounceMs)
	}
	if c.Performance.RetryAttempts < 1 {
		return fmt.Errorf("performance.retry_attempts must be >= 1, got %d", c.Performance.RetryAttempts)
	}
	if c.Accounting.CooldownMs < 0 {
		return fmt.Errorf("accounting.cooldown_ms must be >= 0, got %d", c.Accounting.CooldownMs)
	}
	if c.Scan.MaxFileSize <= 0 {
		return fmt.Errorf("scan.max_file_size must be > 0, got %d", c.Scan.MaxFileSize)
	}
	for _, pattern := range c.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}
	for _, pattern := range c.Include {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid include pattern %q", pattern)
		}
	}
	return nil
}

// ExcludePredicate builds the opaque path predicate used identically for
// files scanned and references counted. Patterns match against both the
// path as given and its slash form relative to the project root.
func (c *Config) ExcludePredicate() types.ExcludePredicate {
	patterns := append([]string(nil), c.Exclude...)
	root := c.Project.Root

	return func(path string) bool {
		candidates := []string{filepath.ToSlash(path)}
		if root != "" {
			if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
				candidates = append(candidates, filepath.ToSlash(rel))
			}
		}
		for _, pattern := range patterns {
			for _, candidate := range candidates {
				if ok, _ := doublestar.Match(pattern, candidate); ok {
					return true
				}
			}
		}
		return false
	}
}

// AllowsExtension reports whether the path's extension is on the allow-list.
func (c *Config) AllowsExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, allowed := range c.Scan.Extensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// MatchesInclude reports whether a path matches the include patterns.
// An empty include list includes everything.
func (c *Config) MatchesInclude(path string) bool {
	if len(c.Include) == 0 {
		return true
	}
	slashed := filepath.ToSlash(path)
	for _, pattern := range c.Include {
		if ok, _ := doublestar.Match(pattern, slashed); ok {
			return true
		}
	}
	return false
}
