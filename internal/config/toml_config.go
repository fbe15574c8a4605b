package config

import (
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"
)

// tomlConfig mirrors Config with pointer fields so absent keys keep defaults.
type tomlConfig struct {
	Project *struct {
		Root *string `toml:"root"`
		Name *string `toml:"name"`
	} `toml:"project"`
	Accounting *struct {
		IncludeImports *bool `toml:"include_imports"`
		CooldownMs     *int  `toml:"cooldown_ms"`
	} `toml:"accounting"`
	Scan *struct {
		Extensions       []string `toml:"extensions"`
		MaxFileSize      *int64   `toml:"max_file_size"`
		RespectGitignore *bool    `toml:"respect_gitignore"`
		FollowSymlinks   *bool    `toml:"follow_symlinks"`
	} `toml:"scan"`
	Performance *struct {
		DebounceMs          *int `toml:"debounce_ms"`
		RetryAttempts       *int `toml:"retry_attempts"`
		RetryBackoffMs      *int `toml:"retry_backoff_ms"`
		ParallelFileWorkers *int `toml:"parallel_file_workers"`
	} `toml:"performance"`
	Watch *struct {
		Enabled    *bool `toml:"enabled"`
		DebounceMs *int  `toml:"debounce_ms"`
	} `toml:"watch"`
	Include []string `toml:"include"`
	Exclude []string `toml:"exclude"`
}

// LoadTOML loads configuration from a .reflens.toml file
func LoadTOML(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %v", path, err)
	}

	var raw tomlConfig
	if err := toml.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse TOML config: %w", err)
	}

	cfg := Default()
	if raw.Project != nil {
		if raw.Project.Root != nil {
			cfg.Project.Root = *raw.Project.Root
		}
		if raw.Project.Name != nil {
			cfg.Project.Name = *raw.Project.Name
		}
	}
	if raw.Accounting != nil {
		if raw.Accounting.IncludeImports != nil {
			cfg.Accounting.IncludeImports = *raw.Accounting.IncludeImports
		}
		if raw.Accounting.CooldownMs != nil {
			cfg.Accounting.CooldownMs = *raw.Accounting.CooldownMs
		}
	}
	if raw.Scan != nil {
		if len(raw.Scan.Extensions) > 0 {
			cfg.Scan.Extensions = raw.Scan.Extensions
		}
		if raw.Scan.MaxFileSize != nil {
			cfg.Scan.MaxFileSize = *raw.Scan.MaxFileSize
		}
		if raw.Scan.RespectGitignore != nil {
			cfg.Scan.RespectGitignore = *raw.Scan.RespectGitignore
		}
		if raw.Scan.FollowSymlinks != nil {
			cfg.Scan.FollowSymlinks = *raw.Scan.FollowSymlinks
		}
	}
	if raw.Performance != nil {
		if raw.Performance.DebounceMs != nil {
			cfg.Performance.DebounceMs = *raw.Performance.DebounceMs
		}
		if raw.Performance.RetryAttempts != nil {
			cfg.Performance.RetryAttempts = *raw.Performance.RetryAttempts
		}
		if raw.Performance.RetryBackoffMs != nil {
			cfg.Performance.RetryBackoffMs = *raw.Performance.RetryBackoffMs
		}
		if raw.Performance.ParallelFileWorkers != nil {
			cfg.Performance.ParallelFileWorkers = *raw.Performance.ParallelFileWorkers
		}
	}
	if raw.Watch != nil {
		if raw.Watch.Enabled != nil {
			cfg.Watch.Enabled = *raw.Watch.Enabled
		}
		if raw.Watch.DebounceMs != nil {
			cfg.Watch.DebounceMs = *raw.Watch.DebounceMs
		}
	}
	if len(raw.Include) > 0 {
		cfg.Include = raw.Include
	}
	if raw.Exclude != nil {
		cfg.Exclude = raw.Exclude
	}

	return cfg, nil
}
