package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"

	accerrors "github.com/standardbeagle/reflens/internal/errors"
	"github.com/standardbeagle/reflens/internal/types"
)

// Load reads configuration from the given path. A missing file is not an
// error: defaults are returned. The format is chosen by extension
// (.kdl or .toml).
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if root := filepath.Dir(path); root != "" && root != "." {
			cfg.Project.Root = root
		}
		return cfg, nil
	}

	var cfg *Config
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		cfg, err = LoadTOML(path)
	default:
		cfg, err = LoadKDL(path)
	}
	if err != nil {
		return nil, accerrors.NewConfigError("load", err).WithFile(types.FileID(path))
	}

	// Resolve the project root relative to the config file's directory so
	// the engine sees one consistent absolute root.
	base := filepath.Dir(path)
	if cfg.Project.Root == "" {
		cfg.Project.Root = base
	} else if !filepath.IsAbs(cfg.Project.Root) {
		cfg.Project.Root = filepath.Join(base, cfg.Project.Root)
	}
	cfg.Project.Root = filepath.Clean(cfg.Project.Root)

	return cfg, nil
}

// LoadKDL loads configuration from a .reflens.kdl file
func LoadKDL(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %v", path, err)
	}
	return parseKDL(string(content))
}

func parseKDL(content string) (*Config, error) {
	cfg := Default()

	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse KDL config: %w", err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "project":
			for _, cn := range n.Children { // project { root "." name "foo" }
				assignSimpleString(cn, "root", func(v string) { cfg.Project.Root = v })
				assignSimpleString(cn, "name", func(v string) { cfg.Project.Name = v })
			}
		case "accounting":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "include_imports":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Accounting.IncludeImports = b
					}
				case "cooldown_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Accounting.CooldownMs = v
					}
				}
			}
		case "scan":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "extensions":
					if exts := collectStringArgs(cn); len(exts) > 0 {
						cfg.Scan.Extensions = exts
					}
				case "max_file_size":
					if v, ok := firstIntArg(cn); ok {
						cfg.Scan.MaxFileSize = int64(v)
					}
				case "respect_gitignore":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Scan.RespectGitignore = b
					}
				case "follow_symlinks":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Scan.FollowSymlinks = b
					}
				}
			}
		case "performance":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "debounce_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Performance.DebounceMs = v
					}
				case "retry_attempts":
					if v, ok := firstIntArg(cn); ok {
						cfg.Performance.RetryAttempts = v
					}
				case "retry_backoff_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Performance.RetryBackoffMs = v
					}
				case "parallel_file_workers":
					if v, ok := firstIntArg(cn); ok {
						cfg.Performance.ParallelFileWorkers = v
					}
				}
			}
		case "watch":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "enabled":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Watch.Enabled = b
					}
				case "debounce_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Watch.DebounceMs = v
					}
				}
			}
		case "include":
			cfg.Include = append(cfg.Include, collectStringArgs(n)...)
		case "exclude":
			// Replace default exclusions if an exclude block is present
			cfg.Exclude = collectStringArgs(n)
		}
	}

	return cfg, nil
}

// Helper functions leveraging the kdl-go document model
func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	if b, ok := n.Arguments[0].Value.(bool); ok {
		return b, true
	}
	return false, false
}

func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	// Inline format: exclude "a" "b"
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}

	// Block format: exclude { "a"; "b" } - strings become child nodes where
	// the node name is the string value
	if len(out) == 0 && len(n.Children) > 0 {
		out = make([]string, 0, len(n.Children))
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if child.Name != nil {
				if s, ok := child.Name.Value.(string); ok {
					out = append(out, s)
				}
			}
		}
	}

	return out
}

func assignSimpleString(n *document.Node, target string, set func(string)) {
	if nodeName(n) == target {
		if s, ok := firstStringArg(n); ok {
			set(s)
		}
	}
}
