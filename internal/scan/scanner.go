// Package scan enumerates the workspace files eligible for reference
// accounting.
package scan

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/standardbeagle/reflens/internal/config"
	"github.com/standardbeagle/reflens/internal/debug"
	"github.com/standardbeagle/reflens/internal/types"
)

// Scanner walks the project root and yields the files the engine should
// account for: allow-listed extension, not excluded, not gitignored, not
// binary, under the size cap.
type Scanner struct {
	cfg     *config.Config
	exclude types.ExcludePredicate
	gi      *ignore.GitIgnore
}

// NewScanner creates a scanner for the configured project root.
func NewScanner(cfg *config.Config) *Scanner {
	s := &Scanner{
		cfg:     cfg,
		exclude: cfg.ExcludePredicate(),
	}
	if cfg.Scan.RespectGitignore {
		if gi, err := ignore.CompileIgnoreFile(filepath.Join(cfg.Project.Root, ".gitignore")); err == nil {
			s.gi = gi
		}
	}
	return s
}

// Files returns every eligible file under the project root, in walk order.
func (s *Scanner) Files() ([]types.FileID, error) {
	root := s.cfg.Project.Root
	var files []types.FileID

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}

		if d.IsDir() {
			if path == root {
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") && d.Name() != "." {
				return filepath.SkipDir
			}
			if s.exclude(path) || s.gitignored(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() && !(s.cfg.Scan.FollowSymlinks && d.Type()&os.ModeSymlink != 0) {
			return nil
		}
		if s.Eligible(path, rel) {
			files = append(files, types.FileID(path))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	debug.LogIndex("scanned %s: %d eligible files\n", root, len(files))
	return files, nil
}

// Eligible applies every per-file rule to one path. rel is the path
// relative to the project root, used for gitignore matching.
func (s *Scanner) Eligible(path, rel string) bool {
	if !s.cfg.AllowsExtension(path) {
		return false
	}
	if !s.cfg.MatchesInclude(rel) {
		return false
	}
	if s.exclude(path) || s.gitignored(rel, false) {
		return false
	}

	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.Size() > s.cfg.Scan.MaxFileSize {
		debug.LogIndex("skipping %s: %d bytes exceeds cap\n", path, info.Size())
		return false
	}

	return !isBinary(path)
}

func (s *Scanner) gitignored(rel string, isDir bool) bool {
	if s.gi == nil {
		return false
	}
	candidate := filepath.ToSlash(rel)
	if isDir {
		candidate += "/"
	}
	return s.gi.MatchesPath(candidate)
}

// isBinary sniffs the first bytes of a file for NUL content.
func isBinary(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return true
	}
	defer f.Close()

	buf := make([]byte, types.BinaryPreCheckBytes)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return true
	}
	return bytes.IndexByte(buf[:n], 0) >= 0
}
