// Package pathutil confines user-supplied file paths to known directories.
package pathutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nvandessel/dotmotion/internal/constants"
)

// ErrOutsideRoots is returned when a path resolves outside every root.
var ErrOutsideRoots = errors.New("path is outside the allowed directories")

// Redact shortens a path to .../<parent>/<base> for error messages, e.g.
// "/home/ada/.dotmotion/backups/x.json.gz" becomes ".../backups/x.json.gz".
func Redact(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	base := filepath.Base(cleaned)
	parent := filepath.Base(filepath.Dir(cleaned))
	if parent == "." || parent == string(filepath.Separator) {
		return base
	}
	return ".../" + parent + "/" + base
}

// Guard admits paths that resolve inside one of its roots.
type Guard struct {
	roots []string
}

// NewGuard creates a guard over roots. Empty entries are ignored.
func NewGuard(roots ...string) *Guard {
	g := &Guard{}
	for _, r := range roots {
		if r != "" {
			g.roots = append(g.roots, r)
		}
	}
	return g
}

// Roots returns the configured roots.
func (g *Guard) Roots() []string {
	return append([]string(nil), g.roots...)
}

// Check resolves path, following symlinks through its deepest existing
// ancestor, and returns the resolved absolute path when it lies inside a
// root. The file itself need not exist.
func (g *Guard) Check(path string) (string, error) {
	switch {
	case path == "":
		return "", errors.New("path is empty")
	case strings.ContainsRune(path, '\x00'):
		return "", errors.New("path contains a null byte")
	case len(g.roots) == 0:
		return "", errors.New("no allowed directories configured")
	}

	resolved, err := resolve(path)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", Redact(path), err)
	}

	for _, root := range g.roots {
		rootResolved, err := resolve(root)
		if err != nil {
			continue
		}
		if within(resolved, rootResolved) {
			return resolved, nil
		}
	}
	return "", fmt.Errorf("%s: %w", Redact(resolved), ErrOutsideRoots)
}

// BackupRoots lists the directories backups may be written to or restored
// from: ~/.dotmotion/backups, <projectRoot>/.dotmotion/backups and, when
// set, the configured backup directory.
func BackupRoots(projectRoot, configured string) ([]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	roots := []string{filepath.Join(home, constants.DataDirName, "backups")}
	if projectRoot != "" {
		roots = append(roots, filepath.Join(projectRoot, constants.DataDirName, "backups"))
	}
	if configured != "" {
		roots = append(roots, configured)
	}
	return roots, nil
}

// resolve makes path absolute and evaluates symlinks in the longest prefix
// that exists on disk. The missing tail is appended unchanged.
func resolve(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", err
	}

	existing, rest := abs, ""
	for {
		if r, err := filepath.EvalSymlinks(existing); err == nil {
			return filepath.Join(r, rest), nil
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return "", fmt.Errorf("no existing ancestor of %s", Redact(abs))
		}
		rest = filepath.Join(filepath.Base(existing), rest)
		existing = parent
	}
}

func within(path, root string) bool {
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(os.PathSeparator))
}
