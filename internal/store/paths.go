package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nvandessel/dotmotion/internal/constants"
)

// GlobalDataPath returns the path to the global .dotmotion directory.
// On Unix: ~/.dotmotion
// On Windows: %USERPROFILE%\.dotmotion
func GlobalDataPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, constants.DataDirName), nil
}

// LocalDataPath returns the path to the local .dotmotion directory
// for the given project root.
func LocalDataPath(projectRoot string) string {
	return filepath.Join(projectRoot, constants.DataDirName)
}

// DataPath resolves the data directory for a scope.
func DataPath(scope constants.Scope, projectRoot string) (string, error) {
	switch scope {
	case constants.ScopeLocal:
		return LocalDataPath(projectRoot), nil
	case constants.ScopeGlobal:
		return GlobalDataPath()
	default:
		return "", fmt.Errorf("invalid scope: %q", scope)
	}
}

// EnsureDataDir creates dir if it doesn't exist.
func EnsureDataDir(dir string) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}

// ResultsPath returns the results.json path inside a data directory.
func ResultsPath(dataDir string) string {
	return filepath.Join(dataDir, constants.ResultsFileName)
}

// DatabasePath returns the SQLite database path inside a data directory.
func DatabasePath(dataDir string) string {
	return filepath.Join(dataDir, constants.DatabaseName)
}

// BackupPath returns the default backup directory inside a data directory.
func BackupPath(dataDir string) string {
	return filepath.Join(dataDir, "backups")
}
