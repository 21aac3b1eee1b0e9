package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nvandessel/dotmotion/internal/constants"
)

func TestGlobalDataPath(t *testing.T) {
	got, err := GlobalDataPath()
	if err != nil {
		t.Fatalf("GlobalDataPath() error = %v", err)
	}
	if !strings.HasSuffix(got, ".dotmotion") {
		t.Errorf("GlobalDataPath() = %v, should end with .dotmotion", got)
	}
	if !filepath.IsAbs(got) {
		t.Errorf("GlobalDataPath() = %v, should be absolute path", got)
	}
	homeDir, _ := os.UserHomeDir()
	if !strings.HasPrefix(got, homeDir) {
		t.Errorf("GlobalDataPath() = %v, should start with home directory %v", got, homeDir)
	}
}

func TestDataPath(t *testing.T) {
	tests := []struct {
		name    string
		scope   constants.Scope
		root    string
		want    string
		wantErr bool
	}{
		{
			name:  "local scope",
			scope: constants.ScopeLocal,
			root:  "/home/user/lab",
			want:  filepath.Join("/home/user/lab", ".dotmotion"),
		},
		{
			name:    "invalid scope",
			scope:   constants.Scope("both"),
			root:    "/tmp",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DataPath(tt.scope, tt.root)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DataPath() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("DataPath() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilePaths(t *testing.T) {
	dir := "/data/.dotmotion"
	if got := ResultsPath(dir); got != filepath.Join(dir, "results.json") {
		t.Errorf("ResultsPath() = %v", got)
	}
	if got := DatabasePath(dir); got != filepath.Join(dir, "dotmotion.db") {
		t.Errorf("DatabasePath() = %v", got)
	}
	if got := BackupPath(dir); got != filepath.Join(dir, "backups") {
		t.Errorf("BackupPath() = %v", got)
	}
}

func TestEnsureDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	if err := EnsureDataDir(dir); err != nil {
		t.Fatalf("EnsureDataDir() error = %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("directory not created: %v", err)
	}
	// Idempotent.
	if err := EnsureDataDir(dir); err != nil {
		t.Errorf("second EnsureDataDir() error = %v", err)
	}
}
