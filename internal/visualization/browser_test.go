package visualization

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBrowserCommand(t *testing.T) {
	tests := []struct {
		goos     string
		override string
		wantArgs []string
		wantErr  bool
	}{
		{"linux", "", []string{"xdg-open", "http://x"}, false},
		{"darwin", "", []string{"open", "http://x"}, false},
		{"windows", "", []string{"cmd", "/c", "start", "http://x"}, false},
		{"linux", "firefox", []string{"firefox", "http://x"}, false},
		{"plan9", "", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.goos+"/"+tt.override, func(t *testing.T) {
			cmd, err := browserCommand(tt.goos, tt.override, "http://x")
			if (err != nil) != tt.wantErr {
				t.Fatalf("browserCommand() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if strings.Join(cmd.Args, " ") != strings.Join(tt.wantArgs, " ") {
				t.Errorf("args = %v, want %v", cmd.Args, tt.wantArgs)
			}
		})
	}
}

func TestBrowserURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.html")
	os.WriteFile(path, []byte("<html></html>"), 0600)

	got, err := browserURL(path)
	if err != nil {
		t.Fatalf("browserURL(file) error = %v", err)
	}
	if !strings.HasPrefix(got, "file://") || !strings.HasSuffix(got, "results.html") {
		t.Errorf("browserURL(file) = %q", got)
	}

	if got, _ := browserURL("http://localhost:5000/results_page"); got != "http://localhost:5000/results_page" {
		t.Errorf("browserURL(http) = %q", got)
	}

	if _, err := browserURL(filepath.Join(t.TempDir(), "missing.html")); err == nil {
		t.Error("browserURL() accepted a missing file")
	}
}
