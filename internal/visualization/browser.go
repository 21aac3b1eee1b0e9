package visualization

import (
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// OpenBrowser opens target in the user's default browser. target may be an
// http(s) URL or a local file path. $BROWSER overrides the platform opener.
func OpenBrowser(target string) error {
	u, err := browserURL(target)
	if err != nil {
		return err
	}
	cmd, err := browserCommand(runtime.GOOS, os.Getenv("BROWSER"), u)
	if err != nil {
		return err
	}
	return cmd.Start()
}

// browserURL turns a file path into a file:// URL and rejects other schemes.
func browserURL(target string) (string, error) {
	u, err := url.Parse(target)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https" || u.Scheme == "file") {
		return target, nil
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", target, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("cannot open %q: not a URL or an existing file", target)
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}

// browserCommand picks xdg-open on Linux, open on macOS and cmd start on
// Windows.
func browserCommand(goos, override, target string) (*exec.Cmd, error) {
	if override != "" {
		return exec.Command(override, target), nil
	}
	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		return exec.Command("xdg-open", target), nil
	case "darwin":
		return exec.Command("open", target), nil
	case "windows":
		return exec.Command("cmd", "/c", "start", target), nil
	default:
		return nil, fmt.Errorf("unsupported platform: %s", goos)
	}
}
