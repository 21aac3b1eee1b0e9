package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	config := Default()

	// Task defaults
	if config.Task.Variant != "simple" {
		t.Errorf("expected Variant 'simple', got '%s'", config.Task.Variant)
	}
	if config.Task.LowerBound != 0.01 || config.Task.UpperBound != 1.0 {
		t.Errorf("expected bounds [0.01, 1.0], got [%v, %v]", config.Task.LowerBound, config.Task.UpperBound)
	}
	if config.Task.TrialDuration != 2*time.Second {
		t.Errorf("expected TrialDuration 2s, got %v", config.Task.TrialDuration)
	}

	// Stimulus defaults
	if config.Stimulus.NumDots != 1000 {
		t.Errorf("expected NumDots 1000, got %d", config.Stimulus.NumDots)
	}
	if config.Stimulus.RefreshInterval != 100*time.Millisecond {
		t.Errorf("expected RefreshInterval 100ms, got %v", config.Stimulus.RefreshInterval)
	}

	// Stats defaults
	if config.Stats.MinTrials != 30 || config.Stats.TopN != 3 {
		t.Errorf("expected MinTrials 30 and TopN 3, got %d and %d", config.Stats.MinTrials, config.Stats.TopN)
	}

	if config.Store.Backend != "file" {
		t.Errorf("expected Store.Backend 'file', got '%s'", config.Store.Backend)
	}
	if config.Logging.Level != "info" {
		t.Errorf("expected Logging.Level 'info', got '%s'", config.Logging.Level)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
task:
  variant: signed
  lower_bound: 0
  upper_bound: 0.5
  trial_duration: 3s

stats:
  bins: 8
  min_trials: 10

store:
  backend: sqlite
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	config, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if config.Task.Variant != "signed" {
		t.Errorf("expected Variant 'signed', got '%s'", config.Task.Variant)
	}
	if config.Task.UpperBound != 0.5 {
		t.Errorf("expected UpperBound 0.5, got %v", config.Task.UpperBound)
	}
	if config.Task.TrialDuration != 3*time.Second {
		t.Errorf("expected TrialDuration 3s, got %v", config.Task.TrialDuration)
	}
	if config.Stats.Bins != 8 || config.Stats.MinTrials != 10 {
		t.Errorf("expected Bins 8 and MinTrials 10, got %d and %d", config.Stats.Bins, config.Stats.MinTrials)
	}
	// Unset fields keep their defaults.
	if config.Stats.TopN != 3 {
		t.Errorf("expected TopN default 3, got %d", config.Stats.TopN)
	}
	if config.Store.Backend != "sqlite" {
		t.Errorf("expected Backend 'sqlite', got '%s'", config.Store.Backend)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadFromFile_EnvExpansion(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
export:
  endpoint: localhost:9000
  bucket: rdm
  secret_key: ${TEST_S3_SECRET}
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	t.Setenv("TEST_S3_SECRET", "expanded-secret-value")

	config, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if config.Export.SecretKey != "expanded-secret-value" {
		t.Errorf("expected SecretKey 'expanded-secret-value', got '%s'", config.Export.SecretKey)
	}
	if !config.Export.Enabled() {
		t.Error("expected export to be enabled")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DOTMOTION_VARIANT", "signed")
	t.Setenv("DOTMOTION_UPPER_BOUND", "0.4")
	t.Setenv("DOTMOTION_STORE", "memory")
	t.Setenv("DOTMOTION_TRIAL_DURATION", "1500ms")
	t.Setenv("DOTMOTION_LOG_LEVEL", "debug")

	config := Default()
	applyEnvOverrides(config)

	if config.Task.Variant != "signed" {
		t.Errorf("expected Variant 'signed', got '%s'", config.Task.Variant)
	}
	if config.Task.UpperBound != 0.4 {
		t.Errorf("expected UpperBound 0.4, got %v", config.Task.UpperBound)
	}
	if config.Store.Backend != "memory" {
		t.Errorf("expected Backend 'memory', got '%s'", config.Store.Backend)
	}
	if config.Task.TrialDuration != 1500*time.Millisecond {
		t.Errorf("expected TrialDuration 1.5s, got %v", config.Task.TrialDuration)
	}
	if config.Logging.Level != "debug" {
		t.Errorf("expected Logging.Level 'debug', got '%s'", config.Logging.Level)
	}
}

func TestEnvOverrides_IgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("DOTMOTION_UPPER_BOUND", "lots")

	config := Default()
	applyEnvOverrides(config)

	if config.Task.UpperBound != 1.0 {
		t.Errorf("expected UpperBound to stay 1.0, got %v", config.Task.UpperBound)
	}
}

func TestValidate_Valid(t *testing.T) {
	config := Default()
	if err := config.Validate(); err != nil {
		t.Errorf("expected valid config, got error: %v", err)
	}
}

func TestValidate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*DotmotionConfig)
	}{
		{"unknown variant", func(c *DotmotionConfig) { c.Task.Variant = "polar" }},
		{"negative lower bound", func(c *DotmotionConfig) { c.Task.LowerBound = -0.1 }},
		{"lower above upper", func(c *DotmotionConfig) { c.Task.LowerBound = 0.9; c.Task.UpperBound = 0.5 }},
		{"simple upper above 1", func(c *DotmotionConfig) { c.Task.UpperBound = 1.2 }},
		{"signed upper above 0.5", func(c *DotmotionConfig) { c.Task.Variant = "signed"; c.Task.UpperBound = 0.8 }},
		{"negative round digits", func(c *DotmotionConfig) { c.Task.RoundDigits = -1 }},
		{"zero trial duration", func(c *DotmotionConfig) { c.Task.TrialDuration = 0 }},
		{"zero dots", func(c *DotmotionConfig) { c.Stimulus.NumDots = 0 }},
		{"zero bins", func(c *DotmotionConfig) { c.Stats.Bins = 0 }},
		{"zero top n", func(c *DotmotionConfig) { c.Stats.TopN = 0 }},
		{"unknown backend", func(c *DotmotionConfig) { c.Store.Backend = "postgres" }},
		{"bad log level", func(c *DotmotionConfig) { c.Logging.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Default()
			tt.mutate(config)
			if err := config.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestValidate_ValidLogLevels(t *testing.T) {
	validLevels := []string{"", "info", "debug", "trace"}

	for _, level := range validLevels {
		t.Run(level, func(t *testing.T) {
			config := Default()
			config.Logging.Level = level
			if err := config.Validate(); err != nil {
				t.Errorf("expected log level '%s' to be valid, got error: %v", level, err)
			}
		})
	}
}

func TestRedactedSecretKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want string
	}{
		{"empty", "", ""},
		{"short", "abc", "(set)"},
		{"exactly 11 chars", "abcdefghijk", "(set)"},
		{"exactly 12 chars", "abcdefghijkl", "abcd...ijkl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := ExportConfig{SecretKey: tt.key}
			if got := cfg.RedactedSecretKey(); got != tt.want {
				t.Errorf("RedactedSecretKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExportConfigString(t *testing.T) {
	cfg := ExportConfig{
		Endpoint:  "s3.local:9000",
		Bucket:    "rdm",
		SecretKey: "supersecretvalue1234",
	}
	s := cfg.String()
	if strings.Contains(s, cfg.SecretKey) {
		t.Errorf("String() must not contain full secret key, got: %s", s)
	}
	if !strings.Contains(s, "rdm") {
		t.Errorf("String() should contain bucket, got: %s", s)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	config := Default()
	config.Task.Variant = "signed"
	config.Task.UpperBound = 0.5
	config.Stimulus.RefreshInterval = 50 * time.Millisecond

	if err := Save(config, path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if got.Task.Variant != "signed" || got.Stimulus.RefreshInterval != 50*time.Millisecond {
		t.Errorf("round trip mismatch: %+v", got.Task)
	}
}

func TestLoadFromFile_NotFound(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadFromFile_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	invalidYAML := `
task:
  variant: [invalid yaml
`
	if err := os.WriteFile(configPath, []byte(invalidYAML), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := LoadFromFile(configPath)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}
