// Package config provides unified configuration loading for dotmotion.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nvandessel/dotmotion/internal/constants"
	"gopkg.in/yaml.v3"
)

// DotmotionConfig contains all dotmotion configuration settings.
type DotmotionConfig struct {
	// Task contains the trial parameters shared by generator and evaluator.
	Task TaskConfig `json:"task" yaml:"task"`

	// Stimulus contains dot ensemble parameters for the animation variant.
	Stimulus StimulusConfig `json:"stimulus" yaml:"stimulus"`

	// Stats contains binning and leaderboard settings.
	Stats StatsConfig `json:"stats" yaml:"stats"`

	// Store selects and locates the record store.
	Store StoreConfig `json:"store" yaml:"store"`

	// Server configures `dotmotion serve`.
	Server ServerConfig `json:"server" yaml:"server"`

	// Export configures optional upload of exports to an S3-compatible bucket.
	Export ExportConfig `json:"export" yaml:"export"`

	// Backup configures snapshot location and rotation.
	Backup BackupConfig `json:"backup" yaml:"backup"`

	// Logging contains settings for operational and event logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// TaskConfig configures trial generation and scoring.
type TaskConfig struct {
	// Variant is "simple" (unsigned coherence) or "signed".
	Variant string `json:"variant" yaml:"variant"`

	// LowerBound and UpperBound bound the coherence magnitude.
	LowerBound float64 `json:"lower_bound" yaml:"lower_bound"`
	UpperBound float64 `json:"upper_bound" yaml:"upper_bound"`

	// RoundDigits rounds generated coherence for transport. 0 disables rounding.
	RoundDigits int `json:"round_digits" yaml:"round_digits"`

	// TrialDuration is the time before a trial times out.
	TrialDuration time.Duration `json:"trial_duration" yaml:"trial_duration"`

	// MaxReactionTime caps recorded reaction times.
	MaxReactionTime time.Duration `json:"max_reaction_time" yaml:"max_reaction_time"`
}

// StimulusConfig configures the dot ensemble.
type StimulusConfig struct {
	NumDots         int           `json:"num_dots" yaml:"num_dots"`
	FieldSize       float64       `json:"field_size" yaml:"field_size"`
	DotSpeed        float64       `json:"dot_speed" yaml:"dot_speed"`
	DotRadius       int           `json:"dot_radius" yaml:"dot_radius"`
	RefreshInterval time.Duration `json:"refresh_interval" yaml:"refresh_interval"`
	FrameInterval   time.Duration `json:"frame_interval" yaml:"frame_interval"`
}

// StatsConfig configures aggregation.
type StatsConfig struct {
	// Bins is the number of equal-width coherence bins.
	Bins int `json:"bins" yaml:"bins"`

	// MinTrials is the leaderboard qualification threshold.
	MinTrials int `json:"min_trials" yaml:"min_trials"`

	// TopN is the leaderboard length.
	TopN int `json:"top_n" yaml:"top_n"`

	// ReferenceRT is the reaction time at which the speed bonus is zero.
	ReferenceRT time.Duration `json:"reference_rt" yaml:"reference_rt"`
}

// StoreConfig selects the record store backend.
type StoreConfig struct {
	// Backend is "file" (results.json), "sqlite" or "memory".
	Backend string `json:"backend" yaml:"backend"`

	// Path overrides the default location inside the data directory.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"`

	// Rate is the sustained requests per second allowed per client. 0 disables limiting.
	Rate float64 `json:"rate" yaml:"rate"`
	// Burst is the token bucket capacity.
	Burst int `json:"burst" yaml:"burst"`

	// PendingTTL is how long an issued trial is remembered.
	PendingTTL time.Duration `json:"pending_ttl" yaml:"pending_ttl"`
}

// ExportConfig configures uploads to an S3-compatible object store.
type ExportConfig struct {
	Endpoint  string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Bucket    string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	AccessKey string `json:"access_key,omitempty" yaml:"access_key,omitempty"`
	// SecretKey supports ${VAR} syntax for env vars.
	SecretKey string `json:"secret_key,omitempty" yaml:"secret_key,omitempty"`
	UseSSL    bool   `json:"use_ssl" yaml:"use_ssl"`
	Prefix    string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
}

// Enabled reports whether uploads are configured.
func (c ExportConfig) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

// RedactedSecretKey returns the secret key with most characters masked.
func (c ExportConfig) RedactedSecretKey() string {
	if c.SecretKey == "" {
		return ""
	}
	if len(c.SecretKey) < 12 {
		return "(set)"
	}
	return c.SecretKey[:4] + "..." + c.SecretKey[len(c.SecretKey)-4:]
}

// String implements fmt.Stringer to prevent accidental secret logging.
func (c ExportConfig) String() string {
	return fmt.Sprintf("ExportConfig{Endpoint:%s, Bucket:%s, SecretKey:%s}",
		c.Endpoint, c.Bucket, c.RedactedSecretKey())
}

// BackupConfig configures backups.
type BackupConfig struct {
	// Dir overrides the default ~/.dotmotion/backups.
	Dir      string `json:"dir,omitempty" yaml:"dir,omitempty"`
	MaxCount int    `json:"max_count" yaml:"max_count"`

	// MaxAge keeps snapshots younger than this (e.g. "30d", "2w", "720h").
	MaxAge string `json:"max_age,omitempty" yaml:"max_age,omitempty"`

	// MaxSize caps the total size of kept snapshots (e.g. "100MB").
	MaxSize string `json:"max_size,omitempty" yaml:"max_size,omitempty"`
}

// LoggingConfig configures dotmotion's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables event logging to .dotmotion/events.jsonl.
	Level string `json:"level" yaml:"level"`
}

// Default returns a DotmotionConfig with sensible defaults.
func Default() *DotmotionConfig {
	return &DotmotionConfig{
		Task: TaskConfig{
			Variant:         "simple",
			LowerBound:      constants.DefaultLowerBound,
			UpperBound:      constants.DefaultUpperBound,
			RoundDigits:     2,
			TrialDuration:   constants.DefaultTrialDuration,
			MaxReactionTime: constants.DefaultMaxReactionTime,
		},
		Stimulus: StimulusConfig{
			NumDots:         constants.DefaultNumDots,
			FieldSize:       constants.DefaultFieldSize,
			DotSpeed:        constants.DefaultDotSpeed,
			DotRadius:       constants.DefaultDotRadius,
			RefreshInterval: constants.DefaultRefreshInterval,
			FrameInterval:   constants.DefaultFrameInterval,
		},
		Stats: StatsConfig{
			Bins:        constants.DefaultBinCount,
			MinTrials:   constants.DefaultMinTrials,
			TopN:        constants.DefaultLeaderboardSize,
			ReferenceRT: constants.DefaultReferenceRT,
		},
		Store: StoreConfig{
			Backend: "file",
		},
		Server: ServerConfig{
			Addr:       constants.DefaultServerAddr,
			Rate:       20,
			Burst:      40,
			PendingTTL: constants.DefaultPendingTTL,
		},
		Backup: BackupConfig{
			MaxCount: constants.MaxBackupRotation,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns ~/.dotmotion/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, constants.DataDirName, "config.yaml"), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.dotmotion/config.yaml -> environment variables
func Load() (*DotmotionConfig, error) {
	config := Default()

	if configPath, err := DefaultPath(); err == nil {
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*DotmotionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Export.SecretKey = expandEnvVars(config.Export.SecretKey)
	config.Export.AccessKey = expandEnvVars(config.Export.AccessKey)

	return config, nil
}

// Save writes the configuration as YAML to path, creating parent directories.
func Save(config *DotmotionConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *DotmotionConfig) Validate() error {
	if c.Task.Variant != "simple" && c.Task.Variant != "signed" {
		return fmt.Errorf("invalid variant: %s (valid: simple, signed)", c.Task.Variant)
	}
	if c.Task.LowerBound < 0 || c.Task.LowerBound > c.Task.UpperBound {
		return fmt.Errorf("coherence bounds must satisfy 0 <= lower <= upper, got [%v, %v]", c.Task.LowerBound, c.Task.UpperBound)
	}
	maxUpper := constants.DefaultUpperBound
	if c.Task.Variant == "signed" {
		maxUpper = constants.MaxSignedUpperBound
	}
	if c.Task.UpperBound > maxUpper {
		return fmt.Errorf("upper_bound must be at most %v for the %s variant, got %v", maxUpper, c.Task.Variant, c.Task.UpperBound)
	}
	if c.Task.RoundDigits < 0 {
		return fmt.Errorf("round_digits must be non-negative, got %d", c.Task.RoundDigits)
	}
	if c.Task.TrialDuration <= 0 {
		return fmt.Errorf("trial_duration must be positive, got %v", c.Task.TrialDuration)
	}
	if c.Task.MaxReactionTime <= 0 {
		return fmt.Errorf("max_reaction_time must be positive, got %v", c.Task.MaxReactionTime)
	}

	if c.Stimulus.NumDots <= 0 {
		return fmt.Errorf("num_dots must be positive, got %d", c.Stimulus.NumDots)
	}
	if c.Stimulus.FieldSize <= 0 {
		return fmt.Errorf("field_size must be positive, got %v", c.Stimulus.FieldSize)
	}
	if c.Stimulus.DotSpeed < 0 {
		return fmt.Errorf("dot_speed must be non-negative, got %v", c.Stimulus.DotSpeed)
	}
	if c.Stimulus.RefreshInterval <= 0 || c.Stimulus.FrameInterval <= 0 {
		return fmt.Errorf("refresh_interval and frame_interval must be positive")
	}

	if c.Stats.Bins <= 0 {
		return fmt.Errorf("bins must be positive, got %d", c.Stats.Bins)
	}
	if c.Stats.MinTrials < 0 {
		return fmt.Errorf("min_trials must be non-negative, got %d", c.Stats.MinTrials)
	}
	if c.Stats.TopN <= 0 {
		return fmt.Errorf("top_n must be positive, got %d", c.Stats.TopN)
	}
	if c.Stats.ReferenceRT <= 0 {
		return fmt.Errorf("reference_rt must be positive, got %v", c.Stats.ReferenceRT)
	}

	validBackends := map[string]bool{"file": true, "sqlite": true, "memory": true}
	if !validBackends[c.Store.Backend] {
		return fmt.Errorf("invalid store backend: %s (valid: file, sqlite, memory)", c.Store.Backend)
	}

	if c.Server.Rate < 0 || c.Server.Burst < 0 {
		return fmt.Errorf("server rate and burst must be non-negative")
	}

	if c.Backup.MaxCount < 0 {
		return fmt.Errorf("backup max_count must be non-negative, got %d", c.Backup.MaxCount)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *DotmotionConfig) {
	if v := os.Getenv("DOTMOTION_VARIANT"); v != "" {
		config.Task.Variant = v
	}
	if v := os.Getenv("DOTMOTION_LOWER_BOUND"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Task.LowerBound = f
		}
	}
	if v := os.Getenv("DOTMOTION_UPPER_BOUND"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Task.UpperBound = f
		}
	}
	if v := os.Getenv("DOTMOTION_ROUND_DIGITS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Task.RoundDigits = n
		}
	}
	if v := os.Getenv("DOTMOTION_TRIAL_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Task.TrialDuration = d
		}
	}

	if v := os.Getenv("DOTMOTION_STORE"); v != "" {
		config.Store.Backend = v
	}
	if v := os.Getenv("DOTMOTION_STORE_PATH"); v != "" {
		config.Store.Path = v
	}

	if v := os.Getenv("DOTMOTION_ADDR"); v != "" {
		config.Server.Addr = v
	}

	if v := os.Getenv("DOTMOTION_S3_ENDPOINT"); v != "" {
		config.Export.Endpoint = v
	}
	if v := os.Getenv("DOTMOTION_S3_BUCKET"); v != "" {
		config.Export.Bucket = v
	}
	if v := os.Getenv("DOTMOTION_S3_ACCESS_KEY"); v != "" {
		config.Export.AccessKey = v
	}
	if v := os.Getenv("DOTMOTION_S3_SECRET_KEY"); v != "" {
		config.Export.SecretKey = v
	}
	if v := os.Getenv("DOTMOTION_S3_USE_SSL"); v != "" {
		config.Export.UseSSL = v == "true" || v == "1"
	}

	if v := os.Getenv("DOTMOTION_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
