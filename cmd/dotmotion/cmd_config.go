package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nvandessel/dotmotion/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage dotmotion configuration",
		Long: `View and modify dotmotion configuration settings.

Configuration is stored in ~/.dotmotion/config.yaml unless --config is given.
Environment variables (DOTMOTION_*) override the file when it is loaded.

Examples:
  dotmotion config list
  dotmotion config list --yaml
  dotmotion config get task.trial_duration
  dotmotion config set task.variant signed
  dotmotion config set export.secret_key '${MINIO_SECRET_KEY}'`,
	}

	cmd.AddCommand(
		newConfigListCmd(),
		newConfigGetCmd(),
		newConfigSetCmd(),
	)

	return cmd
}

func newConfigListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			yamlOut, _ := cmd.Flags().GetBool("yaml")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			// Redact before serialization so the secret never reaches stdout.
			redacted := *cfg
			redacted.Export.SecretKey = cfg.Export.RedactedSecretKey()

			switch {
			case jsonOut:
				return printJSON(cmd, redacted)
			case yamlOut:
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(redacted); err != nil {
					return err
				}
				return enc.Close()
			}

			path, _ := configPath(cmd)
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Configuration (%s):\n", path)
			section := ""
			for _, key := range configKeyNames() {
				if s := key[:strings.IndexByte(key, '.')]; s != section {
					section = s
					fmt.Fprintln(w)
				}
				value, _ := getConfigValue(cfg, key)
				fmt.Fprintf(w, "  %-26s %s\n", key+":", valueOrDefault(fmt.Sprint(value), "(not set)"))
			}
			return nil
		},
	}
	cmd.Flags().Bool("yaml", false, "Print the configuration as YAML")
	return cmd
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key := args[0]

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			value, found := getConfigValue(cfg, key)
			if !found {
				return fmt.Errorf("unknown configuration key: %s", key)
			}

			if jsonOut {
				return printJSON(cmd, map[string]interface{}{
					"key":   key,
					"value": value,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", key, value)
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key, value := args[0], args[1]

			path, err := configPath(cmd)
			if err != nil {
				return err
			}
			cfg, err := readConfigFile(path)
			if err != nil {
				return err
			}

			if err := setConfigValue(cfg, key, value); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid value for %s: %w", key, err)
			}
			if err := config.Save(cfg, path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			shown, _ := getConfigValue(cfg, key)
			if jsonOut {
				return printJSON(cmd, map[string]interface{}{
					"status": "updated",
					"key":    key,
					"value":  shown,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %v\n", key, shown)
			return nil
		},
	}
}

// readConfigFile reads path without expanding ${VAR} references or applying
// environment overrides, so neither ends up persisted. A missing file yields
// the defaults.
func readConfigFile(path string) (*config.DotmotionConfig, error) {
	cfg := config.Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// configKey reads and writes one dot-notation setting.
type configKey struct {
	get func(c *config.DotmotionConfig) interface{}
	set func(c *config.DotmotionConfig, v string) error
}

var configKeys = map[string]configKey{
	"task.variant":           stringKey(func(c *config.DotmotionConfig) *string { return &c.Task.Variant }),
	"task.lower_bound":       floatKey(func(c *config.DotmotionConfig) *float64 { return &c.Task.LowerBound }),
	"task.upper_bound":       floatKey(func(c *config.DotmotionConfig) *float64 { return &c.Task.UpperBound }),
	"task.round_digits":      intKey(func(c *config.DotmotionConfig) *int { return &c.Task.RoundDigits }),
	"task.trial_duration":    durationKey(func(c *config.DotmotionConfig) *time.Duration { return &c.Task.TrialDuration }),
	"task.max_reaction_time": durationKey(func(c *config.DotmotionConfig) *time.Duration { return &c.Task.MaxReactionTime }),

	"stimulus.num_dots":         intKey(func(c *config.DotmotionConfig) *int { return &c.Stimulus.NumDots }),
	"stimulus.field_size":       floatKey(func(c *config.DotmotionConfig) *float64 { return &c.Stimulus.FieldSize }),
	"stimulus.dot_speed":        floatKey(func(c *config.DotmotionConfig) *float64 { return &c.Stimulus.DotSpeed }),
	"stimulus.dot_radius":       intKey(func(c *config.DotmotionConfig) *int { return &c.Stimulus.DotRadius }),
	"stimulus.refresh_interval": durationKey(func(c *config.DotmotionConfig) *time.Duration { return &c.Stimulus.RefreshInterval }),
	"stimulus.frame_interval":   durationKey(func(c *config.DotmotionConfig) *time.Duration { return &c.Stimulus.FrameInterval }),

	"stats.bins":         intKey(func(c *config.DotmotionConfig) *int { return &c.Stats.Bins }),
	"stats.min_trials":   intKey(func(c *config.DotmotionConfig) *int { return &c.Stats.MinTrials }),
	"stats.top_n":        intKey(func(c *config.DotmotionConfig) *int { return &c.Stats.TopN }),
	"stats.reference_rt": durationKey(func(c *config.DotmotionConfig) *time.Duration { return &c.Stats.ReferenceRT }),

	"store.backend": stringKey(func(c *config.DotmotionConfig) *string { return &c.Store.Backend }),
	"store.path":    stringKey(func(c *config.DotmotionConfig) *string { return &c.Store.Path }),

	"server.addr":        stringKey(func(c *config.DotmotionConfig) *string { return &c.Server.Addr }),
	"server.rate":        floatKey(func(c *config.DotmotionConfig) *float64 { return &c.Server.Rate }),
	"server.burst":       intKey(func(c *config.DotmotionConfig) *int { return &c.Server.Burst }),
	"server.pending_ttl": durationKey(func(c *config.DotmotionConfig) *time.Duration { return &c.Server.PendingTTL }),

	"export.endpoint":   stringKey(func(c *config.DotmotionConfig) *string { return &c.Export.Endpoint }),
	"export.bucket":     stringKey(func(c *config.DotmotionConfig) *string { return &c.Export.Bucket }),
	"export.access_key": stringKey(func(c *config.DotmotionConfig) *string { return &c.Export.AccessKey }),
	"export.secret_key": {
		get: func(c *config.DotmotionConfig) interface{} { return c.Export.RedactedSecretKey() },
		set: func(c *config.DotmotionConfig, v string) error { c.Export.SecretKey = v; return nil },
	},
	"export.use_ssl": boolKey(func(c *config.DotmotionConfig) *bool { return &c.Export.UseSSL }),
	"export.prefix":  stringKey(func(c *config.DotmotionConfig) *string { return &c.Export.Prefix }),

	"backup.dir":       stringKey(func(c *config.DotmotionConfig) *string { return &c.Backup.Dir }),
	"backup.max_count": intKey(func(c *config.DotmotionConfig) *int { return &c.Backup.MaxCount }),
	"backup.max_age":   stringKey(func(c *config.DotmotionConfig) *string { return &c.Backup.MaxAge }),
	"backup.max_size":  stringKey(func(c *config.DotmotionConfig) *string { return &c.Backup.MaxSize }),

	"logging.level": stringKey(func(c *config.DotmotionConfig) *string { return &c.Logging.Level }),
}

func configKeyNames() []string {
	names := make([]string, 0, len(configKeys))
	for k := range configKeys {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.DotmotionConfig, key string) (interface{}, bool) {
	k, ok := configKeys[key]
	if !ok {
		return nil, false
	}
	return k.get(cfg), true
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.DotmotionConfig, key, value string) error {
	k, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	if err := k.set(cfg, value); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return nil
}

func stringKey(field func(*config.DotmotionConfig) *string) configKey {
	return configKey{
		get: func(c *config.DotmotionConfig) interface{} { return *field(c) },
		set: func(c *config.DotmotionConfig, v string) error { *field(c) = v; return nil },
	}
}

func intKey(field func(*config.DotmotionConfig) *int) configKey {
	return configKey{
		get: func(c *config.DotmotionConfig) interface{} { return *field(c) },
		set: func(c *config.DotmotionConfig, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			*field(c) = n
			return nil
		},
	}
}

func floatKey(field func(*config.DotmotionConfig) *float64) configKey {
	return configKey{
		get: func(c *config.DotmotionConfig) interface{} { return *field(c) },
		set: func(c *config.DotmotionConfig, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return err
			}
			*field(c) = f
			return nil
		},
	}
}

func boolKey(field func(*config.DotmotionConfig) *bool) configKey {
	return configKey{
		get: func(c *config.DotmotionConfig) interface{} { return *field(c) },
		set: func(c *config.DotmotionConfig, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return err
			}
			*field(c) = b
			return nil
		},
	}
}

func durationKey(field func(*config.DotmotionConfig) *time.Duration) configKey {
	return configKey{
		get: func(c *config.DotmotionConfig) interface{} { return field(c).String() },
		set: func(c *config.DotmotionConfig, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return err
			}
			*field(c) = d
			return nil
		},
	}
}

// valueOrDefault returns value if non-empty, otherwise the default.
func valueOrDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}
