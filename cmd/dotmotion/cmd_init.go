package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/nvandessel/dotmotion/internal/config"
	"github.com/nvandessel/dotmotion/internal/store"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the data directory and a default config file",
		Long: `Create the .dotmotion/ data directory and, if missing, the config file.

Examples:
  dotmotion init             # .dotmotion/ in the current directory
  dotmotion init --global    # ~/.dotmotion/
  dotmotion init --force     # overwrite an existing config with defaults`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			force, _ := cmd.Flags().GetBool("force")

			dir, err := dataDir(cmd)
			if err != nil {
				return err
			}
			if err := store.EnsureDataDir(dir); err != nil {
				return fmt.Errorf("failed to create data directory: %w", err)
			}

			cfgPath, err := configPath(cmd)
			if err != nil {
				return err
			}
			wroteConfig := false
			_, statErr := os.Stat(cfgPath)
			if force || errors.Is(statErr, fs.ErrNotExist) {
				if err := config.Save(config.Default(), cfgPath); err != nil {
					return fmt.Errorf("failed to write config: %w", err)
				}
				wroteConfig = true
			}

			if jsonOut {
				return printJSON(cmd, map[string]interface{}{
					"data_dir":     dir,
					"config":       cfgPath,
					"wrote_config": wroteConfig,
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Initialized %s\n", dir)
			if wroteConfig {
				fmt.Fprintf(out, "Wrote default config to %s\n", cfgPath)
			} else {
				fmt.Fprintf(out, "Kept existing config at %s\n", cfgPath)
			}
			return nil
		},
	}

	cmd.Flags().Bool("force", false, "Overwrite an existing config file with defaults")
	return cmd
}
