package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dotmotion",
		Short: "Random-dot-motion trials and psychometric results",
		Long: `dotmotion runs random-dot-motion discrimination trials.

Each trial shows a field of moving dots, a fraction of which (the coherence)
drift left or right. Observers answer with the drift direction; dotmotion
scores the answer, stores it, and aggregates everything into psychometric,
accuracy and reaction-time curves plus a leaderboard.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("root", ".", "Project root directory")
	rootCmd.PersistentFlags().String("config", "", "Config file (default: ~/.dotmotion/config.yaml)")
	rootCmd.PersistentFlags().Bool("global", false, "Use ~/.dotmotion instead of the project's .dotmotion directory")

	rootCmd.AddCommand(
		newVersionCmd(),
		newInitCmd(),
		newTrialCmd(),
		newRespondCmd(),
		newTimeoutCmd(),
		newResultsCmd(),
		newLeaderboardCmd(),
		newExportCmd(),
		newSchemaCmd(),
		newBackupCmd(),
		newServeCmd(),
		newMCPServerCmd(),
		newSimulateCmd(),
		newConfigCmd(),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{
					"version": version,
					"commit":  commit,
					"date":    date,
				})
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "dotmotion version %s (commit: %s, built: %s)\n", version, commit, date)
			}
		},
	}
}

// printJSON writes v to the command's output as a single JSON document.
func printJSON(cmd *cobra.Command, v any) error {
	return json.NewEncoder(cmd.OutOrStdout()).Encode(v)
}
