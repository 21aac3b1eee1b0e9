package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/nvandessel/dotmotion/internal/engine"
	"github.com/nvandessel/dotmotion/internal/models"
	"github.com/nvandessel/dotmotion/internal/simulation"
	"github.com/nvandessel/dotmotion/internal/stimulus"
	"github.com/nvandessel/dotmotion/internal/store"
	"github.com/nvandessel/dotmotion/internal/visualization"
	"github.com/spf13/cobra"
)

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run synthetic observers through the trial engine",
		Long: `Generate responses from simulated observers and store them like real ones.

Each observer answers with a logistic psychometric function and a lognormal
reaction time. Without --observers three built-in observers (novice, typical,
expert) are used. An observers file is YAML:

  trials: 200
  observers:
    - name: slow
      slope: 5
      lapse: 0.05
      median_rt: 1.2s
      rt_sigma: 0.3

Examples:
  dotmotion simulate --trials 300
  dotmotion simulate --observers observers.yaml --seed 42
  dotmotion simulate --dry-run     # report only, nothing is stored`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			trials, _ := cmd.Flags().GetInt("trials")
			observersPath, _ := cmd.Flags().GetString("observers")
			seed, _ := cmd.Flags().GetUint64("seed")
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			simCfg := simulation.Config{Observers: simulation.DefaultObservers()}
			if observersPath != "" {
				loaded, err := simulation.LoadConfig(observersPath)
				if err != nil {
					return err
				}
				simCfg = loaded
			}
			if cmd.Flags().Changed("trials") || simCfg.Trials == 0 {
				simCfg.Trials = trials
			}
			if err := simCfg.Validate(); err != nil {
				return err
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			e := a.engine
			if dryRun || cmd.Flags().Changed("seed") {
				opts := engine.Options{
					Config: a.cfg,
					Store:  a.store,
					Events: a.events,
					Logger: a.logger,
				}
				if dryRun {
					opts.Store = store.NewInMemoryRecordStore()
					opts.Events = nil
				}
				if cmd.Flags().Changed("seed") {
					opts.Rand = stimulus.NewSeededRand(seed)
				}
				if e, err = engine.New(opts); err != nil {
					return err
				}
			}

			rng := stimulus.NewRand()
			if cmd.Flags().Changed("seed") {
				// Offset so observers and trial generation draw different streams.
				rng = stimulus.NewSeededRand(seed + 1)
			}

			ctx, cancel := signalContext(commandContext(cmd))
			defer cancel()

			results, runErr := simulation.NewRunner(e, rng, a.logger).Run(ctx, simCfg)
			if runErr != nil && len(results) == 0 {
				return runErr
			}

			report, _, err := e.Report(ctx)
			if err != nil {
				return err
			}

			if jsonOut {
				if err := printJSON(cmd, map[string]interface{}{
					"observers": results,
					"dry_run":   dryRun,
					"report":    reportOrEmpty(report),
				}); err != nil {
					return err
				}
				return runErr
			}

			w := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "observer\ttrials\taccuracy\ttimeouts\tfailed")
			for _, r := range results {
				fmt.Fprintf(tw, "%s\t%d\t%.3f\t%d\t%d\n", r.Observer, r.Trials, r.Accuracy(), r.Timeouts, r.Failed)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintln(w)
			if err := visualization.RenderText(w, report); err != nil {
				return err
			}
			if dryRun {
				fmt.Fprintln(w, "\nDry run: no records were stored.")
			}
			return runErr
		},
	}

	cmd.Flags().Int("trials", 200, "Trials per observer")
	cmd.Flags().String("observers", "", "YAML file describing the observers")
	cmd.Flags().Uint64("seed", 0, "Seed trial generation and observer responses")
	cmd.Flags().Bool("dry-run", false, "Aggregate in memory without touching the record store")
	return cmd
}

func reportOrEmpty(r *models.Report) *models.Report {
	if r == nil {
		return &models.Report{}
	}
	return r
}
