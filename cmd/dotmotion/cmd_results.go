package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nvandessel/dotmotion/internal/constants"
	"github.com/nvandessel/dotmotion/internal/models"
	"github.com/nvandessel/dotmotion/internal/plot"
	"github.com/nvandessel/dotmotion/internal/ranking"
	"github.com/nvandessel/dotmotion/internal/visualization"
	"github.com/spf13/cobra"
)

func newResultsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Show psychometric curves and the leaderboard",
		Long: `Aggregate every stored response into psychometric, accuracy and
reaction-time curves, and rank observers.

Examples:
  dotmotion results                       # text table
  dotmotion results --format json
  dotmotion results --format html         # write a page and open it
  dotmotion results --plot results.png    # also save the figure
  dotmotion results --serve               # live page that re-reads the store`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			format, _ := cmd.Flags().GetString("format")
			output, _ := cmd.Flags().GetString("output")
			plotPath, _ := cmd.Flags().GetString("plot")
			serve, _ := cmd.Flags().GetBool("serve")
			noOpen, _ := cmd.Flags().GetBool("no-open")
			if jsonOut {
				format = string(visualization.FormatJSON)
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := commandContext(cmd)

			if serve {
				return runResultsServer(cmd, ctx, a, noOpen)
			}

			report, records, err := a.engine.Report(ctx)
			if err != nil {
				return err
			}

			if plotPath != "" {
				if err := plot.SavePNG(plotPath, records, report, plot.DefaultOptions()); err != nil {
					if !errors.Is(err, plot.ErrNoData) {
						return fmt.Errorf("save plot: %w", err)
					}
					fmt.Fprintln(cmd.ErrOrStderr(), "No trials recorded; skipped the plot.")
				} else {
					fmt.Fprintf(cmd.ErrOrStderr(), "Plot written to %s\n", plotPath)
				}
			}

			switch visualization.Format(format) {
			case visualization.FormatText:
				return visualization.RenderText(cmd.OutOrStdout(), report)
			case visualization.FormatJSON:
				return visualization.RenderJSON(cmd.OutOrStdout(), report)
			case visualization.FormatHTML:
				return writeResultsHTML(cmd, records, report, output, noOpen)
			default:
				return fmt.Errorf("unsupported format %q (use 'text', 'json', or 'html')", format)
			}
		},
	}

	cmd.Flags().String("format", "text", "Output format: text, json, or html")
	cmd.Flags().StringP("output", "o", "", "Output file path (html format only)")
	cmd.Flags().String("plot", "", "Also save the three-panel figure as a PNG")
	cmd.Flags().Bool("serve", false, "Start a local results server instead of printing")
	cmd.Flags().Bool("no-open", false, "Don't open the browser")
	return cmd
}

// writeResultsHTML renders a self-contained results page.
func writeResultsHTML(cmd *cobra.Command, records []models.ResponseRecord, report *models.Report, output string, noOpen bool) error {
	var png bytes.Buffer
	if err := plot.Render(&png, records, report, plot.DefaultOptions()); err != nil && !errors.Is(err, plot.ErrNoData) {
		return fmt.Errorf("render plot: %w", err)
	}

	htmlBytes, err := visualization.RenderHTML(records, report, png.Bytes())
	if err != nil {
		return fmt.Errorf("render HTML: %w", err)
	}

	outPath := output
	if outPath == "" {
		outPath = filepath.Join(os.TempDir(), "dotmotion-results.html")
	}
	if err := os.WriteFile(outPath, htmlBytes, 0644); err != nil {
		return fmt.Errorf("write HTML file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Results written to %s\n", outPath)

	if !noOpen {
		if err := visualization.OpenBrowser(outPath); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Could not open browser: %v\nOpen %s manually.\n", err, outPath)
		}
	}
	return nil
}

// runResultsServer serves the live results page and blocks until Ctrl-C.
func runResultsServer(cmd *cobra.Command, ctx context.Context, a *app, noOpen bool) error {
	srv := visualization.NewServer(a.store, a.engine.StatsConfig())

	srvCtx, srvCancel := signalContext(ctx)
	defer srvCancel()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(srvCtx) }()

	addr, err := waitForAddr(srv.Addr, errCh)
	if err != nil {
		return err
	}

	url := "http://" + addr
	fmt.Fprintf(cmd.OutOrStdout(), "Results server running at %s\n", url)
	fmt.Fprintf(cmd.OutOrStdout(), "Press Ctrl-C to stop.\n")

	if !noOpen {
		if err := visualization.OpenBrowser(url); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Could not open browser: %v\nOpen %s manually.\n", err, url)
		}
	}

	if err := <-errCh; err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// waitForAddr polls addr until the server has a listener, or fails after
// three seconds. An early error from errCh is returned as is.
func waitForAddr(addr func() string, errCh <-chan error) (string, error) {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if a := addr(); a != "" {
			return a, nil
		}
		select {
		case err := <-errCh:
			if err == nil {
				err = fmt.Errorf("server stopped before listening")
			}
			return "", err
		case <-time.After(10 * time.Millisecond):
		}
	}
	return "", fmt.Errorf("server failed to start")
}

func newLeaderboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "leaderboard",
		Short: "Rank observers by accuracy and speed",
		Long: fmt.Sprintf(`Rank every observer with enough trials.

The qualification threshold and list length come from stats.min_trials and
stats.top_n in %s/config.yaml.`, "~/"+constants.DataDirName),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			lb, err := a.engine.Leaderboard(commandContext(cmd))
			if err != nil && !errors.Is(err, ranking.ErrNoLeaderboard) {
				return err
			}
			if jsonOut {
				if lb == nil {
					lb = &models.Leaderboard{Entries: []models.LeaderboardEntry{}}
				}
				return printJSON(cmd, lb)
			}
			return visualization.RenderLeaderboardText(cmd.OutOrStdout(), lb)
		},
	}
}
