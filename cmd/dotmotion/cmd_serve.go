package main

import (
	"errors"
	"fmt"

	"github.com/nvandessel/dotmotion/internal/httpapi"
	"github.com/nvandessel/dotmotion/internal/mcp"
	"github.com/nvandessel/dotmotion/internal/objectstore"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP trial API",
		Long: `Serve trials and accept responses over HTTP.

Routes:
  POST /api/trials                new trial
  GET  /api/trials/:id            pending trial
  GET  /api/trials/:id/frame?at=  dot field at a playback offset (ms)
  POST /api/responses             score a response
  POST /api/timeouts              record a missed trial
  GET  /api/results               curves and leaderboard
  GET  /api/leaderboard
  GET  /api/export                JSON export
  GET  /api/export.csv            CSV export
  GET  /api/schema                record JSON Schema
  GET  /api/plot.png
  GET  /results_page
  GET  /healthz

Pending trials are saved to the data directory on shutdown.

Examples:
  dotmotion serve
  dotmotion serve --addr 127.0.0.1:8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			if addr == "" {
				addr = a.cfg.Server.Addr
			}

			ctx, cancel := signalContext(commandContext(cmd))
			defer cancel()

			srv := httpapi.NewServer(a.engine, a.logger)
			serveErr := srv.ListenAndServe(ctx, addr)

			if err := a.saveSession(); err != nil {
				a.logger.Warn("pending trials not saved", "error", err)
			}
			if serveErr != nil {
				return fmt.Errorf("server error: %w", serveErr)
			}
			return nil
		},
	}

	cmd.Flags().String("addr", "", "Listen address (default: server.addr from config)")
	return cmd
}

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Run an MCP server over stdio",
		Long: `Expose trials, responses, results, leaderboard and export as MCP tools.

Communication happens over stdin/stdout; logs go to stderr. Tool calls are
recorded in audit.jsonl inside the data directory with observer names
redacted. Uploads via the export tool need export: configured in config.yaml.

Example client configuration:
  {"command": "dotmotion", "args": ["mcp-server", "--root", "/path/to/project"]}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			cfg := &mcp.Config{
				Name:    "dotmotion",
				Version: version,
				DataDir: a.dataDir,
				Engine:  a.engine,
				Logger:  a.logger,
			}
			if a.cfg.Export.Enabled() {
				mc, err := objectstore.NewMinioClient(a.cfg.Export, a.logger)
				if err != nil && !errors.Is(err, objectstore.ErrNotConfigured) {
					return err
				}
				if mc != nil {
					cfg.Uploader = mc
				}
			}

			server, err := mcp.NewServer(cfg)
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}
			defer server.Close()

			runErr := server.Run(commandContext(cmd))
			if err := a.saveSession(); err != nil {
				a.logger.Warn("pending trials not saved", "error", err)
			}
			return runErr
		},
	}
}
