// Package mcp provides an MCP (Model Context Protocol) server for dotmotion.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/dotmotion/internal/engine"
	"github.com/nvandessel/dotmotion/internal/logging"
	"github.com/nvandessel/dotmotion/internal/objectstore"
	"github.com/nvandessel/dotmotion/internal/ratelimit"
)

const instructions = `dotmotion runs random-dot-motion trials.
Call dotmotion_trial to draw a trial, render or describe the stimulus from its
coherence and direction, then answer with dotmotion_respond using the trial_id.
Use dotmotion_results and dotmotion_leaderboard to read the aggregated data.`

// Server wraps the MCP SDK server and provides dotmotion-specific functionality.
type Server struct {
	server       *sdk.Server
	engine       *engine.Engine
	uploader     objectstore.Uploader
	toolLimiters ratelimit.ToolLimiters
	auditLogger  *AuditLogger
	logger       *slog.Logger
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "dotmotion")
	Version string // Server version

	// DataDir holds audit.jsonl. Empty disables the audit log.
	DataDir string

	Engine *engine.Engine

	// Uploader receives exports with upload set. nil makes uploads fail.
	Uploader objectstore.Uploader

	Logger *slog.Logger
}

// NewServer creates a new MCP server with dotmotion tools.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil || cfg.Engine == nil {
		return nil, errors.New("mcp: engine is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, &sdk.ServerOptions{
		Instructions: instructions,
		Logger:       logger,
		InitializedHandler: func(ctx context.Context, req *sdk.InitializedRequest) {
			logger.Debug("mcp client initialized")
		},
	})

	s := &Server{
		server:       mcpServer,
		engine:       cfg.Engine,
		uploader:     cfg.Uploader,
		toolLimiters: ratelimit.NewToolLimiters(),
		logger:       logger,
	}
	if cfg.DataDir != "" {
		s.auditLogger = NewAuditLogger(cfg.DataDir)
	}

	if err := s.registerTools(); err != nil {
		s.auditLogger.Close()
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	if err := s.registerResources(); err != nil {
		s.auditLogger.Close()
		return nil, fmt.Errorf("failed to register resources: %w", err)
	}

	return s, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)

	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	return s.server.Run(ctx, &sdk.StdioTransport{})
}

// Connect serves a single session over t. Used for in-process clients.
func (s *Server) Connect(ctx context.Context, t sdk.Transport) (*sdk.ServerSession, error) {
	return s.server.Connect(ctx, t, nil)
}

// Close closes the audit log. The engine's store belongs to the caller.
func (s *Server) Close() error {
	return s.auditLogger.Close()
}
