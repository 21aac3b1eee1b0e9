package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/dotmotion/internal/evaluate"
	"github.com/nvandessel/dotmotion/internal/export"
	"github.com/nvandessel/dotmotion/internal/models"
	"github.com/nvandessel/dotmotion/internal/objectstore"
	"github.com/nvandessel/dotmotion/internal/ranking"
	"github.com/nvandessel/dotmotion/internal/ratelimit"
	"github.com/nvandessel/dotmotion/internal/visualization"
)

const (
	summaryURI       = "dotmotion://results/summary"
	trialURIPrefix   = "dotmotion://trials/"
	trialURITemplate = trialURIPrefix + "{id}"
)

// registerTools registers all dotmotion MCP tools with the server.
func (s *Server) registerTools() error {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "dotmotion_trial",
		Description: "Draw a random-dot-motion trial and hold it pending until it is answered or expires",
	}, s.handleTrial)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "dotmotion_respond",
		Description: "Answer a pending trial with left, right or no_response and store the scored record",
	}, s.handleRespond)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "dotmotion_results",
		Description: "Aggregate all stored trials into psychometric, accuracy and reaction-time curves",
	}, s.handleResults)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "dotmotion_leaderboard",
		Description: "Rank observers by accuracy and speed",
	}, s.handleLeaderboard)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "dotmotion_export",
		Description: "Export stored trials as JSON or CSV, inline or uploaded to the configured bucket",
	}, s.handleExport)

	return nil
}

// registerResources registers MCP resources for auto-loading into context.
func (s *Server) registerResources() error {
	s.server.AddResource(&sdk.Resource{
		URI:         summaryURI,
		Name:        "dotmotion-results-summary",
		Description: "Current results: trial count, fitted psychometric curve and leaderboard.",
		MIMEType:    "text/markdown",
	}, s.handleSummaryResource)

	s.server.AddResourceTemplate(&sdk.ResourceTemplate{
		URITemplate: trialURITemplate,
		Name:        "dotmotion-pending-trial",
		Description: "A pending trial by ID, without consuming it.",
		MIMEType:    "application/json",
	}, s.handleTrialResource)

	return nil
}

// handleTrial implements the dotmotion_trial tool.
func (s *Server) handleTrial(ctx context.Context, req *sdk.CallToolRequest, args TrialInput) (_ *sdk.CallToolResult, _ TrialOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("dotmotion_trial", start, retErr, sanitizeToolParams(map[string]interface{}{
			"name": args.Name,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "dotmotion_trial"); err != nil {
		return nil, TrialOutput{}, err
	}

	p := s.engine.NewTrial(args.Name)
	return nil, TrialOutput{
		TrialID:    p.ID,
		Coherence:  p.Spec.Coherence,
		Direction:  string(p.Spec.Direction),
		Variant:    string(p.Spec.Variant),
		DurationMs: s.engine.Config().Task.TrialDuration.Milliseconds(),
		ExpiresAt:  p.ExpiresAt.UTC().Format(time.RFC3339),
		Message:    fmt.Sprintf("Trial %s issued; answer before %s", p.ID, p.ExpiresAt.UTC().Format(time.RFC3339)),
	}, nil
}

// handleRespond implements the dotmotion_respond tool.
func (s *Server) handleRespond(ctx context.Context, req *sdk.CallToolRequest, args RespondInput) (_ *sdk.CallToolResult, _ RespondOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("dotmotion_respond", start, retErr, sanitizeToolParams(map[string]interface{}{
			"trial_id":      args.TrialID,
			"response":      args.Response,
			"reaction_time": args.ReactionTime,
			"name":          args.Name,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "dotmotion_respond"); err != nil {
		return nil, RespondOutput{}, err
	}

	if strings.TrimSpace(args.TrialID) == "" {
		return nil, RespondOutput{}, fmt.Errorf("%w: trial_id", evaluate.ErrMissingField)
	}

	var (
		rec models.ResponseRecord
		err error
	)
	switch strings.ToLower(strings.TrimSpace(args.Response)) {
	case "":
		return nil, RespondOutput{}, fmt.Errorf("%w: response", evaluate.ErrMissingField)
	case models.NoResponse:
		rec, err = s.engine.Expire(ctx, args.TrialID, args.Name)
	default:
		rec, err = s.engine.Answer(ctx, args.TrialID, args.Name, args.Response, args.ReactionTime)
	}
	if err != nil {
		return nil, RespondOutput{}, err
	}

	msg := "Incorrect"
	switch {
	case !rec.Responded():
		msg = "Recorded as a timeout"
	case rec.CorrectGuess:
		msg = "Correct"
	}
	msg = fmt.Sprintf("%s: the dots moved %s", msg, rec.Correct)

	return nil, RespondOutput{Record: rec, Message: msg}, nil
}

// handleResults implements the dotmotion_results tool.
func (s *Server) handleResults(ctx context.Context, req *sdk.CallToolRequest, args ResultsInput) (_ *sdk.CallToolResult, _ ResultsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("dotmotion_results", start, retErr, nil)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "dotmotion_results"); err != nil {
		return nil, ResultsOutput{}, err
	}

	report, _, err := s.engine.Report(ctx)
	if err != nil {
		return nil, ResultsOutput{}, err
	}

	var buf bytes.Buffer
	if err := visualization.RenderText(&buf, report); err != nil {
		return nil, ResultsOutput{}, fmt.Errorf("rendering results: %w", err)
	}

	return nil, ResultsOutput{Report: report, Summary: buf.String()}, nil
}

// handleLeaderboard implements the dotmotion_leaderboard tool.
func (s *Server) handleLeaderboard(ctx context.Context, req *sdk.CallToolRequest, args LeaderboardInput) (_ *sdk.CallToolResult, _ LeaderboardOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("dotmotion_leaderboard", start, retErr, nil)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "dotmotion_leaderboard"); err != nil {
		return nil, LeaderboardOutput{}, err
	}

	lb, err := s.engine.Leaderboard(ctx)
	if errors.Is(err, ranking.ErrNoLeaderboard) {
		return nil, LeaderboardOutput{Message: err.Error()}, nil
	}
	if err != nil {
		return nil, LeaderboardOutput{}, err
	}

	return nil, LeaderboardOutput{
		Leaderboard: lb,
		Message:     fmt.Sprintf("%d observers ranked", len(lb.Entries)),
	}, nil
}

// handleExport implements the dotmotion_export tool.
func (s *Server) handleExport(ctx context.Context, req *sdk.CallToolRequest, args ExportInput) (_ *sdk.CallToolResult, _ ExportOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("dotmotion_export", start, retErr, sanitizeToolParams(map[string]interface{}{
			"format": args.Format,
			"upload": args.Upload,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "dotmotion_export"); err != nil {
		return nil, ExportOutput{}, err
	}

	name := args.Format
	if name == "" {
		name = string(export.FormatJSON)
	}
	format, err := export.ParseFormat(name)
	if err != nil {
		return nil, ExportOutput{}, err
	}
	if args.Upload && s.uploader == nil {
		return nil, ExportOutput{}, objectstore.ErrNotConfigured
	}

	records, err := s.engine.Records(ctx)
	if err != nil {
		return nil, ExportOutput{}, err
	}
	var buf bytes.Buffer
	if err := export.Write(ctx, s.engine.Store(), format, &buf); err != nil {
		return nil, ExportOutput{}, fmt.Errorf("exporting records: %w", err)
	}

	out := ExportOutput{Format: string(format), Records: len(records)}
	if !args.Upload {
		out.Data = buf.String()
		out.Message = fmt.Sprintf("Exported %d records as %s", len(records), format)
		return nil, out, nil
	}

	object, err := s.uploader.Upload(ctx, "results"+format.Extension(), &buf, int64(buf.Len()), format.ContentType())
	if err != nil {
		return nil, ExportOutput{}, err
	}
	out.Object = object
	out.Message = fmt.Sprintf("Uploaded %d records to %s", len(records), object)
	return nil, out, nil
}

// handleSummaryResource returns the current results formatted for context injection.
func (s *Server) handleSummaryResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	report, _, err := s.engine.Report(ctx)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("# Dot-motion results\n\n")
	if report == nil {
		sb.WriteString("No trials recorded yet. Start one with `dotmotion_trial`.\n")
	} else {
		sb.WriteString("```\n")
		if err := visualization.RenderText(&sb, report); err != nil {
			return nil, fmt.Errorf("rendering results: %w", err)
		}
		sb.WriteString("```\n")
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      summaryURI,
				MIMEType: "text/markdown",
				Text:     sb.String(),
			},
		},
	}, nil
}

// handleTrialResource returns a pending trial as JSON.
func (s *Server) handleTrialResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	uri := req.Params.URI
	id := strings.TrimPrefix(uri, trialURIPrefix)
	if id == "" || id == uri {
		return nil, sdk.ResourceNotFoundError(uri)
	}

	p, err := s.engine.Registry().Get(id)
	if err != nil {
		return nil, sdk.ResourceNotFoundError(uri)
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding trial: %w", err)
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(data),
			},
		},
	}, nil
}
