package mcp

import (
	"github.com/nvandessel/dotmotion/internal/models"
)

// TrialInput defines the input for dotmotion_trial tool.
type TrialInput struct {
	Name string `json:"name,omitempty" jsonschema:"Observer name to record with the response"`
}

// TrialOutput defines the output for dotmotion_trial tool.
type TrialOutput struct {
	TrialID    string  `json:"trial_id" jsonschema:"ID to pass to dotmotion_respond"`
	Coherence  float64 `json:"coherence" jsonschema:"Motion coherence of the stimulus"`
	Direction  string  `json:"direction" jsonschema:"Coherent direction (left or right) used to render the stimulus"`
	Variant    string  `json:"variant" jsonschema:"Coherence convention: simple or signed"`
	DurationMs int64   `json:"duration_ms" jsonschema:"Trial duration in milliseconds"`
	ExpiresAt  string  `json:"expires_at" jsonschema:"RFC 3339 time after which the trial can no longer be answered"`
	Message    string  `json:"message" jsonschema:"Human-readable result message"`
}

// RespondInput defines the input for dotmotion_respond tool.
type RespondInput struct {
	TrialID      string  `json:"trial_id" jsonschema:"ID returned by dotmotion_trial"`
	Response     string  `json:"response" jsonschema:"Observer answer: left, right or no_response for a timeout"`
	ReactionTime float64 `json:"reaction_time,omitempty" jsonschema:"Reaction time in milliseconds"`
	Name         string  `json:"name,omitempty" jsonschema:"Observer name; overrides the name given to dotmotion_trial"`
}

// RespondOutput defines the output for dotmotion_respond tool.
type RespondOutput struct {
	Record  models.ResponseRecord `json:"record" jsonschema:"The stored response record"`
	Message string                `json:"message" jsonschema:"Human-readable result message"`
}

// ResultsInput defines the input for dotmotion_results tool.
type ResultsInput struct{}

// ResultsOutput defines the output for dotmotion_results tool.
type ResultsOutput struct {
	Report  *models.Report `json:"report" jsonschema:"Aggregated curves, leaderboard and fit; null when no trials are stored"`
	Summary string         `json:"summary" jsonschema:"Plain-text rendering of the report"`
}

// LeaderboardInput defines the input for dotmotion_leaderboard tool.
type LeaderboardInput struct{}

// LeaderboardOutput defines the output for dotmotion_leaderboard tool.
type LeaderboardOutput struct {
	Leaderboard *models.Leaderboard `json:"leaderboard" jsonschema:"Ranked observers; null when nobody has enough trials"`
	Message     string              `json:"message" jsonschema:"Human-readable result message"`
}

// ExportInput defines the input for dotmotion_export tool.
type ExportInput struct {
	Format string `json:"format,omitempty" jsonschema:"Export format: json (default) or csv"`
	Upload bool   `json:"upload,omitempty" jsonschema:"Upload the export to the configured S3 bucket instead of returning it inline"`
}

// ExportOutput defines the output for dotmotion_export tool.
type ExportOutput struct {
	Format  string `json:"format" jsonschema:"Format of the export"`
	Records int    `json:"records" jsonschema:"Number of records exported"`
	Data    string `json:"data,omitempty" jsonschema:"Export content when not uploaded"`
	Object  string `json:"object,omitempty" jsonschema:"Object name in the bucket when uploaded"`
	Message string `json:"message" jsonschema:"Human-readable result message"`
}
