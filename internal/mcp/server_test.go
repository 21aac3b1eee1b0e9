package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/dotmotion/internal/config"
	"github.com/nvandessel/dotmotion/internal/engine"
	"github.com/nvandessel/dotmotion/internal/stimulus"
	"github.com/nvandessel/dotmotion/internal/store"
)

func newTestServer(t *testing.T, mutate func(*config.DotmotionConfig)) *Server {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	e, err := engine.New(engine.Options{
		Config: cfg,
		Store:  store.NewInMemoryRecordStore(),
		Rand:   stimulus.NewSeededRand(11),
	})
	if err != nil {
		t.Fatalf("engine.New() error = %v", err)
	}

	s, err := NewServer(&Config{
		Name:    "test-server",
		Version: "v1.0.0",
		DataDir: t.TempDir(),
		Engine:  e,
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// connect starts an in-memory client session against s.
func connect(t *testing.T, s *Server) *sdk.ClientSession {
	t.Helper()
	ctx := context.Background()
	serverTransport, clientTransport := sdk.NewInMemoryTransports()

	ss, err := s.Connect(ctx, serverTransport)
	if err != nil {
		t.Fatalf("server Connect() error = %v", err)
	}
	t.Cleanup(func() { ss.Close() })

	client := sdk.NewClient(&sdk.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client Connect() error = %v", err)
	}
	t.Cleanup(func() { cs.Close() })
	return cs
}

func callTool[T any](t *testing.T, cs *sdk.ClientSession, name string, args map[string]any) (T, *sdk.CallToolResult) {
	t.Helper()
	var out T
	res, err := cs.CallTool(context.Background(), &sdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s) error = %v", name, err)
	}
	if res.IsError {
		return out, res
	}
	if len(res.Content) == 0 {
		t.Fatalf("CallTool(%s) returned no content", name)
	}
	text, ok := res.Content[0].(*sdk.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s) content is %T, want *TextContent", name, res.Content[0])
	}
	if err := json.Unmarshal([]byte(text.Text), &out); err != nil {
		t.Fatalf("CallTool(%s) returned invalid JSON %q: %v", name, text.Text, err)
	}
	return out, res
}

func TestNewServer(t *testing.T) {
	s := newTestServer(t, nil)
	if s.server == nil {
		t.Error("Server.server is nil")
	}
	if s.auditLogger == nil {
		t.Error("audit logger should be enabled when DataDir is set")
	}
	for _, tool := range []string{"dotmotion_trial", "dotmotion_respond", "dotmotion_results", "dotmotion_leaderboard", "dotmotion_export"} {
		if _, ok := s.toolLimiters[tool]; !ok {
			t.Errorf("no rate limiter for %s", tool)
		}
	}
}

func TestNewServer_RequiresEngine(t *testing.T) {
	if _, err := NewServer(nil); err == nil {
		t.Error("NewServer(nil) should fail")
	}
	if _, err := NewServer(&Config{Name: "x"}); err == nil {
		t.Error("NewServer without engine should fail")
	}
}

func TestServer_ListTools(t *testing.T) {
	cs := connect(t, newTestServer(t, nil))

	res, err := cs.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools() error = %v", err)
	}

	got := make(map[string]bool)
	for _, tool := range res.Tools {
		got[tool.Name] = true
	}
	for _, want := range []string{"dotmotion_trial", "dotmotion_respond", "dotmotion_results", "dotmotion_leaderboard", "dotmotion_export"} {
		if !got[want] {
			t.Errorf("tool %s not listed", want)
		}
	}
}

func TestServer_RoundTrip(t *testing.T) {
	s := newTestServer(t, func(c *config.DotmotionConfig) { c.Stats.MinTrials = 1 })
	cs := connect(t, s)

	trial, res := callTool[TrialOutput](t, cs, "dotmotion_trial", map[string]any{"name": "ada"})
	if res.IsError {
		t.Fatalf("dotmotion_trial failed: %+v", res.Content)
	}
	if trial.TrialID == "" || (trial.Direction != "left" && trial.Direction != "right") {
		t.Fatalf("dotmotion_trial = %+v", trial)
	}

	answer, res := callTool[RespondOutput](t, cs, "dotmotion_respond", map[string]any{
		"trial_id":      trial.TrialID,
		"response":      trial.Direction,
		"reaction_time": 640,
	})
	if res.IsError {
		t.Fatalf("dotmotion_respond failed: %+v", res.Content)
	}
	if !answer.Record.CorrectGuess || answer.Record.Name != "ada" {
		t.Errorf("record = %+v", answer.Record)
	}

	// A consumed trial cannot be answered twice.
	_, res = callTool[RespondOutput](t, cs, "dotmotion_respond", map[string]any{
		"trial_id": trial.TrialID,
		"response": trial.Direction,
	})
	if !res.IsError {
		t.Error("second answer should be a tool error")
	}

	results, _ := callTool[ResultsOutput](t, cs, "dotmotion_results", nil)
	if results.Report == nil || results.Report.TotalTrials != 1 {
		t.Errorf("results = %+v", results.Report)
	}
	if !strings.Contains(results.Summary, "Trials: 1") {
		t.Errorf("summary = %q", results.Summary)
	}

	lb, _ := callTool[LeaderboardOutput](t, cs, "dotmotion_leaderboard", nil)
	if lb.Leaderboard == nil || len(lb.Leaderboard.Entries) != 1 || lb.Leaderboard.Entries[0].Name != "ada" {
		t.Errorf("leaderboard = %+v", lb.Leaderboard)
	}
}

func TestServer_ReadResources(t *testing.T) {
	s := newTestServer(t, nil)
	cs := connect(t, s)
	ctx := context.Background()

	res, err := cs.ReadResource(ctx, &sdk.ReadResourceParams{URI: summaryURI})
	if err != nil {
		t.Fatalf("ReadResource(summary) error = %v", err)
	}
	if len(res.Contents) != 1 || !strings.Contains(res.Contents[0].Text, "No trials recorded") {
		t.Errorf("summary = %+v", res.Contents)
	}

	p := s.engine.NewTrial("")
	res, err = cs.ReadResource(ctx, &sdk.ReadResourceParams{URI: trialURIPrefix + p.ID})
	if err != nil {
		t.Fatalf("ReadResource(trial) error = %v", err)
	}
	if !strings.Contains(res.Contents[0].Text, p.ID) {
		t.Errorf("trial resource = %q", res.Contents[0].Text)
	}
	if s.engine.Registry().Len() != 1 {
		t.Error("reading a trial resource must not consume it")
	}

	if _, err := cs.ReadResource(ctx, &sdk.ReadResourceParams{URI: trialURIPrefix + "missing"}); err == nil {
		t.Error("ReadResource(unknown trial) should fail")
	}
}
