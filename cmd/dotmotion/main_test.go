package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nvandessel/dotmotion/internal/backup"
	"github.com/nvandessel/dotmotion/internal/constants"
	"github.com/nvandessel/dotmotion/internal/models"
)

// isolateHome sets HOME to a temp directory to avoid touching real ~/.dotmotion/
// MUST be called for any test that loads config or opens a store
func isolateHome(t *testing.T, tmpDir string) {
	t.Helper()
	tmpHome := filepath.Join(tmpDir, "home")
	if err := os.MkdirAll(tmpHome, 0700); err != nil {
		t.Fatalf("Failed to create temp home: %v", err)
	}
	t.Setenv("HOME", tmpHome)
}

// runCLI executes the root command against the project rooted at dir and
// returns stdout.
func runCLI(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--root", dir}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, dir string, args ...string) string {
	t.Helper()
	out, err := runCLI(t, dir, args...)
	if err != nil {
		t.Fatalf("dotmotion %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func decodeJSON[T any](t *testing.T, s string) T {
	t.Helper()
	var v T
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("invalid JSON output %q: %v", s, err)
	}
	return v
}

type trialOutput struct {
	TrialID   string           `json:"trial_id"`
	Coherence float64          `json:"coherence"`
	Direction models.Direction `json:"direction"`
	Frame     *struct {
		Dots []models.DotState `json:"dots"`
	} `json:"frame"`
}

func opposite(d models.Direction) string {
	if d == models.DirectionLeft {
		return string(models.DirectionRight)
	}
	return string(models.DirectionLeft)
}

func TestVersionCmd(t *testing.T) {
	out := mustRun(t, t.TempDir(), "version", "--json")
	got := decodeJSON[map[string]string](t, out)
	if got["version"] != version {
		t.Errorf("version = %q, want %q", got["version"], version)
	}
}

func TestInitCmd(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	out := mustRun(t, tmpDir, "init", "--json")
	got := decodeJSON[map[string]interface{}](t, out)
	if got["wrote_config"] != true {
		t.Errorf("first init should write the config: %v", got)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, constants.DataDirName)); err != nil {
		t.Errorf("data directory not created: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "home", constants.DataDirName, "config.yaml")); err != nil {
		t.Errorf("config not written: %v", err)
	}

	got = decodeJSON[map[string]interface{}](t, mustRun(t, tmpDir, "init", "--json"))
	if got["wrote_config"] != false {
		t.Error("second init should keep the existing config")
	}
}

func TestTrialRespondFlow(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	// Each invocation is a fresh process image: the pending trial must
	// survive through the saved session file.
	trial := decodeJSON[trialOutput](t, mustRun(t, tmpDir, "trial", "--json", "--name", "ada"))
	if trial.TrialID == "" || !trial.Direction.Valid() {
		t.Fatalf("trial output = %+v", trial)
	}

	out := mustRun(t, tmpDir, "respond", trial.TrialID, string(trial.Direction), "--rt", "420", "--json")
	rec := decodeJSON[models.ResponseRecord](t, out)
	if !rec.CorrectGuess || rec.Name != "ada" || rec.ReactionTime != 420 {
		t.Errorf("record = %+v", rec)
	}

	if _, err := runCLI(t, tmpDir, "respond", trial.TrialID, "left"); err == nil {
		t.Error("answering the same trial twice should fail")
	}

	trial = decodeJSON[trialOutput](t, mustRun(t, tmpDir, "trial", "--json"))
	out = mustRun(t, tmpDir, "respond", trial.TrialID, opposite(trial.Direction), "--rt", "700")
	if !strings.HasPrefix(out, "Incorrect") {
		t.Errorf("text output = %q, want Incorrect...", out)
	}

	trial = decodeJSON[trialOutput](t, mustRun(t, tmpDir, "trial", "--json"))
	rec = decodeJSON[models.ResponseRecord](t, mustRun(t, tmpDir, "timeout", trial.TrialID, "--json"))
	if rec.User != models.NoResponse || rec.CorrectGuess {
		t.Errorf("timeout record = %+v", rec)
	}

	records := decodeJSON[[]models.ResponseRecord](t, mustRun(t, tmpDir, "export"))
	if len(records) != 3 {
		t.Errorf("exported %d records, want 3", len(records))
	}
}

func TestRespondCmd_WithoutTrial(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	out := mustRun(t, tmpDir, "respond", "left", "--correct", "right", "--coherence", "0.12", "--rt", "300", "--json")
	rec := decodeJSON[models.ResponseRecord](t, out)
	if rec.CorrectGuess || rec.Correct != models.DirectionRight || rec.User != "left" {
		t.Errorf("record = %+v", rec)
	}

	if _, err := runCLI(t, tmpDir, "respond", "left", "--correct", "right", "--coherence", "abc"); err == nil {
		t.Error("invalid --coherence should fail")
	}
	if _, err := runCLI(t, tmpDir, "respond", "up", "--correct", "right", "--coherence", "0.1"); err == nil {
		t.Error("invalid response should fail")
	}
	if _, err := runCLI(t, tmpDir, "respond", "right", "--correct", "right", "--coherence", "7.5"); err == nil {
		t.Error("coherence outside the task bounds should fail")
	}
}

func TestTrialCmd_FrameAt(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	trial := decodeJSON[trialOutput](t, mustRun(t, tmpDir, "trial", "--json", "--frame-at", "100ms"))
	if trial.Frame == nil || len(trial.Frame.Dots) == 0 {
		t.Fatalf("trial output has no frame: %+v", trial)
	}
}

func TestResultsCmd(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	if out := mustRun(t, tmpDir, "results"); !strings.Contains(out, "No trials recorded") {
		t.Errorf("empty results = %q", out)
	}

	mustRun(t, tmpDir, "simulate", "--trials", "30", "--seed", "4")

	report := decodeJSON[models.Report](t, mustRun(t, tmpDir, "results", "--json"))
	if report.TotalTrials != 90 {
		t.Errorf("TotalTrials = %d, want 90", report.TotalTrials)
	}
	if len(report.Psychometric) == 0 {
		t.Error("psychometric curve is empty")
	}

	page := filepath.Join(tmpDir, "results.html")
	plotPath := filepath.Join(tmpDir, "plot.png")
	mustRun(t, tmpDir, "results", "--format", "html", "--no-open", "-o", page, "--plot", plotPath)
	for _, p := range []string{page, plotPath} {
		if info, err := os.Stat(p); err != nil || info.Size() == 0 {
			t.Errorf("%s not written: %v", p, err)
		}
	}

	if _, err := runCLI(t, tmpDir, "results", "--format", "xml"); err == nil {
		t.Error("unsupported format should fail")
	}
}

func TestLeaderboardCmd(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	lb := decodeJSON[models.Leaderboard](t, mustRun(t, tmpDir, "leaderboard", "--json"))
	if len(lb.Entries) != 0 {
		t.Errorf("empty store leaderboard = %+v", lb)
	}

	mustRun(t, tmpDir, "simulate", "--trials", "60", "--seed", "8")
	lb = decodeJSON[models.Leaderboard](t, mustRun(t, tmpDir, "leaderboard", "--json"))
	if len(lb.Entries) != 3 || lb.Entries[0].Rank != 1 {
		t.Errorf("leaderboard = %+v", lb)
	}
}

func TestExportCmd(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	mustRun(t, tmpDir, "simulate", "--trials", "5", "--seed", "1")

	out := mustRun(t, tmpDir, "export", "--format", "csv")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 16 || !strings.HasPrefix(lines[0], "name,") {
		t.Errorf("csv export has %d lines, header %q", len(lines), lines[0])
	}

	path := filepath.Join(tmpDir, "out.json")
	mustRun(t, tmpDir, "export", "-o", path)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if recs := decodeJSON[[]models.ResponseRecord](t, string(data)); len(recs) != 15 {
		t.Errorf("file export has %d records, want 15", len(recs))
	}

	if _, err := runCLI(t, tmpDir, "export", "--upload"); err == nil {
		t.Error("upload without export config should fail")
	}
	if _, err := runCLI(t, tmpDir, "export", "--format", "xml"); err == nil {
		t.Error("unsupported format should fail")
	}
}

func TestSchemaCmd(t *testing.T) {
	out := mustRun(t, t.TempDir(), "schema")
	schema := decodeJSON[map[string]interface{}](t, out)
	props, ok := schema["properties"].(map[string]interface{})
	if !ok {
		t.Fatalf("schema has no properties: %s", out)
	}
	for _, field := range []string{"correct", "user", "coherence", "reaction_time"} {
		if _, ok := props[field]; !ok {
			t.Errorf("schema missing %q", field)
		}
	}

	array := decodeJSON[map[string]interface{}](t, mustRun(t, t.TempDir(), "schema", "--array"))
	if array["type"] != "array" {
		t.Errorf("array schema type = %v", array["type"])
	}
}

func TestBackupCmd(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	mustRun(t, tmpDir, "simulate", "--trials", "4", "--seed", "2")

	created := decodeJSON[map[string]interface{}](t, mustRun(t, tmpDir, "backup", "--json"))
	path, _ := created["path"].(string)
	if created["records"] != float64(12) || path == "" {
		t.Fatalf("backup output = %v", created)
	}
	if !strings.HasPrefix(path, filepath.Join(tmpDir, constants.DataDirName, "backups")) {
		t.Errorf("backup written to %s, want the project backup directory", path)
	}

	listed := decodeJSON[map[string]interface{}](t, mustRun(t, tmpDir, "backup", "list", "--json"))
	if listed["total_count"] != float64(1) {
		t.Errorf("backup list = %v", listed)
	}

	verified := decodeJSON[map[string]interface{}](t, mustRun(t, tmpDir, "backup", "verify", path, "--json"))
	if verified["valid"] != true || verified["version"] != float64(backup.FormatCompressed) {
		t.Errorf("verify = %v", verified)
	}

	restored := decodeJSON[backup.RestoreResult](t, mustRun(t, tmpDir, "backup", "restore", path, "--mode", "append", "--json"))
	if restored.RecordsBefore != 12 || restored.RecordsAfter != 24 {
		t.Errorf("append restore = %+v", restored)
	}
	restored = decodeJSON[backup.RestoreResult](t, mustRun(t, tmpDir, "backup", "restore", path, "--json"))
	if restored.Mode != backup.RestoreReplace || restored.RecordsAfter != 12 {
		t.Errorf("replace restore = %+v", restored)
	}

	if _, err := runCLI(t, tmpDir, "backup", "restore", path, "--mode", "merge"); err == nil {
		t.Error("unknown restore mode should fail")
	}

	outside := filepath.Join(tmpDir, "elsewhere.json.gz")
	if _, err := runCLI(t, tmpDir, "backup", "--output", outside); err == nil {
		t.Error("backup outside the backup directories should be rejected")
	}
	if _, err := runCLI(t, tmpDir, "backup", "restore", outside); err == nil {
		t.Error("restore from outside the backup directories should be rejected")
	}
}

func TestConfigCmd(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	mustRun(t, tmpDir, "config", "set", "task.variant", "signed")
	mustRun(t, tmpDir, "config", "set", "task.trial_duration", "1500ms")
	mustRun(t, tmpDir, "config", "set", "export.secret_key", "supersecretvalue123")

	got := decodeJSON[map[string]interface{}](t, mustRun(t, tmpDir, "config", "get", "task.variant", "--json"))
	if got["value"] != "signed" {
		t.Errorf("task.variant = %v", got["value"])
	}
	if out := mustRun(t, tmpDir, "config", "get", "task.trial_duration"); strings.TrimSpace(out) != "task.trial_duration = 1.5s" {
		t.Errorf("task.trial_duration output = %q", out)
	}

	list := mustRun(t, tmpDir, "config", "list", "--json")
	if strings.Contains(list, "supersecretvalue123") {
		t.Error("config list leaked the secret key")
	}

	tests := []struct {
		name string
		args []string
	}{
		{"unknown key", []string{"config", "set", "task.colour", "red"}},
		{"not an int", []string{"config", "set", "stats.bins", "many"}},
		{"bad duration", []string{"config", "set", "task.trial_duration", "soon"}},
		{"fails validation", []string{"config", "set", "task.variant", "sideways"}},
		{"get unknown", []string{"config", "get", "nope.nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := runCLI(t, tmpDir, tt.args...); err == nil {
				t.Errorf("dotmotion %s should fail", strings.Join(tt.args, " "))
			}
		})
	}

	if out := mustRun(t, tmpDir, "config", "get", "task.variant"); !strings.Contains(out, "signed") {
		t.Errorf("failed sets must not change the file: %q", out)
	}
}

func TestSimulateCmd(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	out := mustRun(t, tmpDir, "simulate", "--trials", "20", "--seed", "7", "--dry-run", "--json")
	got := decodeJSON[struct {
		Observers []struct {
			Observer string `json:"observer"`
			Trials   int    `json:"trials"`
		} `json:"observers"`
		DryRun bool          `json:"dry_run"`
		Report models.Report `json:"report"`
	}](t, out)
	if len(got.Observers) != 3 || !got.DryRun || got.Report.TotalTrials != 60 {
		t.Errorf("simulate output = %+v", got)
	}
	if recs := decodeJSON[[]models.ResponseRecord](t, mustRun(t, tmpDir, "export")); len(recs) != 0 {
		t.Errorf("dry run stored %d records", len(recs))
	}

	observers := filepath.Join(tmpDir, "observers.yaml")
	content := "trials: 10\nobservers:\n  - name: solo\n    slope: 6\n    median_rt: 800ms\n    rt_sigma: 0.2\n"
	if err := os.WriteFile(observers, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	mustRun(t, tmpDir, "simulate", "--observers", observers)
	recs := decodeJSON[[]models.ResponseRecord](t, mustRun(t, tmpDir, "export"))
	if len(recs) != 10 || recs[0].Name != "solo" {
		t.Errorf("stored %d records from the observers file", len(recs))
	}
}
