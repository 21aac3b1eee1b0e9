// Package logging provides leveled logging and trial event tracing for dotmotion.
// It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (operational output)
//   - An EventLogger for structured JSONL trial events (.dotmotion/events.jsonl)
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nvandessel/dotmotion/internal/constants"
	"github.com/nvandessel/dotmotion/internal/models"
)

// LevelTrace is a custom slog level below Debug for full content logging.
// At this level, every dot ensemble refresh is traced as well.
const LevelTrace = slog.LevelDebug - 4

// Event names written to events.jsonl.
const (
	EventTrialGenerated = "trial_generated"
	EventTrialEvaluated = "trial_evaluated"
	EventTrialTimedOut  = "trial_timed_out"
	EventRecordAppended = "record_appended"
)

// ParseLevel maps a string level name to a slog.Level.
// Supported values: "info", "debug", "trace" (case-insensitive).
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled slog.Logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Discard returns a logger that drops everything. Used as the default when a
// component is constructed without one.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// EventLogger writes structured trial events to a JSONL file.
// It is safe for concurrent use. A nil EventLogger is safe to use;
// all methods are no-ops on nil receiver.
type EventLogger struct {
	mu sync.Mutex
	w  io.WriteCloser
}

// NewEventLogger creates an event logger writing to dir/events.jsonl.
// At "info" level (the default), returns nil and no file is created.
// At "debug" or "trace" level, the file is opened for append.
// Returns nil if the file cannot be opened. All methods are nil-safe.
func NewEventLogger(dir string, level string) *EventLogger {
	if ParseLevel(level) == slog.LevelInfo {
		return nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}

	path := filepath.Join(dir, constants.EventsFileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}

	return &EventLogger{w: f}
}

// NewEventLoggerWriter creates an event logger writing to w.
func NewEventLoggerWriter(w io.WriteCloser) *EventLogger {
	return &EventLogger{w: w}
}

// Log writes an event as a single JSONL line.
// A "time" field is added automatically. The caller's map is not mutated.
// Safe to call on nil receiver.
func (el *EventLogger) Log(event map[string]any) {
	if el == nil || el.w == nil {
		return
	}

	entry := make(map[string]any, len(event)+1)
	for k, v := range event {
		entry[k] = v
	}
	entry["time"] = time.Now().UTC().Format(time.RFC3339Nano)

	el.mu.Lock()
	defer el.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')
	_, _ = el.w.Write(data)
}

// TrialGenerated logs a freshly generated trial.
func (el *EventLogger) TrialGenerated(spec models.TrialSpec) {
	el.Log(map[string]any{
		"event":     EventTrialGenerated,
		"trial_id":  spec.ID,
		"coherence": spec.Coherence,
		"direction": spec.Direction,
		"variant":   spec.Variant,
	})
}

// TrialScored logs an evaluated record, either answered or timed out.
func (el *EventLogger) TrialScored(rec models.ResponseRecord) {
	event := EventTrialEvaluated
	if !rec.Responded() {
		event = EventTrialTimedOut
	}
	el.Log(map[string]any{
		"event":         event,
		"name":          rec.Name,
		"user":          rec.User,
		"correct":       rec.Correct,
		"correct_guess": rec.CorrectGuess,
		"coherence":     rec.Coherence,
		"reaction_time": rec.ReactionTime,
	})
}

// RecordAppended logs a successful store append.
func (el *EventLogger) RecordAppended(backend string) {
	el.Log(map[string]any{
		"event":   EventRecordAppended,
		"backend": backend,
	})
}

// Close closes the underlying writer. Safe to call on nil receiver.
func (el *EventLogger) Close() {
	if el == nil || el.w == nil {
		return
	}

	el.mu.Lock()
	defer el.mu.Unlock()

	el.w.Close()
	el.w = nil
}
