package evaluate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nvandessel/dotmotion/internal/logging"
	"github.com/nvandessel/dotmotion/internal/models"
	"github.com/nvandessel/dotmotion/internal/store"
)

// Recorder appends scored records to a store and logs each one.
type Recorder struct {
	evaluator *Evaluator
	store     store.RecordStore
	events    *logging.EventLogger
	logger    *slog.Logger
}

// NewRecorder creates a Recorder. events and logger may be nil.
func NewRecorder(e *Evaluator, s store.RecordStore, events *logging.EventLogger, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Recorder{evaluator: e, store: s, events: events, logger: logger}
}

// Evaluator returns the evaluator used for scoring.
func (r *Recorder) Evaluator() *Evaluator {
	return r.evaluator
}

// Submit validates, scores and appends a client submission.
func (r *Recorder) Submit(ctx context.Context, s Submission) (models.ResponseRecord, error) {
	rec, err := r.evaluator.EvaluateSubmission(s)
	if err != nil {
		return models.ResponseRecord{}, err
	}
	return rec, r.Record(ctx, rec)
}

// Respond scores a response to a known trial and appends it.
func (r *Recorder) Respond(ctx context.Context, name string, spec models.TrialSpec, response string, reactionTimeMs float64) (models.ResponseRecord, error) {
	rec, err := r.evaluator.Respond(name, spec, response, reactionTimeMs)
	if err != nil {
		return models.ResponseRecord{}, err
	}
	return rec, r.Record(ctx, rec)
}

// Timeout records an unanswered trial.
func (r *Recorder) Timeout(ctx context.Context, name string, spec models.TrialSpec) (models.ResponseRecord, error) {
	return r.Respond(ctx, name, spec, models.NoResponse, 0)
}

// Record appends an already scored record.
func (r *Recorder) Record(ctx context.Context, rec models.ResponseRecord) error {
	r.events.TrialScored(rec)
	if err := r.store.Append(ctx, rec); err != nil {
		r.logger.Error("failed to append record", "error", err)
		return fmt.Errorf("recording response: %w", err)
	}
	backend := store.BackendName(r.store)
	r.events.RecordAppended(backend)
	r.logger.Debug("record appended",
		"backend", backend,
		"user", rec.User,
		"correct_guess", rec.CorrectGuess,
		"coherence", rec.Coherence,
		"reaction_time", rec.ReactionTime)
	return nil
}
