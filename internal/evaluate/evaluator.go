// Package evaluate scores observer responses into persisted records.
package evaluate

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/nvandessel/dotmotion/internal/constants"
	"github.com/nvandessel/dotmotion/internal/models"
)

var (
	// ErrInvalidResponse is returned when a response is not left or right.
	ErrInvalidResponse = errors.New("invalid response")

	// ErrInvalidReactionTime is returned for NaN or infinite reaction times.
	ErrInvalidReactionTime = errors.New("invalid reaction time")

	// ErrInvalidTrial is returned when the trial's direction is unusable or
	// its coherence lies outside the configured bounds.
	ErrInvalidTrial = errors.New("invalid trial")
)

// Config controls scoring.
type Config struct {
	TrialDuration   time.Duration
	MaxReactionTime time.Duration

	// Variant is the coherence convention used when a trial does not carry one.
	Variant models.Variant

	// LowerBound and UpperBound bound the coherence magnitude a client may
	// submit. A zero UpperBound disables the check.
	LowerBound float64
	UpperBound float64
}

// DefaultConfig returns a 2 second trial with reaction times capped at 2 seconds.
func DefaultConfig() Config {
	return Config{
		TrialDuration:   constants.DefaultTrialDuration,
		MaxReactionTime: constants.DefaultMaxReactionTime,
		Variant:         models.VariantSimple,
		LowerBound:      constants.DefaultLowerBound,
		UpperBound:      constants.DefaultUpperBound,
	}
}

// Evaluator turns a trial and the observer's answer into a ResponseRecord.
// It holds no mutable state and is safe for concurrent use.
type Evaluator struct {
	cfg Config
}

// New creates an Evaluator. Zero durations fall back to the defaults.
func New(cfg Config) *Evaluator {
	def := DefaultConfig()
	if cfg.TrialDuration <= 0 {
		cfg.TrialDuration = def.TrialDuration
	}
	if cfg.MaxReactionTime <= 0 {
		cfg.MaxReactionTime = def.MaxReactionTime
	}
	if !cfg.Variant.Valid() {
		cfg.Variant = def.Variant
	}
	return &Evaluator{cfg: cfg}
}

// Config returns the evaluator's effective configuration.
func (e *Evaluator) Config() Config {
	return e.cfg
}

// Evaluate scores an answered trial. response must be left or right.
// The reaction time (ms) is clamped to [0, min(MaxReactionTime, TrialDuration)].
func (e *Evaluator) Evaluate(spec models.TrialSpec, response string, reactionTimeMs float64) (models.ResponseRecord, error) {
	if !spec.Direction.Valid() {
		return models.ResponseRecord{}, fmt.Errorf("%w: direction %q", ErrInvalidTrial, spec.Direction)
	}
	user, err := models.ParseDirection(response)
	if err != nil {
		return models.ResponseRecord{}, fmt.Errorf("%w: %q", ErrInvalidResponse, response)
	}
	if math.IsNaN(reactionTimeMs) || math.IsInf(reactionTimeMs, 0) {
		return models.ResponseRecord{}, fmt.Errorf("%w: %v", ErrInvalidReactionTime, reactionTimeMs)
	}

	return models.ResponseRecord{
		Correct:      spec.Direction,
		User:         string(user),
		CorrectGuess: user == spec.Direction,
		Coherence:    e.storedCoherence(spec),
		ReactionTime: e.clampRT(reactionTimeMs),
	}, nil
}

// Timeout scores a trial the observer did not answer in time.
func (e *Evaluator) Timeout(spec models.TrialSpec) models.ResponseRecord {
	return models.ResponseRecord{
		Correct:      spec.Direction,
		User:         models.NoResponse,
		CorrectGuess: false,
		Coherence:    e.storedCoherence(spec),
		ReactionTime: durationMs(e.cfg.TrialDuration),
	}
}

// storedCoherence applies the variant's convention: the magnitude for
// simple runs, the magnitude signed by the true direction for signed runs.
func (e *Evaluator) storedCoherence(spec models.TrialSpec) float64 {
	variant := spec.Variant
	if !variant.Valid() {
		variant = e.cfg.Variant
	}
	m := spec.Magnitude()
	if variant == models.VariantSigned {
		return m * spec.Direction.Sign()
	}
	return m
}

func (e *Evaluator) clampRT(ms float64) float64 {
	limit := e.cfg.MaxReactionTime
	if e.cfg.TrialDuration < limit {
		limit = e.cfg.TrialDuration
	}
	if ms < 0 {
		return 0
	}
	if ceiling := durationMs(limit); ms > ceiling {
		return ceiling
	}
	return ms
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
