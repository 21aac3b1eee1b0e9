package engine

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/nvandessel/dotmotion/internal/config"
	"github.com/nvandessel/dotmotion/internal/logging"
	"github.com/nvandessel/dotmotion/internal/models"
	"github.com/nvandessel/dotmotion/internal/session"
	"github.com/nvandessel/dotmotion/internal/stimulus"
)

// Frame is the dot field of a trial at one point of its playback.
type Frame struct {
	TrialID   string            `json:"trial_id"`
	ElapsedMs int64             `json:"elapsed_ms"`
	Frames    int               `json:"frames"`
	Refreshes int               `json:"refreshes"`
	Coherent  int               `json:"coherent"`
	FieldSize float64           `json:"field_size"`
	DotRadius int               `json:"dot_radius"`
	Finished  bool              `json:"finished"`
	Dots      []models.DotState `json:"dots"`
}

// EnsembleConfig maps the stimulus section onto the dot field.
func EnsembleConfig(cfg *config.DotmotionConfig) stimulus.EnsembleConfig {
	return stimulus.EnsembleConfig{
		NumDots:   cfg.Stimulus.NumDots,
		FieldSize: cfg.Stimulus.FieldSize,
		DotSpeed:  cfg.Stimulus.DotSpeed,
	}
}

// PlaybackConfig maps the stimulus and task sections onto the playback clock.
func PlaybackConfig(cfg *config.DotmotionConfig) stimulus.PlaybackConfig {
	return stimulus.PlaybackConfig{
		RefreshInterval: cfg.Stimulus.RefreshInterval,
		FrameInterval:   cfg.Stimulus.FrameInterval,
		Duration:        cfg.Task.TrialDuration,
	}
}

// Playback starts the animation of p. The ensemble is seeded from the trial
// ID, so every playback of the same trial draws the same dots.
func (e *Engine) Playback(p session.PendingTrial) (*stimulus.Playback, error) {
	ens, err := stimulus.NewEnsemble(EnsembleConfig(e.cfg), stimulus.NewSeededRand(trialSeed(p.ID)))
	if err != nil {
		return nil, fmt.Errorf("creating ensemble: %w", err)
	}
	return stimulus.NewPlayback(ens, p.Spec, PlaybackConfig(e.cfg))
}

// Frame replays the pending trial id up to at and returns the dot field.
// at is clamped to the trial duration.
func (e *Engine) Frame(id string, at time.Duration) (*Frame, error) {
	p, err := e.registry.Get(id)
	if err != nil {
		return nil, fmt.Errorf("trial %s: %w", id, err)
	}
	pb, err := e.Playback(p)
	if err != nil {
		return nil, err
	}
	pb.Advance(at)

	ens := pb.Ensemble()
	e.logger.Log(context.Background(), logging.LevelTrace, "frame rendered", "id", id, "elapsed", pb.Elapsed(), "frames", pb.Frames())
	return &Frame{
		TrialID:   id,
		ElapsedMs: pb.Elapsed().Milliseconds(),
		Frames:    pb.Frames(),
		Refreshes: pb.Refreshes(),
		Coherent:  ens.CoherentCount(),
		FieldSize: e.cfg.Stimulus.FieldSize,
		DotRadius: e.cfg.Stimulus.DotRadius,
		Finished:  pb.Finished(),
		Dots:      ens.Dots(),
	}, nil
}

func trialSeed(id string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(id))
	return h.Sum64()
}
