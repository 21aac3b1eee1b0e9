package stimulus

import (
	"fmt"
	"time"

	"github.com/nvandessel/dotmotion/internal/constants"
	"github.com/nvandessel/dotmotion/internal/models"
)

// PlaybackConfig sets the clock of an animated trial.
type PlaybackConfig struct {
	// RefreshInterval is how often the coherent subset is redrawn.
	RefreshInterval time.Duration

	// FrameInterval is the time between two Step calls.
	FrameInterval time.Duration

	// Duration ends the trial. Zero means unbounded.
	Duration time.Duration
}

// DefaultPlaybackConfig returns a 100ms refresh at 60 frames per second for
// a 2 second trial.
func DefaultPlaybackConfig() PlaybackConfig {
	return PlaybackConfig{
		RefreshInterval: constants.DefaultRefreshInterval,
		FrameInterval:   constants.DefaultFrameInterval,
		Duration:        constants.DefaultTrialDuration,
	}
}

// Playback drives an ensemble from an external clock. It starts no
// goroutines: the caller reports elapsed time and Playback performs the
// frames and refreshes that fall inside it.
type Playback struct {
	ens  *Ensemble
	spec models.TrialSpec
	cfg  PlaybackConfig

	now           time.Duration
	nextFrameAt   time.Duration
	nextRefreshAt time.Duration
	frames        int
	refreshes     int
}

// NewPlayback performs the initial assignment for spec and returns a
// playback positioned at time zero.
func NewPlayback(ens *Ensemble, spec models.TrialSpec, cfg PlaybackConfig) (*Playback, error) {
	if cfg.RefreshInterval <= 0 || cfg.FrameInterval <= 0 {
		return nil, fmt.Errorf("refresh and frame intervals must be positive")
	}
	if !spec.Direction.Valid() {
		return nil, fmt.Errorf("invalid direction %q", spec.Direction)
	}
	p := &Playback{
		ens:           ens,
		spec:          spec,
		cfg:           cfg,
		nextFrameAt:   cfg.FrameInterval,
		nextRefreshAt: cfg.RefreshInterval,
	}
	ens.AssignDirections(spec.Coherence, spec.Direction)
	p.refreshes = 1
	return p, nil
}

// Advance moves the clock forward by elapsed, stepping once per frame and
// redrawing the coherent subset each time a refresh boundary is crossed.
// Time past Duration is ignored. Returns the number of frames stepped.
func (p *Playback) Advance(elapsed time.Duration) int {
	if elapsed <= 0 || p.Finished() {
		return 0
	}
	target := p.now + elapsed
	if p.cfg.Duration > 0 && target > p.cfg.Duration {
		target = p.cfg.Duration
	}

	stepped := 0
	for p.nextFrameAt <= target {
		for p.nextRefreshAt <= p.nextFrameAt {
			p.ens.AssignDirections(p.spec.Coherence, p.spec.Direction)
			p.refreshes++
			p.nextRefreshAt += p.cfg.RefreshInterval
		}
		p.ens.Step()
		stepped++
		p.nextFrameAt += p.cfg.FrameInterval
	}
	p.frames += stepped
	p.now = target
	return stepped
}

// Finished reports whether the trial duration has elapsed.
func (p *Playback) Finished() bool {
	return p.cfg.Duration > 0 && p.now >= p.cfg.Duration
}

// Elapsed returns the playback clock.
func (p *Playback) Elapsed() time.Duration { return p.now }

// Frames returns the number of frames stepped so far.
func (p *Playback) Frames() int { return p.frames }

// Refreshes returns how many coherent subsets have been drawn, including the
// initial one.
func (p *Playback) Refreshes() int { return p.refreshes }

// Ensemble returns the driven ensemble.
func (p *Playback) Ensemble() *Ensemble { return p.ens }
