// Package constants provides named constants used throughout the dotmotion codebase.
// This centralizes the task's tuning numbers so the engine, config defaults
// and tests agree on them.
package constants

import "time"

// Coherence bounds for the two coherence conventions.
const (
	// DefaultLowerBound is the smallest coherence magnitude drawn for a trial.
	DefaultLowerBound = 0.01

	// DefaultUpperBound is the largest coherence magnitude in the normalized
	// (probability-like) convention.
	DefaultUpperBound = 1.0

	// MaxSignedUpperBound caps the magnitude in the signed convention, where
	// coherence is a fraction of the field rather than a probability.
	MaxSignedUpperBound = 0.5
)

// Trial timing.
const (
	// DefaultTrialDuration is how long a stimulus stays up before the trial
	// times out with no response.
	DefaultTrialDuration = 2000 * time.Millisecond

	// DefaultMaxReactionTime is the cap applied to recorded reaction times.
	// Values above it are clamped, never rejected.
	DefaultMaxReactionTime = 2000 * time.Millisecond
)

// Dot ensemble parameters for the animation variant.
const (
	// DefaultNumDots is the ensemble size.
	DefaultNumDots = 1000

	// DefaultFieldSize is the side of the square, toroidal dot field in pixels.
	DefaultFieldSize = 600.0

	// DefaultDotSpeed is the distance a dot travels per frame (4 is fast, 1 is slow).
	DefaultDotSpeed = 2.0

	// DefaultDotRadius is the drawn radius of a dot in pixels.
	DefaultDotRadius = 2

	// DefaultRefreshInterval is how often the coherent subset is redrawn.
	DefaultRefreshInterval = 100 * time.Millisecond

	// DefaultFrameInterval is the frame period of a 60Hz display.
	DefaultFrameInterval = time.Second / 60
)

// Aggregation parameters.
const (
	// DefaultBinCount is the number of equal-width coherence bins.
	DefaultBinCount = 10

	// DefaultMinTrials is the minimum number of trials an observer needs
	// before appearing on the leaderboard.
	DefaultMinTrials = 30

	// DefaultLeaderboardSize is how many observers the leaderboard reports.
	DefaultLeaderboardSize = 3

	// DefaultReferenceRT is the reaction time at which the speed term of the
	// leaderboard score reaches zero.
	DefaultReferenceRT = 2 * time.Second

	// ScoreDecimals is the number of decimals leaderboard scores are rounded to.
	ScoreDecimals = 3
)

// Observer input limits.
const (
	// MaxObserverNameLen is the maximum length for an observer name.
	// Longer names are truncated to this length.
	MaxObserverNameLen = 40
)

// Backup rotation controls how many backup files are retained.
const (
	// MaxBackupRotation is the default maximum number of backup files to keep.
	MaxBackupRotation = 10
)

// Server defaults.
const (
	// DefaultServerAddr is the listen address for `dotmotion serve`.
	DefaultServerAddr = "0.0.0.0:5000"

	// DefaultPendingTTL is how long an issued trial waits for its response
	// before the registry forgets it.
	DefaultPendingTTL = 5 * time.Minute
)

// File names inside the data directory.
const (
	DataDirName     = ".dotmotion"
	ResultsFileName = "results.json"
	DatabaseName    = "dotmotion.db"
	EventsFileName  = "events.jsonl"
	PlotFileName    = "results_plot.png"
)
