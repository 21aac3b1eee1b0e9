// Package ranking scores observers and builds the leaderboard.
package ranking

import (
	"math"
	"time"

	"github.com/nvandessel/dotmotion/internal/constants"
)

// ScorerConfig configures the observer scorer
type ScorerConfig struct {
	// MinTrials is the number of records an observer needs to qualify.
	MinTrials int

	// TopN is how many observers the leaderboard keeps.
	TopN int

	// ReferenceRT is the mean reaction time at which the speed term is zero.
	// Faster observers earn a positive speed term, slower ones a negative one.
	ReferenceRT time.Duration

	// Decimals is the rounding applied to reported scores.
	Decimals int
}

// DefaultScorerConfig returns the default leaderboard configuration:
// 30 trials to qualify, top 3, 2 second reference, 3 decimals.
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		MinTrials:   constants.DefaultMinTrials,
		TopN:        constants.DefaultLeaderboardSize,
		ReferenceRT: constants.DefaultReferenceRT,
		Decimals:    constants.ScoreDecimals,
	}
}

// ObserverScorer combines accuracy and speed into one score.
type ObserverScorer struct {
	config ScorerConfig
}

// NewObserverScorer creates a scorer, filling unset fields from the defaults.
func NewObserverScorer(config ScorerConfig) *ObserverScorer {
	def := DefaultScorerConfig()
	if config.MinTrials < 0 {
		config.MinTrials = def.MinTrials
	}
	if config.TopN <= 0 {
		config.TopN = def.TopN
	}
	if config.ReferenceRT <= 0 {
		config.ReferenceRT = def.ReferenceRT
	}
	if config.Decimals <= 0 {
		config.Decimals = def.Decimals
	}
	return &ObserverScorer{config: config}
}

// Config returns the effective configuration.
func (s *ObserverScorer) Config() ScorerConfig {
	return s.config
}

// Score returns accuracy + (ref - rt) / ref, with both times in seconds.
// With the default 2 second reference this is accuracy + (2 - rt) / 2.
func (s *ObserverScorer) Score(meanAccuracy, meanRTSec float64) float64 {
	ref := s.config.ReferenceRT.Seconds()
	return meanAccuracy + (ref-meanRTSec)/ref
}

// Round rounds a score to the configured number of decimals.
func (s *ObserverScorer) Round(score float64) float64 {
	scale := math.Pow(10, float64(s.config.Decimals))
	return math.Round(score*scale) / scale
}
