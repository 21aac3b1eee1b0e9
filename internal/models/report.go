package models

// CurvePoint is one non-empty coherence bin of a curve.
type CurvePoint struct {
	// Coherence is the mean coherence of the records in the bin.
	Coherence float64 `json:"coherence"`
	Value     float64 `json:"value"`
	StdErr    float64 `json:"stderr,omitempty"`
	N         int     `json:"n"`
}

// BinCount reports how many records landed in a bin.
type BinCount struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Count int     `json:"count"`
}

// LeaderboardEntry is one ranked observer.
type LeaderboardEntry struct {
	Rank         int     `json:"rank"`
	Name         string  `json:"name"`
	Score        float64 `json:"score"`
	MeanAccuracy float64 `json:"mean_accuracy"`
	MeanRTSec    float64 `json:"mean_rt_s"`
	Trials       int     `json:"trials"`
}

// Leaderboard is the ranked list of qualifying observers.
type Leaderboard struct {
	Entries []LeaderboardEntry `json:"entries"`
}

// Report holds the statistics derived from a record sequence. It is
// recomputed on demand and never cached.
type Report struct {
	TotalTrials  int          `json:"total_trials"`
	Psychometric []CurvePoint `json:"psychometric"`
	Accuracy     []CurvePoint `json:"accuracy"`
	ReactionTime []CurvePoint `json:"reaction_time"`
	Bins         []BinCount   `json:"bins"`

	// Leaderboard is nil when no observer has enough trials.
	Leaderboard *Leaderboard `json:"leaderboard"`

	// Fit is nil when the logistic fit was disabled or did not converge.
	Fit *PsychometricFit `json:"fit,omitempty"`
}

// PsychometricFit is a logistic fit of P(right) against signed coherence:
// P(right) = 1 / (1 + exp(-Slope*(c - Bias))).
type PsychometricFit struct {
	Bias  float64 `json:"bias"`
	Slope float64 `json:"slope"`

	// Threshold is the signed-coherence distance from Bias at which
	// P(right) reaches 0.75.
	Threshold float64 `json:"threshold"`
	N         int     `json:"n"`
}
