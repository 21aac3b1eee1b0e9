package ranking

import (
	"errors"
	"sort"

	"github.com/nvandessel/dotmotion/internal/models"
	"gonum.org/v1/gonum/stat"
)

// ErrNoLeaderboard is returned when no observer has enough trials.
var ErrNoLeaderboard = errors.New("no observer has enough trials for the leaderboard")

// ObserverSummary is the per-observer aggregate behind a leaderboard entry.
type ObserverSummary struct {
	Name         string
	Trials       int
	MeanAccuracy float64
	MeanRTSec    float64
	Score        float64
}

// Summarize groups records by observer name. Records without a name are
// not attributed to anyone and are left out. The result is sorted by name.
func Summarize(records []models.ResponseRecord, scorer *ObserverScorer) []ObserverSummary {
	type acc struct {
		correct []float64
		rt      []float64
	}
	groups := make(map[string]*acc)
	for _, r := range records {
		if r.Name == "" {
			continue
		}
		g, ok := groups[r.Name]
		if !ok {
			g = &acc{}
			groups[r.Name] = g
		}
		hit := 0.0
		if r.CorrectGuess {
			hit = 1
		}
		g.correct = append(g.correct, hit)
		g.rt = append(g.rt, r.ReactionTime)
	}

	out := make([]ObserverSummary, 0, len(groups))
	for name, g := range groups {
		meanAcc := stat.Mean(g.correct, nil)
		meanRT := stat.Mean(g.rt, nil) / 1000
		out = append(out, ObserverSummary{
			Name:         name,
			Trials:       len(g.correct),
			MeanAccuracy: meanAcc,
			MeanRTSec:    meanRT,
			Score:        scorer.Score(meanAcc, meanRT),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Rank builds the leaderboard: observers with at least MinTrials records,
// sorted by descending rounded score with ties broken by ascending name, truncated
// to TopN. Returns ErrNoLeaderboard when nobody qualifies.
func Rank(records []models.ResponseRecord, config ScorerConfig) (*models.Leaderboard, error) {
	scorer := NewObserverScorer(config)
	cfg := scorer.Config()

	var qualified []ObserverSummary
	for _, s := range Summarize(records, scorer) {
		if s.Trials >= cfg.MinTrials {
			qualified = append(qualified, s)
		}
	}
	if len(qualified) == 0 {
		return nil, ErrNoLeaderboard
	}

	// Summaries arrive sorted by name, so a stable sort on the reported
	// (rounded) score alone leaves equal reported scores in name order.
	sort.SliceStable(qualified, func(i, j int) bool {
		return scorer.Round(qualified[i].Score) > scorer.Round(qualified[j].Score)
	})
	if len(qualified) > cfg.TopN {
		qualified = qualified[:cfg.TopN]
	}

	lb := &models.Leaderboard{Entries: make([]models.LeaderboardEntry, len(qualified))}
	for i, s := range qualified {
		lb.Entries[i] = models.LeaderboardEntry{
			Rank:         i + 1,
			Name:         s.Name,
			Score:        scorer.Round(s.Score),
			MeanAccuracy: s.MeanAccuracy,
			MeanRTSec:    s.MeanRTSec,
			Trials:       s.Trials,
		}
	}
	return lb, nil
}
