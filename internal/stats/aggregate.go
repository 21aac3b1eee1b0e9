package stats

import (
	"math"

	"github.com/nvandessel/dotmotion/internal/models"
	"github.com/nvandessel/dotmotion/internal/ranking"
	"gonum.org/v1/gonum/stat"
)

// Config controls aggregation.
type Config struct {
	Bins        BinConfig
	Leaderboard ranking.ScorerConfig

	// Fit enables the logistic fit of P(right) against signed coherence.
	Fit bool
}

// DefaultConfig returns 10 bins over the variant's domain and the default
// leaderboard rules.
func DefaultConfig(variant models.Variant, upper float64) Config {
	return Config{
		Bins:        DefaultBins(variant, upper),
		Leaderboard: ranking.DefaultScorerConfig(),
		Fit:         true,
	}
}

// bin accumulates the samples of one coherence bin.
type bin struct {
	coherence []float64
	right     []float64
	correct   []float64
	rt        []float64
}

// Aggregate derives a Report from records. It returns nil for an empty
// sequence. The result depends only on records and cfg: calling it twice on
// the same input gives identical reports. An invalid bin config falls back
// to 10 bins over the observed coherence range.
func Aggregate(records []models.ResponseRecord, cfg Config) *models.Report {
	if len(records) == 0 {
		return nil
	}

	bins := cfg.Bins
	if bins.Validate() != nil {
		bins = observedBins(records, bins.Count)
	}

	acc := make([]bin, bins.Count)
	for _, r := range records {
		b := &acc[bins.Index(r.Coherence)]
		b.coherence = append(b.coherence, r.Coherence)
		b.right = append(b.right, indicator(r.ChoseRight()))
		b.correct = append(b.correct, indicator(r.CorrectGuess))
		b.rt = append(b.rt, r.ReactionTime)
	}

	report := &models.Report{
		TotalTrials: len(records),
		Bins:        make([]models.BinCount, bins.Count),
	}
	for i := range acc {
		lower, upper := bins.Edges(i)
		report.Bins[i] = models.BinCount{Lower: lower, Upper: upper, Count: len(acc[i].coherence)}

		b := acc[i]
		n := len(b.coherence)
		if n == 0 {
			continue
		}
		x := stat.Mean(b.coherence, nil)
		report.Psychometric = append(report.Psychometric, point(x, b.right))
		report.Accuracy = append(report.Accuracy, point(x, b.correct))
		report.ReactionTime = append(report.ReactionTime, point(x, b.rt))
	}

	if lb, err := ranking.Rank(records, cfg.Leaderboard); err == nil {
		report.Leaderboard = lb
	}

	if cfg.Fit {
		if fit, err := FitPsychometric(records); err == nil {
			report.Fit = fit
		}
	}

	return report
}

// point summarizes one bin's samples as mean and standard error.
func point(x float64, samples []float64) models.CurvePoint {
	mean, std := stat.MeanStdDev(samples, nil)
	p := models.CurvePoint{Coherence: x, Value: mean, N: len(samples)}
	if len(samples) > 1 {
		p.StdErr = stat.StdErr(std, float64(len(samples)))
	}
	return p
}

// observedBins spans the observed coherence range, widened slightly when
// every record shares one value.
func observedBins(records []models.ResponseRecord, count int) BinConfig {
	if count <= 0 {
		count = 10
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, r := range records {
		lo = math.Min(lo, r.Coherence)
		hi = math.Max(hi, r.Coherence)
	}
	if !(hi > lo) {
		lo, hi = lo-0.5, hi+0.5
	}
	return BinConfig{Min: lo, Max: hi, Count: count}
}

func indicator(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
