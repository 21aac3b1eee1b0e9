package stats

import (
	"errors"
	"fmt"
	"math"

	"github.com/nvandessel/dotmotion/internal/models"
	"gonum.org/v1/gonum/optimize"
)

// ErrInsufficientData is returned when too few answered trials exist to fit.
var ErrInsufficientData = errors.New("not enough answered trials to fit")

// minFitTrials is the fewest answered trials FitPsychometric accepts.
const minFitTrials = 10

// slopePenalty keeps the slope finite when the responses separate perfectly.
const slopePenalty = 1e-4

// SignedCoherence returns the record's coherence signed by the correct
// direction: negative for left, positive for right. It works for records
// from either variant.
func SignedCoherence(r models.ResponseRecord) float64 {
	return math.Abs(r.Coherence) * r.Correct.Sign()
}

// FitPsychometric fits a logistic curve of P(right) against signed coherence
// by maximum likelihood. Timed-out trials carry no choice and are skipped.
func FitPsychometric(records []models.ResponseRecord) (*models.PsychometricFit, error) {
	var xs, ys []float64
	for _, r := range records {
		if !r.Responded() {
			continue
		}
		xs = append(xs, SignedCoherence(r))
		ys = append(ys, indicator(r.ChoseRight()))
	}
	if len(xs) < minFitTrials {
		return nil, ErrInsufficientData
	}

	nll := func(p []float64) float64 {
		bias, slope := p[0], p[1]
		sum := slopePenalty * slope * slope
		for i, x := range xs {
			z := slope * (x - bias)
			// log(1+exp(z)) - y*z, written to stay finite for large |z|.
			sum += softplus(z) - ys[i]*z
		}
		return sum
	}

	problem := optimize.Problem{Func: nll}
	result, err := optimize.Minimize(problem, []float64{0, 5}, nil, &optimize.NelderMead{})
	if err != nil {
		return nil, fmt.Errorf("fitting psychometric curve: %w", err)
	}
	bias, slope := result.X[0], result.X[1]
	if math.IsNaN(bias) || math.IsNaN(slope) || slope == 0 {
		return nil, fmt.Errorf("fitting psychometric curve: degenerate result %v", result.X)
	}

	return &models.PsychometricFit{
		Bias:      bias,
		Slope:     slope,
		Threshold: math.Log(3) / math.Abs(slope),
		N:         len(xs),
	}, nil
}

// Logistic evaluates the fitted curve at signed coherence c.
func Logistic(fit *models.PsychometricFit, c float64) float64 {
	return 1 / (1 + math.Exp(-fit.Slope*(c-fit.Bias)))
}

func softplus(z float64) float64 {
	if z > 30 {
		return z
	}
	if z < -30 {
		return math.Exp(z)
	}
	return math.Log1p(math.Exp(z))
}
