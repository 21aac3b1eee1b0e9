// Package simulation runs synthetic observers through the trial engine.
//
// Each observer answers with a logistic psychometric function of signed
// coherence and a lognormal reaction time that shortens as coherence grows.
// Records go through the same generator, evaluator and store as real
// responses, so a simulated data set exercises every downstream consumer.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"time"

	"github.com/nvandessel/dotmotion/internal/engine"
	"github.com/nvandessel/dotmotion/internal/logging"
	"github.com/nvandessel/dotmotion/internal/models"
	"gonum.org/v1/gonum/stat/distuv"
	"gopkg.in/yaml.v3"
)

// Observer describes one synthetic participant.
type Observer struct {
	Name string `json:"name" yaml:"name"`

	// Bias is the signed coherence at which P(right) = 0.5.
	Bias float64 `json:"bias" yaml:"bias"`

	// Slope is the logistic slope; larger is more sensitive.
	Slope float64 `json:"slope" yaml:"slope"`

	// Lapse is the probability of a random guess regardless of the stimulus.
	Lapse float64 `json:"lapse" yaml:"lapse"`

	// MedianRT is the median reaction time at zero coherence.
	MedianRT time.Duration `json:"median_rt" yaml:"median_rt"`

	// RTSigma is the lognormal shape parameter.
	RTSigma float64 `json:"rt_sigma" yaml:"rt_sigma"`

	// Speedup is the fraction the median RT shrinks at full coherence.
	Speedup float64 `json:"speedup" yaml:"speedup"`

	// TimeoutRate is the probability of not answering at all.
	TimeoutRate float64 `json:"timeout_rate" yaml:"timeout_rate"`
}

// Validate checks the observer parameters.
func (o Observer) Validate() error {
	switch {
	case o.Slope <= 0:
		return fmt.Errorf("observer %q: slope must be positive", o.Name)
	case o.Lapse < 0 || o.Lapse > 1:
		return fmt.Errorf("observer %q: lapse must be within [0, 1]", o.Name)
	case o.TimeoutRate < 0 || o.TimeoutRate > 1:
		return fmt.Errorf("observer %q: timeout_rate must be within [0, 1]", o.Name)
	case o.MedianRT <= 0:
		return fmt.Errorf("observer %q: median_rt must be positive", o.Name)
	case o.RTSigma < 0:
		return fmt.Errorf("observer %q: rt_sigma must not be negative", o.Name)
	case o.Speedup < 0 || o.Speedup >= 1:
		return fmt.Errorf("observer %q: speedup must be within [0, 1)", o.Name)
	}
	return nil
}

// PRight returns the probability of answering right for a signed coherence.
func (o Observer) PRight(signedCoherence float64) float64 {
	p := distuv.Logistic{Mu: o.Bias, S: 1 / o.Slope}.CDF(signedCoherence)
	return o.Lapse/2 + (1-o.Lapse)*p
}

// MedianRTMs returns the median reaction time in milliseconds at the given
// coherence magnitude.
func (o Observer) MedianRTMs(magnitude float64) float64 {
	m := math.Min(math.Abs(magnitude), 1)
	return float64(o.MedianRT.Milliseconds()) * (1 - o.Speedup*m)
}

// Respond draws an answer and a reaction time in milliseconds for spec.
// The answer is left, right or models.NoResponse.
func (o Observer) Respond(spec models.TrialSpec, rng *rand.Rand) (string, float64) {
	if rng.Float64() < o.TimeoutRate {
		return models.NoResponse, 0
	}

	signed := spec.Magnitude() * spec.Direction.Sign()
	response := models.DirectionLeft
	if rng.Float64() < o.PRight(signed) {
		response = models.DirectionRight
	}

	rt := distuv.LogNormal{
		Mu:    math.Log(o.MedianRTMs(spec.Magnitude())),
		Sigma: o.RTSigma,
	}.Quantile(openUnit(rng))

	return string(response), rt
}

// openUnit returns a uniform draw in (0, 1).
func openUnit(rng *rand.Rand) float64 {
	for {
		if u := rng.Float64(); u > 0 {
			return u
		}
	}
}

// DefaultObservers returns three observers of increasing skill.
func DefaultObservers() []Observer {
	return []Observer{
		{Name: "novice", Bias: 0.05, Slope: 4, Lapse: 0.1, MedianRT: 900 * time.Millisecond, RTSigma: 0.35, Speedup: 0.3, TimeoutRate: 0.03},
		{Name: "typical", Bias: 0, Slope: 8, Lapse: 0.04, MedianRT: 700 * time.Millisecond, RTSigma: 0.3, Speedup: 0.4, TimeoutRate: 0.01},
		{Name: "expert", Bias: -0.01, Slope: 16, Lapse: 0.01, MedianRT: 550 * time.Millisecond, RTSigma: 0.25, Speedup: 0.5},
	}
}

// Config describes a simulation run.
type Config struct {
	// Trials is the number of trials per observer.
	Trials    int        `json:"trials" yaml:"trials"`
	Observers []Observer `json:"observers" yaml:"observers"`
}

// LoadConfig reads a YAML run description. Durations use Go syntax
// ("650ms"). A missing trials count is left at zero for the caller to fill.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading observers file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing observers file: %w", err)
	}
	return cfg, nil
}

// Validate checks the run configuration.
func (c Config) Validate() error {
	if c.Trials <= 0 {
		return errors.New("trials must be positive")
	}
	if len(c.Observers) == 0 {
		return errors.New("at least one observer is required")
	}
	seen := make(map[string]bool, len(c.Observers))
	for _, o := range c.Observers {
		if err := o.Validate(); err != nil {
			return err
		}
		if seen[o.Name] {
			return fmt.Errorf("duplicate observer name %q", o.Name)
		}
		seen[o.Name] = true
	}
	return nil
}

// Result summarizes one observer's run.
type Result struct {
	Observer string `json:"observer"`
	Trials   int    `json:"trials"`
	Correct  int    `json:"correct"`
	Timeouts int    `json:"timeouts"`
	Failed   int    `json:"failed"`
}

// Accuracy returns the fraction of answered trials that were correct.
func (r Result) Accuracy() float64 {
	answered := r.Trials - r.Timeouts - r.Failed
	if answered <= 0 {
		return 0
	}
	return float64(r.Correct) / float64(answered)
}

// Runner feeds synthetic responses into an engine.
type Runner struct {
	engine *engine.Engine
	rng    *rand.Rand
	logger *slog.Logger
}

// NewRunner creates a runner. rng drives the observers only; trial
// generation uses the engine's own source. A nil rng is randomly seeded.
func NewRunner(e *engine.Engine, rng *rand.Rand, logger *slog.Logger) *Runner {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Runner{engine: e, rng: rng, logger: logger}
}

// Run executes cfg.Trials trials for every observer in order. A failed
// append is logged and counted but does not stop the run; cancelling ctx
// does.
func (r *Runner) Run(ctx context.Context, cfg Config) ([]Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	duration := float64(r.engine.Config().Task.TrialDuration.Milliseconds())
	recorder := r.engine.Recorder()
	results := make([]Result, 0, len(cfg.Observers))

	for _, o := range cfg.Observers {
		r.logger.Info("simulating observer", "observer", o.Name, "trials", cfg.Trials)
		res := Result{Observer: o.Name}

		for i := 0; i < cfg.Trials; i++ {
			if err := ctx.Err(); err != nil {
				return append(results, res), err
			}

			spec := r.engine.Generate()
			response, rt := o.Respond(spec, r.rng)
			if response != models.NoResponse && duration > 0 && rt >= duration {
				response = models.NoResponse
			}

			var (
				rec models.ResponseRecord
				err error
			)
			if response == models.NoResponse {
				rec, err = recorder.Timeout(ctx, o.Name, spec)
			} else {
				rec, err = recorder.Respond(ctx, o.Name, spec, response, rt)
			}
			res.Trials++
			if err != nil {
				r.logger.Error("simulated trial failed", "observer", o.Name, "trial", i+1, "error", err)
				res.Failed++
				continue
			}

			switch {
			case !rec.Responded():
				res.Timeouts++
			case rec.CorrectGuess:
				res.Correct++
			}
		}

		r.logger.Info("observer done",
			"observer", o.Name,
			"accuracy", fmt.Sprintf("%.3f", res.Accuracy()),
			"timeouts", res.Timeouts)
		results = append(results, res)
	}

	return results, nil
}
