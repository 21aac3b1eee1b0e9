// Package stimulus draws the parameters for each random-dot-motion trial and,
// for the animation variant, drives the dot ensemble.
package stimulus

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/nvandessel/dotmotion/internal/constants"
	"github.com/nvandessel/dotmotion/internal/models"
)

// GeneratorConfig bounds the coherence drawn for each trial.
type GeneratorConfig struct {
	Variant    models.Variant
	LowerBound float64
	UpperBound float64

	// RoundDigits rounds the drawn magnitude to this many decimals.
	// 0 keeps full precision.
	RoundDigits int
}

// DefaultGeneratorConfig returns the bounds used by each variant when
// nothing is configured.
func DefaultGeneratorConfig(variant models.Variant) GeneratorConfig {
	if variant == models.VariantSigned {
		return GeneratorConfig{
			Variant:    models.VariantSigned,
			LowerBound: 0,
			UpperBound: constants.MaxSignedUpperBound,
		}
	}
	return GeneratorConfig{
		Variant:    models.VariantSimple,
		LowerBound: constants.DefaultLowerBound,
		UpperBound: constants.DefaultUpperBound,
	}
}

// Validate checks that the bounds make sense for the variant.
func (c GeneratorConfig) Validate() error {
	if !c.Variant.Valid() {
		return fmt.Errorf("invalid variant %q", c.Variant)
	}
	if c.LowerBound < 0 || c.LowerBound > c.UpperBound {
		return fmt.Errorf("coherence bounds must satisfy 0 <= lower <= upper, got [%v, %v]", c.LowerBound, c.UpperBound)
	}
	maxUpper := constants.DefaultUpperBound
	if c.Variant == models.VariantSigned {
		maxUpper = constants.MaxSignedUpperBound
	}
	if c.UpperBound > maxUpper {
		return fmt.Errorf("upper bound %v exceeds %v for the %s variant", c.UpperBound, maxUpper, c.Variant)
	}
	if c.RoundDigits < 0 {
		return fmt.Errorf("round digits must be non-negative, got %d", c.RoundDigits)
	}
	return nil
}

// Generator produces trial specs. It is safe for concurrent use.
type Generator struct {
	cfg GeneratorConfig

	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator creates a generator. A nil rng is replaced with a randomly
// seeded PCG source.
func NewGenerator(cfg GeneratorConfig, rng *rand.Rand) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = NewRand()
	}
	return &Generator{cfg: cfg, rng: rng}, nil
}

// NewRand returns a PCG-backed source seeded from the runtime's entropy.
func NewRand() *rand.Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// NewSeededRand returns a deterministic source for tests and simulations.
func NewSeededRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Config returns the generator's configuration.
func (g *Generator) Config() GeneratorConfig {
	return g.cfg
}

// Generate draws one trial. Direction is uniform over left and right; the
// magnitude is uniform over [LowerBound, UpperBound]. In the signed variant
// the coherence carries the direction's sign.
func (g *Generator) Generate() models.TrialSpec {
	g.mu.Lock()
	leftward := g.rng.IntN(2) == 0
	u := g.rng.Float64()
	g.mu.Unlock()

	dir := models.DirectionRight
	if leftward {
		dir = models.DirectionLeft
	}

	magnitude := g.cfg.LowerBound + u*(g.cfg.UpperBound-g.cfg.LowerBound)
	magnitude = g.round(magnitude)

	coherence := magnitude
	if g.cfg.Variant == models.VariantSigned {
		coherence = magnitude * dir.Sign()
	}

	return models.TrialSpec{
		Coherence: coherence,
		Direction: dir,
		Variant:   g.cfg.Variant,
	}
}

// round applies RoundDigits and clamps the result back into the bounds.
func (g *Generator) round(m float64) float64 {
	if g.cfg.RoundDigits > 0 {
		scale := math.Pow(10, float64(g.cfg.RoundDigits))
		m = math.Round(m*scale) / scale
	}
	return clamp(m, g.cfg.LowerBound, g.cfg.UpperBound)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
