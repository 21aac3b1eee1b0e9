package stimulus

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/nvandessel/dotmotion/internal/constants"
	"github.com/nvandessel/dotmotion/internal/models"
)

// EnsembleConfig sizes the dot field.
type EnsembleConfig struct {
	NumDots   int
	FieldSize float64
	DotSpeed  float64
}

// DefaultEnsembleConfig returns the standard 1000-dot, 600px field.
func DefaultEnsembleConfig() EnsembleConfig {
	return EnsembleConfig{
		NumDots:   constants.DefaultNumDots,
		FieldSize: constants.DefaultFieldSize,
		DotSpeed:  constants.DefaultDotSpeed,
	}
}

// Validate checks the ensemble dimensions.
func (c EnsembleConfig) Validate() error {
	if c.NumDots <= 0 {
		return fmt.Errorf("num dots must be positive, got %d", c.NumDots)
	}
	if c.FieldSize <= 0 {
		return fmt.Errorf("field size must be positive, got %v", c.FieldSize)
	}
	if c.DotSpeed < 0 {
		return fmt.Errorf("dot speed must be non-negative, got %v", c.DotSpeed)
	}
	return nil
}

// Ensemble is the set of dots shown during one trial. The field is a torus:
// a dot leaving one edge re-enters at the opposite edge.
//
// Ensemble is not safe for concurrent use; one goroutine owns the frame loop.
type Ensemble struct {
	cfg  EnsembleConfig
	rng  *rand.Rand
	dots []models.DotState

	// perm is scratch space for the partial shuffle.
	perm     []int
	coherent int
}

// NewEnsemble places cfg.NumDots dots uniformly in the field with uniform
// random headings. A nil rng is replaced with a randomly seeded source.
func NewEnsemble(cfg EnsembleConfig, rng *rand.Rand) (*Ensemble, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = NewRand()
	}

	e := &Ensemble{
		cfg:  cfg,
		rng:  rng,
		dots: make([]models.DotState, cfg.NumDots),
		perm: make([]int, cfg.NumDots),
	}
	for i := range e.dots {
		e.dots[i] = models.DotState{
			X:     rng.Float64() * cfg.FieldSize,
			Y:     rng.Float64() * cfg.FieldSize,
			Angle: rng.Float64() * 2 * math.Pi,
		}
	}
	return e, nil
}

// CoherentCount returns round(|coherence| * n), clamped to [0, n].
func CoherentCount(coherence float64, n int) int {
	k := int(math.Round(math.Abs(coherence) * float64(n)))
	if k > n {
		k = n
	}
	if k < 0 {
		k = 0
	}
	return k
}

// AssignDirections draws a fresh coherent subset of exactly
// CoherentCount(coherence, N) dots, sampled without replacement. Those dots
// head in dir; every other dot gets a fresh uniform heading. Returns the
// size of the coherent subset.
func (e *Ensemble) AssignDirections(coherence float64, dir models.Direction) int {
	n := len(e.dots)
	k := CoherentCount(coherence, n)

	for i := range e.perm {
		e.perm[i] = i
	}
	// Partial Fisher-Yates: the first k entries of perm are a uniform sample.
	for i := 0; i < k; i++ {
		j := i + e.rng.IntN(n-i)
		e.perm[i], e.perm[j] = e.perm[j], e.perm[i]
	}

	for i := range e.dots {
		e.dots[i].Coherent = false
	}
	angle := dir.Angle()
	for _, idx := range e.perm[:k] {
		e.dots[idx].Angle = angle
		e.dots[idx].Coherent = true
	}
	for i := range e.dots {
		if !e.dots[i].Coherent {
			e.dots[i].Angle = e.rng.Float64() * 2 * math.Pi
		}
	}

	e.coherent = k
	return k
}

// Step moves every dot DotSpeed along its heading and wraps the field.
func (e *Ensemble) Step() {
	size := e.cfg.FieldSize
	for i := range e.dots {
		d := &e.dots[i]
		d.X = wrap(d.X+e.cfg.DotSpeed*math.Cos(d.Angle), size)
		d.Y = wrap(d.Y+e.cfg.DotSpeed*math.Sin(d.Angle), size)
	}
}

// Dots returns a copy of the current dot states.
func (e *Ensemble) Dots() []models.DotState {
	out := make([]models.DotState, len(e.dots))
	copy(out, e.dots)
	return out
}

// Len returns the ensemble size.
func (e *Ensemble) Len() int {
	return len(e.dots)
}

// CoherentCount returns the size of the current coherent subset.
func (e *Ensemble) CoherentCount() int {
	return e.coherent
}

// wrap maps v into [0, size).
func wrap(v, size float64) float64 {
	if v < 0 {
		v += size
	} else if v >= size {
		v -= size
	}
	// Speeds larger than the field need more than one wrap.
	if v < 0 || v >= size {
		v = math.Mod(v, size)
		if v < 0 {
			v += size
		}
	}
	return v
}
