package stimulus

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/nvandessel/dotmotion/internal/models"
)

func TestGeneratorConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     GeneratorConfig
		wantErr bool
	}{
		{"simple defaults", DefaultGeneratorConfig(models.VariantSimple), false},
		{"signed defaults", DefaultGeneratorConfig(models.VariantSigned), false},
		{"degenerate range", GeneratorConfig{Variant: models.VariantSimple, LowerBound: 0.5, UpperBound: 0.5}, false},
		{"negative lower", GeneratorConfig{Variant: models.VariantSimple, LowerBound: -0.1, UpperBound: 1}, true},
		{"lower above upper", GeneratorConfig{Variant: models.VariantSimple, LowerBound: 0.8, UpperBound: 0.2}, true},
		{"simple upper above 1", GeneratorConfig{Variant: models.VariantSimple, LowerBound: 0, UpperBound: 1.5}, true},
		{"signed upper above 0.5", GeneratorConfig{Variant: models.VariantSigned, LowerBound: 0, UpperBound: 0.6}, true},
		{"unknown variant", GeneratorConfig{Variant: "other", LowerBound: 0, UpperBound: 0.5}, true},
		{"negative digits", GeneratorConfig{Variant: models.VariantSimple, UpperBound: 1, RoundDigits: -2}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGenerate_StaysInBounds(t *testing.T) {
	cfg := GeneratorConfig{Variant: models.VariantSimple, LowerBound: 0.01, UpperBound: 1.0}
	g, err := NewGenerator(cfg, NewSeededRand(1))
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}

	var left, right int
	for i := 0; i < 10000; i++ {
		spec := g.Generate()
		if spec.Coherence < 0.01 || spec.Coherence > 1.0 {
			t.Fatalf("draw %d: coherence %v outside [0.01, 1.0]", i, spec.Coherence)
		}
		switch spec.Direction {
		case models.DirectionLeft:
			left++
		case models.DirectionRight:
			right++
		default:
			t.Fatalf("draw %d: invalid direction %q", i, spec.Direction)
		}
	}

	// Both directions should be drawn roughly equally often.
	if left < 4500 || right < 4500 {
		t.Errorf("direction split left=%d right=%d is far from uniform", left, right)
	}
}

func TestGenerate_RoundingStaysInBounds(t *testing.T) {
	cfg := GeneratorConfig{Variant: models.VariantSimple, LowerBound: 0.013, UpperBound: 0.987, RoundDigits: 1}
	g, err := NewGenerator(cfg, NewSeededRand(2))
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}

	for i := 0; i < 2000; i++ {
		c := g.Generate().Coherence
		if c < cfg.LowerBound || c > cfg.UpperBound {
			t.Fatalf("rounded coherence %v outside [%v, %v]", c, cfg.LowerBound, cfg.UpperBound)
		}
	}
}

func TestGenerate_RoundDigits(t *testing.T) {
	cfg := GeneratorConfig{Variant: models.VariantSimple, LowerBound: 0.01, UpperBound: 1, RoundDigits: 2}
	g, _ := NewGenerator(cfg, NewSeededRand(3))

	for i := 0; i < 500; i++ {
		c := g.Generate().Coherence
		if scaled := c * 100; math.Abs(scaled-math.Round(scaled)) > 1e-9 {
			t.Fatalf("coherence %v not rounded to 2 digits", c)
		}
	}
}

func TestGenerate_SignedCarriesDirection(t *testing.T) {
	g, err := NewGenerator(DefaultGeneratorConfig(models.VariantSigned), NewSeededRand(4))
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}

	for i := 0; i < 2000; i++ {
		spec := g.Generate()
		if spec.Variant != models.VariantSigned {
			t.Fatalf("variant = %q, want signed", spec.Variant)
		}
		if math.Abs(spec.Coherence) > 0.5 {
			t.Fatalf("|coherence| %v above 0.5", spec.Coherence)
		}
		if spec.Direction == models.DirectionLeft && spec.Coherence > 0 {
			t.Fatalf("left trial with positive coherence %v", spec.Coherence)
		}
		if spec.Direction == models.DirectionRight && spec.Coherence < 0 {
			t.Fatalf("right trial with negative coherence %v", spec.Coherence)
		}
	}
}

func TestGenerate_DeterministicForSeed(t *testing.T) {
	cfg := DefaultGeneratorConfig(models.VariantSimple)
	a, _ := NewGenerator(cfg, NewSeededRand(42))
	b, _ := NewGenerator(cfg, NewSeededRand(42))
	for i := 0; i < 100; i++ {
		if x, y := a.Generate(), b.Generate(); x != y {
			t.Fatalf("draw %d differs: %+v vs %+v", i, x, y)
		}
	}
}

func TestGenerate_Concurrent(t *testing.T) {
	g, _ := NewGenerator(DefaultGeneratorConfig(models.VariantSimple), nil)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				if c := g.Generate().Coherence; c < 0.01 || c > 1 {
					t.Errorf("coherence %v out of bounds", c)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestCoherentCount(t *testing.T) {
	tests := []struct {
		coherence float64
		n         int
		want      int
	}{
		{0.3, 1000, 300},
		{-0.3, 1000, 300},
		{0, 1000, 0},
		{1, 1000, 1000},
		{0.0006, 1000, 1},
		{0.0004, 1000, 0},
		{0.07, 10, 1},
		{1.5, 10, 10},
	}
	for _, tt := range tests {
		if got := CoherentCount(tt.coherence, tt.n); got != tt.want {
			t.Errorf("CoherentCount(%v, %d) = %d, want %d", tt.coherence, tt.n, got, tt.want)
		}
	}
}

func TestAssignDirections_ExactCount(t *testing.T) {
	e, err := NewEnsemble(DefaultEnsembleConfig(), NewSeededRand(5))
	if err != nil {
		t.Fatalf("NewEnsemble() error = %v", err)
	}

	got := e.AssignDirections(0.3, models.DirectionLeft)
	if got != 300 {
		t.Fatalf("AssignDirections() = %d, want 300", got)
	}

	coherent := 0
	for _, d := range e.Dots() {
		if d.Coherent {
			coherent++
			if d.Angle != math.Pi {
				t.Errorf("coherent dot angle = %v, want pi", d.Angle)
			}
		}
		if d.Angle < 0 || d.Angle >= 2*math.Pi+1e-12 {
			t.Errorf("angle %v outside [0, 2pi)", d.Angle)
		}
	}
	if coherent != 300 {
		t.Errorf("coherent dots = %d, want 300", coherent)
	}
	if e.CoherentCount() != 300 {
		t.Errorf("CoherentCount() = %d, want 300", e.CoherentCount())
	}
}

func TestAssignDirections_FreshPartition(t *testing.T) {
	e, _ := NewEnsemble(DefaultEnsembleConfig(), NewSeededRand(6))

	e.AssignDirections(0.5, models.DirectionRight)
	first := e.Dots()
	e.AssignDirections(0.5, models.DirectionRight)
	second := e.Dots()

	same := 0
	for i := range first {
		if first[i].Coherent && second[i].Coherent {
			same++
		}
	}
	// Two independent 500-of-1000 draws overlap in about 250 dots.
	if same == 500 {
		t.Error("second assignment reused the exact same coherent subset")
	}

	e.AssignDirections(0.2, models.DirectionRight)
	if n := countCoherent(e.Dots()); n != 200 {
		t.Errorf("after shrinking coherence, coherent = %d, want 200", n)
	}
}

func TestStep_WrapsField(t *testing.T) {
	cfg := EnsembleConfig{NumDots: 4, FieldSize: 600, DotSpeed: 2}
	e, _ := NewEnsemble(cfg, NewSeededRand(7))
	e.dots = []models.DotState{
		{X: 599, Y: 300, Angle: 0},               // exits right edge
		{X: 1, Y: 300, Angle: math.Pi},           // exits left edge
		{X: 300, Y: 599.5, Angle: math.Pi / 2},   // exits bottom
		{X: 300, Y: 0.5, Angle: 3 * math.Pi / 2}, // exits top
	}

	e.Step()

	want := [][2]float64{{1, 300}, {599, 300}, {300, 1.5}, {300, 598.5}}
	for i, d := range e.Dots() {
		if math.Abs(d.X-want[i][0]) > 1e-9 || math.Abs(d.Y-want[i][1]) > 1e-9 {
			t.Errorf("dot %d at (%v, %v), want (%v, %v)", i, d.X, d.Y, want[i][0], want[i][1])
		}
	}
}

func TestStep_StaysInField(t *testing.T) {
	e, _ := NewEnsemble(EnsembleConfig{NumDots: 200, FieldSize: 50, DotSpeed: 7}, NewSeededRand(8))
	e.AssignDirections(0.4, models.DirectionRight)
	for i := 0; i < 500; i++ {
		e.Step()
	}
	for _, d := range e.Dots() {
		if d.X < 0 || d.X >= 50 || d.Y < 0 || d.Y >= 50 {
			t.Fatalf("dot escaped field: (%v, %v)", d.X, d.Y)
		}
	}
}

func TestNewEnsemble_InvalidConfig(t *testing.T) {
	if _, err := NewEnsemble(EnsembleConfig{NumDots: 0, FieldSize: 600}, nil); err == nil {
		t.Error("expected error for zero dots")
	}
	if _, err := NewEnsemble(EnsembleConfig{NumDots: 10, FieldSize: 0}, nil); err == nil {
		t.Error("expected error for zero field size")
	}
}

func TestPlayback_Advance(t *testing.T) {
	e, _ := NewEnsemble(DefaultEnsembleConfig(), NewSeededRand(9))
	spec := models.TrialSpec{Coherence: 0.25, Direction: models.DirectionRight}
	cfg := PlaybackConfig{
		RefreshInterval: 100 * time.Millisecond,
		FrameInterval:   10 * time.Millisecond,
		Duration:        2 * time.Second,
	}

	p, err := NewPlayback(e, spec, cfg)
	if err != nil {
		t.Fatalf("NewPlayback() error = %v", err)
	}
	if p.Refreshes() != 1 || e.CoherentCount() != 250 {
		t.Fatalf("initial state refreshes=%d coherent=%d", p.Refreshes(), e.CoherentCount())
	}

	if n := p.Advance(time.Second); n != 100 {
		t.Errorf("Advance(1s) stepped %d frames, want 100", n)
	}
	if p.Refreshes() != 11 {
		t.Errorf("Refreshes() = %d, want 11", p.Refreshes())
	}
	if p.Finished() {
		t.Error("playback finished early")
	}

	// Past the trial duration the clock stops at 2s.
	p.Advance(5 * time.Second)
	if p.Frames() != 200 {
		t.Errorf("Frames() = %d, want 200", p.Frames())
	}
	if p.Refreshes() != 21 {
		t.Errorf("Refreshes() = %d, want 21", p.Refreshes())
	}
	if !p.Finished() || p.Elapsed() != 2*time.Second {
		t.Errorf("Finished() = %v, Elapsed() = %v", p.Finished(), p.Elapsed())
	}
	if n := p.Advance(time.Second); n != 0 {
		t.Errorf("Advance after finish stepped %d frames", n)
	}
}

func TestPlayback_SmallTicksAccumulate(t *testing.T) {
	e, _ := NewEnsemble(EnsembleConfig{NumDots: 10, FieldSize: 100, DotSpeed: 1}, NewSeededRand(10))
	p, _ := NewPlayback(e, models.TrialSpec{Coherence: 1, Direction: models.DirectionLeft}, PlaybackConfig{
		RefreshInterval: 100 * time.Millisecond,
		FrameInterval:   10 * time.Millisecond,
	})

	for i := 0; i < 30; i++ {
		p.Advance(time.Millisecond)
	}
	if p.Frames() != 3 {
		t.Errorf("Frames() = %d after 30ms of 1ms ticks, want 3", p.Frames())
	}
}

func TestNewPlayback_Invalid(t *testing.T) {
	e, _ := NewEnsemble(EnsembleConfig{NumDots: 10, FieldSize: 100, DotSpeed: 1}, nil)
	if _, err := NewPlayback(e, models.TrialSpec{Direction: models.DirectionLeft}, PlaybackConfig{}); err == nil {
		t.Error("expected error for zero intervals")
	}
	if _, err := NewPlayback(e, models.TrialSpec{Direction: "up"}, DefaultPlaybackConfig()); err == nil {
		t.Error("expected error for invalid direction")
	}
}

func countCoherent(dots []models.DotState) int {
	n := 0
	for _, d := range dots {
		if d.Coherent {
			n++
		}
	}
	return n
}
