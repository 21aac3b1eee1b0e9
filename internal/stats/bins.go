// Package stats aggregates trial records into binned psychometric,
// accuracy and reaction-time curves.
package stats

import (
	"fmt"
	"math"

	"github.com/nvandessel/dotmotion/internal/constants"
	"github.com/nvandessel/dotmotion/internal/models"
)

// BinConfig splits [Min, Max] into Count equal-width bins.
type BinConfig struct {
	Min   float64
	Max   float64
	Count int
}

// DefaultBins covers [-upper, upper] for the signed variant and [0, upper]
// otherwise, in 10 bins.
func DefaultBins(variant models.Variant, upper float64) BinConfig {
	if upper <= 0 {
		upper = constants.DefaultUpperBound
	}
	if variant == models.VariantSigned {
		return BinConfig{Min: -upper, Max: upper, Count: constants.DefaultBinCount}
	}
	return BinConfig{Min: 0, Max: upper, Count: constants.DefaultBinCount}
}

// Validate checks that the domain is non-empty and Count is positive.
func (b BinConfig) Validate() error {
	if b.Count <= 0 {
		return fmt.Errorf("bin count must be positive, got %d", b.Count)
	}
	if !(b.Max > b.Min) {
		return fmt.Errorf("bin domain must satisfy min < max, got [%v, %v]", b.Min, b.Max)
	}
	return nil
}

// Width returns the width of one bin.
func (b BinConfig) Width() float64 {
	return (b.Max - b.Min) / float64(b.Count)
}

// edgeSlack lets a coherence sitting on an interior edge, such as 0.3 with
// a width of 0.1, count as that bin's lower bound despite binary rounding.
const edgeSlack = 1e-9

// Index returns floor((c - Min) / width). The lower bound is inclusive;
// values at or above Max fall in the last bin and values below Min in the
// first, so every coherence lands in exactly one bin.
func (b BinConfig) Index(c float64) int {
	pos := (c - b.Min) * float64(b.Count) / (b.Max - b.Min)
	i := int(math.Floor(pos + edgeSlack))
	if i < 0 {
		return 0
	}
	if i >= b.Count {
		return b.Count - 1
	}
	return i
}

// Edges returns the lower and upper edge of bin i.
func (b BinConfig) Edges(i int) (lower, upper float64) {
	w := b.Width()
	lower = b.Min + float64(i)*w
	upper = lower + w
	if i == b.Count-1 {
		upper = b.Max
	}
	return lower, upper
}
