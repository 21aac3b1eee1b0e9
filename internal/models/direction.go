package models

import (
	"fmt"
	"math"
	"strings"
)

// Direction is the net motion direction of the coherent dots.
type Direction string

const (
	DirectionLeft  Direction = "left"
	DirectionRight Direction = "right"
)

// NoResponse is the user value recorded when the observer did not answer
// before the trial timed out.
const NoResponse = "no_response"

// Angle returns the heading in radians on the screen x axis.
func (d Direction) Angle() float64 {
	if d == DirectionLeft {
		return math.Pi
	}
	return 0
}

// Sign returns -1 for left and +1 for right.
func (d Direction) Sign() float64 {
	if d == DirectionLeft {
		return -1
	}
	return 1
}

// Valid returns true if d is left or right.
func (d Direction) Valid() bool {
	return d == DirectionLeft || d == DirectionRight
}

func (d Direction) String() string {
	return string(d)
}

// ParseDirection parses a direction name, ignoring case and surrounding space.
func ParseDirection(s string) (Direction, error) {
	d := Direction(strings.ToLower(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", fmt.Errorf("invalid direction %q: must be left or right", s)
	}
	return d, nil
}

// Variant selects the coherence convention used by a run.
type Variant string

const (
	// VariantSimple stores an unsigned coherence magnitude.
	VariantSimple Variant = "simple"

	// VariantSigned stores coherence as +magnitude for right, -magnitude for left.
	VariantSigned Variant = "signed"
)

// Valid returns true if the variant is a recognized value.
func (v Variant) Valid() bool {
	return v == VariantSimple || v == VariantSigned
}

func (v Variant) String() string {
	return string(v)
}

// ParseVariant parses a variant name. The empty string means simple.
func ParseVariant(s string) (Variant, error) {
	if s == "" {
		return VariantSimple, nil
	}
	v := Variant(strings.ToLower(strings.TrimSpace(s)))
	if !v.Valid() {
		return "", fmt.Errorf("invalid variant %q: must be simple or signed", s)
	}
	return v, nil
}
