package models

// TrialSpec describes the stimulus for one trial.
type TrialSpec struct {
	// ID is set when the trial is registered with a pending-trial registry.
	ID string `json:"id,omitempty"`

	// Coherence is the motion strength. In the signed variant its sign
	// matches Direction.
	Coherence float64 `json:"coherence"`

	Direction Direction `json:"direction"`
	Variant   Variant   `json:"variant"`
}

// Magnitude returns |Coherence|.
func (t TrialSpec) Magnitude() float64 {
	if t.Coherence < 0 {
		return -t.Coherence
	}
	return t.Coherence
}

// DotState is one dot of the ensemble. Angle is in radians.
type DotState struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Angle    float64 `json:"angle"`
	Coherent bool    `json:"coherent"`
}
