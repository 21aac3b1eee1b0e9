package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ResponseRecord is the persisted outcome of one trial. Records are
// append-only: once evaluated they are never modified.
type ResponseRecord struct {
	// Name identifies the observer. Optional.
	Name string `json:"name,omitempty"`

	// Correct is the true coherent direction.
	Correct Direction `json:"correct"`

	// User is the observer's answer: left, right or no_response.
	User string `json:"user"`

	// CorrectGuess is User == Correct, fixed at evaluation time.
	CorrectGuess bool `json:"correct_guess"`

	// Coherence is stored in the run's convention (signed or unsigned).
	Coherence float64 `json:"coherence"`

	// ReactionTime is in milliseconds.
	ReactionTime float64 `json:"reaction_time"`
}

// Responded returns false for timed-out trials.
func (r ResponseRecord) Responded() bool {
	return r.User != NoResponse
}

// ChoseRight returns true if the observer answered right.
func (r ResponseRecord) ChoseRight() bool {
	return r.User == string(DirectionRight)
}

// Validate checks the record's internal consistency.
func (r ResponseRecord) Validate() error {
	if !r.Correct.Valid() {
		return fmt.Errorf("correct: invalid direction %q", r.Correct)
	}
	if r.User != NoResponse && !Direction(r.User).Valid() {
		return fmt.Errorf("user: invalid response %q", r.User)
	}
	if r.CorrectGuess != (r.User == string(r.Correct)) {
		return errors.New("correct_guess does not match user and correct")
	}
	if r.ReactionTime < 0 {
		return fmt.Errorf("reaction_time: negative value %v", r.ReactionTime)
	}
	return nil
}

// DecodeRecord strictly decodes a single record. Unknown fields and
// mistyped values are errors.
func DecodeRecord(data []byte) (ResponseRecord, error) {
	var r ResponseRecord
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&r); err != nil {
		return ResponseRecord{}, err
	}
	if dec.More() {
		return ResponseRecord{}, errors.New("trailing data after record")
	}
	return r, nil
}
