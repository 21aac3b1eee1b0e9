package evaluate

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/nvandessel/dotmotion/internal/models"
	"github.com/nvandessel/dotmotion/internal/sanitize"
)

// ErrMissingField is returned when a submission lacks a required field.
var ErrMissingField = errors.New("missing required field")

// Submission is the payload a client posts after a trial.
type Submission struct {
	Name            string  `json:"name,omitempty"`
	Response        string  `json:"response"`
	CorrectResponse string  `json:"correct_response"`
	Coherence       float64 `json:"coherence"`
	ReactionTime    float64 `json:"reaction_time"`
}

// Validate reports missing response or correct_response fields.
func (s Submission) Validate() error {
	if strings.TrimSpace(s.Response) == "" {
		return fmt.Errorf("%w: response", ErrMissingField)
	}
	if strings.TrimSpace(s.CorrectResponse) == "" {
		return fmt.Errorf("%w: correct_response", ErrMissingField)
	}
	return nil
}

// Spec rebuilds the trial spec the submission refers to.
func (s Submission) Spec() (models.TrialSpec, error) {
	dir, err := models.ParseDirection(s.CorrectResponse)
	if err != nil {
		return models.TrialSpec{}, fmt.Errorf("%w: correct_response %q", ErrInvalidTrial, s.CorrectResponse)
	}
	return models.TrialSpec{Coherence: s.Coherence, Direction: dir}, nil
}

// EvaluateSubmission validates and scores a client submission. A response
// of no_response is scored as a timeout. The observer name is sanitized.
func (e *Evaluator) EvaluateSubmission(s Submission) (models.ResponseRecord, error) {
	if err := s.Validate(); err != nil {
		return models.ResponseRecord{}, err
	}
	spec, err := s.Spec()
	if err != nil {
		return models.ResponseRecord{}, err
	}
	rec, err := e.Respond(s.Name, spec, s.Response, s.ReactionTime)
	if err != nil {
		return models.ResponseRecord{}, err
	}
	if err := e.checkBounds(spec.Coherence); err != nil {
		return models.ResponseRecord{}, err
	}
	return rec, nil
}

// boundsSlack absorbs decimal-to-binary noise in client-sent coherence.
const boundsSlack = 1e-9

// checkBounds rejects a coherence whose magnitude is outside
// [LowerBound, UpperBound]. Either sign is accepted.
func (e *Evaluator) checkBounds(c float64) error {
	if e.cfg.UpperBound <= 0 {
		return nil
	}
	m := math.Abs(c)
	if math.IsNaN(m) || m < e.cfg.LowerBound-boundsSlack || m > e.cfg.UpperBound+boundsSlack {
		return fmt.Errorf("%w: coherence %v outside [%v, %v]", ErrInvalidTrial, c, e.cfg.LowerBound, e.cfg.UpperBound)
	}
	return nil
}

// Respond scores a response for a known trial on behalf of a named observer.
func (e *Evaluator) Respond(name string, spec models.TrialSpec, response string, reactionTimeMs float64) (models.ResponseRecord, error) {
	if !spec.Direction.Valid() {
		return models.ResponseRecord{}, fmt.Errorf("%w: direction %q", ErrInvalidTrial, spec.Direction)
	}
	var rec models.ResponseRecord
	if sanitize.Token(response) == models.NoResponse {
		rec = e.Timeout(spec)
	} else {
		var err error
		rec, err = e.Evaluate(spec, response, reactionTimeMs)
		if err != nil {
			return models.ResponseRecord{}, err
		}
	}
	rec.Name = sanitize.ObserverName(name)
	return rec, nil
}
