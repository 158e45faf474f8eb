// Package form holds the intake form state machine. State changes only through Reduce,
// which is pure; asynchronous work (decoding an image preview, submitting) is described as
// effects that a Session runs and feeds back as events.
package form

import (
	"github.com/symptom-checker-server/internal/domain"
)

// ImageSlot is the image field. Generation increases on every selection or removal so a
// decode that finishes after a newer selection can be recognized and dropped.
type ImageSlot struct {
	Generation uint64                `json:"generation"`
	Accepted   *domain.AcceptedImage `json:"accepted,omitempty"`
	Preview    string                `json:"preview,omitempty"`
	Decoding   bool                  `json:"decoding"`
}

// State is the full form session state. Submission numbers submit attempts; a completion
// is applied only when it carries the number of the attempt still in flight.
type State struct {
	Form            domain.RawForm         `json:"form"`
	Errors          map[string][]string    `json:"errors"`
	Image           ImageSlot              `json:"image"`
	Submitted       bool                   `json:"submitted"`
	Submitting      bool                   `json:"submitting"`
	Submission      uint64                 `json:"submission"`
	SubmissionError string                 `json:"submissionError,omitempty"`
	Notice          string                 `json:"notice,omitempty"`
	Result          *domain.RenderedResult `json:"result,omitempty"`
	Version         uint64                 `json:"version"`
}

// NewState returns an empty form with one blank symptom row.
func NewState() State {
	return State{
		Form: domain.RawForm{
			Symptoms: []domain.RawSymptom{{}},
		},
		Errors: map[string][]string{},
	}
}

// HasErrors reports whether any field error is outstanding.
func (s State) HasErrors() bool {
	for _, msgs := range s.Errors {
		if len(msgs) > 0 {
			return true
		}
	}
	return false
}

// CanSubmit reports whether a submission may start now.
func (s State) CanSubmit() bool {
	return !s.Submitting && !s.HasErrors()
}

// clone copies the parts of the state that are mutated in place.
func (s State) clone() State {
	out := s
	out.Form = s.Form.Clone()
	out.Errors = make(map[string][]string, len(s.Errors))
	for k, v := range s.Errors {
		out.Errors[k] = append([]string(nil), v...)
	}
	return out
}

// View is what clients see: the state minus image bytes, plus derived flags.
type View struct {
	State
	CanSubmit bool `json:"canSubmit"`
}

// ToView builds the client-facing view.
func (s State) ToView() View {
	return View{State: s.clone(), CanSubmit: s.CanSubmit()}
}
