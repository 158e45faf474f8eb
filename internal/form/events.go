package form

import (
	"encoding/json"
	"fmt"

	"github.com/symptom-checker-server/internal/domain"
)

// Event is an input to the reducer.
type Event interface {
	eventName() string
}

// FieldChanged sets a scalar form field.
type FieldChanged struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// SymptomAdded appends an empty symptom row.
type SymptomAdded struct{}

// SymptomChanged edits one symptom row.
type SymptomChanged struct {
	Index    int    `json:"index"`
	Name     string `json:"name"`
	Severity string `json:"severity"`
}

// SymptomRemoved deletes one symptom row.
type SymptomRemoved struct {
	Index int `json:"index"`
}

// ImageSelected replaces the current image selection. A nil File clears it.
type ImageSelected struct {
	File domain.ImageFile `json:"-"`
}

// ImageDecoded delivers a finished preview for the given generation.
type ImageDecoded struct {
	Generation uint64
	Preview    string
}

// ImageDecodeFailed reports a failed preview read for the given generation.
type ImageDecodeFailed struct {
	Generation uint64
	Err        error
}

// ImageRemoved clears the image field, its preview and its error.
type ImageRemoved struct{}

// SubmitRequested asks to validate and submit the form.
type SubmitRequested struct{}

// SubmitSucceeded delivers the rendered result of the given submission.
type SubmitSucceeded struct {
	Submission uint64
	Result     *domain.RenderedResult
}

// SubmitFailed ends a submission with an error. Validation errors are shown on their
// fields; anything else shows the generic message.
type SubmitFailed struct {
	Submission uint64
	Err        error
}

// Reset returns the form to its initial state. It is ignored while a submission runs.
type Reset struct{}

func (FieldChanged) eventName() string      { return "field_changed" }
func (SymptomAdded) eventName() string      { return "symptom_added" }
func (SymptomChanged) eventName() string    { return "symptom_changed" }
func (SymptomRemoved) eventName() string    { return "symptom_removed" }
func (ImageSelected) eventName() string     { return "image_selected" }
func (ImageDecoded) eventName() string      { return "image_decoded" }
func (ImageDecodeFailed) eventName() string { return "image_decode_failed" }
func (ImageRemoved) eventName() string      { return "image_removed" }
func (SubmitRequested) eventName() string   { return "submit_requested" }
func (SubmitSucceeded) eventName() string   { return "submit_succeeded" }
func (SubmitFailed) eventName() string      { return "submit_failed" }
func (Reset) eventName() string             { return "reset" }

// EventName returns the wire name of an event, for logging.
func EventName(e Event) string {
	return e.eventName()
}

// Envelope is the JSON shape clients send events in. Only client-originated events can
// be decoded; completions are produced internally.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DecodeEvent turns a client envelope into an Event.
func DecodeEvent(env Envelope) (Event, error) {
	var (
		ev  Event
		err error
	)
	switch env.Type {
	case "field_changed":
		var e FieldChanged
		err = decodePayload(env.Payload, &e)
		ev = e
	case "symptom_added":
		ev = SymptomAdded{}
	case "symptom_changed":
		var e SymptomChanged
		err = decodePayload(env.Payload, &e)
		ev = e
	case "symptom_removed":
		var e SymptomRemoved
		err = decodePayload(env.Payload, &e)
		ev = e
	case "image_removed":
		ev = ImageRemoved{}
	case "submit_requested":
		ev = SubmitRequested{}
	case "reset":
		ev = Reset{}
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", env.Type, err)
	}
	return ev, nil
}

func decodePayload(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return fmt.Errorf("payload is required")
	}
	return json.Unmarshal(raw, v)
}
