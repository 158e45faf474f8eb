package form

import (
	"errors"
	"regexp"

	"github.com/symptom-checker-server/internal/domain"
	"github.com/symptom-checker-server/internal/service"
)

// Effect is work the reducer asks the session to perform.
type Effect interface {
	effectName() string
}

// DecodePreview reads the accepted image into a preview data URI.
type DecodePreview struct {
	Generation uint64
	Image      *domain.AcceptedImage
}

// Submit sends the form through the analyzer.
type Submit struct {
	Submission uint64
	Form       domain.RawForm
	Image      *domain.AcceptedImage
}

// Notify surfaces a message outside the form error list.
type Notify struct {
	Message string
	Cause   error
}

func (DecodePreview) effectName() string { return "decode_preview" }
func (Submit) effectName() string        { return "submit" }
func (Notify) effectName() string        { return "notify" }

const imageField = "image"

const fileReadNotice = "Could not read the selected file. Please try another image."

// Reducer is the pure (state, event) -> (state, effects) transition function.
type Reducer struct {
	forms  *service.FormValidator
	images *service.ImageValidator
}

// NewReducer creates a reducer over the given validators.
func NewReducer(forms *service.FormValidator, images *service.ImageValidator) *Reducer {
	return &Reducer{forms: forms, images: images}
}

// Reduce applies ev to s. When an event does not apply (a stale decode or submission
// completion, a second submit, a reset mid-submission, an out-of-range symptom index) s is
// returned unchanged with the same Version.
func (r *Reducer) Reduce(s State, ev Event) (State, []Effect) {
	switch e := ev.(type) {
	case FieldChanged:
		return r.fieldChanged(s, e)
	case SymptomAdded:
		next := s.clone()
		next.Form.Symptoms = append(next.Form.Symptoms, domain.RawSymptom{})
		delete(next.Errors, "symptoms")
		return bump(next), nil
	case SymptomChanged:
		if e.Index < 0 || e.Index >= len(s.Form.Symptoms) {
			return s, nil
		}
		next := s.clone()
		next.Form.Symptoms[e.Index] = domain.RawSymptom{Name: e.Name, Severity: e.Severity}
		r.refreshSymptomErrors(&next)
		return bump(next), nil
	case SymptomRemoved:
		if e.Index < 0 || e.Index >= len(s.Form.Symptoms) {
			return s, nil
		}
		next := s.clone()
		next.Form.Symptoms = append(next.Form.Symptoms[:e.Index], next.Form.Symptoms[e.Index+1:]...)
		r.refreshSymptomErrors(&next)
		return bump(next), nil
	case ImageSelected:
		return r.imageSelected(s, e)
	case ImageDecoded:
		if !s.Image.Decoding || e.Generation != s.Image.Generation {
			return s, nil
		}
		next := s.clone()
		next.Image.Preview = e.Preview
		next.Image.Decoding = false
		return bump(next), nil
	case ImageDecodeFailed:
		if !s.Image.Decoding || e.Generation != s.Image.Generation {
			return s, nil
		}
		next := s.clone()
		next.Image = ImageSlot{Generation: s.Image.Generation}
		next.Notice = fileReadNotice
		return bump(next), []Effect{Notify{Message: fileReadNotice, Cause: e.Err}}
	case ImageRemoved:
		next := s.clone()
		next.Image = ImageSlot{Generation: s.Image.Generation + 1}
		delete(next.Errors, imageField)
		next.Notice = ""
		return bump(next), nil
	case SubmitRequested:
		return r.submitRequested(s)
	case SubmitSucceeded:
		if !s.Submitting || e.Submission != s.Submission {
			return s, nil
		}
		next := s.clone()
		next.Submitting = false
		next.Result = e.Result
		return bump(next), nil
	case SubmitFailed:
		if !s.Submitting || e.Submission != s.Submission {
			return s, nil
		}
		next := s.clone()
		next.Submitting = false
		var fieldErrs domain.ValidationErrors
		if errors.As(e.Err, &fieldErrs) {
			mergeErrors(next.Errors, fieldErrs)
		} else {
			next.SubmissionError = domain.SubmissionFailureMessage
		}
		return bump(next), nil
	case Reset:
		if s.Submitting {
			return s, nil
		}
		next := NewState()
		next.Version = s.Version
		next.Image.Generation = s.Image.Generation + 1
		next.Submission = s.Submission + 1
		return bump(next), nil
	default:
		return s, nil
	}
}

func bump(s State) State {
	s.Version++
	return s
}

// unitPairs links each magnitude with its unit so editing either re-checks both.
var unitPairs = map[string]string{
	"weight":     "weightUnit",
	"weightUnit": "weight",
	"height":     "heightUnit",
	"heightUnit": "height",
}

func (r *Reducer) fieldChanged(s State, e FieldChanged) (State, []Effect) {
	next := s.clone()
	f := &next.Form

	switch e.Field {
	case "name":
		f.Name = e.Value
	case "age":
		f.Age = domain.LooseString(e.Value)
	case "gender":
		f.Gender = e.Value
	case "weight":
		f.Weight = domain.LooseString(e.Value)
	case "weightUnit":
		f.WeightUnit = e.Value
	case "height":
		f.Height = domain.LooseString(e.Value)
	case "heightUnit":
		f.HeightUnit = e.Value
	case "pastConditions":
		f.PastConditions = e.Value
	case "currentMedications":
		f.CurrentMedications = e.Value
	default:
		return s, nil
	}

	fields := []string{e.Field}
	if pair, ok := unitPairs[e.Field]; ok {
		fields = append(fields, pair)
	}
	for _, field := range fields {
		delete(next.Errors, field)
	}
	// Before the first submit attempt errors only clear; afterwards edits re-validate.
	if next.Submitted {
		_, errs := r.forms.Validate(next.Form)
		for _, field := range fields {
			mergeErrors(next.Errors, errs.For(field))
		}
	}
	return bump(next), nil
}

var symptomErrorKey = regexp.MustCompile(`^symptoms(\[\d+\]\.\w+)?$`)

func (r *Reducer) refreshSymptomErrors(next *State) {
	for field := range next.Errors {
		if symptomErrorKey.MatchString(field) {
			delete(next.Errors, field)
		}
	}
	if !next.Submitted {
		return
	}
	_, errs := r.forms.Validate(next.Form)
	for _, e := range errs {
		if symptomErrorKey.MatchString(e.Field) {
			next.Errors[e.Field] = append(next.Errors[e.Field], e.Message)
		}
	}
}

func (r *Reducer) imageSelected(s State, e ImageSelected) (State, []Effect) {
	next := s.clone()
	next.Image = ImageSlot{Generation: s.Image.Generation + 1}
	delete(next.Errors, imageField)
	next.Notice = ""

	if e.File == nil {
		return bump(next), nil
	}

	accepted, err := r.images.Check(e.File)
	if err != nil {
		var imgErr *domain.ImageError
		if errors.As(err, &imgErr) && imgErr.IsValidation() {
			next.Errors[imageField] = []string{imgErr.Message}
			return bump(next), nil
		}
		next.Notice = fileReadNotice
		return bump(next), []Effect{Notify{Message: fileReadNotice, Cause: err}}
	}

	next.Image.Accepted = accepted
	next.Image.Decoding = true
	return bump(next), []Effect{DecodePreview{Generation: next.Image.Generation, Image: accepted}}
}

func (r *Reducer) submitRequested(s State) (State, []Effect) {
	if s.Submitting {
		return s, nil
	}

	next := s.clone()
	next.Submitted = true
	next.SubmissionError = ""

	_, errs := r.forms.Validate(next.Form)
	imageErrs := next.Errors[imageField]
	next.Errors = errs.ByField()
	if len(imageErrs) > 0 {
		next.Errors[imageField] = imageErrs
	}
	if next.HasErrors() {
		return bump(next), nil
	}

	next.Submitting = true
	next.Submission = s.Submission + 1
	next.Result = nil
	next.Notice = ""
	return bump(next), []Effect{Submit{
		Submission: next.Submission,
		Form:       next.Form.Clone(),
		Image:      next.Image.Accepted,
	}}
}

func mergeErrors(dst map[string][]string, errs domain.ValidationErrors) {
	for _, e := range errs {
		dst[e.Field] = append(dst[e.Field], e.Message)
	}
}
