package form

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symptom-checker-server/internal/domain"
	"github.com/symptom-checker-server/internal/service"
)

func newTestReducer() *Reducer {
	return NewReducer(service.NewFormValidator(), service.NewImageValidator())
}

func reduceAll(r *Reducer, s State, events ...Event) (State, []Effect) {
	var effects []Effect
	for _, ev := range events {
		var out []Effect
		s, out = r.Reduce(s, ev)
		effects = append(effects, out...)
	}
	return s, effects
}

func filledState(r *Reducer) State {
	s, _ := reduceAll(r, NewState(),
		FieldChanged{Field: "name", Value: "Ada"},
		FieldChanged{Field: "age", Value: "36"},
		FieldChanged{Field: "gender", Value: "female"},
		SymptomChanged{Index: 0, Name: "Cough", Severity: "Mild"},
	)
	return s
}

func pngImage(name string) *domain.BytesImage {
	return domain.NewBytesImage(name, "image/png", []byte{0x89, 'P', 'N', 'G'})
}

func TestReducer_FieldChangedBumpsVersion(t *testing.T) {
	r := newTestReducer()

	s, effects := r.Reduce(NewState(), FieldChanged{Field: "name", Value: "Ada"})

	assert.Empty(t, effects)
	assert.Equal(t, "Ada", s.Form.Name)
	assert.Equal(t, uint64(1), s.Version)

	unchanged, _ := r.Reduce(s, FieldChanged{Field: "unknown", Value: "x"})
	assert.Equal(t, s.Version, unchanged.Version)
}

func TestReducer_ReduceDoesNotMutateInput(t *testing.T) {
	r := newTestReducer()
	s := filledState(r)

	_, _ = r.Reduce(s, SymptomChanged{Index: 0, Name: "Fever", Severity: "Severe"})
	_, _ = r.Reduce(s, SymptomRemoved{Index: 0})

	assert.Equal(t, "Cough", s.Form.Symptoms[0].Name)
	assert.Len(t, s.Form.Symptoms, 1)
}

func TestReducer_SubmitBlockedByFieldErrors(t *testing.T) {
	r := newTestReducer()

	s, effects := r.Reduce(NewState(), SubmitRequested{})

	assert.Empty(t, effects)
	assert.False(t, s.Submitting)
	assert.True(t, s.Submitted)
	assert.False(t, s.CanSubmit())
	assert.Contains(t, s.Errors, "name")
	assert.Contains(t, s.Errors, "age")
	assert.Contains(t, s.Errors, "gender")
	assert.Contains(t, s.Errors, "symptoms[0].name")
}

func TestReducer_RevalidatesOnChangeAfterFirstSubmit(t *testing.T) {
	r := newTestReducer()

	s, _ := r.Reduce(NewState(), FieldChanged{Field: "age", Value: "-1"})
	assert.NotContains(t, s.Errors, "age", "no errors before the first submit attempt")

	s, _ = r.Reduce(s, SubmitRequested{})
	require.Contains(t, s.Errors, "age")

	s, _ = r.Reduce(s, FieldChanged{Field: "age", Value: "-5"})
	assert.Equal(t, []string{"Age must be a positive number."}, s.Errors["age"])

	s, _ = r.Reduce(s, FieldChanged{Field: "age", Value: "40"})
	assert.NotContains(t, s.Errors, "age")
}

func TestReducer_UnitErrorClearsWhenUnitEntered(t *testing.T) {
	r := newTestReducer()
	s := filledState(r)

	s, _ = reduceAll(r, s, FieldChanged{Field: "weight", Value: "70"}, SubmitRequested{})
	require.Contains(t, s.Errors, "weightUnit")

	s, _ = r.Reduce(s, FieldChanged{Field: "weightUnit", Value: "kg"})
	assert.NotContains(t, s.Errors, "weightUnit")
	assert.True(t, s.CanSubmit())
}

func TestReducer_SubmitEmitsEffectAndRejectsResubmission(t *testing.T) {
	r := newTestReducer()
	s := filledState(r)

	s, effects := r.Reduce(s, SubmitRequested{})
	require.Len(t, effects, 1)
	submit, ok := effects[0].(Submit)
	require.True(t, ok)
	assert.Equal(t, "Ada", submit.Form.Name)
	assert.True(t, s.Submitting)
	assert.False(t, s.CanSubmit())

	again, effects := r.Reduce(s, SubmitRequested{})
	assert.Empty(t, effects)
	assert.Equal(t, s.Version, again.Version)
}

func TestReducer_SubmitOutcomes(t *testing.T) {
	r := newTestReducer()
	s, _ := r.Reduce(filledState(r), SubmitRequested{})

	t.Run("success stores result", func(t *testing.T) {
		result := &domain.RenderedResult{State: domain.RenderNoConditions}
		next, _ := r.Reduce(s, SubmitSucceeded{Submission: s.Submission, Result: result})
		assert.False(t, next.Submitting)
		assert.Same(t, result, next.Result)
	})

	t.Run("gateway failure shows generic message and keeps form", func(t *testing.T) {
		next, _ := r.Reduce(s, SubmitFailed{Submission: s.Submission, Err: domain.NewSubmissionError(domain.StageGateway, errors.New("boom"))})
		assert.False(t, next.Submitting)
		assert.Equal(t, domain.SubmissionFailureMessage, next.SubmissionError)
		assert.Equal(t, "Ada", next.Form.Name)
		assert.True(t, next.CanSubmit())
	})

	t.Run("validation failure lands on fields", func(t *testing.T) {
		errs := domain.ValidationErrors{domain.NewValidationError("image", domain.FieldErrorCode(domain.FileTooLarge), "Max file size is 10MB.", nil)}
		next, _ := r.Reduce(s, SubmitFailed{Submission: s.Submission, Err: errs})
		assert.Equal(t, []string{"Max file size is 10MB."}, next.Errors["image"])
		assert.Empty(t, next.SubmissionError)
	})

	t.Run("reset is refused while submitting", func(t *testing.T) {
		next, effects := r.Reduce(s, Reset{})
		assert.Empty(t, effects)
		assert.Equal(t, s.Version, next.Version)
		assert.True(t, next.Submitting)
		assert.Equal(t, "Ada", next.Form.Name)
	})

	t.Run("completion from another submission is ignored", func(t *testing.T) {
		next, _ := r.Reduce(s, SubmitSucceeded{Submission: s.Submission + 1, Result: &domain.RenderedResult{}})
		assert.Equal(t, s.Version, next.Version)
		assert.True(t, next.Submitting)

		next, _ = r.Reduce(s, SubmitFailed{Submission: s.Submission - 1, Err: errors.New("late")})
		assert.Equal(t, s.Version, next.Version)
		assert.Empty(t, next.SubmissionError)
	})
}

func TestReducer_LateCompletionAfterResetAndResubmit(t *testing.T) {
	r := newTestReducer()

	s, effects := r.Reduce(filledState(r), SubmitRequested{})
	require.Len(t, effects, 1)
	first := effects[0].(Submit)

	s, effects = r.Reduce(s, Reset{})
	require.Empty(t, effects)

	s, _ = r.Reduce(s, SubmitSucceeded{Submission: first.Submission, Result: &domain.RenderedResult{Message: "first"}})
	require.False(t, s.Submitting)

	// A fresh form once the first attempt has finished.
	s, _ = reduceAll(r, s, Reset{},
		FieldChanged{Field: "name", Value: "Grace"},
		FieldChanged{Field: "age", Value: "45"},
		FieldChanged{Field: "gender", Value: "female"},
		SymptomChanged{Index: 0, Name: "Fever", Severity: "Severe"},
	)
	require.Nil(t, s.Result)

	s, effects = r.Reduce(s, SubmitRequested{})
	require.Len(t, effects, 1)
	second := effects[0].(Submit)
	assert.Greater(t, second.Submission, first.Submission)

	late, _ := r.Reduce(s, SubmitSucceeded{Submission: first.Submission, Result: &domain.RenderedResult{Message: "first"}})
	assert.Equal(t, s.Version, late.Version)
	assert.True(t, late.Submitting)
	assert.Nil(t, late.Result)
	assert.Equal(t, "Grace", late.Form.Name)

	done, _ := r.Reduce(late, SubmitSucceeded{Submission: second.Submission, Result: &domain.RenderedResult{Message: "second"}})
	require.NotNil(t, done.Result)
	assert.Equal(t, "second", done.Result.Message)
}

func TestReducer_ImageSelectionAndStaleDecode(t *testing.T) {
	r := newTestReducer()

	s, effects := r.Reduce(NewState(), ImageSelected{File: pngImage("a.png")})
	require.Len(t, effects, 1)
	first := effects[0].(DecodePreview)
	assert.True(t, s.Image.Decoding)

	s, effects = r.Reduce(s, ImageSelected{File: pngImage("b.png")})
	require.Len(t, effects, 1)
	second := effects[0].(DecodePreview)
	assert.Greater(t, second.Generation, first.Generation)
	assert.Equal(t, "b.png", s.Image.Accepted.Filename)

	stale, _ := r.Reduce(s, ImageDecoded{Generation: first.Generation, Preview: "data:image/png;base64,AAAA"})
	assert.Equal(t, s.Version, stale.Version)
	assert.Empty(t, stale.Image.Preview)

	fresh, _ := r.Reduce(s, ImageDecoded{Generation: second.Generation, Preview: "data:image/png;base64,BBBB"})
	assert.Equal(t, "data:image/png;base64,BBBB", fresh.Image.Preview)
	assert.False(t, fresh.Image.Decoding)

	staleFailure, effects := r.Reduce(fresh, ImageDecodeFailed{Generation: first.Generation, Err: errors.New("late")})
	assert.Empty(t, effects)
	assert.NotNil(t, staleFailure.Image.Accepted)
}

func TestReducer_ImageRejectedAndRemoved(t *testing.T) {
	r := newTestReducer()

	big := domain.NewBytesImage("big.png", "image/png", make([]byte, domain.MaxImageBytes+1))
	s, effects := r.Reduce(NewState(), ImageSelected{File: big})
	assert.Empty(t, effects)
	assert.Nil(t, s.Image.Accepted)
	assert.Equal(t, []string{"Max file size is 10MB."}, s.Errors["image"])
	assert.False(t, s.CanSubmit())

	removed, _ := r.Reduce(s, ImageRemoved{})
	assert.NotContains(t, removed.Errors, "image")
	assert.Nil(t, removed.Image.Accepted)

	removedTwice, _ := r.Reduce(removed, ImageRemoved{})
	assert.Nil(t, removedTwice.Image.Accepted)
	assert.Empty(t, removedTwice.Image.Preview)
	assert.Empty(t, removedTwice.Errors)
}

func TestReducer_ClearingImageMatchesFreshState(t *testing.T) {
	r := newTestReducer()
	fresh := NewState()

	withPreview, effects := r.Reduce(NewState(), ImageSelected{File: pngImage("a.png")})
	withPreview, _ = r.Reduce(withPreview, ImageDecoded{
		Generation: effects[0].(DecodePreview).Generation,
		Preview:    "data:image/png;base64,AAAA",
	})
	big := domain.NewBytesImage("big.png", "image/png", make([]byte, domain.MaxImageBytes+1))
	rejected, _ := r.Reduce(NewState(), ImageSelected{File: big})
	decoding, effects := r.Reduce(NewState(), ImageSelected{File: pngImage("b.png")})
	failed, _ := r.Reduce(decoding, ImageDecodeFailed{Generation: effects[0].(DecodePreview).Generation, Err: errors.New("io")})
	require.NotEmpty(t, failed.Notice)

	starts := map[string]State{
		"accepted with preview": withPreview,
		"rejected":              rejected,
		"decoding":              decoding,
		"decode failed":         failed,
	}
	clears := map[string][]Event{
		"removed":             {ImageRemoved{}},
		"selected nothing":    {ImageSelected{File: nil}},
		"removed then select": {ImageRemoved{}, ImageSelected{File: nil}},
	}

	for startName, start := range starts {
		for clearName, events := range clears {
			t.Run(startName+"/"+clearName, func(t *testing.T) {
				s := start
				for _, ev := range events {
					var effects []Effect
					s, effects = r.Reduce(s, ev)
					assert.Empty(t, effects)
				}
				assert.Greater(t, s.Image.Generation, start.Image.Generation)

				slot := s.Image
				slot.Generation = 0
				assert.Equal(t, fresh.Image, slot)
				assert.Equal(t, fresh.Errors, s.Errors)
				assert.Equal(t, fresh.Notice, s.Notice)
			})
		}
	}
}

func TestReducer_DecodeFailureClearsFieldAndNotifies(t *testing.T) {
	r := newTestReducer()

	s, effects := r.Reduce(NewState(), ImageSelected{File: pngImage("a.png")})
	gen := effects[0].(DecodePreview).Generation

	s, effects = r.Reduce(s, ImageDecodeFailed{Generation: gen, Err: errors.New("io")})
	require.Len(t, effects, 1)
	_, isNotify := effects[0].(Notify)
	assert.True(t, isNotify)
	assert.Nil(t, s.Image.Accepted)
	assert.NotContains(t, s.Errors, "image")
	assert.NotEmpty(t, s.Notice)
}

func TestReducer_SymptomRows(t *testing.T) {
	r := newTestReducer()
	s := filledState(r)

	s, _ = reduceAll(r, s,
		SymptomAdded{},
		SymptomChanged{Index: 1, Name: "Fever", Severity: "Severe"},
		SymptomAdded{},
	)
	require.Len(t, s.Form.Symptoms, 3)

	s, _ = r.Reduce(s, SubmitRequested{})
	assert.Contains(t, s.Errors, "symptoms[2].name")
	assert.False(t, s.Submitting)

	s, _ = r.Reduce(s, SymptomRemoved{Index: 2})
	assert.NotContains(t, s.Errors, "symptoms[2].name")
	assert.True(t, s.CanSubmit())

	outOfRange, _ := r.Reduce(s, SymptomRemoved{Index: 9})
	assert.Equal(t, s.Version, outOfRange.Version)
}

func TestDecodeEvent(t *testing.T) {
	ev, err := DecodeEvent(Envelope{Type: "field_changed", Payload: []byte(`{"field":"name","value":"Ada"}`)})
	require.NoError(t, err)
	assert.Equal(t, FieldChanged{Field: "name", Value: "Ada"}, ev)

	ev, err = DecodeEvent(Envelope{Type: "submit_requested"})
	require.NoError(t, err)
	assert.Equal(t, SubmitRequested{}, ev)

	_, err = DecodeEvent(Envelope{Type: "image_decoded"})
	assert.Error(t, err)

	_, err = DecodeEvent(Envelope{Type: "symptom_changed"})
	assert.Error(t, err)
}
