package service

import (
	"context"
	"strings"

	"github.com/symptom-checker-server/internal/domain"
)

// Normalizer turns a validated form into the canonical gateway request. Encoding the image
// happens here, at submission time, and not when the file was selected.
type Normalizer struct{}

// NewNormalizer creates a new request normalizer
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize builds the request. An encoding failure is returned as a SubmissionError and
// no request is produced.
func (n *Normalizer) Normalize(ctx context.Context, form *domain.ValidatedForm, image *domain.AcceptedImage) (*domain.AnalyzeSymptomsInput, error) {
	input := &domain.AnalyzeSymptomsInput{
		Name:     form.Profile.Name,
		Age:      form.Profile.Age,
		Gender:   form.Profile.Gender,
		Weight:   completeMeasurement(form.Profile.Weight),
		Height:   completeMeasurement(form.Profile.Height),
		Symptoms: make([]domain.Symptom, len(form.Symptoms)),
		MedicalHistory: domain.MedicalHistory{
			PastConditions:     SplitList(form.History.PastConditions),
			CurrentMedications: SplitList(form.History.CurrentMedications),
		},
	}
	copy(input.Symptoms, form.Symptoms)

	if image != nil {
		uri, err := EncodeDataURI(ctx, image)
		if err != nil {
			return nil, domain.NewSubmissionError(domain.StageEncode, err)
		}
		input.Image = &uri
	}

	return input, nil
}

// completeMeasurement passes a magnitude and unit on together, or not at all.
func completeMeasurement(m *domain.Measurement) *domain.Measurement {
	if m == nil || strings.TrimSpace(m.Unit) == "" {
		return nil
	}
	return &domain.Measurement{Value: m.Value, Unit: strings.TrimSpace(m.Unit)}
}

// SplitList splits comma-delimited free text into trimmed, non-empty segments in their
// original order. Blank input yields an empty, non-nil slice.
func SplitList(text string) []string {
	out := []string{}
	for _, part := range strings.Split(text, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
