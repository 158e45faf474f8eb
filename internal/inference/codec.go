// Package inference holds the gateways that turn a normalized symptom request into a list
// of candidate conditions.
package inference

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/symptom-checker-server/internal/domain"
)

// ErrEmptyResponse is returned when a gateway answers with no content.
var ErrEmptyResponse = errors.New("inference response is empty")

// DecodeDiagnoses parses a gateway response. It accepts either {"diagnoses":[...]} or a bare
// array, optionally wrapped in a markdown code fence.
func DecodeDiagnoses(body []byte) (*domain.AnalyzeSymptomsOutput, error) {
	text := StripCodeFences(strings.TrimSpace(string(body)))
	if text == "" {
		return nil, ErrEmptyResponse
	}

	if strings.HasPrefix(text, "[") {
		var list []domain.Diagnosis
		if err := json.Unmarshal([]byte(text), &list); err != nil {
			return nil, fmt.Errorf("decoding diagnosis list: %w", err)
		}
		return newOutput(list), nil
	}

	var envelope struct {
		Diagnoses *[]domain.Diagnosis `json:"diagnoses"`
	}
	if err := json.Unmarshal([]byte(text), &envelope); err != nil {
		return nil, fmt.Errorf("decoding diagnoses: %w", err)
	}
	if envelope.Diagnoses == nil {
		return nil, errors.New("response has no diagnoses field")
	}
	return newOutput(*envelope.Diagnoses), nil
}

func newOutput(list []domain.Diagnosis) *domain.AnalyzeSymptomsOutput {
	if list == nil {
		list = []domain.Diagnosis{}
	}
	return &domain.AnalyzeSymptomsOutput{Diagnoses: list}
}

// StripCodeFences removes a surrounding ``` or ```json fence.
func StripCodeFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
