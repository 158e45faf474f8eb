package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symptom-checker-server/internal/domain"
)

func TestRenderer_PreservesGatewayOrder(t *testing.T) {
	r := NewRenderer()

	out := &domain.AnalyzeSymptomsOutput{Diagnoses: []domain.Diagnosis{
		{Condition: "Migraine", Confidence: "Low"},
		{Condition: "Tension headache", Confidence: "High"},
		{Condition: "Sinusitis", Confidence: "medium"},
		{Condition: "Dehydration", Confidence: "Very likely"},
	}}

	result := r.Render(out)

	require.Equal(t, domain.RenderResults, result.State)
	require.Len(t, result.Items, 4)

	expected := []struct {
		condition string
		tier      domain.ConfidenceTier
		visual    domain.VisualSeverity
	}{
		{"Migraine", domain.LOW, domain.VisualUnknown},
		{"Tension headache", domain.HIGH, domain.VisualPositive},
		{"Sinusitis", domain.MEDIUM, domain.VisualCaution},
		{"Dehydration", domain.UNKNOWN, domain.VisualUnknown},
	}
	for i, want := range expected {
		item := result.Items[i]
		assert.Equal(t, i+1, item.Rank)
		assert.Equal(t, want.condition, item.Condition)
		assert.Equal(t, want.tier, item.Tier)
		assert.Equal(t, want.visual, item.Visual)
	}
	assert.Equal(t, "Very likely", result.Items[3].Confidence)
	assert.Empty(t, result.Message)
	assert.NotEmpty(t, result.Disclaimer)
}

func TestRenderer_EmptyResult(t *testing.T) {
	r := NewRenderer()

	for name, out := range map[string]*domain.AnalyzeSymptomsOutput{
		"nil output":      nil,
		"nil diagnoses":   {},
		"empty diagnoses": {Diagnoses: []domain.Diagnosis{}},
	} {
		t.Run(name, func(t *testing.T) {
			result := r.Render(out)

			assert.Equal(t, domain.RenderNoConditions, result.State)
			assert.Equal(t, domain.NoConditionsMessage, result.Message)
			assert.NotNil(t, result.Items)
			assert.Empty(t, result.Items)
		})
	}
}

func TestRenderer_RenderText(t *testing.T) {
	r := NewRenderer()

	text := r.RenderText(r.Render(&domain.AnalyzeSymptomsOutput{Diagnoses: []domain.Diagnosis{
		{Condition: "Common cold", Confidence: "High"},
		{Condition: "Influenza", Confidence: "Medium"},
	}}))

	assert.Contains(t, text, "1. Common cold (High confidence)")
	assert.Contains(t, text, "2. Influenza (Medium confidence)")
	assert.Less(t, strings.Index(text, "Common cold"), strings.Index(text, "Influenza"))
	assert.Contains(t, text, domain.MedicalDisclaimer)

	empty := r.RenderText(r.Render(nil))
	assert.True(t, strings.HasPrefix(empty, domain.NoConditionsMessage))
}
