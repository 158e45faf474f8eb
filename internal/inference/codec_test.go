package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symptom-checker-server/internal/domain"
)

func TestDecodeDiagnoses(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    []domain.Diagnosis
		wantErr bool
	}{
		{
			name: "envelope",
			body: `{"diagnoses":[{"condition":"Flu","confidence":"High"},{"condition":"Cold","confidence":"Low"}]}`,
			want: []domain.Diagnosis{{Condition: "Flu", Confidence: "High"}, {Condition: "Cold", Confidence: "Low"}},
		},
		{
			name: "bare array",
			body: `[{"condition":"Migraine","confidence":"Medium"}]`,
			want: []domain.Diagnosis{{Condition: "Migraine", Confidence: "Medium"}},
		},
		{
			name: "fenced json",
			body: "```json\n{\"diagnoses\":[{\"condition\":\"Flu\",\"confidence\":\"very likely\"}]}\n```",
			want: []domain.Diagnosis{{Condition: "Flu", Confidence: "very likely"}},
		},
		{
			name: "empty list",
			body: `{"diagnoses":[]}`,
			want: []domain.Diagnosis{},
		},
		{
			name:    "missing field",
			body:    `{"result":"ok"}`,
			wantErr: true,
		},
		{
			name:    "blank",
			body:    "   ",
			wantErr: true,
		},
		{
			name:    "not json",
			body:    "I think it is the flu",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := DecodeDiagnoses([]byte(tt.body))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Diagnoses)
		})
	}
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripCodeFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripCodeFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `[1]`, StripCodeFences("[1]"))
}

func TestBuildPrompt(t *testing.T) {
	image := "data:image/png;base64,AAAA"
	in := &domain.AnalyzeSymptomsInput{
		Name:     "Ada",
		Age:      36,
		Gender:   domain.FEMALE,
		Weight:   &domain.Measurement{Value: 62.5, Unit: "kg"},
		Symptoms: []domain.Symptom{{Name: "Cough", Severity: domain.MILD}},
		MedicalHistory: domain.MedicalHistory{
			PastConditions:     []string{"Asthma", "Diabetes"},
			CurrentMedications: []string{},
		},
		Image: &image,
	}

	prompt := BuildPrompt(in)

	assert.Contains(t, prompt, "Age: 36")
	assert.Contains(t, prompt, "Weight: 62.5 kg")
	assert.Contains(t, prompt, "Height: not provided")
	assert.Contains(t, prompt, "- Cough (Mild)")
	assert.Contains(t, prompt, "Past conditions: Asthma, Diabetes")
	assert.Contains(t, prompt, "Current medications: None reported")
	assert.Contains(t, prompt, "image")
	assert.NotContains(t, prompt, "Ada")
}
