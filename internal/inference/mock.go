package inference

import (
	"context"
	"strings"

	"github.com/symptom-checker-server/internal/domain"
)

// MockGateway answers locally without calling a model. Each symptom becomes one condition
// whose confidence follows the reported severity; it is meant for development only.
type MockGateway struct{}

// NewMockGateway creates a mock gateway.
func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

// Name identifies the gateway in logs and audit records.
func (m *MockGateway) Name() string {
	return "mock"
}

// AnalyzeSymptoms implements domain.InferenceGateway.
func (m *MockGateway) AnalyzeSymptoms(ctx context.Context, in *domain.AnalyzeSymptomsInput) (*domain.AnalyzeSymptomsOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &domain.AnalyzeSymptomsOutput{Diagnoses: []domain.Diagnosis{}}
	for _, s := range in.Symptoms {
		out.Diagnoses = append(out.Diagnoses, domain.Diagnosis{
			Condition:  "Condition associated with " + strings.ToLower(s.Name),
			Confidence: mockConfidence(s.Severity),
		})
	}
	return out, nil
}

func mockConfidence(s domain.Severity) string {
	switch s {
	case domain.SEVERE, domain.VERY_SEVERE:
		return domain.HIGH.String()
	case domain.MODERATE:
		return domain.MEDIUM.String()
	default:
		return domain.LOW.String()
	}
}
