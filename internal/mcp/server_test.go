package mcp

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symptom-checker-server/internal/domain"
	"github.com/symptom-checker-server/internal/inference"
	"github.com/symptom-checker-server/internal/service"
)

type stubConfig struct {
	cfg *domain.Config
}

func (s stubConfig) GetConfig() *domain.Config                   { return s.cfg }
func (s stubConfig) GetServerConfig() *domain.ServerConfig       { return &s.cfg.Server }
func (s stubConfig) GetInferenceConfig() *domain.InferenceConfig { return &s.cfg.Inference }
func (s stubConfig) GetFormsConfig() *domain.FormsConfig         { return &s.cfg.Forms }
func (s stubConfig) GetAuditConfig() *domain.AuditConfig         { return &s.cfg.Audit }
func (s stubConfig) Validate() error                             { return nil }

type brokenGateway struct{}

func (brokenGateway) Name() string { return "broken" }

func (brokenGateway) AnalyzeSymptoms(ctx context.Context, in *domain.AnalyzeSymptomsInput) (*domain.AnalyzeSymptomsOutput, error) {
	return nil, errors.New("connection reset by 10.0.0.7")
}

func newTestServer(t *testing.T, gw domain.InferenceGateway) *Server {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	analyzer := service.NewAnalyzerService(logger, gw, nil)
	cfg := &domain.Config{MCP: domain.MCPConfig{ServerName: "symptom-checker-test", ServerVersion: "0.0.1"}}
	s, err := NewServer(stubConfig{cfg: cfg}, analyzer, logger)
	require.NoError(t, err)
	return s
}

func textOf(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func validIntake() IntakeParams {
	return IntakeParams{
		Name:     "Ada",
		Age:      36,
		Gender:   "female",
		Symptoms: []SymptomParams{{Name: "Rash", Severity: "Moderate"}},
	}
}

func TestNewServer(t *testing.T) {
	s := newTestServer(t, inference.NewMockGateway())
	assert.NotNil(t, s.mcpServer)

	_, err := NewServer(stubConfig{cfg: &domain.Config{}}, nil, logrus.New())
	assert.Error(t, err)
}

func TestAnalyzeSymptomsTool(t *testing.T) {
	s := newTestServer(t, inference.NewMockGateway())

	res, out, err := s.handleAnalyzeSymptoms(context.Background(), &mcp.CallToolRequest{}, AnalyzeSymptomsParams{Form: validIntake()})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, textOf(t, res), "Condition associated with rash")
	assert.Contains(t, textOf(t, res), domain.MedicalDisclaimer)

	result, ok := out.(*domain.RenderedResult)
	require.True(t, ok)
	require.Len(t, result.Items, 1)
	assert.Equal(t, domain.MEDIUM, result.Items[0].Tier)
}

func TestAnalyzeSymptomsTool_NumericStrings(t *testing.T) {
	s := newTestServer(t, inference.NewMockGateway())

	intake := validIntake()
	intake.Age = "36"
	intake.Weight = 70.5
	intake.WeightUnit = "kg"

	res, _, err := s.handleAnalyzeSymptoms(context.Background(), &mcp.CallToolRequest{}, AnalyzeSymptomsParams{Form: intake})
	require.NoError(t, err)
	assert.False(t, res.IsError, textOf(t, res))
}

func TestAnalyzeSymptomsTool_Errors(t *testing.T) {
	t.Run("field errors", func(t *testing.T) {
		s := newTestServer(t, inference.NewMockGateway())
		intake := validIntake()
		intake.Age = nil
		intake.Height = 180

		res, out, err := s.handleAnalyzeSymptoms(context.Background(), &mcp.CallToolRequest{}, AnalyzeSymptomsParams{Form: intake})
		require.NoError(t, err)
		assert.True(t, res.IsError)
		assert.Nil(t, out)
		text := textOf(t, res)
		assert.Contains(t, text, "- age: Age is required.")
		assert.Contains(t, text, "- heightUnit: Please select a unit for height.")
	})

	t.Run("bad image", func(t *testing.T) {
		s := newTestServer(t, inference.NewMockGateway())
		res, _, err := s.handleAnalyzeSymptoms(context.Background(), &mcp.CallToolRequest{}, AnalyzeSymptomsParams{
			Form:  validIntake(),
			Image: "https://example.com/rash.png",
		})
		require.NoError(t, err)
		assert.True(t, res.IsError)
	})

	t.Run("gateway failure is generic", func(t *testing.T) {
		s := newTestServer(t, brokenGateway{})
		res, _, err := s.handleAnalyzeSymptoms(context.Background(), &mcp.CallToolRequest{}, AnalyzeSymptomsParams{Form: validIntake()})
		require.NoError(t, err)
		assert.True(t, res.IsError)
		assert.Equal(t, domain.SubmissionFailureMessage, textOf(t, res))
	})
}

func TestValidateIntakeTool(t *testing.T) {
	s := newTestServer(t, inference.NewMockGateway())

	res, out, err := s.handleValidateIntake(context.Background(), &mcp.CallToolRequest{}, ValidateIntakeParams{Form: validIntake()})
	require.NoError(t, err)
	assert.Equal(t, "The intake form is valid.", textOf(t, res))
	assert.True(t, out.(ValidateIntakeResult).Valid)

	res, out, err = s.handleValidateIntake(context.Background(), &mcp.CallToolRequest{}, ValidateIntakeParams{Form: IntakeParams{Age: true}})
	require.NoError(t, err)
	result := out.(ValidateIntakeResult)
	assert.False(t, result.Valid)
	assert.Equal(t, []string{"Name is required."}, result.Errors["name"])
	assert.Equal(t, []string{"Age must be a whole number."}, result.Errors["age"])
	assert.Equal(t, []string{"Please add at least one symptom."}, result.Errors["symptoms"])
	assert.Contains(t, textOf(t, res), "Please correct the following fields:")
}

func TestRenderDiagnosesTool(t *testing.T) {
	s := newTestServer(t, inference.NewMockGateway())

	res, out, err := s.handleRenderDiagnoses(context.Background(), &mcp.CallToolRequest{}, RenderDiagnosesParams{
		Diagnoses: []domain.Diagnosis{
			{Condition: "Contact dermatitis", Confidence: " LOW "},
			{Condition: "Psoriasis", Confidence: "likely"},
		},
	})
	require.NoError(t, err)
	result := out.(*domain.RenderedResult)
	require.Len(t, result.Items, 2)
	assert.Equal(t, domain.LOW, result.Items[0].Tier)
	assert.Equal(t, domain.UNKNOWN, result.Items[1].Tier)
	assert.Contains(t, textOf(t, res), "1. Contact dermatitis")

	res, out, err = s.handleRenderDiagnoses(context.Background(), &mcp.CallToolRequest{}, RenderDiagnosesParams{})
	require.NoError(t, err)
	assert.Equal(t, domain.RenderNoConditions, out.(*domain.RenderedResult).State)
	assert.Contains(t, textOf(t, res), domain.NoConditionsMessage)
}

func TestLoose(t *testing.T) {
	v, err := loose("age", 36)
	require.NoError(t, err)
	assert.Equal(t, domain.LooseString("36"), v)

	v, err = loose("weight", "61.5")
	require.NoError(t, err)
	assert.Equal(t, domain.LooseString("61.5"), v)

	v, err = loose("age", nil)
	require.NoError(t, err)
	assert.True(t, v.IsBlank())

	_, err = loose("age", []int{1})
	assert.Error(t, err)
}
