package inference

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/symptom-checker-server/internal/domain"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func sampleInput() *domain.AnalyzeSymptomsInput {
	return &domain.AnalyzeSymptomsInput{
		Name:     "Ada",
		Age:      36,
		Gender:   domain.FEMALE,
		Symptoms: []domain.Symptom{{Name: "Cough", Severity: domain.SEVERE}, {Name: "Fever", Severity: domain.MODERATE}},
		MedicalHistory: domain.MedicalHistory{
			PastConditions:     []string{},
			CurrentMedications: []string{},
		},
	}
}

func TestHTTPGateway_AnalyzeSymptoms(t *testing.T) {
	var received domain.AnalyzeSymptomsInput
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"diagnoses":[{"condition":"Bronchitis","confidence":"High"}]}`))
	}))
	defer server.Close()

	gw, err := NewHTTPGateway(domain.HTTPGatewayConfig{BaseURL: server.URL, APIKey: "secret", Timeout: time.Second}, quietLogger())
	require.NoError(t, err)

	out, err := gw.AnalyzeSymptoms(context.Background(), sampleInput())
	require.NoError(t, err)
	assert.Equal(t, []domain.Diagnosis{{Condition: "Bronchitis", Confidence: "High"}}, out.Diagnoses)
	assert.Equal(t, 36, received.Age)
	assert.Nil(t, received.Image)
}

func TestHTTPGateway_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `oops`, wantErr: "status 500"},
		{name: "bad body", status: http.StatusOK, body: `not json`, wantErr: "decoding"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			gw, err := NewHTTPGateway(domain.HTTPGatewayConfig{BaseURL: server.URL, Timeout: time.Second}, quietLogger())
			require.NoError(t, err)

			_, err = gw.AnalyzeSymptoms(context.Background(), sampleInput())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	_, err := NewHTTPGateway(domain.HTTPGatewayConfig{}, quietLogger())
	assert.Error(t, err)
}

type fakeGenerator struct {
	parts []genai.Part
	resp  *genai.GenerateContentResponse
	err   error
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	f.parts = parts
	return f.resp, f.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text(text)}},
		}},
	}
}

func TestGeminiGateway_AnalyzeSymptoms(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse(`{"diagnoses":[{"condition":"Dermatitis","confidence":"Medium"}]}`)}
	gw := &GeminiGateway{model: gen, name: "gemini:test", logger: quietLogger()}

	in := sampleInput()
	image := "data:image/png;base64,iVBORw=="
	in.Image = &image

	out, err := gw.AnalyzeSymptoms(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "Dermatitis", out.Diagnoses[0].Condition)

	require.Len(t, gen.parts, 2)
	blob, ok := gen.parts[1].(*genai.Blob)
	require.True(t, ok)
	assert.Equal(t, "image/png", blob.MIMEType)
	assert.NotEmpty(t, blob.Data)
}

func TestGeminiGateway_Failures(t *testing.T) {
	t.Run("no candidates", func(t *testing.T) {
		gw := &GeminiGateway{model: &fakeGenerator{resp: &genai.GenerateContentResponse{}}, logger: quietLogger()}
		_, err := gw.AnalyzeSymptoms(context.Background(), sampleInput())
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})

	t.Run("api error", func(t *testing.T) {
		gw := &GeminiGateway{model: &fakeGenerator{err: errors.New("quota")}, logger: quietLogger()}
		_, err := gw.AnalyzeSymptoms(context.Background(), sampleInput())
		assert.ErrorContains(t, err, "quota")
	})

	t.Run("bad image", func(t *testing.T) {
		gen := &fakeGenerator{resp: textResponse(`[]`)}
		gw := &GeminiGateway{model: gen, logger: quietLogger()}
		in := sampleInput()
		bad := "not a data uri"
		in.Image = &bad
		_, err := gw.AnalyzeSymptoms(context.Background(), in)
		assert.Error(t, err)
		assert.Nil(t, gen.parts)
	})

	_, err := NewGeminiGateway(context.Background(), domain.GeminiConfig{Model: "m"}, quietLogger())
	assert.Error(t, err)
}

func TestMockGateway(t *testing.T) {
	out, err := NewMockGateway().AnalyzeSymptoms(context.Background(), sampleInput())
	require.NoError(t, err)
	require.Len(t, out.Diagnoses, 2)
	assert.Equal(t, "High", out.Diagnoses[0].Confidence)
	assert.Equal(t, "Medium", out.Diagnoses[1].Confidence)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewMockGateway().AnalyzeSymptoms(ctx, sampleInput())
	assert.ErrorIs(t, err, context.Canceled)
}

type countingGateway struct {
	calls int
	err   error
}

func (c *countingGateway) Name() string { return "counting" }

func (c *countingGateway) AnalyzeSymptoms(ctx context.Context, in *domain.AnalyzeSymptomsInput) (*domain.AnalyzeSymptomsOutput, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return &domain.AnalyzeSymptomsOutput{Diagnoses: []domain.Diagnosis{}}, nil
}

func TestResilientGateway_NoRetryAndFailFast(t *testing.T) {
	inner := &countingGateway{err: errors.New("upstream down")}
	gw := NewResilientGateway(inner, domain.CircuitBreakerConfig{
		MinRequests:  2,
		FailureRatio: 0.5,
		Timeout:      time.Minute,
	}, quietLogger())

	_, err := gw.AnalyzeSymptoms(context.Background(), sampleInput())
	assert.ErrorIs(t, err, domain.ErrGatewayFailure)
	assert.Equal(t, 1, inner.calls, "a failed call is not retried")

	_, err = gw.AnalyzeSymptoms(context.Background(), sampleInput())
	assert.ErrorIs(t, err, domain.ErrGatewayFailure)
	assert.Equal(t, gobreaker.StateOpen, gw.State())

	_, err = gw.AnalyzeSymptoms(context.Background(), sampleInput())
	assert.ErrorIs(t, err, domain.ErrGatewayFailure)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, inner.calls)
}

func TestResilientGateway_CanceledCallerDoesNotTrip(t *testing.T) {
	inner := &countingGateway{err: context.Canceled}
	gw := NewResilientGateway(inner, domain.CircuitBreakerConfig{MinRequests: 1, FailureRatio: 0.1}, quietLogger())

	for i := 0; i < 3; i++ {
		_, err := gw.AnalyzeSymptoms(context.Background(), sampleInput())
		assert.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateClosed, gw.State())
	assert.Equal(t, 3, inner.calls)
}

func TestResilientGateway_Spans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	gw := NewResilientGateway(&countingGateway{}, domain.CircuitBreakerConfig{}, quietLogger())
	_, err := gw.AnalyzeSymptoms(context.Background(), sampleInput())
	require.NoError(t, err)

	failing := NewResilientGateway(&countingGateway{err: errors.New("down")}, domain.CircuitBreakerConfig{}, quietLogger())
	_, err = failing.AnalyzeSymptoms(context.Background(), sampleInput())
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "inference.AnalyzeSymptoms", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	for _, kv := range spans[0].Attributes() {
		assert.NotEqual(t, "Ada", kv.Value.Emit(), "patient data never reaches span attributes")
	}
}

func TestNew(t *testing.T) {
	gw, err := New(context.Background(), domain.InferenceConfig{Provider: "mock"}, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, "mock", gw.Name())
	assert.NoError(t, gw.Close())

	_, err = New(context.Background(), domain.InferenceConfig{Provider: "oracle"}, quietLogger())
	assert.Error(t, err)
}
