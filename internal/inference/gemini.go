package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"github.com/symptom-checker-server/internal/domain"
	"github.com/symptom-checker-server/internal/service"
)

// contentGenerator is the part of *genai.GenerativeModel the gateway calls.
type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// GeminiGateway sends the request to a Gemini model and asks for a JSON answer.
type GeminiGateway struct {
	client *genai.Client
	model  contentGenerator
	name   string
	logger *logrus.Logger
}

// responseSchema constrains the model output to {"diagnoses":[{condition, confidence}]}.
var responseSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"diagnoses": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"condition":  {Type: genai.TypeString},
					"confidence": {Type: genai.TypeString, Format: "enum", Enum: []string{"High", "Medium", "Low"}},
				},
				Required: []string{"condition", "confidence"},
			},
		},
	},
	Required: []string{"diagnoses"},
}

// NewGeminiGateway creates a Gemini client for the configured model.
func NewGeminiGateway(ctx context.Context, cfg domain.GeminiConfig, logger *logrus.Logger) (*GeminiGateway, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is empty")
	}
	modelName := strings.TrimSpace(cfg.Model)
	if modelName == "" {
		return nil, errors.New("gemini model is empty")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	m := client.GenerativeModel(modelName)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(cfg.Temperature),
		ResponseMIMEType: "application/json",
		ResponseSchema:   responseSchema,
	}
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemInstruction)},
	}

	return &GeminiGateway{client: client, model: m, name: "gemini:" + modelName, logger: logger}, nil
}

// Name identifies the gateway in logs and audit records.
func (g *GeminiGateway) Name() string {
	return g.name
}

// AnalyzeSymptoms implements domain.InferenceGateway.
func (g *GeminiGateway) AnalyzeSymptoms(ctx context.Context, in *domain.AnalyzeSymptomsInput) (*domain.AnalyzeSymptomsOutput, error) {
	parts, err := buildParts(in)
	if err != nil {
		return nil, err
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}

	text := firstText(resp)
	if text == "" {
		return nil, ErrEmptyResponse
	}

	out, err := DecodeDiagnoses([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("gemini response: %w", err)
	}

	g.logger.WithFields(logrus.Fields{
		"gateway":    g.name,
		"diagnoses":  len(out.Diagnoses),
		"with_image": in.Image != nil,
	}).Debug("Gemini analysis completed")
	return out, nil
}

// Close releases the underlying client.
func (g *GeminiGateway) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

func buildParts(in *domain.AnalyzeSymptomsInput) ([]genai.Part, error) {
	parts := []genai.Part{genai.Text(BuildPrompt(in))}
	if in.Image == nil {
		return parts, nil
	}

	mediaType, data, err := service.DecodeDataURI(*in.Image)
	if err != nil {
		return nil, fmt.Errorf("decoding image for gemini: %w", err)
	}
	return append(parts, &genai.Blob{MIMEType: mediaType, Data: data}), nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
