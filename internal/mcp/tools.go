package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/symptom-checker-server/internal/domain"
	"github.com/symptom-checker-server/internal/service"
)

const (
	toolAnalyzeSymptoms = "analyze_symptoms"
	toolValidateIntake  = "validate_intake"
	toolRenderDiagnoses = "render_diagnoses"
)

var toolNames = []string{toolAnalyzeSymptoms, toolValidateIntake, toolRenderDiagnoses}

// SymptomParams is one symptom row.
type SymptomParams struct {
	Name     string `json:"name,omitempty" jsonschema:"the symptom, e.g. Headache"`
	Severity string `json:"severity,omitempty" jsonschema:"one of Mild, Moderate, Severe, Very Severe"`
}

// IntakeParams mirrors the intake form. Numeric fields accept numbers or numeric strings.
// Every field is optional at the protocol level so missing values come back as field errors.
type IntakeParams struct {
	Name               string          `json:"name,omitempty" jsonschema:"patient name"`
	Age                any             `json:"age,omitempty" jsonschema:"age in whole years"`
	Gender             string          `json:"gender,omitempty" jsonschema:"one of male, female, other, prefer_not_to_say"`
	Weight             any             `json:"weight,omitempty" jsonschema:"weight magnitude; requires weight_unit"`
	WeightUnit         string          `json:"weight_unit,omitempty" jsonschema:"kg or lbs"`
	Height             any             `json:"height,omitempty" jsonschema:"height magnitude; requires height_unit"`
	HeightUnit         string          `json:"height_unit,omitempty" jsonschema:"cm or in"`
	Symptoms           []SymptomParams `json:"symptoms,omitempty" jsonschema:"at least one symptom"`
	PastConditions     string          `json:"past_conditions,omitempty" jsonschema:"comma-separated past conditions"`
	CurrentMedications string          `json:"current_medications,omitempty" jsonschema:"comma-separated current medications"`
}

// AnalyzeSymptomsParams is the analyze_symptoms input.
type AnalyzeSymptomsParams struct {
	Form  IntakeParams `json:"form" jsonschema:"the intake form"`
	Image string       `json:"image,omitempty" jsonschema:"optional image as a base64 data URI (JPEG, PNG, WEBP or DICOM, at most 10 MB)"`
}

// ValidateIntakeParams is the validate_intake input.
type ValidateIntakeParams struct {
	Form IntakeParams `json:"form" jsonschema:"the intake form"`
}

// ValidateIntakeResult is the validate_intake output.
type ValidateIntakeResult struct {
	Valid  bool                `json:"valid"`
	Errors map[string][]string `json:"errors"`
}

// RenderDiagnosesParams is the render_diagnoses input.
type RenderDiagnosesParams struct {
	Diagnoses []domain.Diagnosis `json:"diagnoses" jsonschema:"diagnoses in ranked order"`
}

// rawForm converts tool parameters to the loosely typed form the validator expects.
func (p IntakeParams) rawForm() (domain.RawForm, error) {
	form := domain.RawForm{
		Name:               p.Name,
		Gender:             p.Gender,
		WeightUnit:         p.WeightUnit,
		HeightUnit:         p.HeightUnit,
		PastConditions:     p.PastConditions,
		CurrentMedications: p.CurrentMedications,
		Symptoms:           make([]domain.RawSymptom, 0, len(p.Symptoms)),
	}
	for _, s := range p.Symptoms {
		form.Symptoms = append(form.Symptoms, domain.RawSymptom{Name: s.Name, Severity: s.Severity})
	}

	var err error
	if form.Age, err = loose("age", p.Age); err != nil {
		return form, err
	}
	if form.Weight, err = loose("weight", p.Weight); err != nil {
		return form, err
	}
	if form.Height, err = loose("height", p.Height); err != nil {
		return form, err
	}
	return form, nil
}

func loose(field string, v any) (domain.LooseString, error) {
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("%s: %w", field, err)
	}
	var out domain.LooseString
	if err := out.UnmarshalJSON(data); err != nil {
		return "", fmt.Errorf("%s: %w", field, err)
	}
	return out, nil
}

func (s *Server) handleAnalyzeSymptoms(ctx context.Context, req *mcp.CallToolRequest, params AnalyzeSymptomsParams) (*mcp.CallToolResult, any, error) {
	requestID := uuid.New().String()
	log := s.logger.WithFields(logrus.Fields{"tool": toolAnalyzeSymptoms, "request_id": requestID})
	log.Info("Tool invoked")

	form, err := params.Form.rawForm()
	if err != nil {
		return errorResult("Invalid parameters: " + err.Error()), nil, nil
	}

	analyzeReq := service.AnalyzeRequest{RequestID: requestID, Form: form}
	if params.Image != "" {
		mediaType, data, err := service.DecodeDataURI(params.Image)
		if err != nil {
			return errorResult("The image must be a base64 data URI."), nil, nil
		}
		analyzeReq.File = domain.NewBytesImage("image", mediaType, data)
	}

	result, err := s.analyzer.Analyze(ctx, analyzeReq)
	if err != nil {
		return s.pipelineError(err, log), nil, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: s.analyzer.Renderer().RenderText(result)},
		},
	}, result, nil
}

func (s *Server) handleValidateIntake(ctx context.Context, req *mcp.CallToolRequest, params ValidateIntakeParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", toolValidateIntake).Info("Tool invoked")

	form, err := params.Form.rawForm()
	if err != nil {
		return errorResult("Invalid parameters: " + err.Error()), nil, nil
	}

	_, errs := s.analyzer.Validator().Validate(form)
	result := ValidateIntakeResult{Valid: len(errs) == 0, Errors: errs.ByField()}

	text := "The intake form is valid."
	if !result.Valid {
		text = formatFieldErrors(result.Errors)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, result, nil
}

func (s *Server) handleRenderDiagnoses(ctx context.Context, req *mcp.CallToolRequest, params RenderDiagnosesParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithFields(logrus.Fields{
		"tool":      toolRenderDiagnoses,
		"diagnoses": len(params.Diagnoses),
	}).Info("Tool invoked")

	result := s.analyzer.Renderer().Render(&domain.AnalyzeSymptomsOutput{Diagnoses: params.Diagnoses})
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: s.analyzer.Renderer().RenderText(result)},
		},
	}, result, nil
}

// pipelineError turns an analyzer error into a tool error result. Gateway failures are
// reported with the generic message only.
func (s *Server) pipelineError(err error, log *logrus.Entry) *mcp.CallToolResult {
	var (
		fieldErrs domain.ValidationErrors
		imgErr    *domain.ImageError
		subErr    *domain.SubmissionError
	)
	switch {
	case errors.As(err, &fieldErrs):
		return errorResult(formatFieldErrors(fieldErrs.ByField()))
	case errors.As(err, &imgErr):
		return errorResult(imgErr.Message)
	case errors.As(err, &subErr):
		return errorResult(subErr.PublicMessage())
	default:
		log.WithError(err).Error("Analysis failed")
		return errorResult(domain.SubmissionFailureMessage)
	}
}

func formatFieldErrors(byField map[string][]string) string {
	fields := make([]string, 0, len(byField))
	for f := range byField {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var b strings.Builder
	b.WriteString("Please correct the following fields:\n")
	for _, f := range fields {
		for _, msg := range byField[f] {
			fmt.Fprintf(&b, "- %s: %s\n", f, msg)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: message}},
	}
}
