package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/symptom-checker-server/internal/domain"
)

// maxResponseBytes bounds how much of a gateway response is read.
const maxResponseBytes = 1 << 20

// HTTPGateway posts the canonical request as JSON to an inference endpoint.
type HTTPGateway struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewHTTPGateway creates an HTTP gateway client.
func NewHTTPGateway(cfg domain.HTTPGatewayConfig, logger *logrus.Logger) (*HTTPGateway, error) {
	endpoint := strings.TrimSpace(cfg.BaseURL)
	if endpoint == "" {
		return nil, errors.New("inference http base_url is empty")
	}
	return &HTTPGateway{
		endpoint: endpoint,
		apiKey:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}, nil
}

// Name identifies the gateway in logs and audit records.
func (h *HTTPGateway) Name() string {
	return "http"
}

// AnalyzeSymptoms implements domain.InferenceGateway.
func (h *HTTPGateway) AnalyzeSymptoms(ctx context.Context, in *domain.AnalyzeSymptomsInput) (*domain.AnalyzeSymptomsOutput, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inference endpoint returned status %d", resp.StatusCode)
	}

	out, err := DecodeDiagnoses(body)
	if err != nil {
		return nil, err
	}

	h.logger.WithFields(logrus.Fields{
		"gateway":   h.Name(),
		"diagnoses": len(out.Diagnoses),
	}).Debug("HTTP analysis completed")
	return out, nil
}
