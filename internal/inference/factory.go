package inference

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/symptom-checker-server/internal/domain"
)

// New builds the configured gateway behind a circuit breaker.
func New(ctx context.Context, cfg domain.InferenceConfig, logger *logrus.Logger) (*ResilientGateway, error) {
	var (
		inner domain.InferenceGateway
		err   error
	)
	switch cfg.Provider {
	case "gemini":
		inner, err = NewGeminiGateway(ctx, cfg.Gemini, logger)
	case "http":
		inner, err = NewHTTPGateway(cfg.HTTP, logger)
	case "mock":
		inner = NewMockGateway()
	default:
		return nil, fmt.Errorf("unknown inference provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s gateway: %w", cfg.Provider, err)
	}

	logger.WithFields(logrus.Fields{
		"provider": cfg.Provider,
		"gateway":  inner.Name(),
	}).Info("Inference gateway configured")

	return NewResilientGateway(inner, cfg.Breaker, logger), nil
}
