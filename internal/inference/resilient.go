package inference

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/symptom-checker-server/internal/domain"
)

// ResilientGateway wraps a gateway with a circuit breaker. Calls are never retried; while the
// breaker is open they fail immediately. Every failure is reported as ErrGatewayFailure with
// the cause attached for logging.
type ResilientGateway struct {
	inner   domain.InferenceGateway
	breaker *gobreaker.CircuitBreaker
	tracer  trace.Tracer
	logger  *logrus.Logger
}

const tracerName = "github.com/symptom-checker-server/internal/inference"

// NewResilientGateway wraps inner with a breaker configured from cfg.
func NewResilientGateway(inner domain.InferenceGateway, cfg domain.CircuitBreakerConfig, logger *logrus.Logger) *ResilientGateway {
	minRequests := cfg.MinRequests
	if minRequests == 0 {
		minRequests = 3
	}
	failureRatio := cfg.FailureRatio
	if failureRatio <= 0 {
		failureRatio = 0.6
	}
	maxRequests := cfg.MaxRequests
	if maxRequests == 0 {
		maxRequests = 1
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := &ResilientGateway{inner: inner, tracer: otel.Tracer(tracerName), logger: logger}
	r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        inner.Name(),
		MaxRequests: maxRequests,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= failureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"gateway": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Inference circuit breaker changed state")
		},
		// A caller that gave up is not a gateway fault.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return r
}

// Name returns the wrapped gateway's name.
func (r *ResilientGateway) Name() string {
	return r.inner.Name()
}

// State returns the breaker state, for health reporting.
func (r *ResilientGateway) State() gobreaker.State {
	return r.breaker.State()
}

// AnalyzeSymptoms implements domain.InferenceGateway.
func (r *ResilientGateway) AnalyzeSymptoms(ctx context.Context, in *domain.AnalyzeSymptomsInput) (*domain.AnalyzeSymptomsOutput, error) {
	ctx, span := r.tracer.Start(ctx, "inference.AnalyzeSymptoms", trace.WithAttributes(
		attribute.String("inference.gateway", r.inner.Name()),
		attribute.Int("inference.symptom_count", len(in.Symptoms)),
		attribute.Bool("inference.with_image", in.Image != nil),
	))
	defer span.End()

	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.inner.AnalyzeSymptoms(ctx, in)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "gateway failure")
		return nil, fmt.Errorf("%w: %w", domain.ErrGatewayFailure, err)
	}

	out, ok := result.(*domain.AnalyzeSymptomsOutput)
	if !ok || out == nil {
		span.SetStatus(codes.Error, "no output")
		return nil, fmt.Errorf("%w: gateway returned no output", domain.ErrGatewayFailure)
	}
	span.SetAttributes(attribute.Int("inference.diagnosis_count", len(out.Diagnoses)))
	return out, nil
}

// Close closes the wrapped gateway when it holds resources.
func (r *ResilientGateway) Close() error {
	if c, ok := r.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
