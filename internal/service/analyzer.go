package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/symptom-checker-server/internal/domain"
)

// AnalyzeRequest is one submission. Either Image (already accepted, e.g. from a form
// session) or File (a fresh upload still to be checked) may be set.
type AnalyzeRequest struct {
	RequestID string
	Form      domain.RawForm
	Image     *domain.AcceptedImage
	File      domain.ImageFile
}

// AnalyzerService runs the intake pipeline: validate, normalize, call the gateway, render.
type AnalyzerService struct {
	logger     *logrus.Logger
	forms      *FormValidator
	images     *ImageValidator
	normalizer *Normalizer
	renderer   *Renderer
	gateway    domain.InferenceGateway
	audit      domain.AuditRecorder
	now        func() time.Time
}

// NewAnalyzerService creates a new analyzer service. audit may be nil.
func NewAnalyzerService(logger *logrus.Logger, gateway domain.InferenceGateway, audit domain.AuditRecorder) *AnalyzerService {
	return &AnalyzerService{
		logger:     logger,
		forms:      NewFormValidator(),
		images:     NewImageValidator(),
		normalizer: NewNormalizer(),
		renderer:   NewRenderer(),
		gateway:    gateway,
		audit:      audit,
		now:        time.Now,
	}
}

// Validator returns the form validator used by the pipeline.
func (s *AnalyzerService) Validator() *FormValidator { return s.forms }

// Images returns the image validator used by the pipeline.
func (s *AnalyzerService) Images() *ImageValidator { return s.images }

// Renderer returns the result renderer used by the pipeline.
func (s *AnalyzerService) Renderer() *Renderer { return s.renderer }

// Analyze runs a submission end to end. It returns domain.ValidationErrors when the form
// or image is rejected, *domain.ImageError when the image cannot be read and
// *domain.SubmissionError when encoding or the gateway fails.
func (s *AnalyzerService) Analyze(ctx context.Context, req AnalyzeRequest) (*domain.RenderedResult, error) {
	start := s.now()
	record := &domain.AnalysisRecord{
		RequestID:    req.RequestID,
		Gateway:      s.gateway.Name(),
		SymptomCount: len(req.Form.Symptoms),
		HadImage:     req.Image != nil || req.File != nil,
	}
	log := s.logger.WithFields(logrus.Fields{
		"request_id": req.RequestID,
		"gateway":    s.gateway.Name(),
	})

	validated, errs := s.forms.Validate(req.Form)

	image := req.Image
	if image == nil && req.File != nil {
		accepted, err := s.images.Check(req.File)
		if err != nil {
			var imgErr *domain.ImageError
			if errors.As(err, &imgErr) && imgErr.IsValidation() {
				errs = append(errs, domain.NewValidationError("image", domain.FieldErrorCode(imgErr.Code), imgErr.Message, req.File.Filename()))
			} else {
				log.WithError(err).Warn("Image could not be read")
				s.finish(ctx, record, domain.OutcomeImageRejected, start)
				return nil, err
			}
		}
		image = accepted
	}

	if len(errs) > 0 {
		outcome := domain.OutcomeValidationFailed
		if len(errs.For("image")) == len(errs) {
			outcome = domain.OutcomeImageRejected
		}
		log.WithField("fields", errs.Fields()).Info("Submission rejected by validation")
		s.finish(ctx, record, outcome, start)
		return nil, errs
	}

	input, err := s.normalizer.Normalize(ctx, validated, image)
	if err != nil {
		log.WithError(err).Error("Failed to normalize submission")
		s.finish(ctx, record, domain.OutcomeSubmissionFailed, start)
		return nil, err
	}

	output, err := s.gateway.AnalyzeSymptoms(ctx, input)
	if err != nil {
		log.WithError(err).Error("Inference gateway call failed")
		s.finish(ctx, record, domain.OutcomeSubmissionFailed, start)
		return nil, domain.NewSubmissionError(domain.StageGateway, err)
	}

	result := s.renderer.Render(output)
	record.DiagnosisCount = len(result.Items)
	log.WithFields(logrus.Fields{
		"diagnoses": len(result.Items),
		"state":     result.State,
	}).Info("Symptom analysis completed")
	s.finish(ctx, record, domain.OutcomeSucceeded, start)

	return result, nil
}

// finish writes the audit record. Audit failures are logged and never fail the request.
func (s *AnalyzerService) finish(ctx context.Context, record *domain.AnalysisRecord, outcome domain.AnalysisOutcome, start time.Time) {
	if s.audit == nil {
		return
	}
	record.Outcome = outcome
	record.CreatedAt = s.now().UTC()
	record.DurationMs = s.now().Sub(start).Milliseconds()

	if err := s.audit.Record(context.WithoutCancel(ctx), record); err != nil {
		s.logger.WithError(err).WithField("request_id", record.RequestID).Warn("Failed to write analysis audit record")
	}
}
