package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/symptom-checker-server/internal/domain"
	"github.com/symptom-checker-server/internal/middleware"
)

// validationResponse is the body of a 422.
type validationResponse struct {
	*domain.APIError
	Errors map[string][]string `json:"errors"`
}

// writeError maps pipeline errors to HTTP responses. Submission failures always carry the
// generic message; the cause is only logged.
func (s *Server) writeError(c *gin.Context, err error) {
	requestID := middleware.GetRequestID(c)
	_ = c.Error(err)

	var (
		fieldErrs domain.ValidationErrors
		imgErr    *domain.ImageError
		subErr    *domain.SubmissionError
		maxErr    *http.MaxBytesError
	)
	switch {
	case errors.As(err, &fieldErrs):
		c.JSON(http.StatusUnprocessableEntity, validationResponse{
			APIError: domain.NewAPIError(domain.ErrValidation, "Please correct the highlighted fields.", "", requestID),
			Errors:   fieldErrs.ByField(),
		})
	case errors.As(err, &imgErr):
		status := http.StatusBadRequest
		code := domain.ErrImageRejected
		switch imgErr.Code {
		case domain.FileTooLarge:
			status = http.StatusRequestEntityTooLarge
		case domain.UnsupportedFileType:
			status = http.StatusUnsupportedMediaType
		case domain.FileReadError:
			code = domain.ErrImageRead
		}
		c.JSON(status, domain.NewAPIError(code, imgErr.Message, string(imgErr.Code), requestID))
	case errors.As(err, &subErr):
		c.JSON(http.StatusBadGateway, domain.NewAPIError(domain.ErrInference, subErr.PublicMessage(), "", requestID))
	case errors.Is(err, domain.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, domain.NewAPIError(domain.ErrNotFound, "Form session not found", "", requestID))
	case errors.Is(err, domain.ErrSubmissionInFlight):
		c.JSON(http.StatusConflict, domain.NewAPIError(domain.ErrConflict, err.Error(), "", requestID))
	case errors.As(err, &maxErr):
		c.JSON(http.StatusRequestEntityTooLarge, domain.NewAPIError(domain.ErrInvalidInput, "Request body too large", "", requestID))
	default:
		s.logger.WithError(err).WithField("request_id", requestID).Error("Unhandled request error")
		c.JSON(http.StatusInternalServerError, domain.NewAPIError(domain.ErrInternalServer, "Internal server error", "", requestID))
	}
}

func (s *Server) badRequest(c *gin.Context, message string, err error) {
	details := ""
	if err != nil {
		details = err.Error()
		_ = c.Error(err)
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusBadRequest, domain.NewAPIError(domain.ErrInvalidInput, message, details, middleware.GetRequestID(c)))
}
