package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// APIError represents a standardized error response
type APIError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	ErrInvalidInput     = "INVALID_INPUT"
	ErrValidation       = "VALIDATION_ERROR"
	ErrImageRejected    = "IMAGE_REJECTED"
	ErrImageRead        = "IMAGE_READ_ERROR"
	ErrInference        = "INFERENCE_ERROR"
	ErrNotFound         = "NOT_FOUND"
	ErrConflict         = "CONFLICT"
	ErrRateLimit        = "RATE_LIMIT_EXCEEDED"
	ErrDatabaseError    = "DATABASE_ERROR"
	ErrInternalServer   = "INTERNAL_SERVER_ERROR"
	ErrServiceUnhealthy = "SERVICE_UNAVAILABLE"
)

// NewAPIError creates a new APIError with timestamp
func NewAPIError(code, message, details, requestID string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// FieldErrorCode classifies a field validation failure.
type FieldErrorCode string

const (
	RequiredField      FieldErrorCode = "RequiredField"
	InvalidType        FieldErrorCode = "InvalidType"
	OutOfRange         FieldErrorCode = "OutOfRange"
	RequiredCollection FieldErrorCode = "RequiredCollection"
	UnitRequired       FieldErrorCode = "UnitRequired"
	InvalidChoice      FieldErrorCode = "InvalidChoice"
)

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string         `json:"field"`
	Code    FieldErrorCode `json:"code"`
	Message string         `json:"message"`
	Value   interface{}    `json:"value,omitempty"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError
func NewValidationError(field string, code FieldErrorCode, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Code:    code,
		Message: message,
		Value:   value,
	}
}

// ValidationErrors collects every field violation found in a single pass.
type ValidationErrors []*ValidationError

// Error implements the error interface
func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "no validation errors"
	}
	parts := make([]string, 0, len(v))
	for _, e := range v {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return fmt.Sprintf("%d validation error(s): %s", len(v), strings.Join(parts, "; "))
}

// ByField groups messages by field path, preserving the order they were reported in.
func (v ValidationErrors) ByField() map[string][]string {
	out := make(map[string][]string, len(v))
	for _, e := range v {
		out[e.Field] = append(out[e.Field], e.Message)
	}
	return out
}

// Fields returns the sorted, de-duplicated field paths that carry an error.
func (v ValidationErrors) Fields() []string {
	seen := make(map[string]struct{}, len(v))
	fields := make([]string, 0, len(v))
	for _, e := range v {
		if _, ok := seen[e.Field]; ok {
			continue
		}
		seen[e.Field] = struct{}{}
		fields = append(fields, e.Field)
	}
	sort.Strings(fields)
	return fields
}

// For returns the errors reported for one field path.
func (v ValidationErrors) For(field string) ValidationErrors {
	var out ValidationErrors
	for _, e := range v {
		if e.Field == field {
			out = append(out, e)
		}
	}
	return out
}

// ImageErrorCode classifies an image intake failure.
type ImageErrorCode string

const (
	FileTooLarge        ImageErrorCode = "FileTooLarge"
	UnsupportedFileType ImageErrorCode = "UnsupportedFileType"
	FileReadError       ImageErrorCode = "FileReadError"
)

// ImageError is returned by the image intake validator. FileTooLarge and UnsupportedFileType
// are validation failures shown on the image field; FileReadError is an I/O failure.
type ImageError struct {
	Code    ImageErrorCode `json:"code"`
	Message string         `json:"message"`
	Cause   error          `json:"-"`
}

// Error implements the error interface
func (e *ImageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *ImageError) Unwrap() error {
	return e.Cause
}

// IsValidation reports whether the error belongs on the image field rather than in a
// separate notification.
func (e *ImageError) IsValidation() bool {
	return e.Code == FileTooLarge || e.Code == UnsupportedFileType
}

// NewImageError creates a new ImageError
func NewImageError(code ImageErrorCode, message string, cause error) *ImageError {
	return &ImageError{Code: code, Message: message, Cause: cause}
}

// Submission stages at which a validated form can still fail.
const (
	StageEncode  = "encode"
	StageGateway = "gateway"
	StageRender  = "render"
)

// SubmissionError wraps a failure that happens after validation passed. The cause is for
// logs only; callers show SubmissionFailureMessage to the patient.
type SubmissionError struct {
	Stage string
	Cause error
}

// Error implements the error interface
func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission failed at %s: %v", e.Stage, e.Cause)
}

// Unwrap returns the underlying cause
func (e *SubmissionError) Unwrap() error {
	return e.Cause
}

// PublicMessage returns the message safe to show to the patient.
func (e *SubmissionError) PublicMessage() string {
	return SubmissionFailureMessage
}

// NewSubmissionError creates a new SubmissionError
func NewSubmissionError(stage string, cause error) *SubmissionError {
	return &SubmissionError{Stage: stage, Cause: cause}
}

var (
	ErrGatewayFailure     = errors.New("inference gateway failure")
	ErrSessionNotFound    = errors.New("form session not found")
	ErrSubmissionInFlight = errors.New("a submission is already in progress")
)
