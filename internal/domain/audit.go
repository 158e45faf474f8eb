package domain

import "time"

// AnalysisOutcome is how an analysis attempt ended.
type AnalysisOutcome string

const (
	OutcomeSucceeded        AnalysisOutcome = "succeeded"
	OutcomeValidationFailed AnalysisOutcome = "validation_failed"
	OutcomeImageRejected    AnalysisOutcome = "image_rejected"
	OutcomeSubmissionFailed AnalysisOutcome = "submission_failed"
)

// IsValid reports whether o is a known outcome.
func (o AnalysisOutcome) IsValid() bool {
	switch o {
	case OutcomeSucceeded, OutcomeValidationFailed, OutcomeImageRejected, OutcomeSubmissionFailed:
		return true
	default:
		return false
	}
}

// AnalysisRecord describes an analysis attempt without any patient data: no names,
// symptoms, history or image bytes are kept.
type AnalysisRecord struct {
	ID             int64           `json:"id,omitempty"`
	RequestID      string          `json:"request_id"`
	Outcome        AnalysisOutcome `json:"outcome"`
	Gateway        string          `json:"gateway"`
	SymptomCount   int             `json:"symptom_count"`
	DiagnosisCount int             `json:"diagnosis_count"`
	HadImage       bool            `json:"had_image"`
	DurationMs     int64           `json:"duration_ms"`
	CreatedAt      time.Time       `json:"created_at"`
}

// AuditSummary aggregates records by outcome.
type AuditSummary struct {
	Total     int64                     `json:"total"`
	ByOutcome map[AnalysisOutcome]int64 `json:"by_outcome"`
	Since     *time.Time                `json:"since,omitempty"`
}
