package domain

// RenderState distinguishes a populated result list from the informational empty state.
type RenderState string

const (
	RenderResults      RenderState = "results"
	RenderNoConditions RenderState = "no_conditions"
)

// Messages shown to the patient. The submission failure message never carries the cause.
const (
	NoConditionsMessage      = "No specific conditions identified based on the provided information."
	SubmissionFailureMessage = "Failed to analyze symptoms. Please try again."
	MedicalDisclaimer        = "This tool does not provide medical advice. Consult a qualified healthcare professional for diagnosis and treatment."
	NoneReported             = "None reported"
)

// RenderedDiagnosis is one item of the result list, in gateway order.
type RenderedDiagnosis struct {
	Rank       int            `json:"rank"`
	Condition  string         `json:"condition"`
	Confidence string         `json:"confidence"`
	Tier       ConfidenceTier `json:"tier"`
	Visual     VisualSeverity `json:"visual"`
	Badge      string         `json:"badge"`
	Icon       string         `json:"icon"`
}

// RenderedResult is the read-only view model produced from a gateway response.
type RenderedResult struct {
	State      RenderState         `json:"state"`
	Items      []RenderedDiagnosis `json:"items"`
	Message    string              `json:"message,omitempty"`
	Disclaimer string              `json:"disclaimer"`
}
