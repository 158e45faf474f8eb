package domain

import "strings"

// ConfidenceTier is the closed set of confidence levels a diagnosis can be rendered with.
// Labels from the gateway are parsed into a tier once, at the response boundary.
type ConfidenceTier string

const (
	HIGH    ConfidenceTier = "High"
	MEDIUM  ConfidenceTier = "Medium"
	LOW     ConfidenceTier = "Low"
	UNKNOWN ConfidenceTier = "Unknown"
)

// VisualSeverity is the three-level visual treatment of a tier.
type VisualSeverity string

const (
	VisualPositive VisualSeverity = "positive"
	VisualCaution  VisualSeverity = "caution"
	VisualUnknown  VisualSeverity = "unknown"
)

// ParseConfidence maps a raw label to a tier. Matching is case-insensitive and ignores
// surrounding whitespace; anything unrecognized becomes UNKNOWN.
func ParseConfidence(raw string) ConfidenceTier {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "high":
		return HIGH
	case "medium":
		return MEDIUM
	case "low":
		return LOW
	default:
		return UNKNOWN
	}
}

// IsRecognized reports whether the tier is one of High, Medium or Low.
func (c ConfidenceTier) IsRecognized() bool {
	return c == HIGH || c == MEDIUM || c == LOW
}

// Visual returns the visual severity used when rendering the tier.
func (c ConfidenceTier) Visual() VisualSeverity {
	switch c {
	case HIGH:
		return VisualPositive
	case MEDIUM:
		return VisualCaution
	default:
		return VisualUnknown
	}
}

// Badge returns the badge variant for the tier.
func (c ConfidenceTier) Badge() string {
	switch c {
	case HIGH:
		return "default"
	case MEDIUM:
		return "secondary"
	default:
		return "outline"
	}
}

// Icon returns the icon name for the tier.
func (c ConfidenceTier) Icon() string {
	switch c {
	case HIGH:
		return "check-circle"
	case MEDIUM:
		return "alert-triangle"
	default:
		return "help-circle"
	}
}

// String returns the string representation of ConfidenceTier
func (c ConfidenceTier) String() string {
	return string(c)
}
