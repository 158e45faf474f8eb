package logging

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// Redacted replaces the value of a sensitive field.
const Redacted = "[REDACTED]"

const maxFieldLength = 1000

// sensitivePatterns match field keys that may carry credentials or patient data.
var sensitivePatterns = []string{
	"password", "token", "secret", "api_key", "apikey", "auth",
	"patient", "name", "symptom", "condition", "medication", "history", "image", "preview",
}

// allowedKeys are exact keys that match a pattern but never carry sensitive values.
var allowedKeys = map[string]bool{
	"request_id":     true,
	"symptom_count":  true,
	"diagnoses":      true,
	"event":          true,
	"gateway":        true,
	"with_image":     true,
	"had_image":      true,
	"image_token":    true,
	"session_id":     true,
	"correlation_id": true,
}

// RedactHook scrubs sensitive fields from every entry before it is formatted.
type RedactHook struct{}

// NewRedactHook creates the hook.
func NewRedactHook() *RedactHook {
	return &RedactHook{}
}

// Levels implements logrus.Hook.
func (h *RedactHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire implements logrus.Hook.
func (h *RedactHook) Fire(entry *logrus.Entry) error {
	for k, v := range entry.Data {
		entry.Data[k] = sanitizeField(k, v)
	}
	return nil
}

func sanitizeField(key string, value interface{}) interface{} {
	lowerKey := strings.ToLower(key)
	if !allowedKeys[lowerKey] {
		for _, pattern := range sensitivePatterns {
			if strings.Contains(lowerKey, pattern) {
				return Redacted
			}
		}
	}

	// Truncate very long values
	if str, ok := value.(string); ok && len(str) > maxFieldLength {
		return str[:maxFieldLength] + "... [TRUNCATED]"
	}
	return value
}
