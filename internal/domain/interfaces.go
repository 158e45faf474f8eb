package domain

import (
	"context"
	"io"
)

// InferenceGateway is the external collaborator that turns a normalized request into an
// ordered list of candidate conditions. Implementations must not reorder the result.
type InferenceGateway interface {
	AnalyzeSymptoms(ctx context.Context, input *AnalyzeSymptomsInput) (*AnalyzeSymptomsOutput, error)
	Name() string
}

// ImageFile is a selected image before it has been read. Size and ContentType come from
// the upload metadata; Open reads the bytes.
type ImageFile interface {
	Filename() string
	Size() int64
	ContentType() string
	Open() (io.ReadCloser, error)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetInferenceConfig() *InferenceConfig
	GetFormsConfig() *FormsConfig
	GetAuditConfig() *AuditConfig
	Validate() error
}

// AuditRecorder persists one non-identifying record per analysis attempt.
type AuditRecorder interface {
	Record(ctx context.Context, record *AnalysisRecord) error
}
