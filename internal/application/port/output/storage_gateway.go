package output

import (
	"context"
	"time"
)

// StorageGateway is the interface for artifact storage operations.
// Supports both local filesystem and cloud storage (S3).
type StorageGateway interface {
	// SaveArtifact persists a stage artifact to storage
	SaveArtifact(ctx context.Context, req SaveArtifactRequest) (*ArtifactMetadata, error)

	// LoadArtifact retrieves an artifact from storage
	LoadArtifact(ctx context.Context, artifactID string) (*Artifact, error)

	// ListArtifacts lists artifacts for a given run
	ListArtifacts(ctx context.Context, runID string) ([]*ArtifactMetadata, error)
}

// SaveArtifactRequest represents a request to save an artifact
type SaveArtifactRequest struct {
	RunID       string            // Owning run
	Stage       string            // Producing stage
	Attempt     int               // Stage attempt number
	Content     []byte            // Artifact content
	ContentType string            // MIME type (optional)
	Metadata    map[string]string // Additional metadata
}

// Artifact represents a stored artifact
type Artifact struct {
	ID       string
	Content  []byte
	Metadata ArtifactMetadata
}

// ArtifactMetadata contains information about an artifact
type ArtifactMetadata struct {
	ID          string            // Unique artifact ID
	RunID       string            // Owning run
	Stage       string            // Producing stage
	Attempt     int               // Stage attempt number
	StoragePath string            // Storage path (e.g. s3://bucket/key)
	ContentType string            // MIME type
	Size        int64             // Size in bytes
	UploadedAt  time.Time         // Upload timestamp
	Metadata    map[string]string // Additional metadata
}
