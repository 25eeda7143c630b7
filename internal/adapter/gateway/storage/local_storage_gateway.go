// Package storage provides artifact storage gateways: a local
// filesystem implementation and an S3-backed one behind the same port.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/application/port/output"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/repository"
)

// LocalStorageGateway implements StorageGateway on a filesystem.
// Directory structure: <baseDir>/<runID>/<artifactID>/
//   - content: artifact content
//   - metadata.json: artifact metadata
type LocalStorageGateway struct {
	fs      afero.Fs
	baseDir string
}

// NewLocalStorageGateway creates a filesystem-backed storage gateway
func NewLocalStorageGateway(fs afero.Fs, baseDir string) (*LocalStorageGateway, error) {
	if err := fs.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifacts directory: %w", err)
	}
	return &LocalStorageGateway{fs: fs, baseDir: baseDir}, nil
}

// SaveArtifact writes content and metadata under the run's directory
func (g *LocalStorageGateway) SaveArtifact(ctx context.Context, req output.SaveArtifactRequest) (*output.ArtifactMetadata, error) {
	artifactID := generateArtifactID(req.Content)

	artifactDir := filepath.Join(g.baseDir, req.RunID, artifactID)
	if err := g.fs.MkdirAll(artifactDir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}

	contentPath := filepath.Join(artifactDir, "content")
	if err := afero.WriteFile(g.fs, contentPath, req.Content, 0o644); err != nil {
		return nil, fmt.Errorf("write artifact content: %w", err)
	}

	metadata := output.ArtifactMetadata{
		ID:          artifactID,
		RunID:       req.RunID,
		Stage:       req.Stage,
		Attempt:     req.Attempt,
		StoragePath: contentPath,
		ContentType: req.ContentType,
		Size:        int64(len(req.Content)),
		UploadedAt:  time.Now().UTC(),
		Metadata:    req.Metadata,
	}

	metadataJSON, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	if err := afero.WriteFile(g.fs, filepath.Join(artifactDir, "metadata.json"), metadataJSON, 0o644); err != nil {
		return nil, fmt.Errorf("write metadata: %w", err)
	}

	return &metadata, nil
}

// LoadArtifact searches all run directories for the artifact id
func (g *LocalStorageGateway) LoadArtifact(ctx context.Context, artifactID string) (*output.Artifact, error) {
	runDirs, err := afero.ReadDir(g.fs, g.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read artifacts directory: %w", err)
	}

	for _, rd := range runDirs {
		if !rd.IsDir() {
			continue
		}
		artifactDir := filepath.Join(g.baseDir, rd.Name(), artifactID)
		if ok, _ := afero.DirExists(g.fs, artifactDir); !ok {
			continue
		}
		return g.readArtifact(artifactDir, artifactID)
	}
	return nil, fmt.Errorf("artifact %s: %w", artifactID, repository.ErrNotFound)
}

// ListArtifacts returns metadata for every artifact of a run
func (g *LocalStorageGateway) ListArtifacts(ctx context.Context, runID string) ([]*output.ArtifactMetadata, error) {
	runDir := filepath.Join(g.baseDir, runID)
	entries, err := afero.ReadDir(g.fs, runDir)
	if err != nil {
		// A run with no artifacts is not an error
		return nil, nil
	}

	var out []*output.ArtifactMetadata
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		data, err := afero.ReadFile(g.fs, filepath.Join(runDir, e.Name(), "metadata.json"))
		if err != nil {
			continue
		}
		var m output.ArtifactMetadata
		if err := json.Unmarshal(data, &m); err != nil {
			continue
		}
		out = append(out, &m)
	}
	return out, nil
}

func (g *LocalStorageGateway) readArtifact(artifactDir, artifactID string) (*output.Artifact, error) {
	content, err := afero.ReadFile(g.fs, filepath.Join(artifactDir, "content"))
	if err != nil {
		return nil, fmt.Errorf("read artifact content: %w", err)
	}
	a := &output.Artifact{ID: artifactID, Content: content}
	if data, err := afero.ReadFile(g.fs, filepath.Join(artifactDir, "metadata.json")); err == nil {
		_ = json.Unmarshal(data, &a.Metadata)
	}
	return a, nil
}

// generateArtifactID derives an id from the content hash plus timestamp
// so identical content saved twice still gets distinct ids
func generateArtifactID(content []byte) string {
	sum := sha256.Sum256(content)
	return fmt.Sprintf("%s-%d", hex.EncodeToString(sum[:6]), time.Now().UnixNano()%1_000_000)
}
