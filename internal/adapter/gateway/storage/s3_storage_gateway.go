package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/application/port/output"
)

// S3StorageGateway implements StorageGateway using AWS S3.
// Key structure: <prefix>/artifacts/<runID>/<artifactID>/
//   - content: artifact content
//   - metadata.json: artifact metadata
type S3StorageGateway struct {
	client     S3API
	bucketName string
	prefix     string
}

// S3Config holds S3 storage gateway configuration
type S3Config struct {
	BucketName string // S3 bucket name
	Prefix     string // Optional key prefix
	Region     string // AWS region (optional, uses default if empty)
}

// NewS3StorageGateway creates an S3-backed storage gateway
func NewS3StorageGateway(cfg S3Config) (*S3StorageGateway, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	if cfg.Region != "" {
		awsCfg.Region = cfg.Region
	}
	return &S3StorageGateway{
		client:     s3.NewFromConfig(awsCfg),
		bucketName: cfg.BucketName,
		prefix:     cfg.Prefix,
	}, nil
}

// NewS3StorageGatewayWithClient creates a gateway with a custom client.
// Primarily for tests with a mock S3 client.
func NewS3StorageGatewayWithClient(client S3API, bucketName, prefix string) *S3StorageGateway {
	return &S3StorageGateway{client: client, bucketName: bucketName, prefix: prefix}
}

// SaveArtifact uploads content and metadata to S3
func (g *S3StorageGateway) SaveArtifact(ctx context.Context, req output.SaveArtifactRequest) (*output.ArtifactMetadata, error) {
	artifactID := generateArtifactID(req.Content)
	contentKey := g.key("artifacts", req.RunID, artifactID, "content")

	contentType := req.ContentType
	if contentType == "" {
		contentType = "text/plain"
	}

	if _, err := g.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(g.bucketName),
		Key:         aws.String(contentKey),
		Body:        bytes.NewReader(req.Content),
		ContentType: aws.String(contentType),
		Metadata:    req.Metadata,
	}); err != nil {
		return nil, fmt.Errorf("put artifact content: %w", err)
	}

	metadata := output.ArtifactMetadata{
		ID:          artifactID,
		RunID:       req.RunID,
		Stage:       req.Stage,
		Attempt:     req.Attempt,
		StoragePath: fmt.Sprintf("s3://%s/%s", g.bucketName, contentKey),
		ContentType: contentType,
		Size:        int64(len(req.Content)),
		UploadedAt:  time.Now().UTC(),
		Metadata:    req.Metadata,
	}

	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	if _, err := g.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(g.bucketName),
		Key:         aws.String(g.key("artifacts", req.RunID, artifactID, "metadata.json")),
		Body:        bytes.NewReader(metadataJSON),
		ContentType: aws.String("application/json"),
	}); err != nil {
		return nil, fmt.Errorf("put artifact metadata: %w", err)
	}

	return &metadata, nil
}

// LoadArtifact locates the artifact by listing run prefixes
func (g *S3StorageGateway) LoadArtifact(ctx context.Context, artifactID string) (*output.Artifact, error) {
	listOut, err := g.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(g.bucketName),
		Prefix: aws.String(g.key("artifacts") + "/"),
	})
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}

	needle := "/" + artifactID + "/content"
	for _, obj := range listOut.Contents {
		key := aws.ToString(obj.Key)
		if !strings.HasSuffix(key, needle) {
			continue
		}
		getOut, err := g.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(g.bucketName),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, fmt.Errorf("get artifact content: %w", err)
		}
		defer getOut.Body.Close()
		content, err := io.ReadAll(getOut.Body)
		if err != nil {
			return nil, fmt.Errorf("read artifact content: %w", err)
		}

		a := &output.Artifact{ID: artifactID, Content: content}
		g.fillMetadata(ctx, strings.TrimSuffix(key, "content")+"metadata.json", a)
		return a, nil
	}
	return nil, fmt.Errorf("artifact %s not found in bucket %s", artifactID, g.bucketName)
}

// ListArtifacts returns metadata for every artifact of a run
func (g *S3StorageGateway) ListArtifacts(ctx context.Context, runID string) ([]*output.ArtifactMetadata, error) {
	listOut, err := g.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(g.bucketName),
		Prefix: aws.String(g.key("artifacts", runID) + "/"),
	})
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}

	var out []*output.ArtifactMetadata
	for _, obj := range listOut.Contents {
		key := aws.ToString(obj.Key)
		if !strings.HasSuffix(key, "/metadata.json") {
			continue
		}
		getOut, err := g.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(g.bucketName),
			Key:    aws.String(key),
		})
		if err != nil {
			continue
		}
		data, err := io.ReadAll(getOut.Body)
		getOut.Body.Close()
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

func (g *S3StorageGateway) fillMetadata(ctx context.Context, metadataKey string, a *output.Artifact) {
	getOut, err := g.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(g.bucketName),
		Key:    aws.String(metadataKey),
	})
	if err != nil {
		return
	}
	defer getOut.Body.Close()
	if data, err := io.ReadAll(getOut.Body); err == nil {
		_ = json.Unmarshal(data, &a.Metadata)
	}
}

func (g *S3StorageGateway) key(parts ...string) string {
	if g.prefix != "" {
		parts = append([]string{g.prefix}, parts...)
	}
	return path.Join(parts...)
}
