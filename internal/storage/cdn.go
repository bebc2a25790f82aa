// Package storage publishes globally scoped preview manifests to an
// S3-compatible CDN bucket (e.g. RustFS).
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/Dexploarer/forge-sub003/internal/domain"
)

// CDNClientConfig holds configuration for CDNClient
type CDNClientConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UsePathStyle    bool
}

// CDNClient writes manifest JSON to S3-compatible storage and presigns reads
type CDNClient struct {
	client            *s3.Client
	presignClient     *s3.PresignClient
	bucket            string
	downloadURLExpiry time.Duration
}

// NewCDNClient creates a new CDNClient with the given configuration
func NewCDNClient(ctx context.Context, cfg CDNClientConfig) (*CDNClient, error) {
	customResolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			if cfg.Endpoint != "" {
				return aws.Endpoint{
					URL:               cfg.Endpoint,
					HostnameImmutable: true,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		},
	)

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
		config.WithEndpointResolverWithOptions(customResolver),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Path-style addressing for S3-compatible services
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &CDNClient{
		client:            client,
		presignClient:     s3.NewPresignClient(client),
		bucket:            cfg.Bucket,
		downloadURLExpiry: 1 * time.Hour,
	}, nil
}

// manifestKey returns the bucket key for a manifest's published JSON
func manifestKey(manifestType string) string {
	return fmt.Sprintf("manifests/%s.json", manifestType)
}

// publishedManifest is the JSON document written to the CDN bucket
type publishedManifest struct {
	ID           string            `json:"id"`
	ManifestType string            `json:"manifestType"`
	Version      int32             `json:"version"`
	UpdatedAt    string            `json:"updatedAt"`
	Content      []json.RawMessage `json:"content"`
}

// PublishManifest writes a global manifest's JSON to the CDN bucket, keyed by
// manifest type so consumers always fetch the latest version. Returns the
// object key.
func (c *CDNClient) PublishManifest(ctx context.Context, manifest *domain.PreviewManifest) (string, error) {
	doc := publishedManifest{
		ID:           manifest.ID,
		ManifestType: manifest.ManifestType,
		Version:      manifest.Version,
		UpdatedAt:    manifest.UpdatedAt.UTC().Format(time.RFC3339Nano),
		Content:      manifest.Content,
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal manifest: %w", err)
	}

	key := manifestKey(manifest.ManifestType)
	_, err = c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to publish manifest: %w", err)
	}

	return key, nil
}

// DownloadURL creates a presigned URL for reading a published manifest
func (c *CDNClient) DownloadURL(ctx context.Context, manifestType string) (string, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(manifestKey(manifestType)),
	}

	presignedReq, err := c.presignClient.PresignGetObject(ctx, input, func(opts *s3.PresignOptions) {
		opts.Expires = c.downloadURLExpiry
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate download URL: %w", err)
	}

	return presignedReq.URL, nil
}

// DeleteManifest removes a published manifest from the bucket
func (c *CDNClient) DeleteManifest(ctx context.Context, manifestType string) error {
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(manifestKey(manifestType)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete manifest: %w", err)
	}

	return nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (c *CDNClient) EnsureBucket(ctx context.Context) error {
	_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err == nil {
		return nil
	}

	_, err = c.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}

	return nil
}
