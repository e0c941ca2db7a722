// Package s3 implements storage.Provider on S3-compatible object stores
// (AWS S3, Cloudflare R2, MinIO).
package s3

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	awss3 "github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/mediagatehq/mediagate/internal/config"
	"github.com/mediagatehq/mediagate/internal/storage"
)

// Provider stores media assets in an S3 bucket.
type Provider struct {
	client   *awss3.S3
	uploader *s3manager.Uploader
	bucket   string
}

// New creates an S3-backed storage provider. A non-empty endpoint switches
// to path-style addressing for S3-compatible stores.
func New(cfg config.StorageConfig) (*Provider, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required for s3 storage")
	}

	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	awsConfig := &aws.Config{
		Region:      aws.String(region),
		Credentials: credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""),
	}
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("create s3 session: %w", err)
	}

	return &Provider{
		client:   awss3.New(sess),
		uploader: s3manager.NewUploader(sess),
		bucket:   cfg.Bucket,
	}, nil
}

// Put uploads an object to the bucket.
func (p *Provider) Put(ctx context.Context, key string, reader io.Reader, contentType string) error {
	input := &s3manager.UploadInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
		Body:   reader,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := p.uploader.UploadWithContext(ctx, input); err != nil {
		return fmt.Errorf("upload to s3: %w", err)
	}
	return nil
}

// Open retrieves an object from the bucket.
func (p *Provider) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := p.client.GetObjectWithContext(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == awss3.ErrCodeNoSuchKey {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get from s3: %w", err)
	}
	return out.Body, nil
}

// Delete removes an object from the bucket.
func (p *Provider) Delete(ctx context.Context, key string) error {
	_, err := p.client.DeleteObjectWithContext(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete from s3: %w", err)
	}
	return nil
}

// SignedURL mints a presigned GET URL for the object.
func (p *Provider) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	req, _ := p.client.GetObjectRequest(&awss3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	url, err := req.Presign(ttl)
	if err != nil {
		return "", fmt.Errorf("presign url: %w", err)
	}
	if strings.TrimSpace(url) == "" {
		return "", fmt.Errorf("presign returned empty url")
	}
	return url, nil
}
