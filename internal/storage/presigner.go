// Package storage generates presigned object-store URLs so ingestion can
// read s3:// sources over plain HTTPS.
package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/mallard-db/mallard/internal/config"
)

// DefaultPresignExpiry is how long a presigned ingestion URL stays valid.
const DefaultPresignExpiry = 15 * time.Minute

// Presigner turns object-store paths into time-limited HTTPS URLs.
type Presigner interface {
	PresignGetObject(ctx context.Context, objectPath string, expiry time.Duration) (string, error)
}

// Compile-time check.
var _ Presigner = (*S3Presigner)(nil)

// S3Presigner generates presigned S3 URLs using the AWS SDK v2, configured
// with path-style addressing so it works against S3-compatible stores.
type S3Presigner struct {
	presignClient *s3.PresignClient
	bucket        string
}

// NewS3Presigner creates a presigner from session S3 configuration.
func NewS3Presigner(s3cfg config.S3Config) (*S3Presigner, error) {
	if !s3cfg.Complete() {
		return nil, fmt.Errorf("S3 config is incomplete")
	}

	endpoint := fmt.Sprintf("https://%s", *s3cfg.Endpoint)

	client := s3.New(s3.Options{
		Region: *s3cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(
			*s3cfg.KeyID, *s3cfg.Secret, "",
		),
		BaseEndpoint: aws.String(endpoint),
		UsePathStyle: true,
	})

	bucket := ""
	if s3cfg.Bucket != nil {
		bucket = *s3cfg.Bucket
	}

	return &S3Presigner{
		presignClient: s3.NewPresignClient(client),
		bucket:        bucket,
	}, nil
}

// PresignGetObject generates a presigned GET URL for an S3 object.
// objectPath is a full s3:// URI like "s3://bucket/data/flights.csv", or a
// bare key resolved against the configured default bucket.
func (p *S3Presigner) PresignGetObject(ctx context.Context, objectPath string, expiry time.Duration) (string, error) {
	bucket, key, err := ParseS3Path(objectPath)
	if err != nil {
		if p.bucket == "" {
			return "", err
		}
		bucket, key = p.bucket, strings.TrimPrefix(objectPath, "/")
	}
	if expiry <= 0 {
		expiry = DefaultPresignExpiry
	}

	result, err := p.presignClient.PresignGetObject(ctx,
		&s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		},
		s3.WithPresignExpires(expiry),
	)
	if err != nil {
		return "", fmt.Errorf("presign GetObject for %q: %w", objectPath, err)
	}
	return result.URL, nil
}

// Bucket returns the configured default bucket name.
func (p *S3Presigner) Bucket() string {
	return p.bucket
}

// ParseS3Path extracts bucket and key from an "s3://bucket/path/to/file" URI.
func ParseS3Path(objectPath string) (bucket, key string, err error) {
	u, err := url.Parse(objectPath)
	if err != nil {
		return "", "", fmt.Errorf("parse S3 path %q: %w", objectPath, err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("expected s3:// scheme, got %q in %q", u.Scheme, objectPath)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("empty key in S3 path %q", objectPath)
	}
	return bucket, key, nil
}
