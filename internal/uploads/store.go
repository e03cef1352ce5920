package uploads

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// Store persists uploaded asset bytes and returns a public URL.
type Store interface {
	Save(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// S3Store uploads assets to an S3 bucket.
type S3Store struct {
	uploader *s3manager.Uploader
	bucket   string
	region   string
}

// NewS3Store constructs an S3-backed store.
func NewS3Store(bucket, region string) (*S3Store, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("aws session: %w", err)
	}
	return &S3Store{uploader: s3manager.NewUploader(sess), bucket: bucket, region: region}, nil
}

// Save uploads the asset and returns its public S3 URL.
func (s *S3Store) Save(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload: %w", err)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key), nil
}

// LocalStore writes assets under a directory on disk, for development and tests.
type LocalStore struct {
	Dir     string
	BaseURL string
}

// Save writes the asset to disk and returns its URL under BaseURL.
func (s LocalStore) Save(_ context.Context, key string, data []byte, _ string) (string, error) {
	full := filepath.Join(s.Dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	return strings.TrimRight(s.BaseURL, "/") + "/" + key, nil
}
