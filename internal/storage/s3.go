package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// S3Store uploads artifacts to an S3 bucket.
type S3Store struct {
	client  s3iface.S3API
	bucket  string
	baseURL string
}

// NewS3Store opens an AWS session for region. Without baseURL objects are
// addressed through the bucket's virtual-hosted endpoint.
func NewS3Store(bucket, region, baseURL string) (*S3Store, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("storage: s3 bucket is required")
	}
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("storage: aws session: %w", err)
	}
	return NewS3StoreWithClient(s3.New(sess), bucket, region, baseURL), nil
}

// NewS3StoreWithClient wraps an existing client. The local filesystem
// default base URL never applies to a bucket.
func NewS3StoreWithClient(client s3iface.S3API, bucket, region, baseURL string) *S3Store {
	if strings.TrimSpace(baseURL) == "" || strings.Contains(baseURL, "localhost") {
		baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, region)
	}
	return &S3Store{client: client, bucket: bucket, baseURL: baseURL}
}

// Put uploads data and returns the object URL.
func (s *S3Store) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(cleanKey),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObjectWithContext(ctx, input); err != nil {
		return "", fmt.Errorf("storage: put s3 object %s: %w", cleanKey, err)
	}
	return joinURL(s.baseURL, cleanKey), nil
}
