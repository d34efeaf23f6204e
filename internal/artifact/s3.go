package artifact

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// S3API is the subset of the S3 client the sink uses.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink uploads artifacts to <prefix>/<session id>/<name> in a bucket.
type S3Sink struct {
	client    S3API
	bucket    string
	prefix    string
	sessionID string
}

// NewS3Sink creates a sink using the default AWS credential chain.
func NewS3Sink(ctx context.Context, bucket, prefix, sessionID string) (*S3Sink, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return NewS3SinkWithClient(s3.NewFromConfig(cfg), bucket, prefix, sessionID), nil
}

// NewS3SinkWithClient creates a sink around an existing client.
func NewS3SinkWithClient(client S3API, bucket, prefix, sessionID string) *S3Sink {
	return &S3Sink{client: client, bucket: bucket, prefix: prefix, sessionID: sessionID}
}

// Key returns the object key for name.
func (s *S3Sink) Key(name string) string {
	return path.Join(s.prefix, s.sessionID, name)
}

func (s *S3Sink) Save(ctx context.Context, name string, data []byte) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	key := s.Key(name)
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	log.Debug().
		Str("bucket", s.bucket).
		Str("key", key).
		Int("bytes", len(data)).
		Msg("Uploading artifact to S3")

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload artifact to S3: %w", err)
	}

	location := fmt.Sprintf("s3://%s/%s", s.bucket, key)
	log.Info().Str("location", location).Msg("Artifact uploaded to S3")
	return location, nil
}
