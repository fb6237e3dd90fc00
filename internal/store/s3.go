package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
)

// S3Client abstracts the S3 API operations used by [S3Mirror].
// The [s3.Client] type satisfies this interface.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Mirror uploads compressed recording artifacts to an S3 bucket or any
// S3-compatible object store (MinIO, R2, etc.).
//
// The mirror is a convenience copy: the Postgres audio store stays the
// durability anchor, so callers log mirror failures and move on.
type S3Mirror struct {
	client S3Client
	bucket string
	prefix string
}

// NewS3Mirror creates a mirror targeting bucket. The client should be
// pre-configured (credentials, region, endpoint). Prefix is prepended to all
// object keys; pass "" for no prefix.
func NewS3Mirror(client S3Client, bucket, prefix string) *S3Mirror {
	return &S3Mirror{client: client, bucket: bucket, prefix: prefix}
}

// Upload stores data as <prefix>/<recordingID>.<ext> and returns the object
// key, which the caller records in recordings.s3_key.
func (m *S3Mirror) Upload(ctx context.Context, recordingID uuid.UUID, ext string, data []byte) (string, error) {
	key := m.key(recordingID.String() + "." + ext)

	_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentTypeFor(ext)),
	})
	if err != nil {
		if code := apiErrorCode(err); code != "" {
			return "", fmt.Errorf("s3 mirror: put %s: %s: %w", key, code, err)
		}
		return "", fmt.Errorf("s3 mirror: put %s: %w", key, err)
	}
	return key, nil
}

// IsBucketMissing reports whether err is S3's NoSuchBucket response: a
// misconfigured mirror rather than a transient failure.
func IsBucketMissing(err error) bool {
	return apiErrorCode(err) == "NoSuchBucket"
}

// apiErrorCode extracts the S3 API error code, or "" for non-API errors.
func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// key builds the full S3 object key for the given file name.
func (m *S3Mirror) key(name string) string {
	if m.prefix == "" {
		return name
	}
	return m.prefix + "/" + name
}

// contentTypeFor maps a recording format tag to its MIME type.
func contentTypeFor(ext string) string {
	switch ext {
	case "mp3":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	case "opus":
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}
