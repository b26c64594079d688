package photos

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/oggyb/muzz-introductions/internal/config"
)

// Signer turns a stored photo reference into a URL a client can fetch.
type Signer interface {
	URL(ctx context.Context, ref string) (string, error)
}

// Passthrough returns references unchanged; used when no bucket is configured
// and profiles already store absolute URLs.
type Passthrough struct{}

func (Passthrough) URL(_ context.Context, ref string) (string, error) { return ref, nil }

// presignAPI is the slice of *s3.PresignClient the signer needs.
type presignAPI interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Signer presigns GET URLs for object keys in one bucket.
type S3Signer struct {
	presigner presignAPI
	bucket    string
	expiry    time.Duration
}

// NewS3Signer wraps an existing presign client.
func NewS3Signer(p presignAPI, bucket string, expiry time.Duration) *S3Signer {
	if expiry <= 0 {
		expiry = 5 * time.Minute
	}
	return &S3Signer{presigner: p, bucket: bucket, expiry: expiry}
}

// New returns an S3 signer when a bucket is configured, Passthrough otherwise.
func New(ctx context.Context, cfg *config.Config) (Signer, error) {
	if cfg.S3.Bucket == "" {
		return Passthrough{}, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	return NewS3Signer(s3.NewPresignClient(client), cfg.S3.Bucket, cfg.S3.URLExpiry), nil
}

// URL presigns ref. Absolute URLs are returned as-is.
func (s *S3Signer) URL(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		return "", nil
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref, nil
	}
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(strings.TrimPrefix(ref, "/")),
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", ref, err)
	}
	return req.URL, nil
}
