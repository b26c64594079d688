package photos

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/muzz-introductions/internal/config"
)

type fakePresigner struct {
	gotBucket, gotKey string
	gotExpiry         time.Duration
	err               error
}

func (f *fakePresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, opts ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	if f.err != nil {
		return nil, f.err
	}
	var po s3.PresignOptions
	for _, o := range opts {
		o(&po)
	}
	f.gotBucket, f.gotKey, f.gotExpiry = aws.ToString(in.Bucket), aws.ToString(in.Key), po.Expires
	return &v4.PresignedHTTPRequest{URL: "https://signed.example/" + f.gotKey}, nil
}

func TestS3Signer_PresignsKeys(t *testing.T) {
	fp := &fakePresigner{}
	s := NewS3Signer(fp, "photos", time.Minute)

	url, err := s.URL(context.Background(), "/profile-pics/u1.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://signed.example/profile-pics/u1.jpg", url)
	assert.Equal(t, "photos", fp.gotBucket)
	assert.Equal(t, time.Minute, fp.gotExpiry)
}

func TestS3Signer_LeavesAbsoluteURLsAndEmpty(t *testing.T) {
	fp := &fakePresigner{err: errors.New("should not be called")}
	s := NewS3Signer(fp, "photos", 0)

	url, err := s.URL(context.Background(), "https://cdn.example/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/a.jpg", url)

	url, err = s.URL(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, url)
}

func TestNew_WithoutBucketIsPassthrough(t *testing.T) {
	cfg := config.New()
	cfg.S3.Bucket = ""
	s, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, Passthrough{}, s)
}
