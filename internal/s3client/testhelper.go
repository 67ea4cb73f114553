package s3client

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
)

// TestClient creates an S3 client backed by gofakes3 for testing.
// The bucket is not created; call EnsureBucket or use TestClientWithBucket.
// The test server is automatically cleaned up when the test completes.
func TestClient(t testing.TB, bucketName string) *Client {
	t.Helper()

	faker := gofakes3.New(s3mem.New())
	ts := httptest.NewServer(faker.Server())
	t.Cleanup(ts.Close)

	sdkConfig, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("test-key", "test-secret", ""),
		),
	)
	if err != nil {
		t.Fatalf("failed to load AWS config: %v", err)
	}

	s3Client := s3.NewFromConfig(sdkConfig, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(ts.URL)
		o.UsePathStyle = true // Required for gofakes3
	})
	return NewFromS3Client(s3Client, bucketName, "inkpad")
}

// TestClientWithBucket is TestClient with the bucket already created.
func TestClientWithBucket(t testing.TB, bucketName string) *Client {
	t.Helper()
	c := TestClient(t, bucketName)
	if err := c.EnsureBucket(context.Background()); err != nil {
		t.Fatalf("failed to create test bucket: %v", err)
	}
	return c
}
