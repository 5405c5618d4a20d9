package s3

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-repository/pkg/ingest"
)

func TestS3Backend_Configuration(t *testing.T) {
	t.Run("EmptyBucket", func(t *testing.T) {
		_, err := New(context.Background(), Config{Region: "us-east-1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket name is required")
	})

	t.Run("InvalidSSE", func(t *testing.T) {
		err := Config{Bucket: "b", EnableSSE: true, SSEAlgorithm: "rot13"}.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid SSE")
	})

	t.Run("DefaultRegion", func(t *testing.T) {
		backend, err := New(context.Background(), Config{
			Bucket:          "test-bucket",
			AccessKeyID:     "test-key",
			SecretAccessKey: "test-secret",
		})
		require.NoError(t, err)
		assert.Equal(t, "us-east-1", backend.config.Region)
	})

	t.Run("CustomEndpoint", func(t *testing.T) {
		backend, err := New(context.Background(), Config{
			Bucket:          "test-bucket",
			AccessKeyID:     "minioadmin",
			SecretAccessKey: "minioadmin",
			Endpoint:        "http://localhost:9000",
			UsePathStyle:    true,
		})
		require.NoError(t, err)
		assert.NotNil(t, backend.client)
		assert.NotNil(t, backend.uploader)
	})
}

func TestS3Backend_ObjectKey(t *testing.T) {
	b := &Backend{config: Config{Bucket: "b"}}
	assert.Equal(t, "org/acme/lib/1.0/lib.jar", b.ObjectKey("org/acme/lib/1.0/lib.jar"))

	b.config.Prefix = "/releases/"
	assert.Equal(t, "releases/org/acme/lib/1.0/lib.jar", b.ObjectKey("org/acme/lib/1.0/lib.jar"))
}

func TestS3Backend_StorageError(t *testing.T) {
	b := &Backend{config: Config{Bucket: "b"}}
	apiErr := &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}

	err := b.storageError("acme/lib/1.0/lib.jar", "upload", apiErr)
	assert.ErrorIs(t, err, ingest.ErrStorageIO)

	var storageErr *ingest.StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "upload (AccessDenied)", storageErr.Op)
	assert.Equal(t, "s3", storageErr.Backend)

	assert.Equal(t, "", apiErrorCode(errors.New("dial tcp: refused")))
}

func TestCountingReader(t *testing.T) {
	c := &countingReader{r: strings.NewReader("twelve bytes")}
	_, err := io.Copy(io.Discard, c)
	require.NoError(t, err)
	assert.Equal(t, int64(12), c.n)
}

// TestS3Backend_MinIO runs against a live endpoint when S3_TEST_ENDPOINT is set
func TestS3Backend_MinIO(t *testing.T) {
	endpoint := os.Getenv("S3_TEST_ENDPOINT")
	if endpoint == "" || testing.Short() {
		t.Skip("S3_TEST_ENDPOINT not set")
	}
	ctx := context.Background()

	backend, err := New(ctx, Config{
		Bucket:                 "ingest-test",
		AccessKeyID:            "minioadmin",
		SecretAccessKey:        "minioadmin",
		Endpoint:               endpoint,
		UsePathStyle:           true,
		CreateBucketIfNotExist: true,
	})
	require.NoError(t, err)

	key := "org/acme/lib/1.0/lib-1.0.jar"
	n, err := backend.Store(ctx, key, strings.NewReader("jar"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	ok, err := backend.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
}
