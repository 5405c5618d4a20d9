package fs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-repository/pkg/ingest"
)

func newBackend(t *testing.T) (*Backend, string) {
	t.Helper()
	tmp := t.TempDir()
	b, err := New(Config{BaseDir: tmp, NoSync: true})
	require.NoError(t, err)
	return b, b.Root()
}

func TestFSBackend_Store(t *testing.T) {
	backend, root := newBackend(t)
	ctx := context.Background()
	key := "org/acme/lib/1.0/lib-1.0.jar"

	n, err := backend.Store(ctx, key, bytes.NewReader([]byte("jar bytes")))
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)

	got, err := os.ReadFile(filepath.Join(root, "org", "acme", "lib", "1.0", "lib-1.0.jar"))
	require.NoError(t, err)
	assert.Equal(t, "jar bytes", string(got))
	assert.True(t, backend.Exists(key))
}

func TestFSBackend_StoreOverwrites(t *testing.T) {
	backend, root := newBackend(t)
	ctx := context.Background()
	key := "acme/lib/1.0/lib.jar"

	_, err := backend.Store(ctx, key, strings.NewReader("first upload, longer content"))
	require.NoError(t, err)
	_, err = backend.Store(ctx, key, strings.NewReader("second"))
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(root, "acme", "lib", "1.0", "lib.jar"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
}

func TestFSBackend_FailedWriteLeavesNothing(t *testing.T) {
	backend, root := newBackend(t)
	ctx := context.Background()
	key := "acme/lib/1.0/lib.jar"

	boom := errors.New("disk on fire")
	body := io.MultiReader(strings.NewReader("partial"), iotest.ErrReader(boom))

	_, err := backend.Store(ctx, key, body)
	require.Error(t, err)
	assert.ErrorIs(t, err, ingest.ErrStorageIO)
	assert.ErrorIs(t, err, boom)

	var storageErr *ingest.StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "write", storageErr.Op)

	assert.False(t, backend.Exists(key))
	entries, err := os.ReadDir(filepath.Join(root, "acme", "lib", "1.0"))
	require.NoError(t, err)
	assert.Empty(t, entries, "temp file must be cleaned up")
}

func TestFSBackend_FailedOverwriteKeepsPrevious(t *testing.T) {
	backend, root := newBackend(t)
	ctx := context.Background()
	key := "acme/lib/1.0/lib.pom"

	_, err := backend.Store(ctx, key, strings.NewReader("good"))
	require.NoError(t, err)

	_, err = backend.Store(ctx, key, iotest.ErrReader(errors.New("reset by peer")))
	require.Error(t, err)

	got, err := os.ReadFile(filepath.Join(root, "acme", "lib", "1.0", "lib.pom"))
	require.NoError(t, err)
	assert.Equal(t, "good", string(got))
}

func TestFSBackend_CanceledContext(t *testing.T) {
	backend, _ := newBackend(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := backend.Store(ctx, "acme/lib/1.0/lib.jar", strings.NewReader("data"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, backend.Exists("acme/lib/1.0/lib.jar"))
}

func TestFSBackend_RejectsEscapingKeys(t *testing.T) {
	backend, _ := newBackend(t)
	_, err := backend.Store(context.Background(), "../outside.jar", strings.NewReader("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ingest.ErrStorageIO)
}

func TestFSBackend_RequiresBaseDir(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base directory is required")
}
