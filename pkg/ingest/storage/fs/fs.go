package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tendant/simple-repository/pkg/ingest"
)

const backendName = "fs"

// Backend is a filesystem implementation of the ingest.ContentStore interface.
// Keys map to paths below BaseDir.
type Backend struct {
	baseDir string
	noSync  bool
}

// Config options for the filesystem backend
type Config struct {
	BaseDir string // Root of the repository tree
	NoSync  bool   // Skip fsync before rename (tests only)
}

// New creates a new filesystem storage backend
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}

	abs, err := filepath.Abs(config.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Backend{
		baseDir: abs,
		noSync:  config.NoSync,
	}, nil
}

// Root returns the absolute storage root
func (b *Backend) Root() string {
	return b.baseDir
}

// Path resolves key to a filesystem path below the root
func (b *Backend) Path(key string) (string, error) {
	rel := filepath.FromSlash(key)
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("key %q escapes the storage root", key)
	}
	return filepath.Join(b.baseDir, rel), nil
}

// Store writes r to key. The body goes to a temp file next to the target,
// is synced and then renamed over it; on any failure the temp file is
// removed and the target is left as it was.
func (b *Backend) Store(ctx context.Context, key string, r io.Reader) (int64, error) {
	target, err := b.Path(key)
	if err != nil {
		return 0, b.storageError(key, "resolve", err)
	}

	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, b.storageError(key, "mkdir", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".tmp-*")
	if err != nil {
		return 0, b.storageError(key, "create", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	n, err := io.Copy(tmp, &contextReader{ctx: ctx, r: r})
	if err != nil {
		return n, b.storageError(key, "write", err)
	}
	if err := tmp.Chmod(0644); err != nil {
		return n, b.storageError(key, "chmod", err)
	}
	if !b.noSync {
		if err := tmp.Sync(); err != nil {
			return n, b.storageError(key, "sync", err)
		}
	}
	if err := tmp.Close(); err != nil {
		return n, b.storageError(key, "close", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return n, b.storageError(key, "rename", err)
	}

	success = true
	return n, nil
}

// Exists reports whether key holds a regular file
func (b *Backend) Exists(key string) bool {
	p, err := b.Path(key)
	if err != nil {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

func (b *Backend) storageError(key, op string, err error) error {
	return &ingest.StorageError{Backend: backendName, Key: key, Op: op, Err: err}
}

// contextReader stops a copy once the request context is done
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
