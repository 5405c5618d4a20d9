package memory

import (
	"context"
	"io"
	"sort"
	"sync"

	"github.com/tendant/simple-repository/pkg/ingest"
)

const backendName = "memory"

// Backend is an in-memory implementation of the ingest.ContentStore interface
type Backend struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// New creates a new in-memory storage backend
func New() *Backend {
	return &Backend{
		objects: make(map[string][]byte),
	}
}

// Store reads the whole body before publishing it, so a failed read
// leaves any previous object in place.
func (b *Backend) Store(ctx context.Context, key string, r io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, &ingest.StorageError{Backend: backendName, Key: key, Op: "write", Err: err}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, &ingest.StorageError{Backend: backendName, Key: key, Op: "write", Err: err}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
	return int64(len(data)), nil
}

// Get returns a copy of the object stored at key
func (b *Backend) Get(key string) ([]byte, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, ok := b.objects[key]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, true
}

// Exists reports whether key holds an object
func (b *Backend) Exists(key string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.objects[key]
	return ok
}

// Keys lists stored keys in sorted order
func (b *Backend) Keys() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
