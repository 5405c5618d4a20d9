package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-repository/pkg/ingest"
)

// Repository implements ingest.CoordinateIndex using in-memory storage
type Repository struct {
	mu      sync.RWMutex
	entries map[ingest.Coordinate]*ingest.IndexEntry
	now     func() time.Time
}

// New creates a new in-memory coordinate index
func New() *Repository {
	return &Repository{
		entries: make(map[ingest.Coordinate]*ingest.IndexEntry),
		now:     time.Now,
	}
}

func (r *Repository) Find(ctx context.Context, c ingest.Coordinate) (*ingest.IndexEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[c]
	if !ok {
		return nil, &ingest.IndexError{Coordinate: c, Op: "find", Err: ingest.ErrCoordinateNotFound}
	}
	return copyEntry(entry), nil
}

func (r *Repository) Exists(ctx context.Context, c ingest.Coordinate) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[c]
	return ok, nil
}

func (r *Repository) Insert(ctx context.Context, who ingest.Identity, d ingest.Descriptor) error {
	if err := d.Validate(); err != nil {
		return &ingest.IndexError{Coordinate: d.Coordinate, Op: "insert", Err: err}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[d.Coordinate]; ok {
		return &ingest.IndexError{Coordinate: d.Coordinate, Op: "insert", Err: ingest.ErrCoordinateExists}
	}
	r.insertLocked(who, d)
	return nil
}

func (r *Repository) Update(ctx context.Context, who ingest.Identity, d ingest.Descriptor) error {
	if err := d.Validate(); err != nil {
		return &ingest.IndexError{Coordinate: d.Coordinate, Op: "update", Err: err}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[d.Coordinate]
	if !ok {
		return &ingest.IndexError{Coordinate: d.Coordinate, Op: "update", Err: ingest.ErrCoordinateNotFound}
	}
	r.updateLocked(entry, who, d)
	return nil
}

// Upsert checks and writes under a single lock, so concurrent uploads of
// the same coordinate never produce two entries.
func (r *Repository) Upsert(ctx context.Context, who ingest.Identity, d ingest.Descriptor, mode ingest.UpsertMode) (bool, error) {
	if err := d.Validate(); err != nil {
		return false, &ingest.IndexError{Coordinate: d.Coordinate, Op: "upsert", Err: err}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[d.Coordinate]
	if !ok {
		r.insertLocked(who, d)
		return true, nil
	}
	if mode == ingest.UpsertRefresh {
		r.updateLocked(entry, who, d)
	}
	return false, nil
}

// List returns all entries ordered by coordinate
func (r *Repository) List(ctx context.Context) ([]*ingest.IndexEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*ingest.IndexEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, copyEntry(e))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Coordinate().String() < out[j].Coordinate().String()
	})
	return out, nil
}

func (r *Repository) insertLocked(who ingest.Identity, d ingest.Descriptor) {
	now := r.now().UTC()
	r.entries[d.Coordinate] = &ingest.IndexEntry{
		ID:         uuid.New(),
		Descriptor: d,
		PackageURL: d.PackageURL(),
		CreatedBy:  who,
		UpdatedBy:  who,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (r *Repository) updateLocked(entry *ingest.IndexEntry, who ingest.Identity, d ingest.Descriptor) {
	entry.Descriptor = d
	entry.UpdatedBy = who
	entry.UpdatedAt = r.now().UTC()
}

func copyEntry(e *ingest.IndexEntry) *ingest.IndexEntry {
	c := *e
	c.Descriptor.Licenses = append([]string(nil), e.Descriptor.Licenses...)
	c.Descriptor.Dependencies = append([]ingest.Dependency(nil), e.Descriptor.Dependencies...)
	if e.Descriptor.Parent != nil {
		p := *e.Descriptor.Parent
		c.Descriptor.Parent = &p
	}
	return &c
}
