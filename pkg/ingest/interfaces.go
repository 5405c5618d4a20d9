package ingest

import (
	"context"
	"io"
)

// ContentStore persists upload bodies under a deterministic key.
//
// Store must never leave a partially written object visible at key: on
// failure any temporary state is removed before the error is returned, and
// the error matches ErrStorageIO.
type ContentStore interface {
	// Store writes r to key, replacing any previous content, and returns the byte count
	Store(ctx context.Context, key string, r io.Reader) (int64, error)
}

// CoordinateIndex records which coordinates are known
type CoordinateIndex interface {
	// Find returns the entry for c or ErrCoordinateNotFound
	Find(ctx context.Context, c Coordinate) (*IndexEntry, error)

	// Exists reports whether c has an entry
	Exists(ctx context.Context, c Coordinate) (bool, error)

	// Insert creates an entry; ErrCoordinateExists if one is present
	Insert(ctx context.Context, who Identity, d Descriptor) error

	// Update refreshes an existing entry; ErrCoordinateNotFound if absent
	Update(ctx context.Context, who Identity, d Descriptor) error

	// Upsert inserts or, depending on mode, updates in a single atomic step.
	// It reports whether a new entry was created.
	Upsert(ctx context.Context, who Identity, d Descriptor, mode UpsertMode) (bool, error)
}

// Authorizer decides whether an identity may write under a dotted group
type Authorizer interface {
	// Authorize returns nil when allowed and an error matching ErrUnauthorized otherwise
	Authorize(ctx context.Context, who Identity, group string) error
}

// DescriptorParser turns a descriptor document into a Descriptor
type DescriptorParser interface {
	Parse(r io.Reader) (*Descriptor, error)
}

// Notifier is told about accepted uploads after the promotion task has been
// queued. Failures are the notifier's own concern.
type Notifier interface {
	UploadAccepted(ctx context.Context, task PromotionTask)
}
