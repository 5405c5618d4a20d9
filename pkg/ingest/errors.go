package ingest

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrPathRejected indicates the request path is not a recognized upload shape
	ErrPathRejected = errors.New("path rejected")

	// ErrUnauthorized indicates the caller may not write to the target group
	ErrUnauthorized = errors.New("unauthorized")

	// ErrDescriptorMalformed indicates the uploaded descriptor could not be parsed
	ErrDescriptorMalformed = errors.New("descriptor malformed")

	// ErrStorageIO indicates the content store failed to persist the upload
	ErrStorageIO = errors.New("storage i/o failure")

	// ErrCoordinateNotFound indicates the coordinate has no index entry
	ErrCoordinateNotFound = errors.New("coordinate not found")

	// ErrCoordinateExists indicates an insert hit an existing index entry
	ErrCoordinateExists = errors.New("coordinate already exists")

	// ErrQueueClosed indicates the promotion queue no longer accepts tasks
	ErrQueueClosed = errors.New("promotion queue closed")
)

// UploadError represents a failed upload stage
type UploadError struct {
	Op   string
	Path string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s failed for %s: %v", e.Op, e.Path, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to storage operations.
// It always matches ErrStorageIO.
type StorageError struct {
	Backend string
	Key     string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorageIO
}

// IndexError represents an error related to coordinate index operations
type IndexError struct {
	Coordinate Coordinate
	Op         string
	Err        error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index operation %s failed for %s: %v", e.Op, e.Coordinate, e.Err)
}

func (e *IndexError) Unwrap() error {
	return e.Err
}
