package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxDescriptorSize bounds how much of a descriptor upload is buffered for parsing
const DefaultMaxDescriptorSize = 10 << 20

// service implements the Service interface
type service struct {
	store      ContentStore
	index      CoordinateIndex
	authorizer Authorizer
	parser     DescriptorParser
	queue      *Queue
	notifier   Notifier
	logger     *slog.Logger
	now        func() time.Time

	maxDescriptorSize int64
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithContentStore sets where upload bodies are persisted
func WithContentStore(store ContentStore) Option {
	return func(s *service) {
		s.store = store
	}
}

// WithIndex sets the coordinate index
func WithIndex(index CoordinateIndex) Option {
	return func(s *service) {
		s.index = index
	}
}

// WithAuthorizer sets the authorization gate
func WithAuthorizer(a Authorizer) Option {
	return func(s *service) {
		s.authorizer = a
	}
}

// WithDescriptorParser sets the parser used for descriptor uploads
func WithDescriptorParser(p DescriptorParser) Option {
	return func(s *service) {
		s.parser = p
	}
}

// WithQueue sets the promotion queue shared with the consumer
func WithQueue(q *Queue) Option {
	return func(s *service) {
		s.queue = q
	}
}

// WithNotifier sets the notifier told about accepted uploads
func WithNotifier(n Notifier) Option {
	return func(s *service) {
		s.notifier = n
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithClock overrides time.Now, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// WithMaxDescriptorSize caps descriptor uploads
func WithMaxDescriptorSize(n int64) Option {
	return func(s *service) {
		s.maxDescriptorSize = n
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		notifier:          NewNoopNotifier(),
		logger:            slog.Default(),
		now:               time.Now,
		maxDescriptorSize: DefaultMaxDescriptorSize,
	}

	for _, option := range options {
		option(s)
	}

	switch {
	case s.store == nil:
		return nil, fmt.Errorf("content store is required")
	case s.index == nil:
		return nil, fmt.Errorf("coordinate index is required")
	case s.authorizer == nil:
		return nil, fmt.Errorf("authorizer is required")
	case s.parser == nil:
		return nil, fmt.Errorf("descriptor parser is required")
	case s.queue == nil:
		return nil, fmt.Errorf("promotion queue is required")
	}

	return s, nil
}

func (s *service) PutArtifact(ctx context.Context, who Identity, p *UploadPath, body io.Reader) error {
	if p == nil || p.Kind != WriteKindArtifact {
		return &UploadError{Op: "classify", Path: pathString(p), Err: ErrPathRejected}
	}
	coord := p.Coordinate()
	key := p.StorageKey()

	if err := s.authorizer.Authorize(ctx, who, coord.Group); err != nil {
		return &UploadError{Op: "authorize", Path: key, Err: err}
	}

	task := PromotionTask{
		ID:       uuid.New(),
		Filename: p.Filename,
		Uploader: who,
	}

	if p.FileKind == FileKindDescriptor {
		desc, data, err := s.parseDescriptor(body)
		if err != nil {
			return &UploadError{Op: "parse", Path: key, Err: err}
		}
		merged := desc.MergeOver(coord)
		if merged.Group != coord.Group {
			if err := s.authorizer.Authorize(ctx, who, merged.Group); err != nil {
				return &UploadError{Op: "authorize", Path: key, Err: err}
			}
		}

		if _, err := s.store.Store(ctx, key, bytes.NewReader(data)); err != nil {
			return &UploadError{Op: "store", Path: key, Err: err}
		}
		if _, err := s.index.Upsert(ctx, who, merged, UpsertRefresh); err != nil {
			return &UploadError{Op: "index", Path: key, Err: err}
		}
		task.Coordinate = merged.Coordinate
		task.Descriptor = &merged
	} else {
		if _, err := s.store.Store(ctx, key, body); err != nil {
			return &UploadError{Op: "store", Path: key, Err: err}
		}
		inserted, err := s.index.Upsert(ctx, who, Descriptor{Coordinate: coord}, UpsertKeep)
		if err != nil {
			return &UploadError{Op: "index", Path: key, Err: err}
		}
		if inserted {
			s.logger.DebugContext(ctx, "Indexed new coordinate", "coordinate", coord.String())
		}
		task.Coordinate = coord
	}

	task.PackageURL = task.Coordinate.PackageURL()
	task.EnqueuedAt = s.now().UTC()
	s.enqueue(ctx, task)

	return nil
}

func (s *service) PutMetadata(ctx context.Context, who Identity, p *UploadPath, body io.Reader) error {
	if p == nil || p.Kind != WriteKindMetadata {
		return &UploadError{Op: "classify", Path: pathString(p), Err: ErrPathRejected}
	}
	key := p.StorageKey()

	if err := s.authorizer.Authorize(ctx, who, p.NormalizedGroup()); err != nil {
		return &UploadError{Op: "authorize", Path: key, Err: err}
	}
	if _, err := s.store.Store(ctx, key, body); err != nil {
		return &UploadError{Op: "store", Path: key, Err: err}
	}

	s.logger.InfoContext(ctx, "Stored metadata", "key", key, "uploader", string(who))
	return nil
}

func (s *service) FindCoordinate(ctx context.Context, c Coordinate) (*IndexEntry, error) {
	return s.index.Find(ctx, c)
}

// parseDescriptor buffers the whole body and parses it. Nothing is stored
// until this succeeds.
func (s *service) parseDescriptor(body io.Reader) (*Descriptor, []byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, s.maxDescriptorSize+1))
	if err != nil {
		return nil, nil, fmt.Errorf("read descriptor: %w", err)
	}
	if int64(len(data)) > s.maxDescriptorSize {
		return nil, nil, fmt.Errorf("%w: larger than %d bytes", ErrDescriptorMalformed, s.maxDescriptorSize)
	}

	desc, err := s.parser.Parse(bytes.NewReader(data))
	if err != nil {
		if !errors.Is(err, ErrDescriptorMalformed) {
			err = fmt.Errorf("%w: %v", ErrDescriptorMalformed, err)
		}
		return nil, nil, err
	}
	return desc, data, nil
}

func (s *service) enqueue(ctx context.Context, task PromotionTask) {
	if err := s.queue.Enqueue(task); err != nil {
		// already committed to storage and index; promotion is best effort from here
		s.logger.ErrorContext(ctx, "Failed to enqueue promotion task",
			"coordinate", task.Coordinate.String(), "error", err)
		return
	}
	s.notifier.UploadAccepted(ctx, task)
}

func pathString(p *UploadPath) string {
	if p == nil {
		return "<nil>"
	}
	return p.String()
}
