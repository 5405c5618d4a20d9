// Package promote consumes the promotion queue. Each task is handed to a
// Promoter with exponential backoff; a task that still fails is logged and
// dropped, since the upload it came from has already been committed.
package promote

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenk/backoff"
	"github.com/tendant/simple-repository/pkg/ingest"
)

// Promoter makes an ingested coordinate available downstream
type Promoter interface {
	Promote(ctx context.Context, task ingest.PromotionTask) error
}

// PromoterFunc adapts a function to the Promoter interface
type PromoterFunc func(ctx context.Context, task ingest.PromotionTask) error

func (f PromoterFunc) Promote(ctx context.Context, task ingest.PromotionTask) error {
	return f(ctx, task)
}

// permanentError marks a failure that retrying will not fix
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the worker gives up on the task immediately
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Worker drains a task channel into a Promoter
type Worker struct {
	source     <-chan ingest.PromotionTask
	promoter   Promoter
	logger     *slog.Logger
	maxRetries uint64
	newBackOff func() backoff.BackOff

	promoted uint64
	failed   uint64
}

// Option configures a Worker
type Option func(*Worker)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

// WithMaxRetries sets how often a failing task is retried
func WithMaxRetries(n uint64) Option {
	return func(w *Worker) {
		w.maxRetries = n
	}
}

// WithBackOff overrides the retry schedule
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(w *Worker) {
		w.newBackOff = newBackOff
	}
}

// NewWorker creates a worker reading from source
func NewWorker(source <-chan ingest.PromotionTask, promoter Promoter, opts ...Option) *Worker {
	w := &Worker{
		source:     source,
		promoter:   promoter,
		logger:     slog.Default(),
		maxRetries: 5,
		newBackOff: defaultBackOff,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 5 * time.Minute
	b.Reset()
	return b
}

// Run processes tasks until the source is closed and drained, or ctx is done
func (w *Worker) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Promotion worker started")
	for {
		select {
		case <-ctx.Done():
			w.logger.WarnContext(ctx, "Promotion worker stopped before the queue was drained",
				"promoted", w.promoted, "failed", w.failed)
			return ctx.Err()
		case task, ok := <-w.source:
			if !ok {
				w.logger.InfoContext(ctx, "Promotion queue drained",
					"promoted", w.promoted, "failed", w.failed)
				return nil
			}
			w.handle(ctx, task)
		}
	}
}

// Stats returns the number of promoted and failed tasks. Only meaningful
// after Run has returned.
func (w *Worker) Stats() (promoted, failed uint64) {
	return w.promoted, w.failed
}

func (w *Worker) handle(ctx context.Context, task ingest.PromotionTask) {
	attempts := 0
	var permanent error

	op := func() error {
		attempts++
		err := w.promoter.Promote(ctx, task)
		if err != nil && IsPermanent(err) {
			permanent = err
			return nil
		}
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(w.newBackOff(), w.maxRetries), ctx)
	err := backoff.Retry(op, b)
	if err == nil {
		err = permanent
	}

	if err != nil {
		w.failed++
		w.logger.ErrorContext(ctx, "Promotion failed",
			"coordinate", task.Coordinate.String(),
			"task_id", task.ID.String(),
			"attempts", attempts,
			"error", err)
		return
	}

	w.promoted++
	w.logger.DebugContext(ctx, "Promoted", "coordinate", task.Coordinate.String(), "attempts", attempts)
}

// LogPromoter only records that a task reached the end of the pipeline
type LogPromoter struct {
	logger *slog.Logger
}

// NewLogPromoter creates a promoter writing to logger (slog.Default when nil)
func NewLogPromoter(logger *slog.Logger) *LogPromoter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPromoter{logger: logger}
}

func (p *LogPromoter) Promote(ctx context.Context, task ingest.PromotionTask) error {
	p.logger.InfoContext(ctx, "Promotion requested",
		"coordinate", task.Coordinate.String(),
		"purl", task.PackageURL,
		"file", task.Filename,
		"uploader", string(task.Uploader))
	return nil
}
