package ingest

import (
	"context"
	"log/slog"
)

// NoopNotifier is a no-operation implementation of Notifier
type NoopNotifier struct{}

// NewNoopNotifier creates a new no-operation notifier
func NewNoopNotifier() Notifier {
	return NoopNotifier{}
}

// UploadAccepted does nothing
func (NoopNotifier) UploadAccepted(ctx context.Context, task PromotionTask) {}

// LoggingNotifier logs accepted uploads but takes no other action.
// Useful for development and debugging
type LoggingNotifier struct {
	logger *slog.Logger
}

// NewLoggingNotifier creates a notifier writing to logger (slog.Default when nil)
func NewLoggingNotifier(logger *slog.Logger) Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingNotifier{logger: logger}
}

// UploadAccepted logs the accepted upload
func (l *LoggingNotifier) UploadAccepted(ctx context.Context, task PromotionTask) {
	l.logger.InfoContext(ctx, "Upload accepted",
		"coordinate", task.Coordinate.String(),
		"file", task.Filename,
		"uploader", string(task.Uploader),
		"task_id", task.ID.String())
}
