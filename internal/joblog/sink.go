// Package joblog records the per-job progress trail shown to operators.
package joblog

import (
	"context"
	"log/slog"
	"time"

	"github.com/sumire/autopost/internal/domain"
)

// Store persists log entries.
type Store interface {
	Append(ctx context.Context, entry domain.LogEntry) error
	ListByJob(ctx context.Context, jobID string) ([]domain.LogEntry, error)
}

// Feed receives every entry after it is stored. Publish failures are logged
// and otherwise ignored.
type Feed interface {
	Publish(ctx context.Context, entry domain.LogEntry) error
}

// Sink appends entries to the store, mirrors them into slog and forwards
// them to an optional live feed.
type Sink struct {
	store  Store
	feed   Feed
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Sink. feed may be nil.
func New(store Store, feed Feed, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		store:  store,
		feed:   feed,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Sink) Info(ctx context.Context, jobID, msg string) {
	s.write(ctx, jobID, domain.LogLevelInfo, msg)
}

func (s *Sink) Warn(ctx context.Context, jobID, msg string) {
	s.write(ctx, jobID, domain.LogLevelWarn, msg)
}

func (s *Sink) Error(ctx context.Context, jobID, msg string) {
	s.write(ctx, jobID, domain.LogLevelError, msg)
}

// List returns a job's entries oldest first.
func (s *Sink) List(ctx context.Context, jobID string) ([]domain.LogEntry, error) {
	return s.store.ListByJob(ctx, jobID)
}

func (s *Sink) write(ctx context.Context, jobID string, level domain.LogLevel, msg string) {
	entry := domain.LogEntry{JobID: jobID, Level: level, Message: msg, CreatedAt: s.now()}

	s.logger.Log(ctx, slogLevel(level), msg, "job_id", jobID)

	if err := s.store.Append(ctx, entry); err != nil {
		s.logger.Error("failed to append job log", "job_id", jobID, "error", err)
		return
	}
	if s.feed != nil {
		if err := s.feed.Publish(ctx, entry); err != nil {
			s.logger.Warn("failed to publish job log", "job_id", jobID, "error", err)
		}
	}
}

func slogLevel(level domain.LogLevel) slog.Level {
	switch level {
	case domain.LogLevelWarn:
		return slog.LevelWarn
	case domain.LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
