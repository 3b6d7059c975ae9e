package joblog

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/sumire/autopost/internal/domain"
)

type memStore struct {
	entries []domain.LogEntry
	err     error
}

func (m *memStore) Append(_ context.Context, e domain.LogEntry) error {
	if m.err != nil {
		return m.err
	}
	e.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, e)
	return nil
}

func (m *memStore) ListByJob(_ context.Context, jobID string) ([]domain.LogEntry, error) {
	var out []domain.LogEntry
	for _, e := range m.entries {
		if e.JobID == jobID {
			out = append(out, e)
		}
	}
	return out, nil
}

type recordingFeed struct {
	got []domain.LogEntry
	err error
}

func (f *recordingFeed) Publish(_ context.Context, e domain.LogEntry) error {
	f.got = append(f.got, e)
	return f.err
}

func TestSinkAppendsMirrorsAndPublishes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	store := &memStore{}
	feed := &recordingFeed{}
	sink := New(store, feed, logger)
	ctx := context.Background()

	sink.Info(ctx, "job-1", "claimed")
	sink.Warn(ctx, "job-1", "assets skipped")
	sink.Error(ctx, "job-2", "login required")

	entries, err := sink.List(ctx, "job-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 || entries[0].Message != "claimed" || entries[1].Level != domain.LogLevelWarn {
		t.Fatalf("unexpected entries %+v", entries)
	}
	if entries[0].CreatedAt.IsZero() {
		t.Fatalf("created_at not stamped")
	}
	if len(feed.got) != 3 {
		t.Fatalf("expected 3 published entries, got %d", len(feed.got))
	}
	out := buf.String()
	if !strings.Contains(out, `"job_id":"job-2"`) || !strings.Contains(out, `"level":"ERROR"`) {
		t.Fatalf("entry not mirrored to slog: %s", out)
	}
}

func TestSinkSwallowsStoreAndFeedErrors(t *testing.T) {
	store := &memStore{err: errors.New("disk full")}
	feed := &recordingFeed{}
	sink := New(store, feed, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	sink.Error(context.Background(), "job-1", "boom")
	if len(feed.got) != 0 {
		t.Fatalf("entries that failed to store must not be published")
	}

	store.err = nil
	feed.err = errors.New("redis down")
	sink.Info(context.Background(), "job-1", "still works")
	if len(store.entries) != 1 {
		t.Fatalf("feed failure must not affect the store")
	}
}

func TestChannel(t *testing.T) {
	if got := Channel("abc"); got != "joblog:abc" {
		t.Fatalf("unexpected channel %q", got)
	}
}
