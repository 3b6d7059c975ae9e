package joblog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/sumire/autopost/internal/domain"
)

// Channel is the pub/sub channel carrying a job's live entries.
func Channel(jobID string) string {
	return fmt.Sprintf("joblog:%s", jobID)
}

// RedisFeed publishes entries on a per-job Redis channel.
type RedisFeed struct {
	rdb *redis.Client
}

// NewRedisFeed connects to the server at url (redis://host:port/db).
func NewRedisFeed(ctx context.Context, url string) (*RedisFeed, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisFeed{rdb: rdb}, nil
}

func (f *RedisFeed) Publish(ctx context.Context, entry domain.LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal log entry: %w", err)
	}
	if err := f.rdb.Publish(ctx, Channel(entry.JobID), data).Err(); err != nil {
		return fmt.Errorf("publish log entry: %w", err)
	}
	return nil
}

// Follow calls fn for every entry published for jobID until ctx is done.
func (f *RedisFeed) Follow(ctx context.Context, jobID string, fn func(domain.LogEntry)) error {
	sub := f.rdb.Subscribe(ctx, Channel(jobID))
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", Channel(jobID), err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var entry domain.LogEntry
			if err := json.Unmarshal([]byte(msg.Payload), &entry); err != nil {
				continue
			}
			fn(entry)
		}
	}
}

func (f *RedisFeed) Close() error {
	return f.rdb.Close()
}
