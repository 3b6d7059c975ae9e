// Package postqueue serializes browser posting runs with a cooldown between them.
package postqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sumire/autopost/internal/automation"
	"github.com/sumire/autopost/internal/domain"
)

// ErrClosed is returned by Enqueue after Shutdown.
var ErrClosed = errors.New("post queue is shut down")

// Item is a queued post. It is rebuilt from the persisted row and never
// outlives one drain cycle.
type Item struct {
	ID     string
	Params automation.PostParams
}

// Store persists the outcome of each item.
type Store interface {
	Claim(ctx context.Context, id string) (bool, error)
	Complete(ctx context.Context, id string, result domain.JobResult) error
	Fail(ctx context.Context, id string, message string) error
}

// JobLog receives the operator-visible trail of each item.
type JobLog interface {
	Info(ctx context.Context, jobID, msg string)
	Error(ctx context.Context, jobID, msg string)
}

// RunFunc executes one claimed item.
type RunFunc func(ctx context.Context, item Item) (domain.JobResult, error)

type Option func(*Queue)

// WithCooldown sets the pause between two consecutive runs.
func WithCooldown(d time.Duration) Option {
	return func(q *Queue) {
		if d >= 0 {
			q.cooldown = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// Queue is an in-memory FIFO drained by a single goroutine.
type Queue struct {
	store    Store
	run      RunFunc
	logs     JobLog
	logger   *slog.Logger
	cooldown time.Duration
	after    func(time.Duration) <-chan time.Time

	mu       sync.Mutex
	items    []Item
	known    map[string]struct{}
	draining bool
	closed   bool
	done     chan struct{}
	stop     chan struct{}
}

func New(store Store, run RunFunc, logs JobLog, opts ...Option) *Queue {
	q := &Queue{
		store:    store,
		run:      run,
		logs:     logs,
		logger:   slog.Default(),
		cooldown: 10 * time.Second,
		after:    time.After,
		known:    make(map[string]struct{}),
		stop:     make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Enqueue appends item and starts draining if the queue is idle. An id that
// is already queued or running is ignored.
func (q *Queue) Enqueue(item Item) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	if _, dup := q.known[item.ID]; dup {
		return nil
	}
	q.known[item.ID] = struct{}{}
	q.items = append(q.items, item)
	q.logger.Info("post queued", "job_id", item.ID, "queue_len", len(q.items))

	if !q.draining {
		q.draining = true
		q.done = make(chan struct{})
		go q.drain()
	}
	return nil
}

// Len returns the number of items waiting, excluding the one running.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) Draining() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.draining
}

// Wait blocks until the queue is idle or ctx is done.
func (q *Queue) Wait(ctx context.Context) error {
	q.mu.Lock()
	if !q.draining {
		q.mu.Unlock()
		return nil
	}
	done := q.done
	q.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting items, drops the ones not yet started and waits
// for the running one. Dropped items were never claimed and stay pending.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return q.Wait(ctx)
	}
	q.closed = true
	dropped := len(q.items)
	q.items = nil
	close(q.stop)
	q.mu.Unlock()

	if dropped > 0 {
		q.logger.Info("post queue shutting down", "dropped", dropped)
	}
	if err := q.Wait(ctx); err != nil {
		q.logger.Warn("shutdown interrupted by context")
		return err
	}
	return nil
}

func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if q.closed || len(q.items) == 0 {
			q.draining = false
			close(q.done)
			q.mu.Unlock()
			return
		}
		item := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		ran := q.process(item)

		q.mu.Lock()
		delete(q.known, item.ID)
		more := len(q.items) > 0 && !q.closed
		q.mu.Unlock()

		if ran && more && q.cooldown > 0 {
			select {
			case <-q.after(q.cooldown):
			case <-q.stop:
			}
		}
	}
}

// process reports whether the item was actually attempted.
func (q *Queue) process(item Item) bool {
	// a started run is never cancelled
	ctx := context.Background()

	won, err := q.store.Claim(ctx, item.ID)
	if err != nil {
		q.logger.Error("claim post failed", "job_id", item.ID, "error", err)
		return false
	}
	if !won {
		q.logger.Debug("post claimed elsewhere", "job_id", item.ID)
		return false
	}

	q.logs.Info(ctx, item.ID, "posting started")
	start := time.Now()
	result, err := q.execute(ctx, item)
	if err != nil {
		q.logs.Error(ctx, item.ID, err.Error())
		if ferr := q.store.Fail(ctx, item.ID, err.Error()); ferr != nil {
			q.logger.Error("failed to mark post failed", "job_id", item.ID, "error", ferr)
		}
		return true
	}

	msg := result.Message
	if msg == "" {
		msg = "posted"
	}
	q.logs.Info(ctx, item.ID, msg)
	if err := q.store.Complete(ctx, item.ID, result); err != nil {
		q.logger.Error("failed to complete post", "job_id", item.ID, "error", err)
	}
	q.logger.Info("post finished", "job_id", item.ID, "url", result.URL, "duration_ms", time.Since(start).Milliseconds())
	return true
}

func (q *Queue) execute(ctx context.Context, item Item) (result domain.JobResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("post runner panic: %v", r)
		}
	}()
	return q.run(ctx, item)
}
