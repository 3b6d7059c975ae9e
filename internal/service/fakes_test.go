package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sumire/autopost/internal/content"
	"github.com/sumire/autopost/internal/domain"
	"github.com/sumire/autopost/internal/postqueue"
	"github.com/sumire/autopost/internal/publish"
)

type memJobs struct {
	mu   sync.Mutex
	seq  int
	jobs map[string]*domain.Job
	// batchErr makes CreateBatch fail without creating anything
	batchErr error
}

func newMemJobs(jobs ...domain.Job) *memJobs {
	m := &memJobs{jobs: make(map[string]*domain.Job)}
	for i := range jobs {
		j := jobs[i]
		m.jobs[j.ID] = &j
	}
	return m
}

func (m *memJobs) Create(_ context.Context, job domain.Job) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	job.ID = fmt.Sprintf("job-%d", m.seq)
	job.Status = domain.JobStatusPending
	m.jobs[job.ID] = &job
	out := job
	return &out, nil
}

func (m *memJobs) CreateBatch(ctx context.Context, jobs []domain.Job) ([]domain.Job, error) {
	if m.batchErr != nil {
		return nil, m.batchErr
	}
	out := make([]domain.Job, 0, len(jobs))
	for _, j := range jobs {
		created, err := m.Create(ctx, j)
		if err != nil {
			return nil, err
		}
		out = append(out, *created)
	}
	return out, nil
}

func (m *memJobs) Get(_ context.Context, id string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *j
	return &out, nil
}

func (m *memJobs) List(_ context.Context, f domain.ListFilter) ([]domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Job
	for _, j := range m.jobs {
		if f.Status == "" || j.Status == f.Status {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (m *memJobs) Retry(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if j.Status != domain.JobStatusFailed {
		return domain.ErrConflict
	}
	j.Status = domain.JobStatusPending
	j.ErrorMessage = nil
	return nil
}

func (m *memJobs) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if j.Status == domain.JobStatusProcessing {
		return domain.ErrJobProcessing
	}
	delete(m.jobs, id)
	return nil
}

// sorted returns the stored jobs ordered by creation sequence.
func (m *memJobs) sorted() []domain.Job {
	all, _ := m.List(context.Background(), domain.ListFilter{})
	return all
}

type memPosts struct {
	mu   sync.Mutex
	seq  int
	jobs map[string]*domain.PostJob
}

func newMemPosts() *memPosts {
	return &memPosts{jobs: make(map[string]*domain.PostJob)}
}

func (m *memPosts) Create(_ context.Context, job domain.PostJob) (*domain.PostJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	job.ID = fmt.Sprintf("post-%d", m.seq)
	job.Status = domain.JobStatusPending
	if job.Destination == "" {
		job.Destination = domain.DestinationForum
	}
	if job.ScheduledAt.IsZero() {
		job.ScheduledAt = time.Now().UTC()
	}
	m.jobs[job.ID] = &job
	out := job
	return &out, nil
}

func (m *memPosts) Get(_ context.Context, id string) (*domain.PostJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *j
	return &out, nil
}

func (m *memPosts) List(_ context.Context, f domain.ListFilter) ([]domain.PostJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.PostJob
	for _, j := range m.jobs {
		if f.Status == "" || j.Status == f.Status {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (m *memPosts) ListDue(_ context.Context, now time.Time) ([]domain.PostJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.PostJob
	for _, j := range m.jobs {
		if j.Status == domain.JobStatusPending && !j.ScheduledAt.After(now) {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Priority != out[b].Priority {
			return out[a].Priority > out[b].Priority
		}
		return out[a].ScheduledAt.Before(out[b].ScheduledAt)
	})
	return out, nil
}

func (m *memPosts) Retry(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if j.Status != domain.JobStatusFailed {
		return domain.ErrConflict
	}
	j.Status = domain.JobStatusPending
	return nil
}

func (m *memPosts) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.jobs, id)
	return nil
}

func (m *memPosts) setStatus(id string, s domain.JobStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[id].Status = s
}

type memLog struct {
	mu      sync.Mutex
	entries []domain.LogEntry
}

func (l *memLog) add(jobID string, level domain.LogLevel, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, domain.LogEntry{JobID: jobID, Level: level, Message: msg})
}

func (l *memLog) Info(_ context.Context, id, msg string)  { l.add(id, domain.LogLevelInfo, msg) }
func (l *memLog) Warn(_ context.Context, id, msg string)  { l.add(id, domain.LogLevelWarn, msg) }
func (l *memLog) Error(_ context.Context, id, msg string) { l.add(id, domain.LogLevelError, msg) }

func (l *memLog) List(_ context.Context, jobID string) ([]domain.LogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.LogEntry
	for _, e := range l.entries {
		if e.JobID == jobID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *memLog) count(jobID string, level domain.LogLevel) int {
	entries, _ := l.List(context.Background(), jobID)
	n := 0
	for _, e := range entries {
		if e.Level == level {
			n++
		}
	}
	return n
}

type stubArticles struct {
	article content.Article
	err     error
	got     content.ArticleRequest
}

func (s *stubArticles) GenerateArticle(_ context.Context, req content.ArticleRequest) (content.Article, error) {
	s.got = req
	return s.article, s.err
}

type stubTopics struct {
	topics []content.Topic
	err    error
}

func (s *stubTopics) GenerateTopics(_ context.Context, _ content.TopicRequest) ([]content.Topic, error) {
	return s.topics, s.err
}

type stubImages struct {
	url string
	err error
}

func (s stubImages) FindImage(context.Context, string) (string, error) { return s.url, s.err }

type stubUploader struct {
	err error
}

func (s stubUploader) Upload(_ context.Context, src string) (Uploaded, error) {
	if s.err != nil {
		return Uploaded{}, s.err
	}
	return Uploaded{URL: src + "?stored", FileName: "lead.png"}, nil
}

type recordingPublisher struct {
	mu   sync.Mutex
	pubs []publish.Publication
	out  publish.Outcome
	err  error
	// progress is replayed through Forum params before returning.
	progress []string
}

func (p *recordingPublisher) Publish(_ context.Context, pub publish.Publication) (publish.Outcome, error) {
	p.mu.Lock()
	p.pubs = append(p.pubs, pub)
	p.mu.Unlock()
	if f, ok := pub.(publish.Forum); ok && f.Params.Progress != nil {
		for _, msg := range p.progress {
			f.Params.Progress(msg)
		}
	}
	return p.out, p.err
}

type recordingQueue struct {
	items []postqueue.Item
	err   error
}

func (q *recordingQueue) Enqueue(item postqueue.Item) error {
	if q.err != nil {
		return q.err
	}
	q.items = append(q.items, item)
	return nil
}
