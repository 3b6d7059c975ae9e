package service

import (
	"context"
	"time"

	"github.com/sumire/autopost/internal/content"
	"github.com/sumire/autopost/internal/domain"
	"github.com/sumire/autopost/internal/publish"
)

// JobStore is the generic job persistence used by services and processors.
type JobStore interface {
	Create(ctx context.Context, job domain.Job) (*domain.Job, error)
	// CreateBatch creates all jobs or none of them.
	CreateBatch(ctx context.Context, jobs []domain.Job) ([]domain.Job, error)
	Get(ctx context.Context, id string) (*domain.Job, error)
	List(ctx context.Context, f domain.ListFilter) ([]domain.Job, error)
	Retry(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// PostStore is the destination post job persistence.
type PostStore interface {
	Create(ctx context.Context, job domain.PostJob) (*domain.PostJob, error)
	Get(ctx context.Context, id string) (*domain.PostJob, error)
	List(ctx context.Context, f domain.ListFilter) ([]domain.PostJob, error)
	ListDue(ctx context.Context, now time.Time) ([]domain.PostJob, error)
	Retry(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// JobLog is the per-job progress trail.
type JobLog interface {
	Info(ctx context.Context, jobID, msg string)
	Warn(ctx context.Context, jobID, msg string)
	Error(ctx context.Context, jobID, msg string)
	List(ctx context.Context, jobID string) ([]domain.LogEntry, error)
}

type ArticleGenerator interface {
	GenerateArticle(ctx context.Context, req content.ArticleRequest) (content.Article, error)
}

type TopicGenerator interface {
	GenerateTopics(ctx context.Context, req content.TopicRequest) ([]content.Topic, error)
}

// ImageFinder returns an image URL for a keyword.
type ImageFinder interface {
	FindImage(ctx context.Context, keyword string) (string, error)
}

// Uploaded is a stored copy of an asset.
type Uploaded struct {
	URL      string `json:"url"`
	FileName string `json:"fileName"`
}

// Uploader copies a remote asset into object storage.
type Uploader interface {
	Upload(ctx context.Context, sourceURL string) (Uploaded, error)
}

type Publisher interface {
	Publish(ctx context.Context, pub publish.Publication) (publish.Outcome, error)
}
