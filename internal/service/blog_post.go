package service

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"

	"github.com/sumire/autopost/internal/content"
	"github.com/sumire/autopost/internal/domain"
	"github.com/sumire/autopost/internal/publish"
	"github.com/sumire/autopost/internal/worker"
)

// BlogPayload is the payload of a BLOG_POST job.
type BlogPayload struct {
	Keyword string   `json:"keyword"`
	Title   string   `json:"title,omitempty"`
	BlogID  string   `json:"blogId,omitempty"`
	Labels  []string `json:"labels,omitempty"`
}

// BlogPostProcessor generates an article and publishes it to the blog.
type BlogPostProcessor struct {
	jobs      JobStore
	logs      JobLog
	articles  ArticleGenerator
	images    ImageFinder
	uploader  Uploader
	publisher Publisher
	logger    *slog.Logger
}

// NewBlogPostProcessor creates the processor. images and uploader may be nil.
func NewBlogPostProcessor(jobs JobStore, logs JobLog, articles ArticleGenerator, images ImageFinder, uploader Uploader, publisher Publisher, logger *slog.Logger) *BlogPostProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &BlogPostProcessor{
		jobs:      jobs,
		logs:      logs,
		articles:  articles,
		images:    images,
		uploader:  uploader,
		publisher: publisher,
		logger:    logger,
	}
}

func (p *BlogPostProcessor) CanProcess(job *domain.Job) bool {
	return job.Type == domain.JobTypeBlogPost
}

func (p *BlogPostProcessor) Process(ctx context.Context, jobID string) (worker.Result, error) {
	job, err := p.jobs.Get(ctx, jobID)
	if err != nil {
		return worker.Result{}, err
	}
	var payload BlogPayload
	if err := decodePayload(job, &payload); err != nil {
		return worker.Result{}, err
	}
	if payload.Keyword == "" {
		payload.Keyword = job.Subject
	}
	if payload.Keyword == "" {
		return worker.Result{}, fmt.Errorf("%w: blog post job needs a keyword", domain.ErrInvalidInput)
	}

	p.logs.Info(ctx, jobID, fmt.Sprintf("generating article for %q", payload.Keyword))
	article, err := p.articles.GenerateArticle(ctx, content.ArticleRequest{Keyword: payload.Keyword, Title: payload.Title})
	if err != nil {
		return worker.Result{}, fmt.Errorf("generate article: %w", err)
	}

	body := article.HTML()
	if img := p.leadImage(ctx, jobID, article, payload.Keyword); img != "" {
		body = img + "\n" + body
	}

	labels := append(append([]string{}, payload.Labels...), article.Labels...)
	p.logs.Info(ctx, jobID, fmt.Sprintf("publishing %q", article.Title))
	out, err := p.publisher.Publish(ctx, publish.Blog{
		BlogID: payload.BlogID,
		Title:  article.Title,
		HTML:   body,
		Labels: dedupe(labels),
	})
	if err != nil {
		return worker.Result{}, fmt.Errorf("publish: %w", err)
	}
	return worker.Result{URL: out.URL, Message: out.Message}, nil
}

// leadImage is best effort: any failure leaves the post without an image.
func (p *BlogPostProcessor) leadImage(ctx context.Context, jobID string, article content.Article, keyword string) string {
	if p.images == nil || p.uploader == nil {
		return ""
	}
	kw := article.ImageKeyword
	if kw == "" {
		kw = keyword
	}
	src, err := p.images.FindImage(ctx, kw)
	if err != nil {
		p.logs.Warn(ctx, jobID, fmt.Sprintf("no image for %q: %v", kw, err))
		return ""
	}
	up, err := p.uploader.Upload(ctx, src)
	if err != nil {
		p.logs.Warn(ctx, jobID, fmt.Sprintf("image upload failed: %v", err))
		return ""
	}
	p.logs.Info(ctx, jobID, "uploaded image "+up.FileName)
	return fmt.Sprintf(`<figure><img src="%s" alt="%s"></figure>`, html.EscapeString(up.URL), html.EscapeString(article.Title))
}

func decodePayload(job *domain.Job, v any) error {
	if len(job.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(job.Payload, v); err != nil {
		return fmt.Errorf("%w: payload of job %s: %v", domain.ErrInvalidInput, job.ID, err)
	}
	return nil
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s]; ok || s == "" {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
