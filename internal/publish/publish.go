// Package publish dispatches a publication to the destination that handles it.
package publish

import (
	"context"
	"errors"
	"fmt"

	"github.com/sumire/autopost/internal/automation"
	"github.com/sumire/autopost/internal/blogger"
)

// ErrNotConfigured is returned when no publisher exists for a destination kind.
var ErrNotConfigured = errors.New("destination not configured")

// Publication is either a Blog or a Forum post.
type Publication interface {
	publication()
}

// Blog goes out through the blog platform API.
type Blog struct {
	BlogID string
	Title  string
	HTML   string
	Labels []string
}

// Forum goes out through the browser automaton.
type Forum struct {
	Params automation.PostParams
}

func (Blog) publication()  {}
func (Forum) publication() {}

// Outcome is the published location and a short summary.
type Outcome struct {
	URL     string
	Message string
}

type BlogClient interface {
	Publish(ctx context.Context, p blogger.Post) (blogger.Published, error)
}

type ForumPoster interface {
	PostArticle(ctx context.Context, params automation.PostParams) (automation.Result, error)
}

type Publisher struct {
	blog  BlogClient
	forum ForumPoster
}

// New creates a Publisher. Either client may be nil.
func New(blog BlogClient, forum ForumPoster) *Publisher {
	return &Publisher{blog: blog, forum: forum}
}

func (p *Publisher) Publish(ctx context.Context, pub Publication) (Outcome, error) {
	switch v := pub.(type) {
	case Blog:
		if p.blog == nil {
			return Outcome{}, fmt.Errorf("blog: %w", ErrNotConfigured)
		}
		res, err := p.blog.Publish(ctx, blogger.Post{BlogID: v.BlogID, Title: v.Title, HTML: v.HTML, Labels: v.Labels})
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{URL: res.URL, Message: fmt.Sprintf("published %q", v.Title)}, nil
	case Forum:
		if p.forum == nil {
			return Outcome{}, fmt.Errorf("forum: %w", ErrNotConfigured)
		}
		res, err := p.forum.PostArticle(ctx, v.Params)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{URL: res.URL, Message: res.Message}, nil
	default:
		return Outcome{}, fmt.Errorf("unsupported publication %T", pub)
	}
}
