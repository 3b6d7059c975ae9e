// Package blogger publishes posts through the Blogger v3 API.
package blogger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	googleOAuth "golang.org/x/oauth2/google"
)

const scope = "https://www.googleapis.com/auth/blogger"

type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	BlogID       string // default blog when a post names none
	BaseURL      string // default https://www.googleapis.com/blogger/v3
	Timeout      time.Duration
}

type Option func(*options)

type options struct {
	tokens oauth2.TokenSource
}

// WithTokenSource replaces the refresh-token flow.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(o *options) { o.tokens = ts }
}

// Client is an authenticated Blogger API client.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(ctx context.Context, cfg Config, logger *slog.Logger, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.googleapis.com/blogger/v3"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.tokens == nil {
		oc := &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     googleOAuth.Endpoint,
			Scopes:       []string{scope},
		}
		o.tokens = oc.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
	}
	hc := oauth2.NewClient(ctx, o.tokens)
	hc.Timeout = cfg.Timeout
	return &Client{cfg: cfg, http: hc, logger: logger}
}

// Post is a blog entry to publish.
type Post struct {
	BlogID string
	Title  string
	HTML   string
	Labels []string
}

// Published identifies the created entry.
type Published struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

func (c *Client) Publish(ctx context.Context, p Post) (Published, error) {
	blogID := p.BlogID
	if blogID == "" {
		blogID = c.cfg.BlogID
	}
	if blogID == "" {
		return Published{}, fmt.Errorf("publish: blog id is required")
	}

	body, err := json.Marshal(map[string]any{
		"kind":    "blogger#post",
		"title":   p.Title,
		"content": p.HTML,
		"labels":  p.Labels,
	})
	if err != nil {
		return Published{}, fmt.Errorf("encode post: %w", err)
	}
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/blogs/" + url.PathEscape(blogID) + "/posts/"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Published{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return Published{}, fmt.Errorf("publish post: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return Published{}, fmt.Errorf("blogger returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var out Published
	if err := json.Unmarshal(raw, &out); err != nil {
		return Published{}, fmt.Errorf("decode published post: %w", err)
	}
	c.logger.Info("blog post published", "blog_id", blogID, "post_id", out.ID, "url", out.URL,
		"duration_ms", time.Since(start).Milliseconds())
	return out, nil
}
