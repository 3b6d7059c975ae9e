// Package content generates articles and topic ideas through an
// OpenAI-compatible chat completion API.
package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Config struct {
	APIKey      string
	BaseURL     string // default https://api.openai.com/v1
	Model       string
	Temperature float32
	Timeout     time.Duration
	Language    string
}

// Client talks to the chat completions endpoint.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	if cfg.Language == "" {
		cfg.Language = "Korean"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, logger: logger}
}

type ArticleRequest struct {
	Keyword string
	Title   string // optional, generated when empty
}

type Section struct {
	Heading string `json:"heading"`
	HTML    string `json:"html"`
}

// Article is a generated blog post.
type Article struct {
	Title        string    `json:"title"`
	Sections     []Section `json:"sections"`
	Labels       []string  `json:"labels,omitempty"`
	ImageKeyword string    `json:"image_keyword,omitempty"`
}

// HTML renders the sections as one document body.
func (a Article) HTML() string {
	var b strings.Builder
	for i, s := range a.Sections {
		if i > 0 {
			b.WriteString("\n")
		}
		if s.Heading != "" {
			b.WriteString("<h2>")
			b.WriteString(s.Heading)
			b.WriteString("</h2>\n")
		}
		b.WriteString(s.HTML)
	}
	return b.String()
}

type TopicRequest struct {
	Keyword string
	Count   int
}

type Topic struct {
	Title   string `json:"title"`
	Keyword string `json:"keyword"`
}

func (c *Client) GenerateArticle(ctx context.Context, req ArticleRequest) (Article, error) {
	if strings.TrimSpace(req.Keyword) == "" {
		return Article{}, fmt.Errorf("generate article: keyword is required")
	}
	sys := "You are a blog writer. Write in " + c.cfg.Language + ". " +
		"Return ONLY JSON that matches the provided schema. Section html may use <p>, <ul>, <li>, <strong> and <h3>."
	user := "Keyword: " + req.Keyword
	if req.Title != "" {
		user += "\nTitle: " + req.Title
	}

	raw, err := c.complete(ctx, "article", sys, user, articleSchema())
	if err != nil {
		return Article{}, err
	}
	var out Article
	if err := json.Unmarshal(raw, &out); err != nil {
		return Article{}, fmt.Errorf("unmarshal article: %w", err)
	}
	if req.Title != "" {
		out.Title = req.Title
	}
	return out, nil
}

func (c *Client) GenerateTopics(ctx context.Context, req TopicRequest) ([]Topic, error) {
	if strings.TrimSpace(req.Keyword) == "" {
		return nil, fmt.Errorf("generate topics: keyword is required")
	}
	if req.Count <= 0 {
		req.Count = 5
	}
	sys := "You plan blog content. Write in " + c.cfg.Language + ". Return ONLY JSON that matches the provided schema."
	user := fmt.Sprintf("Suggest %d distinct blog post topics about: %s", req.Count, req.Keyword)

	raw, err := c.complete(ctx, "topics", sys, user, topicsSchema(req.Count))
	if err != nil {
		return nil, err
	}
	var out struct {
		Topics []Topic `json:"topics"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal topics: %w", err)
	}
	if len(out.Topics) > req.Count {
		out.Topics = out.Topics[:req.Count]
	}
	return out.Topics, nil
}

// complete runs one chat completion and returns the schema-validated content.
func (c *Client) complete(ctx context.Context, kind, system, user string, schema map[string]any) ([]byte, error) {
	rid := uuid.NewString()
	start := time.Now()
	c.logger.Info("content request", "req_id", rid, "kind", kind, "model", c.cfg.Model)

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(schema)},
		},
	}
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		c.logger.Error("content request failed", "req_id", rid, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return nil, fmt.Errorf("decode completion: %w", err)
	}
	if len(cc.Choices) == 0 {
		return nil, fmt.Errorf("no choices in completion")
	}
	content := []byte(strings.TrimSpace(cc.Choices[0].Message.Content))
	if err := validate(schema, content); err != nil {
		c.logger.Error("content failed schema validation", "req_id", rid, "kind", kind, "error", err)
		return nil, fmt.Errorf("%s: %w", kind, err)
	}
	c.logger.Info("content generated", "req_id", rid, "kind", kind, "elapsed_ms", time.Since(start).Milliseconds())
	return content, nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("completion http error: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.logger.Warn("completion response body close error", "error", err)
		}
	}(resp.Body)

	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("completion status %d: %s", resp.StatusCode, buf.String())
	}
	return buf.Bytes(), nil
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
