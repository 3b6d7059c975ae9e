// Package captcha calls the external challenge-solving service.
package captcha

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNoAnswer is returned when the service answers without a solution.
var ErrNoAnswer = errors.New("captcha service returned no answer")

type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Client posts challenge images to the solving service.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, logger: logger}
}

type solveRequest struct {
	Image string `json:"image"`
	Key   string `json:"key,omitempty"`
}

type solveResponse struct {
	Answer string `json:"answer"`
}

// Solve sends a PNG and returns the service's answer.
func (c *Client) Solve(ctx context.Context, image []byte) (string, error) {
	rid := uuid.NewString()
	start := time.Now()

	body, err := json.Marshal(solveRequest{Image: base64.StdEncoding.EncodeToString(image), Key: c.cfg.APIKey})
	if err != nil {
		return "", fmt.Errorf("encode captcha request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build captcha request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("captcha request failed", "req_id", rid, "error", err)
		return "", fmt.Errorf("captcha http error: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.logger.Warn("captcha response body close error", "error", err)
		}
	}(resp.Body)

	raw, _ := io.ReadAll(resp.Body)
	c.logger.Debug("captcha response", "req_id", rid, "status", resp.StatusCode, "elapsed_ms", time.Since(start).Milliseconds())
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("captcha status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out solveResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode captcha response: %w", err)
	}
	answer := strings.TrimSpace(out.Answer)
	if answer == "" {
		return "", ErrNoAnswer
	}
	return answer, nil
}
