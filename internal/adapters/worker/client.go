// Package worker calls the external AI worker over HTTP.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/target/mmk-pipeline/config"
	"github.com/target/mmk-pipeline/internal/core"
)

// maxResponseBytes caps how much of a worker response is read.
const maxResponseBytes = 1 << 20

var (
	// ErrWorkerTimeout is returned when a worker call exceeds its deadline.
	ErrWorkerTimeout = errors.New("worker call timed out")
	// ErrResponseTooLarge is returned when a worker response exceeds the read cap.
	ErrResponseTooLarge = errors.New("worker response too large")
)

// StatusError reports a non-2xx worker response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("worker returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("worker returned status %d: %s", e.StatusCode, e.Body)
}

// Options configures a Client.
type Options struct {
	Config config.WorkerConfig
	// HTTPClient overrides the default client built from Config.Timeout.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client implements core.WorkerClient.
type Client struct {
	base    *url.URL
	timeout time.Duration
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ core.WorkerClient = (*Client)(nil)

// NewClient builds a worker client. A zero RateLimit disables throttling.
func NewClient(opts Options) (*Client, error) {
	cfg := opts.Config
	cfg.Sanitize()
	if cfg.BaseURL == "" {
		return nil, errors.New("worker base url is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse worker base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("worker base url must be http or https, got %q", base.Scheme)
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		base:    base,
		timeout: cfg.Timeout,
		http:    hc,
		limiter: limiter,
		logger:  logger.With("component", "worker_client"),
	}, nil
}

// RunTask posts the body to /ai-task/{taskType} and returns the raw JSON response.
func (c *Client) RunTask(ctx context.Context, req core.WorkerTaskRequest) (json.RawMessage, error) {
	taskType := strings.TrimSpace(req.TaskType)
	if taskType == "" {
		return nil, errors.New("worker task type is required")
	}
	body := req.Body
	if body == nil {
		body = map[string]any{}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode worker request: %w", err)
	}

	raw, err := c.do(ctx, http.MethodPost, "ai-task/"+url.PathEscape(taskType), payload)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("worker task %s returned invalid JSON", taskType)
	}
	return json.RawMessage(raw), nil
}

// Health returns nil when GET /health answers 2xx.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "health", nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, c.classify(ctx, fmt.Errorf("worker rate limit: %w", err))
	}

	endpoint := c.base.JoinPath(path)
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("create worker request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.classify(ctx, fmt.Errorf("worker request failed: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, c.classify(ctx, fmt.Errorf("read worker response: %w", err))
	}
	if len(raw) > maxResponseBytes {
		return nil, ErrResponseTooLarge
	}

	c.logger.DebugContext(ctx, "worker call",
		"method", method,
		"path", endpoint.Path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(strings.TrimSpace(string(raw)), 256)}
	}
	return raw, nil
}

// classify maps deadline failures to ErrWorkerTimeout and leaves everything else as is.
func (c *Client) classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrWorkerTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", ErrWorkerTimeout, err)
	}
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
