package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"Nestcare/internal/metrics"

	"go.uber.org/zap"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrInvalidConversation  = errors.New("invalid conversation ID: must be positive")
	ErrEmptyContent         = errors.New("message content cannot be empty")
	ErrOperationTimeout     = errors.New("operation timeout exceeded")
)

const (
	// Timeouts
	defaultWriteTimeout  = 30 * time.Second // blocking sends wait for the AI reply
	defaultReadTimeout   = 10 * time.Second
	defaultStreamTimeout = 2 * time.Minute

	// Retry configuration, reads only
	maxRetries     = 3
	baseRetryDelay = 100 * time.Millisecond
	maxRetryDelay  = 2 * time.Second
)

// APIError is a non-2xx response from the conversation service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("conversation service returned %d", e.StatusCode)
	}
	return fmt.Sprintf("conversation service returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to the REST conversation service. baseURL includes the /api
// prefix.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.Logger
	metrics *metrics.Metrics
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger.Named("rest") }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		// no client timeout: streams are bounded by their context instead
		http:   &http.Client{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// do executes one request and decodes a 2xx JSON body into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// get retries transient failures with exponential backoff.
func (c *Client) get(ctx context.Context, operation, path string, out any) error {
	ctx, cancel := c.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()
	defer c.observe(operation, time.Now())

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.waitForRetry(ctx, attempt); err != nil {
				return err
			}
			c.logger.Warn("retrying request",
				zap.String("operation", operation),
				zap.Int("attempt", attempt+1),
				zap.Error(lastErr),
			)
		}

		err := c.do(ctx, http.MethodGet, path, nil, out)
		if err == nil {
			return nil
		}
		lastErr = err

		if !c.isRetryableError(err) {
			break
		}
	}

	return c.handleError(operation, lastErr)
}

func (c *Client) post(ctx context.Context, operation, path string, body, out any) error {
	ctx, cancel := c.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()
	defer c.observe(operation, time.Now())

	if err := c.do(ctx, http.MethodPost, path, body, out); err != nil {
		return c.handleError(operation, err)
	}
	return nil
}

func (c *Client) observe(operation string, start time.Time) {
	if c.metrics != nil {
		c.metrics.RestRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

func (c *Client) ensureTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hadDeadline := ctx.Deadline(); hadDeadline {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func (c *Client) waitForRetry(ctx context.Context, attempt int) error {
	delay := time.Duration(1<<uint(attempt)) * baseRetryDelay
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("retry wait cancelled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func (c *Client) isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == http.StatusTooManyRequests
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

func (c *Client) handleError(operation string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		c.logger.Error("request timeout", zap.String("operation", operation))
		return fmt.Errorf("%s: %w", operation, ErrOperationTimeout)
	}
	if errors.Is(err, context.Canceled) {
		c.logger.Debug("request cancelled", zap.String("operation", operation))
		return err
	}

	c.logger.Error("request failed", zap.String("operation", operation), zap.Error(err))
	return err
}

// readAPIError maps an error response. The service sends either a JSON
// problem object or plain text.
func readAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var problem struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Title   string `json:"title"`
	}
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &problem) == nil {
		switch {
		case problem.Message != "":
			msg = problem.Message
		case problem.Error != "":
			msg = problem.Error
		case problem.Title != "":
			msg = problem.Title
		}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}
