package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// DefaultTimeout bounds a single submission.
const DefaultTimeout = 30 * time.Second

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 1 << 20

// SubmissionResult is the outcome of a submission.
type SubmissionResult struct {
	Success          bool      `json:"success"`
	Message          string    `json:"message"`
	Timestamp        time.Time `json:"timestamp"`
	ValidationErrors []string  `json:"validationErrors,omitempty"`
}

// Client posts payloads to a case-management endpoint. There is no retry
// policy: one request per Submit.
//
// Client is safe for concurrent use.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the request timeout. Default: DefaultTimeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = h
	}
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a client for endpoint.
func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit validates p and POSTs it as JSON.
//
// An invalid payload is not sent. Network failures, non-2xx statuses and
// undecodable responses all come back as a failed result.
func (c *Client) Submit(ctx context.Context, p CasePayload) SubmissionResult {
	if err := p.Validate(); err != nil {
		c.logger.Warn("export payload invalid", "case_id", p.CaseID, "error", err)
		return SubmissionResult{
			Message:          "payload failed validation",
			Timestamp:        c.now(),
			ValidationErrors: ValidationMessages(err),
		}
	}

	body, err := json.Marshal(p)
	if err != nil {
		return c.failed(fmt.Sprintf("marshal payload: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return c.failed(fmt.Sprintf("create request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", p.RequestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("export submission failed", "case_id", p.CaseID, "error", err)
		return c.failed(fmt.Sprintf("http request: %v", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return c.failed(fmt.Sprintf("read response: %v", err))
	}

	var result SubmissionResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return c.failed(fmt.Sprintf("backend returned status %d: %s", resp.StatusCode, bytes.TrimSpace(raw)))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		result.Success = false
		if result.Message == "" {
			result.Message = fmt.Sprintf("backend returned status %d", resp.StatusCode)
		}
	}
	if result.Timestamp.IsZero() {
		result.Timestamp = c.now()
	}

	c.logger.Info("export submitted", "case_id", p.CaseID, "status", resp.StatusCode, "success", result.Success)
	return result
}

func (c *Client) failed(msg string) SubmissionResult {
	return SubmissionResult{Message: msg, Timestamp: c.now()}
}

// WriteFile validates p and writes it as indented JSON to path.
func WriteFile(path string, p CasePayload) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("write export: marshal: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return nil
}
