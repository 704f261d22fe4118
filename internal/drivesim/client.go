package drivesim

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// APIError is a non-2xx answer from the service.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("http %d: %s: %s", e.Status, e.Code, e.Message)
}

// Client talks to the drivescore HTTP API.
type Client struct {
	http    *http.Client
	baseURL string
}

// NewClient creates a client with the given per-request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type envelope[T any] struct {
	Data T `json:"data"`
}

// Health checks the liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, resp.StatusCode)
	}
	return nil
}

// CreateSession starts a session.
func (c *Client) CreateSession(ctx context.Context, req CreateSession) (Session, error) {
	var out envelope[Session]
	err := c.do(ctx, http.MethodPost, "/sessions", req, &out)
	return out.Data, err
}

// Ingest sends one sample.
func (c *Client) Ingest(ctx context.Context, sessionID string, s Sample) (IngestAck, error) {
	var out IngestAck
	err := c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(sessionID)+"/telemetry", s, &out)
	return out, err
}

// IngestBatch sends samples as one batch.
func (c *Client) IngestBatch(ctx context.Context, sessionID string, samples []Sample) (IngestAck, error) {
	var out IngestAck
	body := struct {
		Data []Sample `json:"data"`
	}{Data: samples}
	err := c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(sessionID)+"/telemetry/batch", body, &out)
	return out, err
}

// EndSession completes a session.
func (c *Client) EndSession(ctx context.Context, sessionID string) (EndResult, error) {
	var out envelope[EndResult]
	body := map[string]string{"status": "completed"}
	err := c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(sessionID)+"/end", body, &out)
	return out.Data, err
}

// Evaluation fetches the stored evaluation of a session.
func (c *Client) Evaluation(ctx context.Context, sessionID string) (Evaluation, error) {
	var out envelope[Evaluation]
	err := c.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(sessionID)+"/evaluation", nil, &out)
	return out.Data, err
}

// do sends body as JSON and decodes a 2xx response into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s %s: %w", method, path, err)
	}
	return nil
}
