// Package api provides the stateless REST client for the remote CAM and
// order service. It owns no state and performs no retries or polling;
// those are the poller's and the orchestrator's responsibility.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/camline/camline/pkg/bom"
	"github.com/camline/camline/pkg/jobs"
)

// APIError is a typed failure from the remote service. Status is zero for
// pure transport failures (the request never produced a response).
type APIError struct {
	// Status is the HTTP status code, zero on transport failure.
	Status int

	// Message is the server-provided error message, if any.
	Message string

	// Op is the high-level operation that failed.
	Op string

	// Err is the underlying transport error, if any.
	Err error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: transport failure: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: server returned %d: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: server returned %d", e.Op, e.Status)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *APIError) Unwrap() error { return e.Err }

// IsTransport returns true if the failure never produced an HTTP response.
func (e *APIError) IsTransport() bool { return e.Status == 0 }

// Config contains client configuration options.
type Config struct {
	// BaseURL is the service base URL, without a trailing slash.
	BaseURL string

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// HTTPClient overrides the underlying HTTP client (used in tests).
	HTTPClient *http.Client
}

// Client is the request/response wrapper around the remote service.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a new API client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		baseURL: cfg.BaseURL,
		http:    httpClient,
	}, nil
}

// GetBOM loads the current full specification for an order.
func (c *Client) GetBOM(ctx context.Context, orderID string) (*bom.Specification, error) {
	path := fmt.Sprintf("/orders/%s/bom", orderID)
	var spec bom.Specification
	if err := c.do(ctx, "get_bom", http.MethodGet, path, nil, &spec); err != nil {
		return nil, err
	}
	return &spec, nil
}

// UpdateBOM persists the full specification for an order.
func (c *Client) UpdateBOM(ctx context.Context, orderID string, spec *bom.Specification) error {
	path := fmt.Sprintf("/orders/%s/bom", orderID)
	return c.do(ctx, "update_bom", http.MethodPatch, path, spec, nil)
}

// RecalculateBOM regenerates the derived specification from the structural
// fields and returns the full updated specification.
func (c *Client) RecalculateBOM(ctx context.Context, orderID string, spec *bom.Specification) (*bom.Specification, error) {
	path := fmt.Sprintf("/orders/%s/bom/recalculate", orderID)
	var updated bom.Specification
	if err := c.do(ctx, "recalculate_bom", http.MethodPost, path, spec, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// CreateJob creates a remote CAM job of the given kind and returns its ID.
// Params must match the kind: LayoutParams, GCodeParams, or DrillingParams.
func (c *Client) CreateJob(ctx context.Context, kind jobs.Kind, params interface{}) (string, error) {
	if err := kind.Validate(); err != nil {
		return "", err
	}

	path := fmt.Sprintf("/cam/%s", endpointForKind(kind))
	var resp createJobResponse
	if err := c.do(ctx, "create_job", http.MethodPost, path, createJobRequest{Kind: kind, Params: params}, &resp); err != nil {
		return "", err
	}
	if resp.JobID == "" {
		return "", &APIError{Op: "create_job", Status: http.StatusOK, Message: "server returned no job id"}
	}
	return resp.JobID, nil
}

// GetJob returns the current remote state of a job. Implements
// jobs.StatusClient.
func (c *Client) GetJob(ctx context.Context, jobID string) (*jobs.Job, error) {
	path := fmt.Sprintf("/cam/jobs/%s", jobID)
	var job jobs.Job
	if err := c.do(ctx, "get_job", http.MethodGet, path, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// DownloadArtifact resolves a completed job's artifact to a byte stream.
// The caller owns closing the returned reader.
func (c *Client) DownloadArtifact(ctx context.Context, jobID string) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, http.MethodGet, fmt.Sprintf("/cam/jobs/%s/file", jobID), nil)
	if err != nil {
		return nil, &APIError{Op: "download_artifact", Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &APIError{Op: "download_artifact", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, &APIError{Op: "download_artifact", Status: resp.StatusCode, Message: readErrorMessage(resp.Body)}
	}
	return resp.Body, nil
}

// GetSettings returns the remote machine profile and sheet defaults.
func (c *Client) GetSettings(ctx context.Context) (*Settings, error) {
	var settings Settings
	if err := c.do(ctx, "get_settings", http.MethodGet, "/settings", nil, &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// UpdateSettings persists changed settings fields.
func (c *Client) UpdateSettings(ctx context.Context, settings *Settings) error {
	return c.do(ctx, "update_settings", http.MethodPatch, "/settings", settings, nil)
}

// do performs a JSON request/response round trip. A non-2xx response or a
// transport failure surfaces as an *APIError.
func (c *Client) do(ctx context.Context, op, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return &APIError{Op: op, Err: fmt.Errorf("encode request: %w", err)}
		}
		reader = bytes.NewReader(buf)
	}

	req, err := c.newRequest(ctx, method, path, reader)
	if err != nil {
		return &APIError{Op: op, Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &APIError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Op: op, Status: resp.StatusCode, Message: readErrorMessage(resp.Body)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &APIError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return nil
}

// newRequest builds a request with the standard headers.
func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.New().String())
	return req, nil
}

// readErrorMessage extracts the server-provided message from an error body.
func readErrorMessage(body io.Reader) string {
	var resp errorResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return ""
	}
	return resp.Error
}

// endpointForKind maps a job kind to its creation endpoint segment.
func endpointForKind(kind jobs.Kind) string {
	switch kind {
	case jobs.KindLayout:
		return "dxf"
	case jobs.KindGCode:
		return "gcode"
	case jobs.KindDrilling:
		return "drilling"
	}
	return string(kind)
}
