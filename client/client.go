// Package client provides a Go client for the Folio content API, including
// a per-resource cache that applies optimistic local mutations.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// uploadTimeout bounds media uploads separately from ordinary CRUD calls,
// which use the default client timeout. Large binaries over slow links need
// far more headroom than a JSON round trip.
const uploadTimeout = 600 * time.Second

const defaultTimeout = 30 * time.Second

// ErrPayloadTooLarge indicates the server rejected an upload because the
// file exceeds the configured size limit. Callers can match it with
// errors.Is to show an actionable message instead of a generic failure.
var ErrPayloadTooLarge = errors.New("file is too large: the server rejected the upload, choose a smaller file")

// APIError is a non-2xx response from the Folio server, carrying the status
// code and the server's error message.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}

// Client is a Folio API client bound to a base URL.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	uploadClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for CRUD calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithUploadClient overrides the HTTP client used for media uploads.
func WithUploadClient(hc *http.Client) Option {
	return func(c *Client) {
		c.uploadClient = hc
	}
}

// New creates a Client for the server at baseURL, e.g. "http://localhost:5000".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: defaultTimeout},
		uploadClient: &http.Client{Timeout: uploadTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// listEnvelope mirrors the server's listing response body.
type listEnvelope struct {
	Success    bool             `json:"success"`
	Total      int              `json:"total"`
	Page       int              `json:"page"`
	TotalPages int              `json:"totalPages"`
	Limit      int              `json:"limit"`
	Data       []map[string]any `json:"data"`
}

// itemEnvelope mirrors the server's single-item response body.
type itemEnvelope struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

// doJSON issues a JSON request and decodes the response body into out.
// Non-2xx responses are returned as *APIError; a 413 additionally wraps
// ErrPayloadTooLarge.
func (c *Client) doJSON(ctx context.Context, hc *http.Client, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response body: %w", err)
	}
	return nil
}

// decodeError turns a non-2xx response into an error. The server's message
// is preserved when the body parses as the error envelope.
func decodeError(resp *http.Response) error {
	var envelope struct {
		Message string `json:"message"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Message == "" {
		envelope.Message = http.StatusText(resp.StatusCode)
	}

	apiErr := &APIError{StatusCode: resp.StatusCode, Message: envelope.Message}
	if resp.StatusCode == http.StatusRequestEntityTooLarge {
		return fmt.Errorf("%w: %w", ErrPayloadTooLarge, apiErr)
	}
	return apiErr
}

// upload posts a single file as multipart form data under the given field
// name and returns the stored reference from the response.
func (c *Client) upload(ctx context.Context, path, field, filename string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		return "", fmt.Errorf("building multipart body: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("reading upload source: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("finalizing multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return "", fmt.Errorf("building upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.uploadClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", decodeError(resp)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decoding upload response: %w", err)
	}
	ref, _ := body[field].(string)
	if ref == "" {
		return "", fmt.Errorf("upload response missing %q reference", field)
	}
	return ref, nil
}
