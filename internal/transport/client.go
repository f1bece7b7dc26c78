// Package transport wraps the chat backend's HTTP endpoints: JSON requests,
// multipart uploads, and the long-lived streaming chat call.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	defaultTimeout       = 30 * time.Second
	defaultStreamTimeout = 300 * time.Second
	defaultRetries       = 3
	defaultBackoff       = 500 * time.Millisecond
	maxResponseSize      = 16 << 20
)

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL       string
	Timeout       time.Duration // per request, excluding streams
	StreamTimeout time.Duration // whole streaming response
	Retries       int           // attempts for idempotent reads
	Backoff       time.Duration // first retry delay, doubled per attempt
	UserAgent     string
	HTTPClient    *http.Client
}

// Client talks to the chat backend rooted at a fixed base URL.
type Client struct {
	baseURL       string
	timeout       time.Duration
	streamTimeout time.Duration
	retries       int
	backoff       time.Duration
	userAgent     string
	httpClient    *http.Client
}

// New creates a Client from opts.
func New(opts Options) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		timeout:       opts.Timeout,
		streamTimeout: opts.StreamTimeout,
		retries:       opts.Retries,
		backoff:       opts.Backoff,
		userAgent:     opts.UserAgent,
		httpClient:    opts.HTTPClient,
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.streamTimeout <= 0 {
		c.streamTimeout = defaultStreamTimeout
	}
	if c.retries <= 0 {
		c.retries = defaultRetries
	}
	if c.backoff <= 0 {
		c.backoff = defaultBackoff
	}
	if c.userAgent == "" {
		c.userAgent = "docchat"
	}
	if c.httpClient == nil {
		// Timeouts are enforced per request through the context; a client-wide
		// timeout would cut long streams short.
		c.httpClient = &http.Client{}
	}
	return c
}

// BaseURL returns the endpoint all paths are resolved against.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetJSON performs an idempotent GET and decodes the JSON response into out.
// Transient failures are retried with exponential backoff.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	var lastErr error
	for attempt := range c.retries {
		err := c.roundTrip(ctx, http.MethodGet, path, query, "", nil, out)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}

		lastErr = err
		if attempt < c.retries-1 {
			wait := time.Duration(float64(c.backoff) * math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", c.retries, lastErr)
}

// PostJSON sends body as JSON and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshalling request: %w", err)
	}
	return c.roundTrip(ctx, http.MethodPost, path, nil, "application/json", data, out)
}

// DeleteJSON sends a DELETE carrying a JSON body and decodes the response into out.
func (c *Client) DeleteJSON(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshalling request: %w", err)
	}
	return c.roundTrip(ctx, http.MethodDelete, path, nil, "application/json", data, out)
}

// Upload posts a multipart form with the file under the "file" field followed
// by the given extra fields, and decodes the JSON response into out.
func (c *Client) Upload(ctx context.Context, path, filename string, content []byte, fields map[string]string, out any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("creating file part: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return fmt.Errorf("writing file part: %w", err)
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := mw.WriteField(k, fields[k]); err != nil {
			return fmt.Errorf("writing field %s: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("closing multipart body: %w", err)
	}

	return c.roundTrip(ctx, http.MethodPost, path, nil, mw.FormDataContentType(), buf.Bytes(), out)
}

// Stream posts body as JSON and returns the unread response body. The caller
// must close it. Streams are never retried: partial output cannot be replayed.
func (c *Client) Stream(ctx context.Context, path string, body any) (io.ReadCloser, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshalling request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.streamTimeout)
	req, err := c.newRequest(reqCtx, http.MethodPost, path, nil, "application/json", data)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, &networkError{err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		resp.Body.Close()
		cancel()
		return nil, responseError(resp.StatusCode, respBody)
	}

	return &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}, nil
}

// cancelOnClose wraps a ReadCloser and cancels a context on Close.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, contentType string, body []byte, out any) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(reqCtx, method, path, query, contentType, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &networkError{err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &networkError{err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return responseError(resp.StatusCode, data)
	}
	if msg := errorMessage(data); msg != "" {
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, contentType string, body []byte) (*http.Request, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("User-Agent", c.userAgent)
	return req, nil
}
