// Package httpstream provides a completion client for endpoints that answer a
// JSON question with a chunked text/plain body.
package httpstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/esoteric-oracle/oracle-service/internal/core/completion"
	apperrors "github.com/esoteric-oracle/oracle-service/internal/domain/errors"
)

const (
	readBufferSize   = 4096
	maxErrorBodySize = 64 << 10
)

// Config holds the configuration for the client.
type Config struct {
	URL        string
	APIKey     string
	HTTPClient *http.Client
}

// Client implements completion.Client over plain HTTP.
type Client struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

var _ completion.Client = (*Client)(nil)

type questionRequest struct {
	Question string `json:"question"`
}

// errorBody covers both JSON error shapes the endpoint uses.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// NewClient creates a new streaming HTTP completion client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("completion URL is required")
	}

	// No client timeout: a legitimate answer may stream for a long time and
	// cancellation goes through the request context.
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}, nil
}

// Stream posts the question and returns a reader over the chunked body.
func (c *Client) Stream(ctx context.Context, req *completion.Request) (completion.StreamReader, error) {
	body, err := json.Marshal(&questionRequest{Question: req.Question})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, apperrors.NewBackendRejectedError(errorText(data), resp.StatusCode)
	}

	return &streamReader{
		response: resp,
		buf:      make([]byte, readBufferSize),
	}, nil
}

// Ping checks that the endpoint answers at all. Any status below 500 counts
// as reachable since the endpoint only accepts POST.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("completion endpoint unreachable: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("completion endpoint unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// Close releases any resources held by the client.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/plain")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// errorText extracts the backend's message from a JSON or plain-text body.
// An empty result means the body carried nothing usable.
func errorText(data []byte) string {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return ""
	}

	var e errorBody
	if trimmed[0] == '{' && json.Unmarshal(trimmed, &e) == nil {
		if e.Error != "" {
			return e.Error
		}
		return e.Message
	}
	return strings.TrimSpace(string(trimmed))
}

// streamReader implements completion.StreamReader.
type streamReader struct {
	response *http.Response
	buf      []byte
}

// Read returns whatever the transport has delivered so far.
func (r *streamReader) Read() ([]byte, error) {
	n, err := r.response.Body.Read(r.buf)
	var data []byte
	if n > 0 {
		data = make([]byte, n)
		copy(data, r.buf[:n])
	}
	return data, err
}

// Close closes the underlying response body.
func (r *streamReader) Close() error {
	if r.response != nil && r.response.Body != nil {
		return r.response.Body.Close()
	}
	return nil
}
