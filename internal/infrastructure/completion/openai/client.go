// Package openai provides a completion client for OpenAI-compatible chat APIs.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/esoteric-oracle/oracle-service/internal/core/completion"
	apperrors "github.com/esoteric-oracle/oracle-service/internal/domain/errors"
)

// Config holds the configuration for the client.
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	Temperature  float32
	MaxTokens    int
	HTTPClient   *http.Client
}

// Client implements completion.Client with streaming chat completions.
type Client struct {
	client       *goopenai.Client
	model        string
	systemPrompt string
	temperature  float32
	maxTokens    int
}

var _ completion.Client = (*Client)(nil)

// NewClient creates a new OpenAI-compatible completion client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	clientConfig := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		clientConfig.HTTPClient = cfg.HTTPClient
	}

	return &Client{
		client:       goopenai.NewClientWithConfig(clientConfig),
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
	}, nil
}

// Stream starts a streaming chat completion for the question.
func (c *Client) Stream(ctx context.Context, req *completion.Request) (completion.StreamReader, error) {
	messages := make([]goopenai.ChatCompletionMessage, 0, 2)
	if c.systemPrompt != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: c.systemPrompt,
		})
	}
	messages = append(messages, goopenai.ChatCompletionMessage{
		Role:    goopenai.ChatMessageRoleUser,
		Content: req.Question,
	})

	stream, err := c.client.CreateChatCompletionStream(ctx, goopenai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Stream:      true,
	})
	if err != nil {
		return nil, classify(err)
	}
	return &streamReader{stream: stream}, nil
}

// Ping lists the models, which needs a valid key and a reachable API.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.client.ListModels(ctx); err != nil {
		return fmt.Errorf("completion API unavailable: %w", err)
	}
	return nil
}

// Close releases any resources held by the client.
func (c *Client) Close() error {
	return nil
}

// classify maps API rejections to BACKEND_REJECTED and leaves transport
// errors for the caller.
func classify(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return apperrors.NewBackendRejectedError(apiErr.Message, apiErr.HTTPStatusCode)
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return apperrors.NewBackendRejectedError(strings.TrimSpace(string(reqErr.Body)), reqErr.HTTPStatusCode)
	}
	return err
}

// streamReader adapts the chat completion stream to completion.StreamReader.
type streamReader struct {
	stream *goopenai.ChatCompletionStream
}

// Read returns the text of the next delta.
func (r *streamReader) Read() ([]byte, error) {
	resp, err := r.stream.Recv()
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	for _, choice := range resp.Choices {
		b.WriteString(choice.Delta.Content)
	}
	return []byte(b.String()), nil
}

// Close closes the stream.
func (r *streamReader) Close() error {
	return r.stream.Close()
}
