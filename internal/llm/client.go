// Package llm provides the OpenAI-compatible client used for reflection and
// task LM calls.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/longregen/gepa/internal/adapters/metrics"
	"github.com/longregen/gepa/pkg/otel"
	"github.com/longregen/gepa/shared/backoff"
)

// Config holds the configuration for the LLM client.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
	HTTPClient  *http.Client
	Timeout     time.Duration
	Retry       backoff.Strategy
}

// Option configures a Config.
type Option func(*Config)

// WithModel sets the default model for chat completions.
func WithModel(model string) Option {
	return func(c *Config) {
		c.Model = model
	}
}

// WithMaxTokens sets the default max tokens for completions.
func WithMaxTokens(maxTokens int) Option {
	return func(c *Config) {
		c.MaxTokens = maxTokens
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) Option {
	return func(c *Config) {
		c.Temperature = t
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) {
		c.HTTPClient = client
	}
}

// WithTimeout sets the HTTP client timeout.
// This is ignored if WithHTTPClient is also used.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Timeout = d
	}
}

// WithRetry sets the backoff strategy for transient failures.
func WithRetry(s backoff.Strategy) Option {
	return func(c *Config) {
		c.Retry = s
	}
}

// Message is one chat turn.
type Message struct {
	Role    string
	Content string
}

// Client wraps the OpenAI client with configuration metadata.
type Client struct {
	api       *openai.Client
	BaseURL   string
	Model     string
	MaxTokens int

	temperature float32
	retry       backoff.Strategy
}

// NewClient creates an OpenAI-compatible client. BaseURL should be the full
// API base URL (e.g. "https://api.openai.com/v1").
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	cfg := &Config{
		BaseURL:     strings.TrimSuffix(baseURL, "/"),
		APIKey:      apiKey,
		Model:       "gpt-4o-mini",
		MaxTokens:   4096,
		Temperature: 0.7,
		Timeout:     120 * time.Second,
		Retry:       backoff.Quick,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	openaiCfg := openai.DefaultConfig(cfg.APIKey)
	openaiCfg.BaseURL = cfg.BaseURL
	if cfg.HTTPClient != nil {
		openaiCfg.HTTPClient = cfg.HTTPClient
	} else {
		openaiCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		api:         openai.NewClientWithConfig(openaiCfg),
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		retry:       cfg.Retry,
	}
}

// Chat sends a chat completion request and returns the assistant content.
// Transient failures are retried with the configured backoff strategy.
func (c *Client) Chat(ctx context.Context, messages []Message) (string, error) {
	ctx, span := otel.Tracer("gepa/llm").Start(ctx, "llm.chat",
		trace.WithAttributes(
			otel.LLMModel(c.Model),
			otel.LLMProvider("openai-compatible"),
		))
	defer span.End()

	chatMsgs := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		chatMsgs[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	start := time.Now()
	var content string
	err := backoff.Retry(ctx, c.retry, func(ctx context.Context, attempt int) error {
		resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       c.Model,
			Messages:    chatMsgs,
			MaxTokens:   c.MaxTokens,
			Temperature: c.temperature,
		})
		if err != nil {
			return fmt.Errorf("chat completion (attempt %d): %w", attempt, err)
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("chat completion returned no choices")
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	metrics.ReflectionDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat failed")
		return "", err
	}
	return content, nil
}
