package extract

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"strings"
	"text/template"
	"time"
	"unicode/utf8"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"
)

const (
	defaultModel           = "claude-3-5-haiku-20241022"
	defaultMaxRetries      = 3
	defaultInitialBackoff  = 1 * time.Second
	defaultCallTimeout     = 60 * time.Second
	defaultMaxContentChars = 4000
	defaultRequestsPerSec  = 1.0
	maxResponseTokens      = 2048
)

// ErrAPIKeyRequired is returned when an API key is needed but not provided.
var ErrAPIKeyRequired = errors.New("API key required")

// Client is the Anthropic-backed Extractor. A shared rate limiter paces
// calls across workers; transient failures are retried with exponential
// backoff up to a bounded attempt count.
type Client struct {
	client          anthropic.Client
	model           anthropic.Model
	promptTemplate  *template.Template
	limiter         *rate.Limiter
	maxRetries      int
	initialBackoff  time.Duration
	callTimeout     time.Duration
	maxContentChars int
	minConfidence   float64
}

// Option configures a Client.
type Option func(*Client)

// WithModel overrides the extraction model.
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = anthropic.Model(model)
		}
	}
}

// WithMaxRetries bounds transient-failure retries per extraction call.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithCallTimeout bounds each API attempt. A timed-out attempt counts
// as transient toward the retry budget.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.callTimeout = d
		}
	}
}

// WithMaxContentChars bounds how much of the article body goes into the
// prompt.
func WithMaxContentChars(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxContentChars = n
		}
	}
}

// WithMinConfidence sets the floor below which extracted relationships
// are dropped.
func WithMinConfidence(min float64) Option {
	return func(c *Client) {
		if min > 0 {
			c.minConfidence = min
		}
	}
}

// WithRequestsPerSecond paces API calls. The limiter is shared by every
// worker using this client.
func WithRequestsPerSecond(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// NewClient creates an Anthropic extraction client. Env var
// ANTHROPIC_API_KEY takes precedence over the explicit apiKey.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	envKey := os.Getenv("ANTHROPIC_API_KEY")
	if envKey != "" {
		apiKey = envKey
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: set ANTHROPIC_API_KEY environment variable or provide via config", ErrAPIKeyRequired)
	}

	tmpl, err := template.New("extract").Parse(extractionPromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse extraction template: %w", err)
	}

	c := &Client{
		client:          anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:           defaultModel,
		promptTemplate:  tmpl,
		limiter:         rate.NewLimiter(rate.Limit(defaultRequestsPerSec), 1),
		maxRetries:      defaultMaxRetries,
		initialBackoff:  defaultInitialBackoff,
		callTimeout:     defaultCallTimeout,
		maxContentChars: defaultMaxContentChars,
		minConfidence:   DefaultMinConfidence,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Extract implements Extractor.
func (c *Client) Extract(ctx context.Context, title, content string) (*Result, error) {
	prompt, err := c.renderPrompt(title, truncate(content, c.maxContentChars))
	if err != nil {
		return nil, fmt.Errorf("failed to render prompt: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	raw, err := c.callWithRetry(ctx, extractionSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}
	return ParseResponse(raw, c.minConfidence)
}

func (c *Client) callWithRetry(ctx context.Context, system, prompt string) (string, error) {
	var lastErr error
	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: maxResponseTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.initialBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		message, err := c.client.Messages.New(callCtx, params)
		cancel()

		if err == nil {
			if len(message.Content) > 0 {
				content := message.Content[0]
				if content.Type == "text" {
					return content.Text, nil
				}
				return "", &SchemaViolationError{Reason: fmt.Sprintf("not a text block (type=%s)", content.Type)}
			}
			return "", &SchemaViolationError{Reason: "no content blocks in response"}
		}

		lastErr = err

		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		if !isRetryable(err) {
			return "", fmt.Errorf("non-retryable error: %w", err)
		}
	}

	return "", fmt.Errorf("transient failures exhausted %d attempts: %w", c.maxRetries+1, lastErr)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	// A deadline here is the per-attempt timeout; the parent-context case
	// is checked before this is consulted.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}

	return false
}

func (c *Client) renderPrompt(title, content string) (string, error) {
	var sb strings.Builder
	if err := c.promptTemplate.Execute(&sb, promptData{Title: title, Content: content}); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := s[:max]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
