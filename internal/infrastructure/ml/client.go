package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/ports"
)

// Models names the model used by each endpoint; values are forwarded untouched.
type Models struct {
	Sentiment  string
	Topic      string
	Summarizer string
	Generator  string
}

// Limits bound the text exchanged with the inference service, in runes.
type Limits struct {
	MaxInput     int
	MaxSummary   int
	MaxGenerated int
}

// Options configures a Client.
type Options struct {
	Endpoint          string
	APIKey            string
	Models            Models
	Limits            Limits
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// Client talks to an external inference service for classification, summarization and generation.
type Client struct {
	endpoint string
	apiKey   string
	models   Models
	limits   Limits
	limiter  *rate.Limiter
	http     *http.Client
}

var (
	_ ports.SentimentClassifier = (*Client)(nil)
	_ ports.TopicClassifier     = (*Client)(nil)
	_ ports.Summarizer          = (*Client)(nil)
	_ ports.Generator           = (*Client)(nil)
)

// NewClient creates a reusable HTTP client. A non-positive rate disables limiting.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return &Client{
		endpoint: strings.TrimSuffix(opts.Endpoint, "/"),
		apiKey:   opts.APIKey,
		models:   opts.Models,
		limits:   opts.Limits,
		limiter:  limiter,
		http:     httpClient,
	}
}

type classifyResponse struct {
	Label string `json:"label"`
}

// ClassifySentiment returns the sentiment label for text.
func (c *Client) ClassifySentiment(ctx context.Context, text string) (domain.Label, error) {
	return c.classify(ctx, "/sentiment", c.models.Sentiment, text)
}

// ClassifyTopic returns the topic label for text.
func (c *Client) ClassifyTopic(ctx context.Context, text string) (domain.Label, error) {
	return c.classify(ctx, "/topic", c.models.Topic, text)
}

func (c *Client) classify(ctx context.Context, path, model, text string) (domain.Label, error) {
	payload := map[string]any{
		"model": model,
		"text":  Truncate(text, c.limits.MaxInput),
	}

	var resp classifyResponse
	if err := c.post(ctx, path, payload, &resp); err != nil {
		return "", err
	}

	label := strings.TrimSpace(resp.Label)
	if label == "" {
		return "", fmt.Errorf("%s: empty label", path)
	}
	return domain.Label(label), nil
}

// Summarize requests a summary. Over-long input keeps only its first MaxInput runes,
// and the returned summary is capped at MaxSummary runes.
func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	payload := map[string]any{
		"model":     c.models.Summarizer,
		"text":      Truncate(text, c.limits.MaxInput),
		"maxLength": c.limits.MaxSummary,
	}

	var resp struct {
		Summary string `json:"summary"`
	}

	if err := c.post(ctx, "/summarize", payload, &resp); err != nil {
		return "", err
	}

	return Truncate(strings.TrimSpace(resp.Summary), c.limits.MaxSummary), nil
}

// Generate requests derivative text for prompt, capped at MaxGenerated runes.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	payload := map[string]any{
		"model":     c.models.Generator,
		"prompt":    Truncate(prompt, c.limits.MaxInput),
		"maxLength": c.limits.MaxGenerated,
	}

	var resp struct {
		Text string `json:"text"`
	}

	if err := c.post(ctx, "/generate", payload, &resp); err != nil {
		return "", err
	}

	return Truncate(resp.Text, c.limits.MaxGenerated), nil
}

func (c *Client) post(ctx context.Context, path string, payload any, v any) error {
	if c.endpoint == "" {
		return fmt.Errorf("inference endpoint is not configured")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		closeErr := resp.Body.Close()
		if closeErr != nil {
			return fmt.Errorf("%s: unexpected status %s, close body: %v", path, resp.Status, closeErr)
		}
		return fmt.Errorf("%s: unexpected status %s: %s", path, resp.Status, strings.TrimSpace(string(snippet)))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		_ = resp.Body.Close()
		return fmt.Errorf("%s: decode response: %w", path, err)
	}

	if err := resp.Body.Close(); err != nil {
		return fmt.Errorf("close response body: %w", err)
	}

	return nil
}

// Truncate keeps the first limit runes of s. A non-positive limit disables truncation.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
