// Package gemini is a minimal client for the Gemini generateContent endpoint.
package gemini

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/dataq/errors"
	"github.com/teranos/dataq/internal/httpclient"
)

const (
	DefaultModel   = "gemini-1.5-flash"
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
)

// Config holds Gemini client configuration
type Config struct {
	APIKey        string
	Model         string
	FallbackModel string // tried when the primary model fails; empty or equal = no fallback
	BaseURL       string
	Temperature   float64
	Timeout       time.Duration // HTTP client timeout; callers also bound each call by context
	Logger        *zap.SugaredLogger
}

// Client calls generateContent with a primary and a fallback model
type Client struct {
	config     Config
	httpClient httpclient.Doer
	retry      httpclient.RetryPolicy
	logger     *zap.SugaredLogger
}

// NewClient creates a Gemini client with defaults filled in
func NewClient(config Config) *Client {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Temperature == 0 {
		config.Temperature = 0.2
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Client{
		config:     config,
		httpClient: httpclient.NewSaferClient(config.Timeout),
		retry:      httpclient.DefaultRetry,
		logger:     logger.Named("gemini"),
	}
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature float64 `json:"temperature"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

// Name identifies the provider in usage records
func (c *Client) Name() string { return "gemini" }

// Model is the primary model
func (c *Client) Model() string { return c.config.Model }

// Generate sends prompt as a single user turn and returns the first
// candidate's text. The fallback model is tried once the primary model is
// unavailable; a timeout is returned as is.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if c.config.APIKey == "" {
		return "", errors.Mark(errors.WithHint(errors.New("Gemini API key not configured"),
			"set gemini.api_key or DATAQ_GEMINI_API_KEY"), errors.ErrLLMUnavailable)
	}

	models := []string{c.config.Model}
	if fb := c.config.FallbackModel; fb != "" && fb != c.config.Model {
		models = append(models, fb)
	}

	var lastErr error
	for _, model := range models {
		text, err := c.generate(ctx, model, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err
		c.logger.Warnw("Gemini request failed", "model", model, "error", err)
		if errors.Is(err, errors.ErrLLMTimeout) || ctx.Err() != nil {
			break
		}
	}
	return "", lastErr
}

func (c *Client) generate(ctx context.Context, model, prompt string) (string, error) {
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.config.BaseURL, url.PathEscape(model))
	req := generateRequest{
		Contents:         []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{Temperature: c.config.Temperature},
	}
	headers := map[string]string{"x-goog-api-key": c.config.APIKey}

	start := time.Now()
	var resp generateResponse
	if err := httpclient.PostJSON(ctx, c.httpClient, endpoint, headers, req, &resp, c.retry); err != nil {
		return "", errors.Wrapf(err, "gemini %s", model)
	}
	c.logger.Debugw("Gemini response", "model", model, "candidates", len(resp.Candidates), "duration_ms", time.Since(start).Milliseconds())

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		reason := "no candidates"
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			reason = "prompt blocked: " + resp.PromptFeedback.BlockReason
		}
		return "", errors.Mark(errors.Newf("gemini %s: %s", model, reason), errors.ErrLLMUnavailable)
	}
	return strings.TrimSpace(resp.Candidates[0].Content.Parts[0].Text), nil
}

// SetHTTPClient overrides the transport. Only tests should call it.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = httpclient.WrapClient(client)
}

// SetRetryPolicy overrides the retry policy. Only tests should call it.
func (c *Client) SetRetryPolicy(p httpclient.RetryPolicy) {
	c.retry = p
}
