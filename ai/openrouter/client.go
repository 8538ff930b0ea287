package openrouter

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/dataq/errors"
	"github.com/teranos/dataq/internal/httpclient"
)

const (
	// DefaultModel should match the default in am/defaults.go
	DefaultModel   = "openai/gpt-4o-mini"
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	// SystemPrompt frames every dataq request
	SystemPrompt = "You are a careful data quality analyst. Answer with a single JSON object and nothing else."
)

// Client is an OpenRouter.ai chat completions client
type Client struct {
	apiKey     string
	baseURL    string
	httpClient httpclient.Doer
	retry      httpclient.RetryPolicy
	config     Config
	logger     *zap.SugaredLogger
}

// Config holds OpenRouter client configuration
type Config struct {
	APIKey      string
	Model       string
	Temperature *float64 // nil = use default (0.2)
	MaxTokens   *int     // nil = use default (1000)
	BaseURL     string
	Timeout     time.Duration
	Logger      *zap.SugaredLogger // nil = nop logger
}

// NewClient creates a new OpenRouter.ai client with dataq defaults
func NewClient(config Config) *Client {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Temperature == nil {
		defaultTemp := 0.2
		config.Temperature = &defaultTemp
	}
	if config.MaxTokens == nil {
		defaultTokens := 1000
		config.MaxTokens = &defaultTokens
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 120 * time.Second
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Client{
		apiKey:     config.APIKey,
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: httpclient.NewSaferClient(config.Timeout),
		retry:      httpclient.DefaultRetry,
		config:     config,
		logger:     logger.Named("openrouter"),
	}
}

// ChatCompletionRequest is the body of POST /chat/completions
type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// ChatRequest is a high-level request
type ChatRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  *float64 // override default temperature
	MaxTokens    *int     // override default max tokens
	Model        *string  // override default model
}

// ChatResponse is the assistant reply
type ChatResponse struct {
	Content string
	Model   string
	Usage   Usage
}

// Message is one chat message
type Message struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// NewTextMessage creates a Message with plain text content
func NewTextMessage(role, text string) Message {
	raw, _ := json.Marshal(text)
	return Message{Role: role, Content: raw}
}

// TextContent extracts the plain text from Content
func (m Message) TextContent() string {
	var s string
	if err := json.Unmarshal(m.Content, &s); err != nil {
		return string(m.Content)
	}
	return s
}

// ChatCompletionResponse is the response of chat completions
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice is one completion choice
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage is token usage information
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CreateChatCompletion sends one chat completion request, retrying transient failures
func (c *Client) CreateChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	headers := map[string]string{
		"Authorization": "Bearer " + c.apiKey,
		"X-Title":       "dataq",
	}
	var resp ChatCompletionResponse
	if err := httpclient.PostJSON(ctx, c.httpClient, c.baseURL+"/chat/completions", headers, req, &resp, c.retry); err != nil {
		return nil, errors.Wrap(err, "OpenRouter API error")
	}
	return &resp, nil
}

// Chat sends a system+user exchange and returns the first choice
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if c.config.APIKey == "" {
		return nil, errors.Mark(errors.WithHint(errors.New("OpenRouter API key not configured"),
			"set openrouter.api_key or DATAQ_OPENROUTER_API_KEY"), errors.ErrLLMUnavailable)
	}

	temperature := *c.config.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := *c.config.MaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	model := c.config.Model
	if req.Model != nil {
		model = *req.Model
	}

	messages := []Message{NewTextMessage("user", req.UserPrompt)}
	if req.SystemPrompt != "" {
		messages = append([]Message{NewTextMessage("system", req.SystemPrompt)}, messages...)
	}

	c.logger.Debugw("OpenRouter chat request",
		"model", model,
		"temperature", temperature,
		"max_tokens", maxTokens,
		"prompt_bytes", len(req.UserPrompt),
	)

	resp, err := c.CreateChatCompletion(ctx, ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.Mark(errors.New("no response choices from OpenRouter"), errors.ErrLLMUnavailable)
	}

	text := resp.Choices[0].Message.TextContent()
	c.logger.Debugw("OpenRouter response",
		"content_length", len(text),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)

	return &ChatResponse{
		Content: strings.TrimSpace(text),
		Model:   model,
		Usage:   resp.Usage,
	}, nil
}

// Generate sends prompt under the dataq system prompt
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.Chat(ctx, ChatRequest{SystemPrompt: SystemPrompt, UserPrompt: prompt})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// Name identifies the provider in usage records
func (c *Client) Name() string { return "openrouter" }

// Model is the configured model
func (c *Client) Model() string { return c.config.Model }

// IsConfigured returns true if the client has an API key
func (c *Client) IsConfigured() bool {
	return c.config.APIKey != ""
}

// SetHTTPClient overrides the HTTP client. Only tests should call it; it
// drops the private address protection.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = httpclient.WrapClient(client)
}

// SetRetryPolicy overrides the retry policy. Only tests should call it.
func (c *Client) SetRetryPolicy(p httpclient.RetryPolicy) {
	c.retry = p
}
