package provider

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/teranos/dataq/am"
	"github.com/teranos/dataq/errors"
	"github.com/teranos/dataq/internal/httpclient"
)

// LocalProvider talks to a local inference server over the OpenAI-compatible
// chat completions endpoint. Works with Ollama and LocalAI.
type LocalProvider struct {
	baseURL    string
	model      string
	httpClient httpclient.Doer
	retry      httpclient.RetryPolicy
}

// NewLocalProvider creates a provider for local inference
func NewLocalProvider(cfg *am.LocalInferenceConfig) *LocalProvider {
	return &LocalProvider{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		// local servers live on loopback or the LAN, so no private address blocking
		httpClient: &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		retry:      httpclient.DefaultRetry,
	}
}

// ChatCompletionRequest matches the OpenAI API format (Ollama is compatible)
type ChatCompletionRequest struct {
	Model    string          `json:"model"`
	Messages []ChatMessage   `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *CompletionOpts `json:"options,omitempty"` // Ollama-specific options
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type CompletionOpts struct {
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"num_predict,omitempty"` // Ollama uses num_predict
}

// ChatCompletionResponse matches the OpenAI API format
type ChatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Index        int         `json:"index"`
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

const localSystemPrompt = "You are a careful data quality analyst. Answer with a single JSON object and nothing else."

// Generate sends prompt to the local server
func (lp *LocalProvider) Generate(ctx context.Context, prompt string) (string, error) {
	return lp.GenerateText(ctx, localSystemPrompt, prompt)
}

// GenerateText sends a system and user prompt to the local server
func (lp *LocalProvider) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	reqBody := ChatCompletionRequest{
		Model: lp.model,
		Messages: []ChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Options: &CompletionOpts{Temperature: 0.2, MaxTokens: 2048},
	}

	var completion ChatCompletionResponse
	if err := httpclient.PostJSON(ctx, lp.httpClient, lp.baseURL+"/v1/chat/completions", nil, reqBody, &completion, lp.retry); err != nil {
		return "", errors.Wrap(err, "local inference")
	}
	if len(completion.Choices) == 0 {
		return "", errors.Mark(errors.New("local inference returned no completion choices"), errors.ErrLLMUnavailable)
	}
	return strings.TrimSpace(completion.Choices[0].Message.Content), nil
}

// Name identifies the provider in usage records
func (lp *LocalProvider) Name() string { return string(ProviderTypeLocal) }

// Model returns the configured local model name
func (lp *LocalProvider) Model() string { return lp.model }
