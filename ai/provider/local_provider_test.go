package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/dataq/am"
	"github.com/teranos/dataq/errors"
)

func TestLocalProvider_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)

		var req ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3.2:3b", req.Model)
		assert.False(t, req.Stream)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "user", req.Messages[1].Role)
		assert.Equal(t, "the prompt", req.Messages[1].Content)

		w.Write([]byte(`{"model":"llama3.2:3b","choices":[{"index":0,"message":{"role":"assistant","content":" {\"summary\":\"x\"} "}}]}`))
	}))
	defer server.Close()

	p := NewLocalProvider(&am.LocalInferenceConfig{BaseURL: server.URL + "/", Model: "llama3.2:3b", TimeoutSeconds: 5})
	text, err := p.Generate(context.Background(), "the prompt")
	require.NoError(t, err)
	assert.Equal(t, `{"summary":"x"}`, text)
	assert.Equal(t, "local", p.Name())
}

func TestLocalProvider_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	p := NewLocalProvider(&am.LocalInferenceConfig{BaseURL: server.URL, Model: "m", TimeoutSeconds: 5})
	_, err := p.Generate(context.Background(), "p")
	assert.True(t, errors.Is(err, errors.ErrLLMUnavailable))

	// nothing listens here
	down := NewLocalProvider(&am.LocalInferenceConfig{BaseURL: "http://127.0.0.1:1", Model: "m", TimeoutSeconds: 1})
	_, err = down.Generate(context.Background(), "p")
	assert.True(t, errors.Is(err, errors.ErrLLMUnavailable))
}

type countingGenerator struct{ calls int }

func (c *countingGenerator) Generate(context.Context, string) (string, error) {
	c.calls++
	return "ok", nil
}
func (c *countingGenerator) Name() string  { return "count" }
func (c *countingGenerator) Model() string { return "count-1" }

func TestWithRateLimit(t *testing.T) {
	inner := &countingGenerator{}
	assert.Same(t, inner, WithRateLimit(inner, 0))

	// one call per minute: the first passes on the burst token
	g := WithRateLimit(inner, 1)
	_, err := g.Generate(context.Background(), "p")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = g.Generate(ctx, "p")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrLLMTimeout))
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, "count", g.Name())
}
