// Package provider selects and assembles the generation service client
// from configuration.
package provider

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/dataq/ai/gemini"
	"github.com/teranos/dataq/ai/openrouter"
	"github.com/teranos/dataq/ai/tracker"
	"github.com/teranos/dataq/am"
	"github.com/teranos/dataq/errors"
)

// ParseProvider converts a string to a ProviderType
func ParseProvider(s string) (ProviderType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "auto", "":
		return ProviderTypeAuto, nil
	case "gemini", "google":
		return ProviderTypeGemini, nil
	case "openrouter", "or":
		return ProviderTypeOpenRouter, nil
	case "local", "ollama", "localai":
		return ProviderTypeLocal, nil
	case "none", "off", "heuristic":
		return ProviderTypeNone, nil
	default:
		return "", errors.Newf("unknown provider: %s (valid: auto, gemini, openrouter, local, none)", s)
	}
}

// Resolve decides which provider cfg selects.
// Auto priority: local inference (if enabled) → Gemini (if key) → OpenRouter (if key) → none.
func Resolve(cfg *am.Config) (ProviderType, error) {
	p, err := ParseProvider(cfg.LLM.Provider)
	if err != nil {
		return "", err
	}
	if p != ProviderTypeAuto {
		return p, nil
	}
	switch {
	case cfg.LocalInference.Enabled && cfg.LocalInference.BaseURL != "":
		return ProviderTypeLocal, nil
	case cfg.Gemini.APIKey != "":
		return ProviderTypeGemini, nil
	case cfg.OpenRouter.APIKey != "":
		return ProviderTypeOpenRouter, nil
	default:
		return ProviderTypeNone, nil
	}
}

// GetAvailableProviders lists the providers cfg has credentials or endpoints for
func GetAvailableProviders(cfg *am.Config) []ProviderType {
	var out []ProviderType
	if cfg.LocalInference.Enabled && cfg.LocalInference.BaseURL != "" {
		out = append(out, ProviderTypeLocal)
	}
	if cfg.Gemini.APIKey != "" {
		out = append(out, ProviderTypeGemini)
	}
	if cfg.OpenRouter.APIKey != "" {
		out = append(out, ProviderTypeOpenRouter)
	}
	return out
}

// New creates the bare generator cfg selects. It returns nil for
// ProviderTypeNone; callers fall back to heuristic summaries.
func New(cfg *am.Config, logger *zap.SugaredLogger) (Generator, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	p, err := Resolve(cfg)
	if err != nil {
		return nil, err
	}

	switch p {
	case ProviderTypeNone:
		return nil, nil
	case ProviderTypeLocal:
		if cfg.LocalInference.BaseURL == "" {
			return nil, errors.WithHint(errors.New("local inference base_url is empty"),
				"set local_inference.base_url, e.g. http://localhost:11434")
		}
		return NewLocalProvider(&cfg.LocalInference), nil
	case ProviderTypeGemini:
		if cfg.Gemini.APIKey == "" {
			return nil, errors.WithHint(errors.New("gemini provider selected without an API key"),
				"set gemini.api_key or DATAQ_GEMINI_API_KEY")
		}
		return gemini.NewClient(gemini.Config{
			APIKey:        cfg.Gemini.APIKey,
			Model:         cfg.Gemini.Model,
			FallbackModel: cfg.Gemini.FallbackModel,
			BaseURL:       cfg.Gemini.BaseURL,
			Timeout:       httpTimeout(cfg),
			Logger:        logger,
		}), nil
	case ProviderTypeOpenRouter:
		if cfg.OpenRouter.APIKey == "" {
			return nil, errors.WithHint(errors.New("openrouter provider selected without an API key"),
				"set openrouter.api_key or DATAQ_OPENROUTER_API_KEY")
		}
		temp := cfg.OpenRouter.Temperature
		tokens := cfg.OpenRouter.MaxTokens
		orCfg := openrouter.Config{
			APIKey:  cfg.OpenRouter.APIKey,
			Model:   cfg.OpenRouter.Model,
			Timeout: httpTimeout(cfg),
			Logger:  logger,
		}
		if temp > 0 {
			orCfg.Temperature = &temp
		}
		if tokens > 0 {
			orCfg.MaxTokens = &tokens
		}
		return openrouter.NewClient(orCfg), nil
	}
	return nil, errors.AssertionFailedf("unhandled provider %q", p)
}

// Build creates the generator cfg selects, rate limited and usage tracked.
// usage may be nil. A nil Generator means offline mode.
func Build(cfg *am.Config, usage *tracker.UsageTracker, logger *zap.SugaredLogger) (Generator, error) {
	g, err := New(cfg, logger)
	if err != nil || g == nil {
		return nil, err
	}
	g = WithRateLimit(g, cfg.LLM.RequestsPerMinute)
	return tracker.Wrap(g, usage), nil
}

// httpTimeout is a transport ceiling above the per-call context deadline
func httpTimeout(cfg *am.Config) time.Duration {
	return cfg.LLM.Timeout() + 10*time.Second
}
