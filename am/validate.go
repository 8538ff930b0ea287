package am

import (
	"slices"

	"github.com/teranos/dataq/errors"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Newf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	if c.Server.OwnerHeader == "" {
		return errors.New("server.owner_header cannot be empty")
	}

	if c.Upload.MaxMB <= 0 {
		return errors.Newf("upload.max_mb must be > 0, got %d", c.Upload.MaxMB)
	}
	if len(c.Upload.AllowedExtensions) == 0 {
		return errors.New("upload.allowed_extensions cannot be empty")
	}

	switch c.Storage.Backend {
	case StorageLocal:
		if c.Storage.Root == "" {
			return errors.New("storage.root cannot be empty for the local backend")
		}
	case StorageMinIO:
		if c.Storage.MinIO.Endpoint == "" {
			return errors.New("storage.minio.endpoint cannot be empty for the minio backend")
		}
		if c.Storage.MinIO.Bucket == "" {
			return errors.New("storage.minio.bucket cannot be empty for the minio backend")
		}
	default:
		return errors.Newf("storage.backend must be %q or %q, got %q", StorageLocal, StorageMinIO, c.Storage.Backend)
	}

	// Profiling ratios are fractions
	if c.Profile.SampleRows < 0 {
		return errors.Newf("profile.sample_rows must be >= 0, got %d", c.Profile.SampleRows)
	}
	if c.Profile.TypeThreshold <= 0 || c.Profile.TypeThreshold > 1 {
		return errors.Newf("profile.type_threshold must be in (0, 1], got %g", c.Profile.TypeThreshold)
	}
	if c.Profile.CategoricalRatio <= 0 || c.Profile.CategoricalRatio > 1 {
		return errors.Newf("profile.categorical_ratio must be in (0, 1], got %g", c.Profile.CategoricalRatio)
	}
	if c.Profile.IDRatio <= 0 || c.Profile.IDRatio > 1 {
		return errors.Newf("profile.id_ratio must be in (0, 1], got %g", c.Profile.IDRatio)
	}
	if c.Profile.IQRMultiplier <= 0 {
		return errors.Newf("profile.iqr_multiplier must be > 0, got %g", c.Profile.IQRMultiplier)
	}

	providers := []string{ProviderAuto, ProviderGemini, ProviderOpenRouter, ProviderLocal, ProviderNone}
	if !slices.Contains(providers, c.LLM.Provider) {
		return errors.Newf("llm.provider must be one of %v, got %q", providers, c.LLM.Provider)
	}
	if c.LLM.TimeoutSeconds <= 0 {
		return errors.Newf("llm.timeout_seconds must be > 0, got %d", c.LLM.TimeoutSeconds)
	}
	if c.LLM.MaxPromptBytes < 1024 {
		return errors.Newf("llm.max_prompt_bytes must be >= 1024, got %d", c.LLM.MaxPromptBytes)
	}
	if c.LLM.RequestsPerMinute < 0 {
		return errors.Newf("llm.requests_per_minute must be >= 0, got %d", c.LLM.RequestsPerMinute)
	}
	if c.LLM.Provider == ProviderGemini && c.Gemini.APIKey == "" {
		return errors.WithHint(
			errors.New("gemini.api_key is required when llm.provider = \"gemini\""),
			"export DATAQ_GEMINI_API_KEY")
	}
	if c.LLM.Provider == ProviderOpenRouter && c.OpenRouter.APIKey == "" {
		return errors.WithHint(
			errors.New("openrouter.api_key is required when llm.provider = \"openrouter\""),
			"export DATAQ_OPENROUTER_API_KEY")
	}

	// Validate local inference configuration only when enabled
	if c.LocalInference.Enabled || c.LLM.Provider == ProviderLocal {
		if c.LocalInference.BaseURL == "" {
			return errors.New("local_inference.base_url cannot be empty when enabled")
		}
		if c.LocalInference.Model == "" {
			return errors.New("local_inference.model cannot be empty when enabled")
		}
	}

	// Pulse workers: 0 = no background workers, negative = invalid
	if c.Pulse.Workers < 0 {
		return errors.Newf("pulse.workers must be >= 0, got %d", c.Pulse.Workers)
	}
	if c.Pulse.Workers > 0 && c.Pulse.PollIntervalMS <= 0 {
		return errors.Newf("pulse.poll_interval_ms must be > 0, got %d", c.Pulse.PollIntervalMS)
	}

	return nil
}
