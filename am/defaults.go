package am

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "dataq.db")

	// Server defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.owner_header", "X-Owner-ID")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("server.shutdown_timeout_seconds", 10)

	// Upload defaults
	v.SetDefault("upload.max_mb", 25)
	v.SetDefault("upload.allowed_extensions", []string{".csv"})

	// Storage defaults
	v.SetDefault("storage.backend", StorageLocal)
	v.SetDefault("storage.root", "data")
	v.SetDefault("storage.minio.bucket", "dataq-artifacts")
	v.SetDefault("storage.minio.use_ssl", false)

	// Profiling defaults
	v.SetDefault("profile.sample_rows", 100000)
	v.SetDefault("profile.max_distinct", 10000)
	v.SetDefault("profile.reservoir_size", 10000)
	v.SetDefault("profile.type_threshold", 0.95)
	v.SetDefault("profile.categorical_ratio", 0.5)
	v.SetDefault("profile.iqr_multiplier", 1.5)
	v.SetDefault("profile.id_ratio", 0.99)
	v.SetDefault("profile.long_text_length", 255)
	v.SetDefault("profile.require_key", false)

	// Generation service defaults
	v.SetDefault("llm.provider", ProviderAuto)
	v.SetDefault("llm.timeout_seconds", 30)
	v.SetDefault("llm.max_prompt_bytes", 12000)
	v.SetDefault("llm.requests_per_minute", 30)

	v.SetDefault("gemini.model", "gemini-1.5-flash")
	v.SetDefault("gemini.fallback_model", "gemini-1.5-flash")
	v.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com")

	v.SetDefault("openrouter.model", "openai/gpt-4o-mini") // Cost-effective default
	v.SetDefault("openrouter.temperature", 0.2)            // Deterministic
	v.SetDefault("openrouter.max_tokens", 1000)

	v.SetDefault("local_inference.enabled", false)
	v.SetDefault("local_inference.base_url", "http://localhost:11434")
	v.SetDefault("local_inference.model", "llama3.2:3b")
	v.SetDefault("local_inference.timeout_seconds", 120)

	// Pulse (async job infrastructure) defaults
	v.SetDefault("pulse.workers", 2)
	v.SetDefault("pulse.poll_interval_ms", 500)

	v.SetDefault("log.json", false)
}

// BindSensitiveEnvVars binds secrets to explicit environment variables so they
// never need to live in a committed am.toml
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("gemini.api_key", "DATAQ_GEMINI_API_KEY", "GEMINI_API_KEY")
	v.BindEnv("openrouter.api_key", "DATAQ_OPENROUTER_API_KEY", "OPENROUTER_API_KEY")
	v.BindEnv("storage.minio.access_key", "DATAQ_STORAGE_MINIO_ACCESS_KEY")
	v.BindEnv("storage.minio.secret_key", "DATAQ_STORAGE_MINIO_SECRET_KEY")
	v.BindEnv("database.path", "DATAQ_DATABASE_PATH", "DB_PATH")
}

// Defaults returns a Config populated only from SetDefaults
func Defaults() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := LoadWithViper(v)
	if err != nil {
		// defaults are static; a failure here is a programming error
		panic(err)
	}
	return cfg
}
