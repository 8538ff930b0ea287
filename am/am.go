// Package am holds the dataq core configuration ("I am"): typed sections,
// defaults, layered TOML files, environment overrides and hot reload.
package am

import "time"

// Config represents the core dataq configuration
type Config struct {
	Database       DatabaseConfig       `mapstructure:"database" toml:"database"`
	Server         ServerConfig         `mapstructure:"server" toml:"server"`
	Upload         UploadConfig         `mapstructure:"upload" toml:"upload"`
	Storage        StorageConfig        `mapstructure:"storage" toml:"storage"`
	Profile        ProfileConfig        `mapstructure:"profile" toml:"profile"`
	LLM            LLMConfig            `mapstructure:"llm" toml:"llm"`
	Gemini         GeminiConfig         `mapstructure:"gemini" toml:"gemini"`
	OpenRouter     OpenRouterConfig     `mapstructure:"openrouter" toml:"openrouter"`
	LocalInference LocalInferenceConfig `mapstructure:"local_inference" toml:"local_inference"`
	Pulse          PulseConfig          `mapstructure:"pulse" toml:"pulse"`
	Log            LogConfig            `mapstructure:"log" toml:"log"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path" toml:"path"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Host                   string   `mapstructure:"host" toml:"host"`
	Port                   int      `mapstructure:"port" toml:"port"`
	OwnerHeader            string   `mapstructure:"owner_header" toml:"owner_header"` // set by the upstream auth proxy
	AllowedOrigins         []string `mapstructure:"allowed_origins" toml:"allowed_origins"`
	ShutdownTimeoutSeconds int      `mapstructure:"shutdown_timeout_seconds" toml:"shutdown_timeout_seconds"`
}

// DefaultServerPort is used when server.port is unset.
const DefaultServerPort = 8770

// UploadConfig limits what the upload endpoint accepts
type UploadConfig struct {
	MaxMB             int      `mapstructure:"max_mb" toml:"max_mb"`
	AllowedExtensions []string `mapstructure:"allowed_extensions" toml:"allowed_extensions"`
}

// MaxBytes returns the upload limit in bytes
func (u UploadConfig) MaxBytes() int64 {
	return int64(u.MaxMB) * 1024 * 1024
}

// StorageConfig selects and configures the blob store for uploads and cleaned outputs
type StorageConfig struct {
	Backend string      `mapstructure:"backend" toml:"backend"` // local | minio
	Root    string      `mapstructure:"root" toml:"root"`       // local backend directory
	MinIO   MinIOConfig `mapstructure:"minio" toml:"minio"`
}

// Storage backends
const (
	StorageLocal = "local"
	StorageMinIO = "minio"
)

// MinIOConfig configures the S3-compatible backend
type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint" toml:"endpoint"`
	AccessKey string `mapstructure:"access_key" toml:"access_key"`
	SecretKey string `mapstructure:"secret_key" toml:"secret_key"`
	Bucket    string `mapstructure:"bucket" toml:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl" toml:"use_ssl"`
	Region    string `mapstructure:"region" toml:"region"`
}

// ProfileConfig tunes type inference and issue detection
type ProfileConfig struct {
	SampleRows       int     `mapstructure:"sample_rows" toml:"sample_rows"` // 0 = no cap
	MaxDistinct      int     `mapstructure:"max_distinct" toml:"max_distinct"`
	ReservoirSize    int     `mapstructure:"reservoir_size" toml:"reservoir_size"`
	TypeThreshold    float64 `mapstructure:"type_threshold" toml:"type_threshold"`
	CategoricalRatio float64 `mapstructure:"categorical_ratio" toml:"categorical_ratio"`
	IQRMultiplier    float64 `mapstructure:"iqr_multiplier" toml:"iqr_multiplier"`
	IDRatio          float64 `mapstructure:"id_ratio" toml:"id_ratio"`
	LongTextLength   int     `mapstructure:"long_text_length" toml:"long_text_length"`
	RequireKey       bool    `mapstructure:"require_key" toml:"require_key"`
}

// LLMConfig selects the generation service used by the explain step
type LLMConfig struct {
	Provider          string `mapstructure:"provider" toml:"provider"` // auto | gemini | openrouter | local | none
	TimeoutSeconds    int    `mapstructure:"timeout_seconds" toml:"timeout_seconds"`
	MaxPromptBytes    int    `mapstructure:"max_prompt_bytes" toml:"max_prompt_bytes"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute" toml:"requests_per_minute"` // 0 = unlimited
}

// Timeout returns the per-call generation timeout
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LLM provider names
const (
	ProviderAuto       = "auto"
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"
	ProviderLocal      = "local"
	ProviderNone       = "none"
)

// GeminiConfig configures the Gemini generateContent API
type GeminiConfig struct {
	APIKey        string `mapstructure:"api_key" toml:"api_key"`
	Model         string `mapstructure:"model" toml:"model"`
	FallbackModel string `mapstructure:"fallback_model" toml:"fallback_model"`
	BaseURL       string `mapstructure:"base_url" toml:"base_url"`
}

// OpenRouterConfig configures the OpenRouter chat completions API
type OpenRouterConfig struct {
	APIKey      string  `mapstructure:"api_key" toml:"api_key"`
	Model       string  `mapstructure:"model" toml:"model"`
	Temperature float64 `mapstructure:"temperature" toml:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" toml:"max_tokens"`
}

// LocalInferenceConfig configures an OpenAI-compatible local endpoint (Ollama, LocalAI)
type LocalInferenceConfig struct {
	Enabled        bool   `mapstructure:"enabled" toml:"enabled"`
	BaseURL        string `mapstructure:"base_url" toml:"base_url"`
	Model          string `mapstructure:"model" toml:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" toml:"timeout_seconds"`
}

// PulseConfig configures the Pulse async job system
type PulseConfig struct {
	Workers        int `mapstructure:"workers" toml:"workers"` // 0 = async processing disabled
	PollIntervalMS int `mapstructure:"poll_interval_ms" toml:"poll_interval_ms"`
}

// PollInterval returns the worker poll interval
func (p PulseConfig) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalMS) * time.Millisecond
}

// LogConfig configures logging output
type LogConfig struct {
	JSON bool `mapstructure:"json" toml:"json"`
}

// File permission constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)
