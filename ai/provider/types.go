package provider

import "context"

// ProviderType names a generation backend
type ProviderType string

const (
	ProviderTypeAuto       ProviderType = "auto"       // pick from configuration
	ProviderTypeGemini     ProviderType = "gemini"     // Google Gemini generateContent
	ProviderTypeOpenRouter ProviderType = "openrouter" // OpenRouter cloud gateway
	ProviderTypeLocal      ProviderType = "local"      // Ollama, LocalAI, or any OpenAI-compatible local server
	ProviderTypeNone       ProviderType = "none"       // offline: heuristic summaries only
)

// Generator turns a prompt into text. Implementations mark failures with
// errors.ErrLLMTimeout or errors.ErrLLMUnavailable.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	// Name identifies the provider in logs and usage records
	Name() string
	Model() string
}
