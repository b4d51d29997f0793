package config

import (
	"fmt"
	"os"
	"strings"

	"advisor/pkg/faults"
)

// Providers.
const (
	ProviderGateway   = "gateway" // OpenAI-compatible gateway, vendor/model identifiers
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"
)

// Environment variables holding provider credentials.
const (
	EnvGatewayAPIKey   = "LOVABLE_API_KEY"
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvGoogleAPIKey    = "GEMINI_API_KEY"
	EnvOllamaHost      = "OLLAMA_HOST"
)

// DefaultGatewayBaseURL is the OpenAI-compatible endpoint for vendor/model identifiers.
const DefaultGatewayBaseURL = "https://ai.gateway.lovable.dev/v1"

// Model tiers used by the pipelines.
const (
	ModelGeminiFlash = "google/gemini-2.5-flash"
	ModelGeminiPro   = "google/gemini-2.5-pro"
)

// ModelInfo contains static information about a known model.
type ModelInfo struct {
	Provider         string  // API provider
	InputCPM         float64 // Cost per million input tokens (USD)
	OutputCPM        float64 // Cost per million output tokens (USD)
	MaxContextTokens int     // Maximum context window size in tokens
	MaxOutputTokens  int     // Maximum output tokens per request
}

// KnownModels registry contains pricing and provider information for common models.
// Unknown models are inferred via ProviderPatterns.
//
//nolint:gochecknoglobals // Intentional global for static model registry
var KnownModels = map[string]ModelInfo{
	ModelGeminiFlash: {
		Provider:         ProviderGateway,
		InputCPM:         0.30,
		OutputCPM:        2.50,
		MaxContextTokens: 1048576,
		MaxOutputTokens:  65536,
	},
	ModelGeminiPro: {
		Provider:         ProviderGateway,
		InputCPM:         1.25,
		OutputCPM:        10.0,
		MaxContextTokens: 1048576,
		MaxOutputTokens:  65536,
	},
	"openai/gpt-5-mini": {
		Provider:         ProviderGateway,
		InputCPM:         0.25,
		OutputCPM:        2.0,
		MaxContextTokens: 400000,
		MaxOutputTokens:  128000,
	},
	"gemini-2.5-flash": {
		Provider:         ProviderGoogle,
		InputCPM:         0.30,
		OutputCPM:        2.50,
		MaxContextTokens: 1048576,
		MaxOutputTokens:  65536,
	},
	"gemini-2.5-pro": {
		Provider:         ProviderGoogle,
		InputCPM:         1.25,
		OutputCPM:        10.0,
		MaxContextTokens: 1048576,
		MaxOutputTokens:  65536,
	},
	"claude-sonnet-4-5": {
		Provider:         ProviderAnthropic,
		InputCPM:         3.0,
		OutputCPM:        15.0,
		MaxContextTokens: 200000,
		MaxOutputTokens:  8192,
	},
	"gpt-4.1-mini": {
		Provider:         ProviderOpenAI,
		InputCPM:         0.40,
		OutputCPM:        1.60,
		MaxContextTokens: 1047576,
		MaxOutputTokens:  32768,
	},
}

// ProviderPattern represents a pattern for inferring provider from model name.
type ProviderPattern struct {
	Prefix   string
	Provider string
}

// ProviderPatterns defines rules for inferring providers from unknown model names.
// Identifiers containing a slash go to the gateway before these are consulted.
//
//nolint:gochecknoglobals // Intentional global for inference rules
var ProviderPatterns = []ProviderPattern{
	{"ollama:", ProviderOllama}, // Explicit prefix like "ollama:qwen3"
	{"claude", ProviderAnthropic},
	{"gpt", ProviderOpenAI},
	{"o3", ProviderOpenAI},
	{"o4", ProviderOpenAI},
	{"gemini", ProviderGoogle},
	{"llama", ProviderOllama},
	{"qwen", ProviderOllama},
	{"mistral", ProviderOllama},
	{"phi", ProviderOllama},
}

// ProviderDefaults defines default rate limits for each provider.
//
//nolint:gochecknoglobals // Intentional global for provider defaults
var ProviderDefaults = map[string]ProviderLimits{
	ProviderGateway:   {TokensPerMinute: 2000000, MaxConcurrency: 8},
	ProviderAnthropic: {TokensPerMinute: 300000, MaxConcurrency: 5},
	ProviderOpenAI:    {TokensPerMinute: 150000, MaxConcurrency: 5},
	ProviderGoogle:    {TokensPerMinute: 1200000, MaxConcurrency: 5},
	ProviderOllama:    {TokensPerMinute: 1000000, MaxConcurrency: 2},
}

// GetModelProvider returns the API provider for a given model.
func GetModelProvider(modelName string) (string, error) {
	if info, exists := KnownModels[modelName]; exists {
		return info.Provider, nil
	}

	if strings.HasPrefix(modelName, "ollama:") {
		return ProviderOllama, nil
	}
	if strings.Contains(modelName, "/") {
		return ProviderGateway, nil
	}

	for i := range ProviderPatterns {
		if strings.HasPrefix(modelName, ProviderPatterns[i].Prefix) {
			return ProviderPatterns[i].Provider, nil
		}
	}

	return "", fmt.Errorf("unknown model '%s': no known provider mapping or pattern match", modelName)
}

// GetModelInfo returns the ModelInfo for modelName and whether it was known.
// Unknown models get conservative defaults and an inferred provider.
func GetModelInfo(modelName string) (ModelInfo, bool) {
	if info, exists := KnownModels[modelName]; exists {
		return info, true
	}

	provider, _ := GetModelProvider(modelName)
	return ModelInfo{
		Provider:         provider,
		MaxContextTokens: 32000,
		MaxOutputTokens:  4096,
	}, false
}

// CalculateCost calculates the cost in USD for a given model and token usage.
// Unknown models cost 0.
func CalculateCost(modelName string, promptTokens, completionTokens int) float64 {
	info, exists := KnownModels[modelName]
	if !exists {
		return 0
	}
	inputCost := (float64(promptTokens) / 1_000_000.0) * info.InputCPM
	outputCost := (float64(completionTokens) / 1_000_000.0) * info.OutputCPM
	return inputCost + outputCost
}

// GetAPIKey returns the API key for a given provider.
// Checks the secrets file first, then environment variables.
// For Ollama, returns the host URL instead of an API key.
func GetAPIKey(provider string) (string, error) {
	var envVar string
	switch provider {
	case ProviderGateway:
		envVar = EnvGatewayAPIKey
	case ProviderAnthropic:
		envVar = EnvAnthropicAPIKey
	case ProviderOpenAI:
		envVar = EnvOpenAIAPIKey
	case ProviderGoogle:
		envVar = EnvGoogleAPIKey
	case ProviderOllama:
		host := os.Getenv(EnvOllamaHost)
		if host == "" {
			host = "http://localhost:11434"
		}
		return host, nil
	default:
		return "", fmt.Errorf("unknown provider: %s", provider)
	}

	key, err := GetSecret(envVar)
	if err == nil && key != "" {
		return key, nil
	}

	return "", faults.MissingConfiguration(envVar)
}
