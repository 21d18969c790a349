package llm

import (
	"context"
	"fmt"
	"strings"
)

// ProviderType LLM 提供者类型
type ProviderType string

const (
	ProviderTypeOpenAI ProviderType = "openai" // OpenAI 兼容的 API
	ProviderTypeOllama ProviderType = "ollama" // Ollama 原生 API
	ProviderTypeGemini ProviderType = "gemini" // Google Gemini API
)

// NewProvider 根据配置创建 LLM 提供者
func NewProvider(ctx context.Context, cfg Config) (Provider, error) {
	providerType := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if providerType == "" {
		providerType = string(ProviderTypeOpenAI)
	}
	switch ProviderType(providerType) {
	case ProviderTypeOllama:
		if cfg.BaseURL == "" {
			cfg.BaseURL = "http://localhost:11434"
		}
		if cfg.Model == "" {
			cfg.Model = "llava"
		}
		return NewOllamaProvider(cfg), nil
	case ProviderTypeGemini:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("gemini provider requires an api key")
		}
		if cfg.Model == "" {
			cfg.Model = "gemini-2.0-flash"
		}
		return NewGeminiProvider(ctx, cfg)
	case ProviderTypeOpenAI:
		if cfg.BaseURL == "" {
			cfg.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Model == "" {
			cfg.Model = "gpt-4o"
		}
		return NewOpenAIProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
