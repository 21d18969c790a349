package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

// OllamaProvider calls the native Ollama /api/chat endpoint, which accepts
// images as base64 strings next to the message content.
type OllamaProvider struct {
	client *resty.Client
	cfg    Config
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	Error   string        `json:"error,omitempty"`
}

func NewOllamaProvider(cfg Config) *OllamaProvider {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Content-Type", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}
	return &OllamaProvider{client: client, cfg: cfg}
}

func (p *OllamaProvider) Name() string { return string(ProviderTypeOllama) }

func (p *OllamaProvider) Describe(ctx context.Context, req VisionRequest) (string, error) {
	messages := make([]ollamaMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, ollamaMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, ollamaMessage{
		Role:    "user",
		Content: req.Instruction,
		Images:  []string{base64.StdEncoding.EncodeToString(req.Image)},
	})
	return p.chat(ctx, messages, req.MaxTokens, 0)
}

func (p *OllamaProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	messages := make([]ollamaMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, ollamaMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, ollamaMessage{Role: "user", Content: req.Prompt})
	return p.chat(ctx, messages, req.MaxTokens, req.Temperature)
}

func (p *OllamaProvider) chat(ctx context.Context, messages []ollamaMessage, maxTokens int, temperature float32) (string, error) {
	options := map[string]any{"num_predict": p.cfg.maxTokens(maxTokens)}
	if temperature == 0 {
		temperature = p.cfg.Temperature
	}
	if temperature > 0 {
		options["temperature"] = temperature
	}

	var out ollamaChatResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(ollamaChatRequest{Model: p.cfg.Model, Messages: messages, Options: options}).
		SetResult(&out).
		SetError(&out).
		Post("/api/chat")
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	if resp.IsError() {
		return "", classifyStatus("llm/ollama", resp.StatusCode(), out.Error)
	}
	content := strings.TrimSpace(out.Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}
