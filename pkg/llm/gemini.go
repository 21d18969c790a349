package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiProvider uses the Gemini API through google.golang.org/genai.
type GeminiProvider struct {
	client *genai.Client
	cfg    Config
}

func NewGeminiProvider(ctx context.Context, cfg Config) (*GeminiProvider, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiProvider{client: client, cfg: cfg}, nil
}

func (p *GeminiProvider) Name() string { return string(ProviderTypeGemini) }

func (p *GeminiProvider) Describe(ctx context.Context, req VisionRequest) (string, error) {
	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{Text: req.Instruction},
			{InlineData: &genai.Blob{MIMEType: mimeOrJPEG(req.MIMEType), Data: req.Image}},
		},
	}}
	return p.generate(ctx, contents, req.System, req.MaxTokens, 0)
}

func (p *GeminiProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: req.Prompt}},
	}}
	return p.generate(ctx, contents, req.System, req.MaxTokens, req.Temperature)
}

func (p *GeminiProvider) generate(ctx context.Context, contents []*genai.Content, system string, maxTokens int, temperature float32) (string, error) {
	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(p.cfg.maxTokens(maxTokens)),
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if temperature == 0 {
		temperature = p.cfg.Temperature
	}
	if temperature > 0 {
		config.Temperature = &temperature
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.cfg.Model, contents, config)
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
