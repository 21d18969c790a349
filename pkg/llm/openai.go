package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/code-100-precent/FocusBuddy/pkg/errs"
	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider talks to any OpenAI compatible chat completion endpoint.
type OpenAIProvider struct {
	client *openai.Client
	cfg    Config
}

func NewOpenAIProvider(cfg Config) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
	}
}

func (p *OpenAIProvider) Name() string { return string(ProviderTypeOpenAI) }

// Describe sends the image inline as a base64 data URI.
func (p *OpenAIProvider) Describe(ctx context.Context, req VisionRequest) (string, error) {
	detail := req.Detail
	if detail == "" {
		detail = p.cfg.ImageDetail
	}
	if detail == "" {
		detail = string(openai.ImageURLDetailHigh)
	}
	dataURI := fmt.Sprintf("data:%s;base64,%s", mimeOrJPEG(req.MIMEType), base64.StdEncoding.EncodeToString(req.Image))

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: req.Instruction},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    dataURI,
					Detail: openai.ImageURLDetail(detail),
				},
			},
		},
	})

	return p.chat(ctx, openai.ChatCompletionRequest{
		Model:     p.cfg.Model,
		Messages:  messages,
		MaxTokens: p.cfg.maxTokens(req.MaxTokens),
	})
}

func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	temperature := req.Temperature
	if temperature == 0 {
		temperature = p.cfg.Temperature
	}
	return p.chat(ctx, openai.ChatCompletionRequest{
		Model:       p.cfg.Model,
		Messages:    messages,
		MaxTokens:   p.cfg.maxTokens(req.MaxTokens),
		Temperature: temperature,
	})
}

func (p *OpenAIProvider) chat(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}

// classifyOpenAIError maps HTTP status codes onto error severities.
func classifyOpenAIError(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	default:
		return err
	}
	return errs.New(errs.KindUnknown, severityForStatus(status), "llm/openai", fmt.Sprintf("status %d", status), err)
}

func severityForStatus(status int) errs.Severity {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden, status == http.StatusNotFound:
		return errs.SeverityFatal
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= 500:
		return errs.SeverityTransient
	default:
		return errs.SeverityRecoverable
	}
}

func classifyStatus(service string, status int, message string) error {
	var cause error
	if message != "" {
		cause = errors.New(message)
	}
	return errs.New(errs.KindUnknown, severityForStatus(status), service, fmt.Sprintf("status %d", status), cause)
}
