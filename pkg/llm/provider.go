package llm

import (
	"context"
	"errors"
	"time"
)

// ErrEmptyResponse is returned when a provider answers with no text.
var ErrEmptyResponse = errors.New("llm: empty response")

// VisionRequest asks a model to describe one image.
type VisionRequest struct {
	Image       []byte
	MIMEType    string
	Instruction string
	System      string
	MaxTokens   int
	// Detail is the OpenAI image detail hint: low, high or auto.
	Detail string
}

// CompletionRequest is a plain text prompt.
type CompletionRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float32
}

// Provider is a hosted model that can look at screenshots and write text.
type Provider interface {
	Name() string
	Describe(ctx context.Context, req VisionRequest) (string, error)
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Config selects and configures a Provider.
type Config struct {
	Provider    string
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	ImageDetail string
	Timeout     time.Duration
}

func (c Config) maxTokens(req int) int {
	if req > 0 {
		return req
	}
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return 300
}

func mimeOrJPEG(m string) string {
	if m == "" {
		return "image/jpeg"
	}
	return m
}
