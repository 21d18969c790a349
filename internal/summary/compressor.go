package summary

import (
	"context"
	"fmt"

	"github.com/code-100-precent/FocusBuddy/pkg/llm"
)

const compressSystemPrompt = `You maintain a short running log of what a person is doing at their computer.
Rewrite the log so it fits the limit you are given. Keep the newest observation intact.
Compress or drop older details first. Output only the rewritten log.`

// LLMCompressor compresses summaries with a hosted text model.
type LLMCompressor struct {
	provider llm.Provider
}

func NewLLMCompressor(provider llm.Provider) *LLMCompressor {
	return &LLMCompressor{provider: provider}
}

func (c *LLMCompressor) Compress(ctx context.Context, current, incoming string, budget Budget) (string, error) {
	prompt := fmt.Sprintf("Limit: at most %s.\n\nEarlier log:\n%s\n\nNewest observation:\n%s", budget, current, incoming)
	return c.provider.Complete(ctx, llm.CompletionRequest{
		System:      compressSystemPrompt,
		Prompt:      prompt,
		Temperature: 0.2,
	})
}
