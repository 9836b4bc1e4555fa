// Package llm wraps langchaingo for auxiliary, non-streaming generation.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// TitleGenerator produces short conversation titles after the first
// completed turn. Title generation is best-effort: a turn never fails
// because titling failed.
type TitleGenerator struct {
	llm llms.Model
}

// NewTitleGenerator creates a generator against the same OpenAI-compatible
// endpoint the streaming worker uses.
func NewTitleGenerator(endpoint, apiKey, model string) (*TitleGenerator, error) {
	m, err := openai.New(
		openai.WithToken(apiKey),
		openai.WithModel(model),
		openai.WithBaseURL(strings.TrimSuffix(endpoint, "/")+"/v1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create title model: %w", err)
	}
	return &TitleGenerator{llm: m}, nil
}

// NewTitleGeneratorWithModel wires an existing llms.Model (for tests).
func NewTitleGeneratorWithModel(m llms.Model) *TitleGenerator {
	return &TitleGenerator{llm: m}
}

// Title generates a short title for a conversation that opened with the
// given user message.
func (g *TitleGenerator) Title(ctx context.Context, firstMessage string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem,
			"Write a title of at most six words for a conversation that starts with the user message below. Reply with the title only, no quotes."),
		llms.TextParts(llms.ChatMessageTypeHuman, firstMessage),
	}

	response, err := g.llm.GenerateContent(ctx, messages, llms.WithMaxTokens(24))
	if err != nil {
		return "", fmt.Errorf("generate title: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("generate title: no response choices")
	}

	title := strings.Trim(strings.TrimSpace(response.Choices[0].Content), `"`)
	if title == "" {
		return "", fmt.Errorf("generate title: empty title")
	}
	return title, nil
}
