package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// stubModel returns a canned response or error.
type stubModel struct {
	content string
	err     error
	choices int
}

func (s *stubModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	resp := &llms.ContentResponse{}
	for i := 0; i < s.choices; i++ {
		resp.Choices = append(resp.Choices, &llms.ContentChoice{Content: s.content})
	}
	return resp, nil
}

func (s *stubModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return s.content, s.err
}

func TestTitleTrimsQuotesAndWhitespace(t *testing.T) {
	g := NewTitleGeneratorWithModel(&stubModel{content: "  \"Goroutines Explained\"  ", choices: 1})

	title, err := g.Title(context.Background(), "explain goroutines")
	require.NoError(t, err)
	assert.Equal(t, "Goroutines Explained", title)
}

func TestTitlePropagatesModelError(t *testing.T) {
	g := NewTitleGeneratorWithModel(&stubModel{err: errors.New("model offline")})

	_, err := g.Title(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model offline")
}

func TestTitleRejectsEmptyResponses(t *testing.T) {
	g := NewTitleGeneratorWithModel(&stubModel{choices: 0})
	_, err := g.Title(context.Background(), "hi")
	require.Error(t, err)

	g = NewTitleGeneratorWithModel(&stubModel{content: `""`, choices: 1})
	_, err = g.Title(context.Background(), "hi")
	require.Error(t, err)
}
