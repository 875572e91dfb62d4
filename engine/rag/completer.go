package rag

import (
	"context"
	"errors"
	"fmt"

	"github.com/docsage/docsage/engine/domain"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultChatModel is used when no completion model is configured.
const DefaultChatModel = "gpt-4o-mini"

// DefaultMaxTokens bounds the completion output length.
const DefaultMaxTokens = 1024

// OpenAICompleter implements Completer on the OpenAI chat completions API.
type OpenAICompleter struct {
	client    *openai.Client
	model     openai.ChatModel
	maxTokens int64
}

// NewOpenAICompleter creates a completer. The key is mandatory; the process
// should have refused to start without one.
func NewOpenAICompleter(apiKey, model string, maxTokens int64) (*OpenAICompleter, error) {
	if apiKey == "" {
		return nil, errors.New("rag: completion API key not set")
	}
	if model == "" {
		model = DefaultChatModel
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAICompleter{
		client:    &client,
		model:     openai.ChatModel(model),
		maxTokens: maxTokens,
	}, nil
}

// Complete sends one system+user exchange and returns the reply text.
func (c *OpenAICompleter) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:     c.model,
		MaxTokens: openai.Int(c.maxTokens),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	})
	if err != nil {
		return "", fmt.Errorf("rag: chat completion: %s: %w", err, domain.ErrCompletionUnavailable)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("rag: chat completion returned no choices: %w", domain.ErrCompletionUnavailable)
	}
	return resp.Choices[0].Message.Content, nil
}
