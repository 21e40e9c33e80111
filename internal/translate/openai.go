package translate

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/IshaanNene/trendscope/internal/types"
)

// OpenAITranslator translates through any OpenAI-compatible chat endpoint.
type OpenAITranslator struct {
	client *openai.Client
	model  string
}

// NewOpenAITranslator creates a chat-completion translator.
func NewOpenAITranslator(baseURL, apiKey, model string) *OpenAITranslator {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	return &OpenAITranslator{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Name implements Translator.
func (t *OpenAITranslator) Name() string { return "openai" }

const translatePrompt = `You translate short software project descriptions. Translate the user's text into the language with code %q. Keep project names, code identifiers and URLs unchanged. Reply with the translation only.`

// Translate implements Translator.
func (t *OpenAITranslator) Translate(ctx context.Context, text, targetLang string) (string, error) {
	resp, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: t.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: fmt.Sprintf(translatePrompt, targetLang)},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", &types.TranslateError{Backend: t.Name(), Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &types.TranslateError{Backend: t.Name(), Err: fmt.Errorf("no choices returned")}
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
