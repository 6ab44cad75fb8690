package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/Harshitk-cp/dissent/internal/domain"
)

type OpenAIClient struct {
	client *openai.Client
	model  string
}

func NewOpenAIClient(apiKey, model string, opts ...option.RequestOption) *OpenAIClient {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	client := openai.NewClient(opts...)
	return &OpenAIClient{client: &client, model: model}
}

func (c *OpenAIClient) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	return chatComplete(ctx, c.client, c.model, req, "openai")
}

// chatComplete runs one Chat Completions exchange. It is shared by every
// OpenAI-compatible provider.
func chatComplete(ctx context.Context, client *openai.Client, model string, req domain.CompletionRequest, provider string) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.User))

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               openai.ChatModel(model),
		Temperature:         openai.Float(req.Temperature),
		MaxCompletionTokens: openai.Int(maxTokens(req)),
	})
	if err != nil {
		return "", fmt.Errorf("%s chat request failed: %w", provider, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s chat API returned no choices", provider)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
