package llm

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/Harshitk-cp/dissent/internal/domain"
)

const cerebrasBaseURL = "https://api.cerebras.ai/v1"

// CerebrasClient talks to the Cerebras inference API, which speaks the
// OpenAI Chat Completions protocol.
type CerebrasClient struct {
	client *openai.Client
	model  string
}

func NewCerebrasClient(apiKey, model string) *CerebrasClient {
	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(cerebrasBaseURL),
	)
	return &CerebrasClient{client: &client, model: model}
}

func (c *CerebrasClient) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	return chatComplete(ctx, c.client, c.model, req, "cerebras")
}
