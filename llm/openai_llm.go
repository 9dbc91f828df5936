package llm

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is used when no model is configured
const DefaultOpenAIModel = "gpt-4.1"

// OpenAIClient generates text through the chat completions API
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates an OpenAI backend. baseURL may be empty for the public API.
func NewOpenAIClient(apiKey, baseURL, model string) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	slog.Info("Initializing OpenAI client", "model", model)
	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Generate implements Generator
func (o *OpenAIClient) Generate(ctx context.Context, system, prompt string, params GenerationParams) (string, error) {
	model := o.model
	if params.Model != "" {
		model = params.Model
	}

	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
		// the request field is omitempty, so an explicit zero must be nudged to be sent
		if req.Temperature == 0 {
			req.Temperature = math.SmallestNonzeroFloat32
		}
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai chat completion (%s): %w", model, err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyCompletion
	}
	slog.Debug("Received response from OpenAI", "model", model, "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}
