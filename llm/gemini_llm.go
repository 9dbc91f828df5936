package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultGeminiModel is used when a gemini request does not name a concrete model
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiClient generates text through the Gemini API
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient connects to Gemini with apiKey
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiClient{client: client, model: model}, nil
}

// Close releases the underlying connection
func (g *GeminiClient) Close() error {
	return g.client.Close()
}

// Generate implements Generator
func (g *GeminiClient) Generate(ctx context.Context, system, prompt string, params GenerationParams) (string, error) {
	name := g.model
	if params.Model != "" {
		name = params.Model
	}

	model := g.client.GenerativeModel(name)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	if params.Temperature != nil {
		model.SetTemperature(*params.Temperature)
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate content (%s): %w", name, err)
	}

	text := responseText(resp)
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}
