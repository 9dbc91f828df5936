package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	anthropicAPIVersion = "2023-06-01"
	// DefaultAnthropicURL is the public messages endpoint
	DefaultAnthropicURL = "https://api.anthropic.com/v1/messages"
	// DefaultClaudeModel is used when no model is configured
	DefaultClaudeModel = "claude-sonnet-4-20250514"

	anthropicMaxTokens = 4096
)

// claudeAliases maps the short reviewer names clients send to API model ids
var claudeAliases = map[string]string{
	"claude-4-sonnet": DefaultClaudeModel,
	"claude-sonnet-4": DefaultClaudeModel,
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float32           `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// AnthropicClient generates text through the Anthropic messages API
type AnthropicClient struct {
	httpClient *http.Client
	apiKey     string
	url        string
	model      string
}

// NewAnthropicClient creates a Claude backend. url may be empty for the public API.
func NewAnthropicClient(apiKey, url, model string) *AnthropicClient {
	if url == "" {
		url = DefaultAnthropicURL
	}
	if model == "" {
		model = DefaultClaudeModel
	}
	slog.Info("Initializing Anthropic client", "model", model)
	return &AnthropicClient{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		apiKey:     apiKey,
		url:        url,
		model:      model,
	}
}

// Generate implements Generator
func (a *AnthropicClient) Generate(ctx context.Context, system, prompt string, params GenerationParams) (string, error) {
	model := a.model
	if params.Model != "" {
		model = params.Model
	}
	if alias, ok := claudeAliases[strings.ToLower(model)]; ok {
		model = alias
	}

	body, err := json.Marshal(anthropicRequest{
		Model:       model,
		System:      system,
		Messages:    []anthropicMessage{{Role: "user", Content: prompt}},
		MaxTokens:   anthropicMaxTokens,
		Temperature: params.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)
	req.Header.Set("content-type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("anthropic request (%s): %w", model, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read anthropic response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("anthropic API returned status %d: %s", resp.StatusCode, string(raw))
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		return "", fmt.Errorf("failed to parse anthropic response: %w", err)
	}
	if apiResp.Error != nil {
		return "", fmt.Errorf("anthropic API error: %s - %s", apiResp.Error.Type, apiResp.Error.Message)
	}

	var text strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", ErrEmptyCompletion
	}
	slog.Debug("Received response from Anthropic", "model", model, "stop_reason", apiResp.StopReason)
	return text.String(), nil
}

// IsClaudeModel reports whether model names a Claude model
func IsClaudeModel(model string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(model)), "claude")
}
