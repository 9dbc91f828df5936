package llm

import (
	"context"
	"fmt"
	"strings"
)

// Router sends gemini-* models to Gemini, claude-* models to Anthropic and
// everything else to the default backend
type Router struct {
	fallback  Generator
	gemini    Generator
	anthropic Generator
}

// NewRouter creates a router. gemini and anthropic may be nil when their keys are not configured.
func NewRouter(fallback, gemini, anthropic Generator) *Router {
	return &Router{fallback: fallback, gemini: gemini, anthropic: anthropic}
}

// Generate implements Generator
func (r *Router) Generate(ctx context.Context, system, prompt string, params GenerationParams) (string, error) {
	backend := r.fallback
	switch {
	case IsGeminiModel(params.Model):
		backend = r.gemini
	case IsClaudeModel(params.Model):
		backend = r.anthropic
	}
	if backend == nil {
		return "", fmt.Errorf("%w for model %q", ErrBackendUnavailable, params.Model)
	}
	return backend.Generate(ctx, system, prompt, params)
}

// IsGeminiModel reports whether model names a Gemini model
func IsGeminiModel(model string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(model)), "gemini")
}
