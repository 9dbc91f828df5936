package llm

import (
	"context"
	"errors"
)

var (
	// ErrEmptyCompletion is returned when a backend answers without text
	ErrEmptyCompletion = errors.New("language model returned no text")
	// ErrBackendUnavailable is returned when the requested backend is not configured
	ErrBackendUnavailable = errors.New("language model backend not configured")
)

// GenerationParams tunes a single generation call
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	// Model overrides the backend's default model when set
	Model string `json:"model"`
}

// Generator composes text from a system role and a single user message
type Generator interface {
	Generate(ctx context.Context, system, prompt string, params GenerationParams) (string, error)
}

// Float32 returns a pointer to v
func Float32(v float32) *float32 {
	return &v
}
