package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

const (
	// DefaultBaseURL is DeepInfra's OpenAI-compatible endpoint
	DefaultBaseURL = "https://api.deepinfra.com/v1/openai"
	// DefaultModel is the E5 model the case-law corpus was embedded with
	DefaultModel = "intfloat/multilingual-e5-large"
)

// Role selects the E5 input prefix
type Role string

const (
	RoleQuery   Role = "query"
	RolePassage Role = "passage"
)

func (r Role) prefix() string {
	return string(r) + ": "
}

var (
	// ErrEmptyText is returned when asked to embed blank text
	ErrEmptyText = errors.New("cannot embed empty text")
	// ErrMalformedResponse is wrapped by ProviderError when the payload is missing vectors
	ErrMalformedResponse = errors.New("malformed embedding response")
)

// ProviderError reports a failed or malformed call to the embedding service.
// It is never retried here.
type ProviderError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("embedding provider %s failed with status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("embedding provider %s failed: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Provider embeds text through an OpenAI-compatible embeddings endpoint and
// returns L2-normalized vectors
type Provider struct {
	client *openai.Client
	model  string
	cache  Cache
}

// ProviderOption is a functional option for Provider
type ProviderOption func(*Provider)

// WithModel sets the embedding model
func WithModel(model string) ProviderOption {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithCache sets a vector cache consulted before the provider
func WithCache(cache Cache) ProviderOption {
	return func(p *Provider) {
		p.cache = cache
	}
}

// NewProvider creates an embedding provider
func NewProvider(apiToken, baseURL string, opts ...ProviderOption) *Provider {
	cfg := openai.DefaultConfig(apiToken)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}

	p := &Provider{
		client: openai.NewClientWithConfig(cfg),
		model:  DefaultModel,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Model returns the embedding model name
func (p *Provider) Model() string {
	return p.model
}

// EmbedOne embeds a search query
func (p *Provider) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.embed(ctx, RoleQuery, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedMany embeds passages in a single request, one vector per input in order
func (p *Provider) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	return p.embed(ctx, RolePassage, texts)
}

func (p *Provider) embed(ctx context.Context, role Role, texts []string) ([][]float32, error) {
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("input %d: %w", i, ErrEmptyText)
		}
	}

	out := make([][]float32, len(texts))
	missing := make([]int, 0, len(texts))
	for i, t := range texts {
		if vec, ok := p.cached(ctx, role, t); ok {
			out[i] = vec
			continue
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	inputs := make([]string, len(missing))
	for j, i := range missing {
		inputs[j] = role.prefix() + texts[i]
	}

	vecs, err := p.request(ctx, inputs)
	if err != nil {
		return nil, err
	}

	for j, i := range missing {
		out[i] = vecs[j]
		p.store(ctx, role, texts[i], vecs[j])
	}
	return out, nil
}

func (p *Provider) request(ctx context.Context, inputs []string) ([][]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:          inputs,
		Model:          openai.EmbeddingModel(p.model),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	})
	if err != nil {
		return nil, &ProviderError{Op: "embeddings", StatusCode: statusCode(err), Err: err}
	}

	if len(resp.Data) != len(inputs) {
		return nil, &ProviderError{
			Op:  "embeddings",
			Err: fmt.Errorf("%w: %d vectors for %d inputs", ErrMalformedResponse, len(resp.Data), len(inputs)),
		}
	}

	vecs := make([][]float32, len(inputs))
	for i, item := range resp.Data {
		if len(item.Embedding) == 0 {
			return nil, &ProviderError{Op: "embeddings", Err: fmt.Errorf("%w: empty vector at position %d", ErrMalformedResponse, i)}
		}
		vecs[i] = Normalize(item.Embedding)
	}
	return vecs, nil
}

func (p *Provider) cached(ctx context.Context, role Role, text string) ([]float32, bool) {
	if p.cache == nil {
		return nil, false
	}
	vec, ok, err := p.cache.Get(ctx, CacheKey(p.model, role, text))
	if err != nil {
		slog.Warn("embedding cache read failed", "error", err)
		return nil, false
	}
	return vec, ok
}

func (p *Provider) store(ctx context.Context, role Role, text string, vec []float32) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Set(ctx, CacheKey(p.model, role, text), vec); err != nil {
		slog.Warn("embedding cache write failed", "error", err)
	}
}

// Normalize returns v scaled to unit length. A zero vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	norm := math.Sqrt(sum)
	if norm == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
