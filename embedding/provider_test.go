package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Helpers
// =============================================================================

type embeddingsCall struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	EncodingFormat string   `json:"encoding_format"`
}

type fakeEndpoint struct {
	t       *testing.T
	mu      sync.Mutex
	calls   []embeddingsCall
	auth    string
	vectors func(inputs []string) [][]float32
	status  int
	raw     string
}

func (f *fakeEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	assert.Equal(f.t, "/embeddings", r.URL.Path)

	var call embeddingsCall
	assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&call))

	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.auth = r.Header.Get("Authorization")
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if f.status != 0 {
		w.WriteHeader(f.status)
	}
	if f.raw != "" {
		_, _ = w.Write([]byte(f.raw))
		return
	}

	data := []map[string]interface{}{}
	for i, v := range f.vectors(call.Input) {
		data = append(data, map[string]interface{}{"object": "embedding", "index": i, "embedding": v})
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"object": "list",
		"model":  call.Model,
		"data":   data,
		"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
	})
}

func newTestProvider(t *testing.T, f *fakeEndpoint, opts ...ProviderOption) *Provider {
	f.t = t
	srv := httptest.NewServer(http.HandlerFunc(f.handler))
	t.Cleanup(srv.Close)
	return NewProvider("test-token", srv.URL, opts...)
}

func constant(v ...float32) func([]string) [][]float32 {
	return func(inputs []string) [][]float32 {
		out := make([][]float32, len(inputs))
		for i := range inputs {
			out[i] = append([]float32(nil), v...)
		}
		return out
	}
}

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]float32
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string][]float32{}}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]float32, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memoryCache) Set(_ context.Context, key string, vec []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = vec
	return nil
}

// =============================================================================
// Tests
// =============================================================================

func TestEmbedOneUsesQueryPrefixAndNormalizes(t *testing.T) {
	f := &fakeEndpoint{vectors: constant(3, 4)}
	p := newTestProvider(t, f)

	vec, err := p.EmbedOne(context.Background(), "ziektewet uitkering")
	require.NoError(t, err)

	assert.InDeltaSlice(t, []float32{0.6, 0.8}, vec, 1e-6)
	require.Len(t, f.calls, 1)
	assert.Equal(t, []string{"query: ziektewet uitkering"}, f.calls[0].Input)
	assert.Equal(t, DefaultModel, f.calls[0].Model)
	assert.Equal(t, "float", f.calls[0].EncodingFormat)
	assert.Equal(t, "Bearer test-token", f.auth)
}

func TestEmbedManyUsesPassagePrefixAndKeepsOrder(t *testing.T) {
	f := &fakeEndpoint{vectors: func(inputs []string) [][]float32 {
		out := make([][]float32, len(inputs))
		for i := range inputs {
			out[i] = []float32{float32(i + 1), 0, 2}
		}
		return out
	}}
	p := newTestProvider(t, f, WithModel("custom-model"))

	vecs, err := p.EmbedMany(context.Background(), []string{"een", "twee", "drie"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	assert.Equal(t, []string{"passage: een", "passage: twee", "passage: drie"}, f.calls[0].Input)
	assert.Equal(t, "custom-model", f.calls[0].Model)
	for i, v := range vecs {
		assert.InDelta(t, 1.0, norm(v), 1e-6)
		assert.InDelta(t, float64(i+1)/math.Sqrt(float64((i+1)*(i+1)+4)), float64(v[0]), 1e-6)
	}
}

func TestEmbedManyLeavesZeroVectorUnchanged(t *testing.T) {
	f := &fakeEndpoint{vectors: constant(0, 0, 0)}
	p := newTestProvider(t, f)

	vecs, err := p.EmbedMany(context.Background(), []string{"leeg"})
	require.NoError(t, err)

	assert.Equal(t, []float32{0, 0, 0}, vecs[0])
	assert.False(t, math.IsNaN(float64(vecs[0][0])))
}

func TestEmbedManyEmptyInputSkipsCall(t *testing.T) {
	f := &fakeEndpoint{vectors: constant(1)}
	p := newTestProvider(t, f)

	vecs, err := p.EmbedMany(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
	assert.Empty(t, f.calls)
}

func TestEmbedRejectsBlankText(t *testing.T) {
	f := &fakeEndpoint{vectors: constant(1)}
	p := newTestProvider(t, f)

	_, err := p.EmbedOne(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyText)

	_, err = p.EmbedMany(context.Background(), []string{"ok", ""})
	assert.ErrorIs(t, err, ErrEmptyText)
	assert.Empty(t, f.calls)
}

func TestEmbedProviderErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		raw        string
		wantStatus int
		malformed  bool
	}{
		{"api error", http.StatusServiceUnavailable, `{"error":{"message":"overloaded","type":"server_error"}}`, http.StatusServiceUnavailable, false},
		{"non json error", http.StatusUnauthorized, `denied`, http.StatusUnauthorized, false},
		{"missing data", 0, `{"object":"list","data":[]}`, 0, true},
		{"empty vector", 0, `{"object":"list","data":[{"object":"embedding","index":0,"embedding":[]}]}`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeEndpoint{status: tt.status, raw: tt.raw}
			p := newTestProvider(t, f)

			_, err := p.EmbedOne(context.Background(), "vraag")
			require.Error(t, err)

			var providerErr *ProviderError
			require.True(t, errors.As(err, &providerErr))
			assert.Equal(t, tt.wantStatus, providerErr.StatusCode)
			assert.Equal(t, tt.malformed, errors.Is(err, ErrMalformedResponse))
			assert.Len(t, f.calls, 1, "provider errors are not retried")
		})
	}
}

func TestEmbedUsesCache(t *testing.T) {
	f := &fakeEndpoint{vectors: constant(1, 1)}
	cache := newMemoryCache()
	p := newTestProvider(t, f, WithCache(cache))

	first, err := p.EmbedMany(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, f.calls, 1)

	second, err := p.EmbedMany(context.Background(), []string{"b", "c", "a"})
	require.NoError(t, err)
	require.Len(t, f.calls, 2)

	assert.Equal(t, []string{"passage: c"}, f.calls[1].Input)
	assert.Equal(t, first[1], second[0])
	assert.Equal(t, first[0], second[2])

	// the query role is cached separately
	_, err = p.EmbedOne(context.Background(), "a")
	require.NoError(t, err)
	assert.Len(t, f.calls, 3)
}

func TestEmbedFallsBackWhenRedisIsDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	f := &fakeEndpoint{vectors: constant(0, 2)}
	p := newTestProvider(t, f, WithCache(NewRedisCache(client, time.Hour)))

	vec, err := p.EmbedOne(context.Background(), "vraag")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0, 1}, vec, 1e-6)
}

func TestCacheKey(t *testing.T) {
	k1 := CacheKey(DefaultModel, RoleQuery, "tekst")
	assert.Equal(t, k1, CacheKey(DefaultModel, RoleQuery, "tekst"))
	assert.NotEqual(t, k1, CacheKey(DefaultModel, RolePassage, "tekst"))
	assert.NotEqual(t, k1, CacheKey("other", RoleQuery, "tekst"))
	assert.Len(t, k1, len("emb:")+64)
}

func TestNormalize(t *testing.T) {
	in := []float32{3, 4}
	out := Normalize(in)
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, out, 1e-6)
	assert.Equal(t, []float32{3, 4}, in, "input is not modified")
}
