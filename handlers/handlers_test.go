package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"jurismemo-backend/embedding"
	"jurismemo-backend/grounding"
	"jurismemo-backend/llm"
	"jurismemo-backend/models"
	"jurismemo-backend/retrieval"
	"jurismemo-backend/service"
	"jurismemo-backend/storage"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEmbedder struct{ err error }

func (s stubEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, s.err
}

type stubRetriever struct {
	chunks []models.Chunk
	err    error
}

func (s stubRetriever) Retrieve(ctx context.Context, query []float32, topK, maxPerSource int) ([]models.Chunk, error) {
	return s.chunks, s.err
}

type stubGenerator struct {
	out string
	err error
}

func (s stubGenerator) Generate(ctx context.Context, system, prompt string, params llm.GenerationParams) (string, error) {
	return s.out, s.err
}

type stubLister struct{ chunks []models.Chunk }

func (s stubLister) ListChunks(ctx context.Context, limit, offset int) ([]models.Chunk, error) {
	return s.chunks, nil
}

type memoryMemoStore struct{ saved []*models.Memo }

func (m *memoryMemoStore) Upsert(ctx context.Context, memo *models.Memo) error {
	m.saved = append(m.saved, memo)
	return nil
}

type stubEvaluator struct{ err error }

func (s stubEvaluator) Evaluate(ctx context.Context, memo string, chunks []models.Chunk, threshold float64, metric grounding.Metric) (*models.EvaluationVerdict, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.EvaluationVerdict{
		CitationPrecision: 1,
		CitationRecall:    1,
		Threshold:         threshold,
		SimilarityMetric:  string(metric),
		NumChunks:         len(chunks),
	}, nil
}

type memoryLogStore struct {
	logs []models.EvaluationLog
	err  error
}

func (m *memoryLogStore) Insert(ctx context.Context, log *models.EvaluationLog) error {
	if m.err != nil {
		return m.err
	}
	m.logs = append([]models.EvaluationLog{*log}, m.logs...)
	return nil
}

func (m *memoryLogStore) List(ctx context.Context, limit int) ([]models.EvaluationLog, error) {
	if limit > len(m.logs) {
		limit = len(m.logs)
	}
	return m.logs[:limit], nil
}

func (m *memoryLogStore) GetByID(ctx context.Context, id uuid.UUID) (*models.EvaluationLog, error) {
	return nil, errors.New("not implemented")
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type testServer struct {
	router    *gin.Engine
	memoStore *memoryMemoStore
	logStore  *memoryLogStore
}

type serverOptions struct {
	embedErr     error
	retrieveErr  error
	generateErr  error
	evaluateErr  error
	logErr       error
	rateLimit    int
	withArchive  bool
	archiveDir   string
	listedChunks []models.Chunk
	handlerOpts  []EvaluationHandlerOption
}

func newTestServer(t *testing.T, opts serverOptions) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	chunks := []models.Chunk{
		{ID: "1", ECLI: "ECLI:NL:CRVB:2020:1", Text: "De uitkering is terecht ingetrokken.", Similarity: 0.9},
	}
	memoStore := &memoryMemoStore{}
	logStore := &memoryLogStore{err: opts.logErr}

	memoService := service.NewMemoService(
		service.MemoWithEmbedder(stubEmbedder{err: opts.embedErr}),
		service.MemoWithRetriever(stubRetriever{chunks: chunks, err: opts.retrieveErr}),
		service.MemoWithGenerator(stubGenerator{out: "Memo", err: opts.generateErr}),
		service.MemoWithChunkLister(stubLister{chunks: opts.listedChunks}),
		service.MemoWithMemoStore(memoStore),
	)

	evalOpts := []service.EvaluationServiceOption{
		service.EvaluationWithEvaluator(stubEvaluator{err: opts.evaluateErr}),
		service.EvaluationWithLogStore(logStore),
	}
	if opts.withArchive {
		archive, err := storage.NewLocalStorage(opts.archiveDir, "evaluations")
		require.NoError(t, err)
		evalOpts = append(evalOpts, service.EvaluationWithArchive(archive, "evaluations"))
	}
	evaluationService := service.NewEvaluationService(evalOpts...)

	r := gin.New()
	RegisterRoutes(r, NewMemoHandler(memoService), NewEvaluationHandler(evaluationService, opts.handlerOpts...), NewIPRateLimiter(opts.rateLimit))

	return &testServer{router: r, memoStore: memoStore, logStore: logStore}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "192.0.2.1:1234"

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if w.Header().Get("Content-Type") != "" && w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w, env
}

var validIntake = map[string]string{
	"disputedDecision": "Intrekking uitkering",
	"desiredOutcome":   "Herstel",
	"criticalFacts":    "Ziek",
	"applicableLaw":    "WW",
	"recipients":       "Advocaat",
}

var evaluationBody = map[string]interface{}{
	"memo":   "Zie ECLI:NL:CRVB:2020:1.",
	"chunks": []map[string]interface{}{{"id": 7, "ecli": "ECLI:NL:CRVB:2020:1", "text": "fragment"}},
}

// =============================================================================
// Memo endpoints
// =============================================================================

func TestGenerateMemoEndpoint(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	w, env := s.do(t, http.MethodPost, "/generate-memo", validIntake)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)

	var data struct {
		Memo   string         `json:"memo"`
		Chunks []models.Chunk `json:"chunks"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "Memo", data.Memo)
	require.Len(t, data.Chunks, 1)
	assert.Equal(t, "ECLI:NL:CRVB:2020:1", data.Chunks[0].ECLI)
}

func TestGenerateMemoEndpointErrors(t *testing.T) {
	tests := []struct {
		name   string
		opts   serverOptions
		body   interface{}
		status int
		code   string
	}{
		{"missing field", serverOptions{}, map[string]string{"disputedDecision": "x"}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"provider failure", serverOptions{embedErr: &embedding.ProviderError{Op: "embeddings", StatusCode: 503, Err: errors.New("down")}}, validIntake, http.StatusBadGateway, "EMBEDDING_FAILED"},
		{"retrieval failure", serverOptions{retrieveErr: &retrieval.RetrievalError{Err: errors.New("rpc")}}, validIntake, http.StatusBadGateway, "RETRIEVAL_FAILED"},
		{"generation failure", serverOptions{generateErr: llm.ErrEmptyCompletion}, validIntake, http.StatusBadGateway, "GENERATION_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.opts)
			w, env := s.do(t, http.MethodPost, "/generate-memo", tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.False(t, env.Success)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}
}

func TestGenerateMemoRateLimited(t *testing.T) {
	s := newTestServer(t, serverOptions{rateLimit: 2})

	for i := 0; i < 2; i++ {
		w, _ := s.do(t, http.MethodPost, "/generate-memo", validIntake)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w, env := s.do(t, http.MethodPost, "/generate-memo", validIntake)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMITED", env.Error.Code)

	// Evaluation is not rate limited
	w, _ = s.do(t, http.MethodPost, "/evaluate-memo", evaluationBody)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRefineMemoEndpoint(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	w, env := s.do(t, http.MethodPost, "/refine-existing-memo", map[string]interface{}{
		"memo":        "Concept",
		"chunks":      evaluationBody["chunks"],
		"temperature": 0.5,
		"model":       "gpt-4.1",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var data struct {
		MemoRefined string         `json:"memo_refined"`
		Chunks      []models.Chunk `json:"chunks"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "Memo", data.MemoRefined)
	require.Len(t, data.Chunks, 1)
	assert.Equal(t, models.ChunkID("7"), data.Chunks[0].ID)

	w, env = s.do(t, http.MethodPost, "/refine-existing-memo", map[string]interface{}{"memo": "Concept"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", env.Error.Code)
}

func TestListChunksEndpoint(t *testing.T) {
	s := newTestServer(t, serverOptions{listedChunks: []models.Chunk{
		{Text: "a", Metadata: map[string]interface{}{"title": "ECLI:NL:RVS:2019:7 Uitspraak"}},
	}})

	w, env := s.do(t, http.MethodGet, "/get-all-chunks?limit=10&offset=0", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var data struct {
		TotalChunks int `json:"total_chunks"`
		Chunks      []struct {
			ECLI string `json:"ecli"`
			Text string `json:"text"`
		} `json:"chunks"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, 1, data.TotalChunks)
	assert.Equal(t, "ECLI:NL:RVS:2019:7", data.Chunks[0].ECLI)

	for _, query := range []string{"limit=0", "limit=1001", "offset=-1", "limit=abc"} {
		w, _ := s.do(t, http.MethodGet, "/get-all-chunks?"+query, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, query)
	}
}

func TestSaveMemoEndpoint(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	id := uuid.New()

	w, env := s.do(t, http.MethodPost, "/save-memo", map[string]interface{}{
		"id":        id,
		"content":   "Memo",
		"formData":  validIntake,
		"chunks":    []interface{}{},
		"feedback":  map[string]string{"rating": "good"},
		"createdAt": time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	require.Equal(t, http.StatusOK, w.Code)

	var data struct {
		ID uuid.UUID `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, id, data.ID)
	require.Len(t, s.memoStore.saved, 1)
	assert.JSONEq(t, `{"rating":"good"}`, string(s.memoStore.saved[0].Feedback))
}

// =============================================================================
// Evaluation endpoints
// =============================================================================

func TestEvaluateMemoEndpointDefaults(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	w, env := s.do(t, http.MethodPost, "/evaluate-memo", evaluationBody)
	require.Equal(t, http.StatusOK, w.Code)

	var verdict models.EvaluationVerdict
	require.NoError(t, json.Unmarshal(env.Data, &verdict))
	assert.Equal(t, "cosine", verdict.SimilarityMetric)
	assert.Equal(t, 0.70, verdict.Threshold)

	require.Len(t, s.logStore.logs, 1)
	assert.Equal(t, s.logStore.logs[0].ID.String(), w.Header().Get("X-Evaluation-Log-Id"))
}

func TestEvaluateMemoEndpointQueryParams(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	w, env := s.do(t, http.MethodPost, "/evaluate-memo?similarity_metric=dot&threshold=0.55", evaluationBody)
	require.Equal(t, http.StatusOK, w.Code)

	var verdict models.EvaluationVerdict
	require.NoError(t, json.Unmarshal(env.Data, &verdict))
	assert.Equal(t, "dot", verdict.SimilarityMetric)
	assert.Equal(t, 0.55, verdict.Threshold)
}

func TestEvaluateMemoEndpointConfiguredDefaults(t *testing.T) {
	s := newTestServer(t, serverOptions{
		handlerOpts: []EvaluationHandlerOption{EvaluationHandlerWithDefaults("euclidean", 0.4)},
	})

	w, env := s.do(t, http.MethodPost, "/evaluate-memo", evaluationBody)
	require.Equal(t, http.StatusOK, w.Code)

	var verdict models.EvaluationVerdict
	require.NoError(t, json.Unmarshal(env.Data, &verdict))
	assert.Equal(t, "euclidean", verdict.SimilarityMetric)
	assert.Equal(t, 0.4, verdict.Threshold)
}

func TestEvaluateMemoEndpointErrors(t *testing.T) {
	tests := []struct {
		name   string
		opts   serverOptions
		path   string
		body   interface{}
		status int
		code   string
	}{
		{"missing chunks", serverOptions{}, "/evaluate-memo", map[string]string{"memo": "x"}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"unknown metric", serverOptions{}, "/evaluate-memo?similarity_metric=manhattan", evaluationBody, http.StatusBadRequest, "UNSUPPORTED_METRIC"},
		{"threshold out of range", serverOptions{}, "/evaluate-memo?threshold=1.5", evaluationBody, http.StatusBadRequest, "INVALID_THRESHOLD"},
		{"threshold not a number", serverOptions{}, "/evaluate-memo?threshold=high", evaluationBody, http.StatusBadRequest, "INVALID_THRESHOLD"},
		{"threshold NaN", serverOptions{}, "/evaluate-memo?threshold=NaN", evaluationBody, http.StatusBadRequest, "INVALID_THRESHOLD"},
		{"blank chunk text", serverOptions{}, "/evaluate-memo", map[string]interface{}{
			"memo":   "Zie ECLI:NL:CRVB:2020:1.",
			"chunks": []map[string]interface{}{{"id": 7, "ecli": "ECLI:NL:CRVB:2020:1", "text": ""}},
		}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"embedding failure", serverOptions{evaluateErr: &grounding.EvaluationError{Stage: grounding.StageEmbed, Err: &embedding.ProviderError{Op: "embeddings", Err: errors.New("down")}}}, "/evaluate-memo", evaluationBody, http.StatusBadGateway, "EMBEDDING_FAILED"},
		{"log failure", serverOptions{logErr: errors.New("insert failed")}, "/evaluate-memo", evaluationBody, http.StatusInternalServerError, "LOG_PERSIST_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.opts)
			w, env := s.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}
}

func TestSweepEndpoint(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	body := map[string]interface{}{
		"memo":   evaluationBody["memo"],
		"chunks": evaluationBody["chunks"],
		"configs": []map[string]interface{}{
			{"similarity_metric": "cosine", "threshold": 0.6},
			{"similarity_metric": "euclidean", "threshold": 0.3},
		},
	}
	w, env := s.do(t, http.MethodPost, "/evaluate-memo/sweep", body)
	require.Equal(t, http.StatusOK, w.Code)

	var verdicts []models.EvaluationVerdict
	require.NoError(t, json.Unmarshal(env.Data, &verdicts))
	require.Len(t, verdicts, 2)
	assert.Equal(t, "euclidean", verdicts[1].SimilarityMetric)
	assert.Empty(t, s.logStore.logs)

	w, _ = s.do(t, http.MethodPost, "/evaluate-memo/sweep", map[string]interface{}{"memo": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEvaluationLogsAndReport(t *testing.T) {
	s := newTestServer(t, serverOptions{withArchive: true, archiveDir: t.TempDir()})

	for i := 0; i < 3; i++ {
		w, _ := s.do(t, http.MethodPost, "/evaluate-memo", evaluationBody)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w, env := s.do(t, http.MethodGet, "/evaluation-logs?limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var logs []models.EvaluationLog
	require.NoError(t, json.Unmarshal(env.Data, &logs))
	assert.Len(t, logs, 2)

	w, _ = s.do(t, http.MethodGet, "/evaluation-logs?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	newest := s.logStore.logs[0].ID
	w, _ = s.do(t, http.MethodGet, "/evaluation-logs/"+newest.String()+"/report", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var report models.EvaluationLog
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, newest, report.ID)

	w, env = s.do(t, http.MethodGet, "/evaluation-logs/"+uuid.New().String()+"/report", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	w, env = s.do(t, http.MethodGet, "/evaluation-logs/not-a-uuid/report", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_ID", env.Error.Code)
}

func TestReportWithoutArchive(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	w, env := s.do(t, http.MethodGet, "/evaluation-logs/"+uuid.New().String()+"/report", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "ARCHIVE_DISABLED", env.Error.Code)
}

func TestIPRateLimiterRefills(t *testing.T) {
	limiter := NewIPRateLimiter(1)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	assert.True(t, limiter.Allow("a"))
	assert.False(t, limiter.Allow("a"))
	assert.True(t, limiter.Allow("b"))

	now = now.Add(time.Minute)
	assert.True(t, limiter.Allow("a"))

	assert.Nil(t, NewIPRateLimiter(0))
}
