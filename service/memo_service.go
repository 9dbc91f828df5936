package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"jurismemo-backend/llm"
	"jurismemo-backend/models"
	"jurismemo-backend/observability"
	"jurismemo-backend/prompt"
	"jurismemo-backend/retrieval"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	// DefaultTemperature is used for first drafts
	DefaultTemperature float32 = 0.2
	// MaxChunkPage bounds a single chunk listing page
	MaxChunkPage = 1000
)

// QueryEmbedder embeds a search query
type QueryEmbedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// ChunkRetriever returns ranked, source-capped chunks for a query vector
type ChunkRetriever interface {
	Retrieve(ctx context.Context, query []float32, topK, maxPerSource int) ([]models.Chunk, error)
}

// ChunkLister pages through every stored chunk
type ChunkLister interface {
	ListChunks(ctx context.Context, limit, offset int) ([]models.Chunk, error)
}

// MemoStore persists memos
type MemoStore interface {
	Upsert(ctx context.Context, memo *models.Memo) error
}

// MemoService composes and refines memos
type MemoService struct {
	embedder     QueryEmbedder
	retriever    ChunkRetriever
	lister       ChunkLister
	generator    llm.Generator
	memoStore    MemoStore
	metrics      *observability.Metrics
	topK         int
	maxPerSource int
	temperature  float32
}

// MemoServiceOption is a functional option for MemoService
type MemoServiceOption func(*MemoService)

// MemoWithEmbedder sets the query embedder
func MemoWithEmbedder(embedder QueryEmbedder) MemoServiceOption {
	return func(s *MemoService) {
		s.embedder = embedder
	}
}

// MemoWithRetriever sets the chunk retriever
func MemoWithRetriever(retriever ChunkRetriever) MemoServiceOption {
	return func(s *MemoService) {
		s.retriever = retriever
	}
}

// MemoWithChunkLister sets the chunk lister
func MemoWithChunkLister(lister ChunkLister) MemoServiceOption {
	return func(s *MemoService) {
		s.lister = lister
	}
}

// MemoWithGenerator sets the language model
func MemoWithGenerator(generator llm.Generator) MemoServiceOption {
	return func(s *MemoService) {
		s.generator = generator
	}
}

// MemoWithMemoStore sets the memo store
func MemoWithMemoStore(store MemoStore) MemoServiceOption {
	return func(s *MemoService) {
		s.memoStore = store
	}
}

// MemoWithMetrics sets the metrics collectors
func MemoWithMetrics(metrics *observability.Metrics) MemoServiceOption {
	return func(s *MemoService) {
		s.metrics = metrics
	}
}

// MemoWithRetrievalLimits sets top_k and the per-source cap used for drafts
func MemoWithRetrievalLimits(topK, maxPerSource int) MemoServiceOption {
	return func(s *MemoService) {
		s.topK = topK
		s.maxPerSource = maxPerSource
	}
}

// MemoWithTemperature sets the sampling temperature for drafts and for reviews that do not pick one
func MemoWithTemperature(temperature float32) MemoServiceOption {
	return func(s *MemoService) {
		s.temperature = temperature
	}
}

// NewMemoService creates a new memo service
func NewMemoService(opts ...MemoServiceOption) *MemoService {
	s := &MemoService{
		topK:         retrieval.DefaultTopK,
		maxPerSource: retrieval.DefaultMaxPerSource,
		temperature:  DefaultTemperature,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateMemoRequest represents a request to draft a memo from intake facts
type GenerateMemoRequest struct {
	Intake models.MemoRequest
}

// GenerateMemoResult holds the draft and the chunks it was written from
type GenerateMemoResult struct {
	Query  string
	Memo   string
	Chunks []models.Chunk
}

// RefineMemoRequest represents a request to review an existing draft
type RefineMemoRequest struct {
	Memo        string
	Chunks      []models.Chunk
	Temperature *float32
	Model       string
}

// RefineMemoResult holds the reviewed memo
type RefineMemoResult struct {
	Memo   string
	Chunks []models.Chunk
}

// SaveMemoRequest represents a memo upsert
type SaveMemoRequest struct {
	Memo *models.Memo
}

// SaveMemoResult holds the id of the saved memo
type SaveMemoResult struct {
	ID uuid.UUID
}

// ListChunksRequest represents one page of the chunk listing
type ListChunksRequest struct {
	Limit  int
	Offset int
}

// ListChunksResult holds a page of chunks
type ListChunksResult struct {
	Chunks []models.Chunk
}

// GenerateMemo embeds the intake query, retrieves supporting chunks and drafts a memo
func (s *MemoService) GenerateMemo(ctx context.Context, req GenerateMemoRequest) (*GenerateMemoResult, error) {
	if s.embedder == nil || s.retriever == nil || s.generator == nil {
		return nil, errors.New("memo service is missing its embedder, retriever or generator")
	}
	if intakeIsBlank(req.Intake) {
		return nil, ErrEmptyQuery
	}

	ctx, span := observability.Tracer().Start(ctx, "memo.generate")
	defer span.End()

	query := prompt.BuildQuery(req.Intake)

	vector, err := s.embedder.EmbedOne(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedding failed")
		return nil, fmt.Errorf("embed query: %w", err)
	}

	chunks, err := s.retriever.Retrieve(ctx, vector, s.topK, s.maxPerSource)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "retrieval failed")
		return nil, err
	}
	s.metrics.ObserveRetrieval(len(chunks))
	span.SetAttributes(attribute.Int("retrieval.chunks", len(chunks)))

	temperature := s.temperature
	memo, err := s.generator.Generate(ctx, prompt.MemoSystemRole, prompt.BuildPrompt(query, chunks), llm.GenerationParams{
		Temperature: &temperature,
	})
	s.metrics.ObserveGeneration("draft", err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	return &GenerateMemoResult{
		Query:  query,
		Memo:   memo,
		Chunks: chunks,
	}, nil
}

// RefineMemo asks the reviewer model to rewrite a draft against its chunks
func (s *MemoService) RefineMemo(ctx context.Context, req RefineMemoRequest) (*RefineMemoResult, error) {
	if s.generator == nil {
		return nil, errors.New("memo service is missing its generator")
	}
	if strings.TrimSpace(req.Memo) == "" || len(req.Chunks) == 0 {
		return nil, ErrMissingMemoOrChunks
	}

	ctx, span := observability.Tracer().Start(ctx, "memo.refine")
	defer span.End()
	if req.Model != "" {
		span.SetAttributes(attribute.String("llm.model", req.Model))
	}

	temperature := s.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	refined, err := s.generator.Generate(ctx, prompt.ReviewSystemRole, prompt.BuildReviewPrompt(req.Memo, req.Chunks), llm.GenerationParams{
		Temperature: &temperature,
		Model:       req.Model,
	})
	s.metrics.ObserveGeneration("review", err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "refinement failed")
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	return &RefineMemoResult{
		Memo:   refined,
		Chunks: req.Chunks,
	}, nil
}

// SaveMemo inserts a new memo or updates an existing one
func (s *MemoService) SaveMemo(ctx context.Context, req SaveMemoRequest) (*SaveMemoResult, error) {
	if s.memoStore == nil {
		return nil, errors.New("memo store not set")
	}
	if req.Memo == nil {
		return nil, errors.New("memo is required")
	}

	memo := req.Memo
	if memo.ID == uuid.Nil {
		memo.ID = uuid.New()
	}
	if memo.CreatedAt.IsZero() {
		memo.CreatedAt = time.Now().UTC()
	}

	if err := s.memoStore.Upsert(ctx, memo); err != nil {
		return nil, fmt.Errorf("save memo: %w", err)
	}

	return &SaveMemoResult{ID: memo.ID}, nil
}

// ListChunks returns one page of stored chunks with their ECLI resolved
func (s *MemoService) ListChunks(ctx context.Context, req ListChunksRequest) (*ListChunksResult, error) {
	if s.lister == nil {
		return nil, errors.New("chunk lister not set")
	}
	if req.Limit < 1 || req.Limit > MaxChunkPage || req.Offset < 0 {
		return nil, ErrInvalidPagination
	}

	chunks, err := s.lister.ListChunks(ctx, req.Limit, req.Offset)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	for i := range chunks {
		chunks[i].ECLI = models.ResolveECLI(chunks[i].ECLI, chunks[i].Metadata)
	}

	return &ListChunksResult{Chunks: chunks}, nil
}

func intakeIsBlank(in models.MemoRequest) bool {
	for _, field := range []string{in.DisputedDecision, in.DesiredOutcome, in.CriticalFacts, in.ApplicableLaw, in.Recipients} {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
