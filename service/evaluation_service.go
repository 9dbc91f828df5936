package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"

	"jurismemo-backend/grounding"
	"jurismemo-backend/models"
	"jurismemo-backend/observability"
	"jurismemo-backend/repository"
	"jurismemo-backend/storage"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultLogLimit is the page size for evaluation log listings
	DefaultLogLimit = 100
	// sweepConcurrency bounds parallel evaluations in a sweep
	sweepConcurrency = 4
)

// MemoEvaluator grounds a memo against chunks
type MemoEvaluator interface {
	Evaluate(ctx context.Context, memo string, chunks []models.Chunk, threshold float64, metric grounding.Metric) (*models.EvaluationVerdict, error)
}

// EvaluationLogStore persists evaluation logs
type EvaluationLogStore interface {
	Insert(ctx context.Context, log *models.EvaluationLog) error
	List(ctx context.Context, limit int) ([]models.EvaluationLog, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.EvaluationLog, error)
}

// EvaluationService runs grounding evaluations and keeps their logs
type EvaluationService struct {
	evaluator     MemoEvaluator
	logStore      EvaluationLogStore
	archive       storage.Storage
	archivePrefix string
	metrics       *observability.Metrics
}

// EvaluationServiceOption is a functional option for EvaluationService
type EvaluationServiceOption func(*EvaluationService)

// EvaluationWithEvaluator sets the grounding evaluator
func EvaluationWithEvaluator(evaluator MemoEvaluator) EvaluationServiceOption {
	return func(s *EvaluationService) {
		s.evaluator = evaluator
	}
}

// EvaluationWithLogStore sets the evaluation log store
func EvaluationWithLogStore(store EvaluationLogStore) EvaluationServiceOption {
	return func(s *EvaluationService) {
		s.logStore = store
	}
}

// EvaluationWithArchive sets the report archive. A nil archive disables archiving.
func EvaluationWithArchive(archive storage.Storage, prefix string) EvaluationServiceOption {
	return func(s *EvaluationService) {
		s.archive = archive
		s.archivePrefix = prefix
	}
}

// EvaluationWithMetrics sets the metrics collectors
func EvaluationWithMetrics(metrics *observability.Metrics) EvaluationServiceOption {
	return func(s *EvaluationService) {
		s.metrics = metrics
	}
}

// NewEvaluationService creates a new evaluation service
func NewEvaluationService(opts ...EvaluationServiceOption) *EvaluationService {
	s := &EvaluationService{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EvaluateMemoRequest represents a request to evaluate a memo
type EvaluateMemoRequest struct {
	Memo             string
	Chunks           []models.Chunk
	SimilarityMetric string
	Threshold        float64
}

// EvaluateMemoResult holds the verdict and the id of its log entry
type EvaluateMemoResult struct {
	LogID      uuid.UUID
	Evaluation *models.EvaluationVerdict
	// ReportPath is empty when archiving is disabled or failed
	ReportPath string
}

// SweepConfig is one (metric, threshold) pair of a sweep
type SweepConfig struct {
	SimilarityMetric string  `json:"similarity_metric" yaml:"similarity_metric"`
	Threshold        float64 `json:"threshold" yaml:"threshold"`
}

// SweepRequest evaluates one memo under several configurations
type SweepRequest struct {
	Memo    string
	Chunks  []models.Chunk
	Configs []SweepConfig
}

// SweepResult holds one verdict per configuration, in request order
type SweepResult struct {
	Evaluations []*models.EvaluationVerdict
}

// ListEvaluationLogsRequest represents a request for recent evaluation logs
type ListEvaluationLogsRequest struct {
	Limit int
}

// ListEvaluationLogsResult holds evaluation logs, newest first
type ListEvaluationLogsResult struct {
	Logs []models.EvaluationLog
}

// GetEvaluationReportRequest represents a request for an archived report
type GetEvaluationReportRequest struct {
	LogID uuid.UUID
}

// GetEvaluationReportResult holds the report body; the caller must close it
type GetEvaluationReportResult struct {
	Path   string
	Report io.ReadCloser
}

// EvaluateMemo grounds a memo, records the verdict and archives the report
func (s *EvaluationService) EvaluateMemo(ctx context.Context, req EvaluateMemoRequest) (*EvaluateMemoResult, error) {
	if s.logStore == nil {
		return nil, errors.New("evaluation log store not set")
	}

	metric, err := s.validate(req.Memo, req.Chunks, req.SimilarityMetric, req.Threshold)
	if err != nil {
		return nil, err
	}

	verdict, err := s.evaluate(ctx, req.Memo, req.Chunks, metric, req.Threshold)
	if err != nil {
		return nil, err
	}

	entry := &models.EvaluationLog{
		ID:               uuid.New(),
		Memo:             req.Memo,
		Chunks:           req.Chunks,
		Evaluation:       *verdict,
		SimilarityMetric: string(metric),
		Threshold:        req.Threshold,
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.logStore.Insert(ctx, entry); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLogPersistFailed, err)
	}

	return &EvaluateMemoResult{
		LogID:      entry.ID,
		Evaluation: verdict,
		ReportPath: s.archiveReport(ctx, entry),
	}, nil
}

// SweepMemo evaluates a memo under every configuration concurrently. Nothing is logged.
func (s *EvaluationService) SweepMemo(ctx context.Context, req SweepRequest) (*SweepResult, error) {
	if len(req.Configs) == 0 {
		return &SweepResult{Evaluations: []*models.EvaluationVerdict{}}, nil
	}

	metrics := make([]grounding.Metric, len(req.Configs))
	for i, cfg := range req.Configs {
		m, err := s.validate(req.Memo, req.Chunks, cfg.SimilarityMetric, cfg.Threshold)
		if err != nil {
			return nil, err
		}
		metrics[i] = m
	}

	results := make([]*models.EvaluationVerdict, len(req.Configs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for i, cfg := range req.Configs {
		g.Go(func() error {
			verdict, err := s.evaluate(gctx, req.Memo, req.Chunks, metrics[i], cfg.Threshold)
			if err != nil {
				return err
			}
			results[i] = verdict
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &SweepResult{Evaluations: results}, nil
}

// ListEvaluationLogs returns the most recent evaluation logs
func (s *EvaluationService) ListEvaluationLogs(ctx context.Context, req ListEvaluationLogsRequest) (*ListEvaluationLogsResult, error) {
	if s.logStore == nil {
		return nil, errors.New("evaluation log store not set")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLogLimit
	}

	logs, err := s.logStore.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list evaluation logs: %w", err)
	}
	return &ListEvaluationLogsResult{Logs: logs}, nil
}

// GetEvaluationReport opens the archived report of an evaluation log
func (s *EvaluationService) GetEvaluationReport(ctx context.Context, req GetEvaluationReportRequest) (*GetEvaluationReportResult, error) {
	if s.archive == nil {
		return nil, ErrArchiveDisabled
	}

	path := storage.ReportPath(s.archivePrefix, req.LogID)
	report, err := s.archive.Download(ctx, path)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, ErrLogNotFound
		}
		return nil, fmt.Errorf("download report: %w", err)
	}
	return &GetEvaluationReportResult{Path: path, Report: report}, nil
}

func (s *EvaluationService) validate(memo string, chunks []models.Chunk, metricName string, threshold float64) (grounding.Metric, error) {
	if strings.TrimSpace(memo) == "" || len(chunks) == 0 {
		return "", ErrMissingMemoOrChunks
	}
	for _, chunk := range chunks {
		if strings.TrimSpace(chunk.Text) == "" {
			return "", fmt.Errorf("%w: chunk %q", ErrBlankChunkText, chunk.ID)
		}
	}
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return "", ErrInvalidThreshold
	}
	if metricName == "" {
		return grounding.DefaultMetric, nil
	}
	return grounding.ParseMetric(metricName)
}

func (s *EvaluationService) evaluate(ctx context.Context, memo string, chunks []models.Chunk, metric grounding.Metric, threshold float64) (*models.EvaluationVerdict, error) {
	if s.evaluator == nil {
		return nil, errors.New("evaluator not set")
	}

	ctx, span := observability.Tracer().Start(ctx, "memo.evaluate")
	defer span.End()
	span.SetAttributes(
		attribute.String("evaluation.metric", string(metric)),
		attribute.Float64("evaluation.threshold", threshold),
		attribute.Int("evaluation.chunks", len(chunks)),
	)

	verdict, err := s.evaluator.Evaluate(ctx, memo, chunks, threshold, metric)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "evaluation failed")
		return nil, err
	}
	span.SetAttributes(attribute.Bool("evaluation.hallucinated", verdict.Hallucinated))
	s.metrics.ObserveEvaluation(verdict)
	return verdict, nil
}

// archiveReport stores the log as JSON; failures are logged and swallowed
func (s *EvaluationService) archiveReport(ctx context.Context, entry *models.EvaluationLog) string {
	if s.archive == nil {
		return ""
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		slog.Warn("Failed to encode evaluation report", "log_id", entry.ID, "error", err)
		return ""
	}

	path, err := s.archive.Upload(ctx, entry.ID, storage.ReportFilename, bytes.NewReader(data))
	if err != nil {
		slog.Warn("Failed to archive evaluation report", "log_id", entry.ID, "error", err)
		return ""
	}
	return path
}

// IsNotFound reports whether err means a missing log or report
func IsNotFound(err error) bool {
	return errors.Is(err, ErrLogNotFound) || errors.Is(err, repository.ErrNotFound)
}
