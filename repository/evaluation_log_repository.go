package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"jurismemo-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EvaluationLogRepository handles database operations for evaluation logs
type EvaluationLogRepository struct {
	db *pgxpool.Pool
}

// NewEvaluationLogRepository creates a new evaluation log repository
func NewEvaluationLogRepository(db *pgxpool.Pool) *EvaluationLogRepository {
	return &EvaluationLogRepository{db: db}
}

// Insert stores a new evaluation log, assigning an id and timestamp when missing
func (r *EvaluationLogRepository) Insert(ctx context.Context, log *models.EvaluationLog) error {
	prepareLog(log)

	chunks, evaluation, err := encodeLog(log)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO evaluation_logs (
			id, memo, chunks, evaluation, similarity_metric, threshold, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = r.db.Exec(
		ctx, query,
		log.ID,
		log.Memo,
		chunks,
		evaluation,
		log.SimilarityMetric,
		log.Threshold,
		log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert evaluation log: %w", err)
	}
	return nil
}

// List returns the newest evaluation logs first
func (r *EvaluationLogRepository) List(ctx context.Context, limit int) ([]models.EvaluationLog, error) {
	query := `
		SELECT id, memo, chunks, evaluation, similarity_metric, threshold, created_at
		FROM evaluation_logs
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list evaluation logs: %w", err)
	}
	defer rows.Close()

	logs := make([]models.EvaluationLog, 0)
	for rows.Next() {
		var (
			log                models.EvaluationLog
			chunks, evaluation []byte
		)
		err := rows.Scan(&log.ID, &log.Memo, &chunks, &evaluation, &log.SimilarityMetric, &log.Threshold, &log.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan evaluation log: %w", err)
		}
		if err := decodeLog(&log, chunks, evaluation); err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating evaluation logs: %w", err)
	}
	return logs, nil
}

// GetByID retrieves one evaluation log
func (r *EvaluationLogRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.EvaluationLog, error) {
	query := `
		SELECT id, memo, chunks, evaluation, similarity_metric, threshold, created_at
		FROM evaluation_logs
		WHERE id = $1`

	var (
		log                models.EvaluationLog
		chunks, evaluation []byte
	)
	err := r.db.QueryRow(ctx, query, id).Scan(&log.ID, &log.Memo, &chunks, &evaluation, &log.SimilarityMetric, &log.Threshold, &log.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get evaluation log: %w", err)
	}
	if err := decodeLog(&log, chunks, evaluation); err != nil {
		return nil, err
	}
	return &log, nil
}

func prepareLog(log *models.EvaluationLog) {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
}

func encodeLog(log *models.EvaluationLog) (chunks, evaluation []byte, err error) {
	chunks, err = json.Marshal(log.Chunks)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode chunks: %w", err)
	}
	evaluation, err = json.Marshal(log.Evaluation)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode evaluation: %w", err)
	}
	return chunks, evaluation, nil
}

func decodeLog(log *models.EvaluationLog, chunks, evaluation []byte) error {
	if len(chunks) > 0 {
		if err := json.Unmarshal(chunks, &log.Chunks); err != nil {
			return fmt.Errorf("failed to decode chunks of log %s: %w", log.ID, err)
		}
	}
	if len(evaluation) > 0 {
		if err := json.Unmarshal(evaluation, &log.Evaluation); err != nil {
			return fmt.Errorf("failed to decode evaluation of log %s: %w", log.ID, err)
		}
	}
	return nil
}
