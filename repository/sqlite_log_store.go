package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"jurismemo-backend/models"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS evaluation_logs (
	id                TEXT PRIMARY KEY,
	memo              TEXT NOT NULL,
	chunks            TEXT NOT NULL,
	evaluation        TEXT NOT NULL,
	similarity_metric TEXT NOT NULL,
	threshold         REAL NOT NULL,
	created_at        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_evaluation_logs_created_at ON evaluation_logs(created_at);
`

// sqliteTimeLayout has a fixed-width fraction so stored timestamps sort as text
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteLogStore keeps evaluation logs in a local SQLite file for offline runs
type SQLiteLogStore struct {
	db *sql.DB
}

// NewSQLiteLogStore opens a SQLite database and runs migrations
func NewSQLiteLogStore(path string) (*SQLiteLogStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteLogStore{db: db}, nil
}

// Close closes the underlying database
func (s *SQLiteLogStore) Close() error {
	return s.db.Close()
}

// Insert stores a new evaluation log
func (s *SQLiteLogStore) Insert(ctx context.Context, log *models.EvaluationLog) error {
	prepareLog(log)

	chunks, evaluation, err := encodeLog(log)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO evaluation_logs (id, memo, chunks, evaluation, similarity_metric, threshold, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		log.ID.String(),
		log.Memo,
		string(chunks),
		string(evaluation),
		log.SimilarityMetric,
		log.Threshold,
		log.CreatedAt.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert evaluation log: %w", err)
	}
	return nil
}

// List returns the newest evaluation logs first
func (s *SQLiteLogStore) List(ctx context.Context, limit int) ([]models.EvaluationLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, memo, chunks, evaluation, similarity_metric, threshold, created_at
		 FROM evaluation_logs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list evaluation logs: %w", err)
	}
	defer rows.Close()

	logs := make([]models.EvaluationLog, 0)
	for rows.Next() {
		log, err := scanSQLiteLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, *log)
	}
	return logs, rows.Err()
}

// GetByID retrieves one evaluation log
func (s *SQLiteLogStore) GetByID(ctx context.Context, id uuid.UUID) (*models.EvaluationLog, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, memo, chunks, evaluation, similarity_metric, threshold, created_at
		 FROM evaluation_logs WHERE id = ?`, id.String())

	log, err := scanSQLiteLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return log, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSQLiteLog(row rowScanner) (*models.EvaluationLog, error) {
	var (
		log                           models.EvaluationLog
		id, chunks, evaluation, stamp string
	)
	if err := row.Scan(&id, &log.Memo, &chunks, &evaluation, &log.SimilarityMetric, &log.Threshold, &stamp); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan evaluation log: %w", err)
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse log id %q: %w", id, err)
	}
	log.ID = parsed

	log.CreatedAt, err = time.Parse(sqliteTimeLayout, stamp)
	if err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", stamp, err)
	}

	if err := decodeLog(&log, []byte(chunks), []byte(evaluation)); err != nil {
		return nil, err
	}
	return &log, nil
}
