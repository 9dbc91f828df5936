package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"jurismemo-backend/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	memoTable     = "memos"
	memoProdTable = "memos_prod"
)

// MemoTableName returns the memo table for an application environment
func MemoTableName(appEnv string) string {
	if appEnv == "production" {
		return memoProdTable
	}
	return memoTable
}

// MemoRepository handles database operations for saved memos
type MemoRepository struct {
	db    *pgxpool.Pool
	table string
}

// NewMemoRepository creates a memo repository writing to the table for appEnv
func NewMemoRepository(db *pgxpool.Pool, appEnv string) *MemoRepository {
	return &MemoRepository{db: db, table: MemoTableName(appEnv)}
}

// Upsert inserts memo or replaces the content of an existing memo with the same id.
// created_at is only written on insert.
func (r *MemoRepository) Upsert(ctx context.Context, memo *models.Memo) error {
	chunks, err := json.Marshal(memo.Chunks)
	if err != nil {
		return fmt.Errorf("failed to encode memo chunks: %w", err)
	}

	createdAt := memo.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, content, form_data, chunks, feedback, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			form_data = EXCLUDED.form_data,
			chunks = EXCLUDED.chunks,
			feedback = EXCLUDED.feedback,
			updated_at = EXCLUDED.updated_at`, r.table)

	_, err = r.db.Exec(
		ctx, query,
		memo.ID,
		memo.Content,
		nullJSON(memo.FormData),
		chunks,
		nullJSON(memo.Feedback),
		createdAt,
		memo.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save memo: %w", err)
	}
	return nil
}

// nullJSON maps an absent raw JSON value to SQL NULL
func nullJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return []byte(raw)
}
