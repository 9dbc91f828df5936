package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"jurismemo-backend/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ChunkRepository handles vector search and listing over case_chunks
type ChunkRepository struct {
	db *pgxpool.Pool
}

// NewChunkRepository creates a new chunk repository
func NewChunkRepository(db *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// formatVector formats an embedding vector as a pgvector literal
func formatVector(embedding []float32) string {
	if len(embedding) == 0 {
		return "[]"
	}
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// chunkRow is a row as returned by match_case_chunks or the chunk table
type chunkRow struct {
	ID         string
	ECLI       *string
	Content    string
	Similarity float64
	Metadata   map[string]interface{}
}

func (r chunkRow) toChunk() models.Chunk {
	meta := r.Metadata
	if meta == nil {
		meta = map[string]interface{}{}
	}
	ecli := ""
	if r.ECLI != nil {
		ecli = *r.ECLI
	}
	return models.Chunk{
		ID:            models.ChunkID(r.ID),
		ECLI:          models.ResolveECLI(ecli, meta),
		Text:          r.Content,
		Similarity:    r.Similarity,
		ChunkIndex:    models.MetaInt(meta, "chunk_index", -1),
		SubChunkIndex: models.MetaInt(meta, "sub_chunk_index", 0),
		Metadata:      meta,
	}
}

// MatchChunks calls match_case_chunks and returns candidates in the store's similarity order
func (r *ChunkRepository) MatchChunks(ctx context.Context, embedding []float32, minSimilarity float64, maxCandidates int) ([]models.Chunk, error) {
	query := `
		SELECT id::text, ecli, content, similarity, metadata
		FROM match_case_chunks(
			query_embedding => $1::vector,
			match_threshold => $2,
			match_count => $3
		)`

	rows, err := r.db.Query(ctx, query, formatVector(embedding), minSimilarity, maxCandidates)
	if err != nil {
		return nil, fmt.Errorf("failed to call match_case_chunks: %w", err)
	}
	defer rows.Close()

	chunks := make([]models.Chunk, 0)
	for rows.Next() {
		var row chunkRow
		if err := rows.Scan(&row.ID, &row.ECLI, &row.Content, &row.Similarity, &row.Metadata); err != nil {
			return nil, fmt.Errorf("failed to scan chunk candidate: %w", err)
		}
		chunks = append(chunks, row.toChunk())
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chunk candidates: %w", err)
	}

	return chunks, nil
}

// ListChunks pages through the stored chunks in id order
func (r *ChunkRepository) ListChunks(ctx context.Context, limit, offset int) ([]models.Chunk, error) {
	query := `
		SELECT id::text, ecli, content, metadata
		FROM case_chunks
		ORDER BY id
		LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	chunks := make([]models.Chunk, 0, limit)
	for rows.Next() {
		var row chunkRow
		if err := rows.Scan(&row.ID, &row.ECLI, &row.Content, &row.Metadata); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, row.toChunk())
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chunks: %w", err)
	}

	return chunks, nil
}

// InsertChunks stores chunks with their embeddings in a single transaction
func (r *ChunkRepository) InsertChunks(ctx context.Context, chunks []models.Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("got %d embeddings for %d chunks", len(embeddings), len(chunks))
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO case_chunks (ecli, content, metadata, embedding)
		VALUES (NULLIF($1, ''), $2, $3, $4::vector)`

	for i, chunk := range chunks {
		metadata, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}

		if _, err := tx.Exec(ctx, query, chunk.ECLI, chunk.Text, string(metadata), formatVector(embeddings[i])); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CountChunks returns the number of stored chunks
func (r *ChunkRepository) CountChunks(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM case_chunks").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}

// StoredECLIs returns the distinct decision identifiers already in the store
func (r *ChunkRepository) StoredECLIs(ctx context.Context) (map[string]bool, error) {
	rows, err := r.db.Query(ctx, "SELECT DISTINCT ecli FROM case_chunks WHERE ecli IS NOT NULL")
	if err != nil {
		return nil, fmt.Errorf("failed to list stored eclis: %w", err)
	}
	defer rows.Close()

	stored := make(map[string]bool)
	for rows.Next() {
		var ecli string
		if err := rows.Scan(&ecli); err != nil {
			return nil, fmt.Errorf("failed to scan ecli: %w", err)
		}
		stored[ecli] = true
	}
	return stored, rows.Err()
}
