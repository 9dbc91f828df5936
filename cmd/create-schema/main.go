package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"jurismemo-backend/config"
	"jurismemo-backend/repository"

	"github.com/jackc/pgx/v5/pgxpool"
)

// embeddingDimensions matches intfloat/multilingual-e5-large
const embeddingDimensions = 1024

type statement struct {
	name string
	sql  string
	// optional statements only warn on failure
	optional bool
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	for _, stmt := range schemaStatements(embeddingDimensions) {
		if _, err := pool.Exec(ctx, stmt.sql); err != nil {
			if stmt.optional {
				slog.Warn("Failed to apply schema statement", "statement", stmt.name, "error", err)
				continue
			}
			slog.Error("Failed to apply schema statement", "statement", stmt.name, "error", err)
			os.Exit(1)
		}
		slog.Info("Applied schema statement", "statement", stmt.name)
	}

	fmt.Println("\n✅ Database schema created successfully!")
	fmt.Println("   Tables: case_chunks, evaluation_logs, memos, memos_prod")
	fmt.Println("   Function: match_case_chunks")
}

// schemaStatements returns the idempotent DDL, in execution order
func schemaStatements(dimensions int) []statement {
	stmts := []statement{
		{
			name:     "pgvector extension",
			sql:      "CREATE EXTENSION IF NOT EXISTS vector",
			optional: true,
		},
		{
			name: "case_chunks table",
			sql: fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS case_chunks (
    id BIGSERIAL PRIMARY KEY,
    ecli TEXT,
    content TEXT NOT NULL,
    metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
    embedding vector(%d),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, dimensions),
		},
		{
			name: "match_case_chunks function",
			sql: fmt.Sprintf(`
CREATE OR REPLACE FUNCTION match_case_chunks(
    query_embedding vector(%d),
    match_threshold FLOAT,
    match_count INT
)
RETURNS TABLE (
    id BIGINT,
    ecli TEXT,
    content TEXT,
    similarity FLOAT,
    metadata JSONB
)
LANGUAGE sql STABLE
AS $$
    SELECT
        c.id,
        c.ecli,
        c.content,
        1 - (c.embedding <=> query_embedding) AS similarity,
        c.metadata
    FROM case_chunks c
    WHERE c.embedding IS NOT NULL
      AND 1 - (c.embedding <=> query_embedding) > match_threshold
    ORDER BY c.embedding <=> query_embedding
    LIMIT match_count
$$`, dimensions),
		},
		{
			name:     "case_chunks HNSW index",
			sql:      "CREATE INDEX IF NOT EXISTS idx_case_chunks_embedding_hnsw ON case_chunks USING hnsw (embedding vector_cosine_ops) WITH (m = 16, ef_construction = 64)",
			optional: true,
		},
		{
			name:     "case_chunks ECLI index",
			sql:      "CREATE INDEX IF NOT EXISTS idx_case_chunks_ecli ON case_chunks(ecli) WHERE ecli IS NOT NULL",
			optional: true,
		},
		{
			name: "evaluation_logs table",
			sql: `
CREATE TABLE IF NOT EXISTS evaluation_logs (
    id UUID PRIMARY KEY,
    memo TEXT NOT NULL,
    chunks JSONB NOT NULL,
    evaluation JSONB NOT NULL,
    similarity_metric TEXT NOT NULL CHECK (similarity_metric IN ('cosine', 'dot', 'euclidean')),
    threshold DOUBLE PRECISION NOT NULL CHECK (threshold >= 0 AND threshold <= 1),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
		},
		{
			name:     "evaluation_logs created_at index",
			sql:      "CREATE INDEX IF NOT EXISTS idx_evaluation_logs_created_at ON evaluation_logs(created_at DESC)",
			optional: true,
		},
	}

	for _, appEnv := range []string{"development", "production"} {
		table := repository.MemoTableName(appEnv)
		stmts = append(stmts, statement{
			name: table + " table",
			sql: fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    id UUID PRIMARY KEY,
    content TEXT NOT NULL DEFAULT '',
    form_data JSONB,
    chunks JSONB NOT NULL DEFAULT '[]'::jsonb,
    feedback JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ
)`, table),
		})
	}

	return stmts
}
