package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"jurismemo-backend/config"
	"jurismemo-backend/embedding"
	"jurismemo-backend/grounding"
	"jurismemo-backend/models"
	"jurismemo-backend/repository"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultChunksFile = "data/chunks.jsonl"
	embedBatchSize    = 64
	insertBatchSize   = 500
	maxLineBytes      = 4 * 1024 * 1024
)

// chunkRecord is one line of the chunks JSONL file
type chunkRecord struct {
	ECLI     string                 `json:"ecli"`
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata"`
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fatal("Failed to load configuration", err)
	}
	if cfg.Embedding.APIToken == "" {
		fatal("DEEP_INFRA_API_TOKEN environment variable is required", nil)
	}

	chunksFile := defaultChunksFile
	if len(os.Args) > 1 {
		chunksFile = os.Args[1]
	}

	ctx := context.Background()

	// Connect to database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		fatal("Failed to connect to database", err)
	}
	defer pool.Close()

	// Verify table exists
	var tableExists bool
	err = pool.QueryRow(ctx, "SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = 'case_chunks')").Scan(&tableExists)
	if err != nil {
		fatal("Failed to check table existence", err)
	}
	if !tableExists {
		fatal("case_chunks table does not exist. Please run: go run ./cmd/create-schema", nil)
	}

	f, err := os.Open(chunksFile)
	if err != nil {
		fatal("Failed to open chunks file", err)
	}
	defer f.Close()

	chunks, err := readChunkRecords(f)
	if err != nil {
		fatal("Failed to read chunks file", err)
	}
	slog.Info("Read chunks", "file", chunksFile, "count", len(chunks))

	repo := repository.NewChunkRepository(pool)

	// Skip decisions that were already ingested
	stored, err := repo.StoredECLIs(ctx)
	if err != nil {
		fatal("Failed to load stored decisions", err)
	}
	chunks = skipStored(chunks, stored)
	if len(chunks) == 0 {
		slog.Info("Nothing to ingest, every decision is already stored")
		return
	}

	provider := embedding.NewProvider(cfg.Embedding.APIToken, cfg.Embedding.BaseURL, embedding.WithModel(cfg.Embedding.Model))
	slog.Info("Embedding chunks", "model", provider.Model(), "pending", len(chunks))

	uploaded := 0
	for _, span := range batches(len(chunks), insertBatchSize) {
		batch := chunks[span[0]:span[1]]

		vectors, err := embedAll(ctx, provider, batch)
		if err != nil {
			slog.Error("Failed to embed batch", "from", span[0], "to", span[1], "error", err)
			continue
		}

		if err := repo.InsertChunks(ctx, batch, vectors); err != nil {
			slog.Error("Failed to store batch", "from", span[0], "to", span[1], "error", err)
			continue
		}
		uploaded += len(batch)
		slog.Info("Uploaded batch", "rows", len(batch), "total", uploaded)

		// Rate limiting
		time.Sleep(500 * time.Millisecond)
	}

	total, err := repo.CountChunks(ctx)
	if err != nil {
		slog.Warn("Could not verify database count", "error", err)
	}
	slog.Info("Embedding build complete", "uploaded", uploaded, "stored", total)
}

func fatal(msg string, err error) {
	if err != nil {
		slog.Error(msg, "error", err)
	} else {
		slog.Error(msg)
	}
	os.Exit(1)
}

// readChunkRecords parses a JSONL file. Blank lines are skipped; an ECLI, when
// present, must be well formed and is also written into the metadata.
func readChunkRecords(r io.Reader) ([]models.Chunk, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	chunks := make([]models.Chunk, 0)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}

		var rec chunkRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if strings.TrimSpace(rec.Text) == "" {
			return nil, fmt.Errorf("line %d: chunk has no text", line)
		}
		rec.ECLI = strings.TrimSpace(rec.ECLI)
		if rec.ECLI != "" && !grounding.IsECLI(rec.ECLI) {
			return nil, fmt.Errorf("line %d: malformed ECLI %q", line, rec.ECLI)
		}

		meta := rec.Metadata
		if meta == nil {
			meta = map[string]interface{}{}
		}
		if rec.ECLI != "" {
			meta["ecli"] = rec.ECLI
		}

		chunks = append(chunks, models.Chunk{
			ECLI:     rec.ECLI,
			Text:     rec.Text,
			Metadata: meta,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return chunks, nil
}

func skipStored(chunks []models.Chunk, stored map[string]bool) []models.Chunk {
	kept := make([]models.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if c.ECLI != "" && stored[c.ECLI] {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

// batches splits [0,n) into half-open ranges of at most size elements
func batches(n, size int) [][2]int {
	out := make([][2]int, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

func embedAll(ctx context.Context, provider *embedding.Provider, chunks []models.Chunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	for _, span := range batches(len(chunks), embedBatchSize) {
		texts := make([]string, 0, span[1]-span[0])
		for _, c := range chunks[span[0]:span[1]] {
			texts = append(texts, c.Text)
		}

		vecs, err := provider.EmbedMany(ctx, texts)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vecs...)
	}
	return vectors, nil
}
