package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"jurismemo-backend/config"
	"jurismemo-backend/embedding"
	"jurismemo-backend/grounding"
	"jurismemo-backend/models"
	"jurismemo-backend/prompt"
	"jurismemo-backend/repository"
	"jurismemo-backend/retrieval"
	"jurismemo-backend/service"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

// newEmbedder builds the embedding provider from configuration; tests replace it
var newEmbedder = func(cfg *config.Config) *embeddingClient {
	p := embedding.NewProvider(cfg.Embedding.APIToken, cfg.Embedding.BaseURL, embedding.WithModel(cfg.Embedding.Model))
	return &embeddingClient{query: p, passage: p}
}

// embeddingClient splits the provider's two roles so they can be faked separately
type embeddingClient struct {
	query   service.QueryEmbedder
	passage grounding.PassageEmbedder
}

// loadConfig is replaceable in tests
var loadConfig = config.Load

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "memoctl",
		Short:         "Draft, inspect and evaluate legal memos from the command line",
		SilenceUsage: true,
	}

	root.AddCommand(
		newQueryCmd(),
		newPromptCmd(),
		newEvaluateCmd(),
		newSweepCmd(),
		newRetrieveCmd(),
		newLogsCmd(),
	)
	return root
}

func newQueryCmd() *cobra.Command {
	var intakePath string

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Print the retrieval query built from an intake file",
		RunE: func(cmd *cobra.Command, args []string) error {
			intake, err := readIntake(intakePath)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), prompt.BuildQuery(intake))
			return nil
		},
	}
	cmd.Flags().StringVar(&intakePath, "intake", "", "intake file (JSON or YAML)")
	cmd.MarkFlagRequired("intake")
	return cmd
}

func newPromptCmd() *cobra.Command {
	var intakePath, chunksPath, reviewPath string

	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Print the drafting prompt, or the review prompt with --review",
		RunE: func(cmd *cobra.Command, args []string) error {
			chunks, err := readChunks(chunksPath)
			if err != nil {
				return err
			}

			if reviewPath != "" {
				draft, err := readText(reviewPath)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), prompt.BuildReviewPrompt(draft, chunks))
				return nil
			}

			if intakePath == "" {
				return fmt.Errorf("either --intake or --review is required")
			}
			intake, err := readIntake(intakePath)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), prompt.BuildPrompt(prompt.BuildQuery(intake), chunks))
			return nil
		},
	}
	cmd.Flags().StringVar(&intakePath, "intake", "", "intake file (JSON or YAML)")
	cmd.Flags().StringVar(&chunksPath, "chunks", "", "chunks file (JSON or YAML)")
	cmd.Flags().StringVar(&reviewPath, "review", "", "draft memo to build a review prompt for")
	cmd.MarkFlagRequired("chunks")
	return cmd
}

func newEvaluateCmd() *cobra.Command {
	var (
		memoPath, chunksPath, metric, logDB string
		threshold                           float64
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate a memo's citations and grounding against its chunks",
		RunE: func(cmd *cobra.Command, args []string) error {
			memo, chunks, err := readMemoAndChunks(memoPath, chunksPath)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("metric") {
				metric = cfg.Evaluation.Metric
			}
			if !cmd.Flags().Changed("threshold") {
				threshold = cfg.Evaluation.Threshold
			}

			evaluator, err := buildEvaluator(cfg)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if logDB == "" {
				svc := service.NewEvaluationService(service.EvaluationWithEvaluator(evaluator))
				result, err := svc.SweepMemo(ctx, service.SweepRequest{
					Memo:    memo,
					Chunks:  chunks,
					Configs: []service.SweepConfig{{SimilarityMetric: metric, Threshold: threshold}},
				})
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), result.Evaluations[0])
			}

			store, err := repository.NewSQLiteLogStore(logDB)
			if err != nil {
				return err
			}
			defer store.Close()

			svc := service.NewEvaluationService(
				service.EvaluationWithEvaluator(evaluator),
				service.EvaluationWithLogStore(store),
			)
			result, err := svc.EvaluateMemo(ctx, service.EvaluateMemoRequest{
				Memo:             memo,
				Chunks:           chunks,
				SimilarityMetric: metric,
				Threshold:        threshold,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "logged evaluation %s\n", result.LogID)
			return writeJSON(cmd.OutOrStdout(), result.Evaluation)
		},
	}
	cmd.Flags().StringVar(&memoPath, "memo", "", "memo text file")
	cmd.Flags().StringVar(&chunksPath, "chunks", "", "chunks file (JSON or YAML)")
	cmd.Flags().StringVar(&metric, "metric", string(grounding.DefaultMetric), "similarity metric: cosine, dot or euclidean")
	cmd.Flags().Float64Var(&threshold, "threshold", 0.70, "grounding threshold in [0,1]")
	cmd.Flags().StringVar(&logDB, "log-db", "", "SQLite file to record the evaluation in")
	cmd.MarkFlagRequired("memo")
	cmd.MarkFlagRequired("chunks")
	return cmd
}

func newSweepCmd() *cobra.Command {
	var (
		memoPath, chunksPath string
		metrics              []string
		thresholds           []float64
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Evaluate a memo under every metric and threshold combination",
		RunE: func(cmd *cobra.Command, args []string) error {
			memo, chunks, err := readMemoAndChunks(memoPath, chunksPath)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			evaluator, err := buildEvaluator(cfg)
			if err != nil {
				return err
			}

			configs := make([]service.SweepConfig, 0, len(metrics)*len(thresholds))
			for _, m := range metrics {
				for _, th := range thresholds {
					configs = append(configs, service.SweepConfig{SimilarityMetric: m, Threshold: th})
				}
			}

			svc := service.NewEvaluationService(service.EvaluationWithEvaluator(evaluator))
			result, err := svc.SweepMemo(cmd.Context(), service.SweepRequest{Memo: memo, Chunks: chunks, Configs: configs})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), result.Evaluations)
		},
	}
	cmd.Flags().StringVar(&memoPath, "memo", "", "memo text file")
	cmd.Flags().StringVar(&chunksPath, "chunks", "", "chunks file (JSON or YAML)")
	cmd.Flags().StringSliceVar(&metrics, "metrics", []string{"cosine", "dot", "euclidean"}, "similarity metrics")
	cmd.Flags().Float64SliceVar(&thresholds, "thresholds", []float64{0.5, 0.6, 0.7, 0.8}, "grounding thresholds")
	cmd.MarkFlagRequired("memo")
	cmd.MarkFlagRequired("chunks")
	return cmd
}

func newRetrieveCmd() *cobra.Command {
	var (
		intakePath         string
		topK, maxPerSource int
	)

	cmd := &cobra.Command{
		Use:   "retrieve",
		Short: "Embed an intake's query and print the ranked chunks from the vector store",
		RunE: func(cmd *cobra.Command, args []string) error {
			intake, err := readIntake(intakePath)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("top-k") {
				topK = cfg.Retrieval.TopK
			}
			if !cmd.Flags().Changed("max-per-source") {
				maxPerSource = cfg.Retrieval.MaxPerSource
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			db, err := pgxpool.New(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect to postgres: %w", err)
			}
			defer db.Close()

			retriever := retrieval.NewRetriever(repository.NewChunkRepository(db),
				retrieval.WithMatchThreshold(cfg.Retrieval.MatchThreshold),
				retrieval.WithMatchCount(cfg.Retrieval.MatchCount),
			)
			chunks, err := retrieveForIntake(ctx, newEmbedder(cfg).query, retriever, intake, topK, maxPerSource)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), chunks)
		},
	}
	cmd.Flags().StringVar(&intakePath, "intake", "", "intake file (JSON or YAML)")
	cmd.Flags().IntVar(&topK, "top-k", retrieval.DefaultTopK, "number of chunks to return")
	cmd.Flags().IntVar(&maxPerSource, "max-per-source", retrieval.DefaultMaxPerSource, "chunks allowed per decision")
	cmd.MarkFlagRequired("intake")
	return cmd
}

func newLogsCmd() *cobra.Command {
	var (
		logDB string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "List evaluations recorded in a SQLite log file, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := repository.NewSQLiteLogStore(logDB)
			if err != nil {
				return err
			}
			defer store.Close()

			svc := service.NewEvaluationService(service.EvaluationWithLogStore(store))
			result, err := svc.ListEvaluationLogs(cmd.Context(), service.ListEvaluationLogsRequest{Limit: limit})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), result.Logs)
		},
	}
	cmd.Flags().StringVar(&logDB, "log-db", "", "SQLite log file")
	cmd.Flags().IntVar(&limit, "limit", service.DefaultLogLimit, "maximum number of logs")
	cmd.MarkFlagRequired("log-db")
	return cmd
}

func buildEvaluator(cfg *config.Config) (*grounding.Evaluator, error) {
	splitter, err := grounding.NewPunktSplitter(cfg.Evaluation.Language)
	if err != nil {
		return nil, err
	}
	return grounding.NewEvaluator(newEmbedder(cfg).passage, splitter), nil
}

func retrieveForIntake(ctx context.Context, embedder service.QueryEmbedder, retriever service.ChunkRetriever, intake models.MemoRequest, topK, maxPerSource int) ([]models.Chunk, error) {
	vector, err := embedder.EmbedOne(ctx, prompt.BuildQuery(intake))
	if err != nil {
		return nil, err
	}
	return retriever.Retrieve(ctx, vector, topK, maxPerSource)
}

func readMemoAndChunks(memoPath, chunksPath string) (string, []models.Chunk, error) {
	memo, err := readText(memoPath)
	if err != nil {
		return "", nil, err
	}
	chunks, err := readChunks(chunksPath)
	if err != nil {
		return "", nil, err
	}
	return memo, chunks, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
