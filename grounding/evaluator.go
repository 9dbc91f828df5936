package grounding

import (
	"context"
	"errors"
	"fmt"
	"math"

	"jurismemo-backend/models"
)

// Evaluation stages reported by EvaluationError
const (
	StageSplit = "sentence splitting"
	StageEmbed = "embedding"
	StageScore = "scoring"
)

// ErrEmbeddingCount is returned when the embedder answers with the wrong number of vectors
var ErrEmbeddingCount = errors.New("embedder returned an unexpected number of vectors")

// EvaluationError aborts an evaluation; no partial verdict is produced
type EvaluationError struct {
	Stage string
	Err   error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation failed during %s: %v", e.Stage, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// PassageEmbedder embeds a batch of passages, one vector per input in order
type PassageEmbedder interface {
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
}

// Evaluator grounds memos against the chunks they were written from
type Evaluator struct {
	embedder PassageEmbedder
	splitter SentenceSplitter
}

// NewEvaluator creates an evaluator
func NewEvaluator(embedder PassageEmbedder, splitter SentenceSplitter) *Evaluator {
	return &Evaluator{embedder: embedder, splitter: splitter}
}

// Evaluate scores memo against chunks. Citation precision and recall are set
// based; the fabricated count uses every occurrence. A sentence is ungrounded
// when its best similarity to any chunk is strictly below threshold.
func (e *Evaluator) Evaluate(ctx context.Context, memo string, chunks []models.Chunk, threshold float64, metric Metric) (*models.EvaluationVerdict, error) {
	if !metric.Valid() {
		return nil, &UnsupportedMetricError{Metric: string(metric)}
	}

	cited := ExtractCitations(memo)
	predicted := Dedupe(cited)

	referenceIDs := make([]string, 0, len(chunks))
	for _, c := range chunks {
		referenceIDs = append(referenceIDs, models.ResolveECLI(c.ECLI, c.Metadata))
	}
	reference := Dedupe(referenceIDs)

	precision, recall := PrecisionRecall(predicted, reference)
	fabricated := CountFabricated(cited, reference)

	sentences, err := e.splitter.Split(memo)
	if err != nil {
		return nil, &EvaluationError{Stage: StageSplit, Err: err}
	}

	ungrounded, err := e.ungroundedSentences(ctx, sentences, chunks, threshold, metric)
	if err != nil {
		return nil, err
	}

	ratio := 0.0
	if len(sentences) > 0 {
		ratio = float64(len(ungrounded)) / float64(len(sentences))
	}

	return &models.EvaluationVerdict{
		CitationPrecision:    precision,
		CitationRecall:       recall,
		PredictedECLIs:       predicted,
		ReferenceECLIs:       reference,
		FabricatedECLIs:      fabricated,
		UngroundedStatements: len(ungrounded),
		UngroundedSentences:  ungrounded,
		Hallucinated:         fabricated > 0 || len(ungrounded) > 0,
		Threshold:            threshold,
		SimilarityMetric:     string(metric),
		NumSentences:         len(sentences),
		NumChunks:            len(chunks),
		UngroundedRatio:      ratio,
	}, nil
}

// ungroundedSentences embeds sentences and chunk texts in one batch each and
// returns the sentences whose best match falls below threshold. With no chunks
// every sentence is ungrounded.
func (e *Evaluator) ungroundedSentences(ctx context.Context, sentences []string, chunks []models.Chunk, threshold float64, metric Metric) ([]string, error) {
	ungrounded := []string{}
	if len(sentences) == 0 {
		return ungrounded, nil
	}
	if len(chunks) == 0 {
		return append(ungrounded, sentences...), nil
	}

	sentenceVecs, err := e.embed(ctx, sentences)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	chunkVecs, err := e.embed(ctx, texts)
	if err != nil {
		return nil, err
	}

	for i, sv := range sentenceVecs {
		best := math.Inf(-1)
		for _, cv := range chunkVecs {
			sim, err := Similarity(sv, cv, metric)
			if err != nil {
				return nil, &EvaluationError{Stage: StageScore, Err: err}
			}
			if sim > best {
				best = sim
			}
		}
		if best < threshold {
			ungrounded = append(ungrounded, sentences[i])
		}
	}
	return ungrounded, nil
}

func (e *Evaluator) embed(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := e.embedder.EmbedMany(ctx, texts)
	if err != nil {
		return nil, &EvaluationError{Stage: StageEmbed, Err: err}
	}
	if len(vecs) != len(texts) {
		return nil, &EvaluationError{
			Stage: StageEmbed,
			Err:   fmt.Errorf("%w: got %d for %d texts", ErrEmbeddingCount, len(vecs), len(texts)),
		}
	}
	return vecs, nil
}
