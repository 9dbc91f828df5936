package models

import (
	"time"

	"github.com/google/uuid"
)

// EvaluationVerdict is the outcome of grounding a memo against its chunks
type EvaluationVerdict struct {
	CitationPrecision    float64  `json:"citation_precision"`
	CitationRecall       float64  `json:"citation_recall"`
	PredictedECLIs       []string `json:"predicted_eclis"`
	ReferenceECLIs       []string `json:"reference_eclis"`
	FabricatedECLIs      int      `json:"fabricated_eclis"`
	UngroundedStatements int      `json:"ungrounded_statements"`
	UngroundedSentences  []string `json:"ungrounded_sentences"`
	Hallucinated         bool     `json:"hallucinated"`
	Threshold            float64  `json:"threshold"`
	SimilarityMetric     string   `json:"similarity_metric"`
	NumSentences         int      `json:"num_sentences"`
	NumChunks            int      `json:"num_chunks"`
	UngroundedRatio      float64  `json:"ungrounded_ratio"`
}

// EvaluationLog records one evaluation run
type EvaluationLog struct {
	ID               uuid.UUID         `json:"id"`
	Memo             string            `json:"memo"`
	Chunks           []Chunk           `json:"chunks"`
	Evaluation       EvaluationVerdict `json:"evaluation"`
	SimilarityMetric string            `json:"similarity_metric"`
	Threshold        float64           `json:"threshold"`
	CreatedAt        time.Time         `json:"created_at"`
}
