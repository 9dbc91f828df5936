package retrieval

import (
	"context"
	"fmt"
	"sort"

	"jurismemo-backend/models"
)

const (
	DefaultTopK           = 6
	DefaultMaxPerSource   = 2
	DefaultMatchThreshold = 0.7
	DefaultMatchCount     = 50
)

// RetrievalError wraps a vector store failure
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("chunk retrieval failed: %v", e.Err)
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// CandidateSource is a vector store returning chunks ranked by its own similarity
type CandidateSource interface {
	MatchChunks(ctx context.Context, query []float32, minSimilarity float64, maxCandidates int) ([]models.Chunk, error)
}

// Retriever fetches a candidate superset and applies per-source diversity capping
type Retriever struct {
	source         CandidateSource
	matchThreshold float64
	matchCount     int
}

// Option is a functional option for Retriever
type Option func(*Retriever)

// WithMatchThreshold sets the minimum similarity the store filters on
func WithMatchThreshold(threshold float64) Option {
	return func(r *Retriever) {
		r.matchThreshold = threshold
	}
}

// WithMatchCount sets how many candidates are requested from the store
func WithMatchCount(count int) Option {
	return func(r *Retriever) {
		if count > 0 {
			r.matchCount = count
		}
	}
}

// NewRetriever creates a retriever over source
func NewRetriever(source CandidateSource, opts ...Option) *Retriever {
	r := &Retriever{
		source:         source,
		matchThreshold: DefaultMatchThreshold,
		matchCount:     DefaultMatchCount,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns at most topK chunks ordered by descending similarity, with
// no source decision contributing more than maxPerSource of them.
// maxPerSource <= 0 disables the cap.
func (r *Retriever) Retrieve(ctx context.Context, query []float32, topK, maxPerSource int) ([]models.Chunk, error) {
	if topK <= 0 {
		return []models.Chunk{}, nil
	}

	count := r.matchCount
	if count <= topK {
		count = topK * 5
	}

	candidates, err := r.source.MatchChunks(ctx, query, r.matchThreshold, count)
	if err != nil {
		return nil, &RetrievalError{Err: err}
	}
	if len(candidates) == 0 {
		return []models.Chunk{}, nil
	}

	for i := range candidates {
		candidates[i].ECLI = models.ResolveECLI(candidates[i].ECLI, candidates[i].Metadata)
	}

	return Rank(CapPerSource(candidates, maxPerSource), topK), nil
}

// CapPerSource groups chunks by ECLI in first-seen order and keeps at most
// limit chunks of each group, preserving the input order within a group.
func CapPerSource(chunks []models.Chunk, limit int) []models.Chunk {
	if limit <= 0 {
		return append([]models.Chunk(nil), chunks...)
	}

	var order []string
	groups := make(map[string][]models.Chunk)
	for _, c := range chunks {
		if _, ok := groups[c.ECLI]; !ok {
			order = append(order, c.ECLI)
		}
		if len(groups[c.ECLI]) < limit {
			groups[c.ECLI] = append(groups[c.ECLI], c)
		}
	}

	kept := make([]models.Chunk, 0, len(chunks))
	for _, ecli := range order {
		kept = append(kept, groups[ecli]...)
	}
	return kept
}

// Rank sorts chunks by descending similarity, stable on ties, and truncates to topK
func Rank(chunks []models.Chunk, topK int) []models.Chunk {
	ranked := append([]models.Chunk(nil), chunks...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Similarity > ranked[j].Similarity
	})
	if topK >= 0 && len(ranked) > topK {
		ranked = ranked[:topK]
	}
	if ranked == nil {
		ranked = []models.Chunk{}
	}
	return ranked
}
