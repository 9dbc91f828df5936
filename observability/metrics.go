package observability

import (
	"strconv"

	"jurismemo-backend/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline's Prometheus collectors
type Metrics struct {
	// Evaluations counts evaluations. Labels: metric, hallucinated
	Evaluations *prometheus.CounterVec
	// FabricatedCitations counts fabricated citation occurrences. Labels: metric
	FabricatedCitations *prometheus.CounterVec
	// UngroundedRatio observes the share of ungrounded sentences per evaluation. Labels: metric
	UngroundedRatio *prometheus.HistogramVec
	// CitationPrecision observes citation precision per evaluation. Labels: metric
	CitationPrecision *prometheus.HistogramVec
	// RetrievedChunks observes how many chunks a retrieval returned
	RetrievedChunks prometheus.Histogram
	// Generations counts language model calls. Labels: stage (draft, review), status
	Generations *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	ratioBuckets := []float64{0, 0.05, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.8, 1}

	return &Metrics{
		Evaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jurismemo",
			Name:      "evaluation_total",
			Help:      "Total memo evaluations",
		}, []string{"metric", "hallucinated"}),
		FabricatedCitations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jurismemo",
			Name:      "fabricated_citations_total",
			Help:      "Total citation occurrences that matched no retrieved decision",
		}, []string{"metric"}),
		UngroundedRatio: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "jurismemo",
			Name:      "ungrounded_ratio",
			Help:      "Share of memo sentences below the grounding threshold",
			Buckets:   ratioBuckets,
		}, []string{"metric"}),
		CitationPrecision: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "jurismemo",
			Name:      "citation_precision",
			Help:      "Citation precision per evaluation",
			Buckets:   ratioBuckets,
		}, []string{"metric"}),
		RetrievedChunks: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "jurismemo",
			Name:      "retrieved_chunks",
			Help:      "Number of chunks returned per retrieval",
			Buckets:   prometheus.LinearBuckets(0, 1, 11),
		}),
		Generations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jurismemo",
			Name:      "generation_total",
			Help:      "Total language model generations",
		}, []string{"stage", "status"}),
	}
}

// ObserveEvaluation records a verdict
func (m *Metrics) ObserveEvaluation(v *models.EvaluationVerdict) {
	if m == nil || v == nil {
		return
	}
	m.Evaluations.WithLabelValues(v.SimilarityMetric, strconv.FormatBool(v.Hallucinated)).Inc()
	m.FabricatedCitations.WithLabelValues(v.SimilarityMetric).Add(float64(v.FabricatedECLIs))
	m.UngroundedRatio.WithLabelValues(v.SimilarityMetric).Observe(v.UngroundedRatio)
	m.CitationPrecision.WithLabelValues(v.SimilarityMetric).Observe(v.CitationPrecision)
}

// ObserveRetrieval records the size of a retrieval result
func (m *Metrics) ObserveRetrieval(n int) {
	if m == nil {
		return
	}
	m.RetrievedChunks.Observe(float64(n))
}

// ObserveGeneration records the outcome of a language model call
func (m *Metrics) ObserveGeneration(stage string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.Generations.WithLabelValues(stage, status).Inc()
}
