package grounding

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Metric names a similarity function between two embedding vectors
type Metric string

const (
	MetricCosine    Metric = "cosine"
	MetricDot       Metric = "dot"
	MetricEuclidean Metric = "euclidean"
)

// DefaultMetric is used when a caller does not choose one
const DefaultMetric = MetricCosine

// Metrics lists every supported metric
var Metrics = []Metric{MetricCosine, MetricDot, MetricEuclidean}

// ErrDimensionMismatch is returned when two vectors have different lengths
var ErrDimensionMismatch = errors.New("vectors have different dimensions")

// UnsupportedMetricError reports an unknown metric name
type UnsupportedMetricError struct {
	Metric string
}

func (e *UnsupportedMetricError) Error() string {
	return fmt.Sprintf("unsupported similarity metric %q (expected one of cosine, dot, euclidean)", e.Metric)
}

// ParseMetric converts a metric name to a Metric
func ParseMetric(name string) (Metric, error) {
	m := Metric(strings.ToLower(strings.TrimSpace(name)))
	if !m.Valid() {
		return "", &UnsupportedMetricError{Metric: name}
	}
	return m, nil
}

// Valid reports whether m is a supported metric
func (m Metric) Valid() bool {
	switch m {
	case MetricCosine, MetricDot, MetricEuclidean:
		return true
	}
	return false
}

func (m Metric) String() string { return string(m) }

// Similarity scores a and b under metric m. Higher is more similar for every metric.
func Similarity(a, b []float32, m Metric) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	switch m {
	case MetricCosine:
		return cosineSimilarity(a, b), nil
	case MetricDot:
		return dotProduct(a, b), nil
	case MetricEuclidean:
		return math.Exp(-euclideanDistance(a, b)), nil
	default:
		return 0, &UnsupportedMetricError{Metric: string(m)}
	}
}

// cosineSimilarity is 1 - cosine distance. A zero vector has no direction and scores 0.
func cosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func dotProduct(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func euclideanDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
