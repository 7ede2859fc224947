package domain

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrEmptyEmbedding   = errors.New("embedding must not be empty")
	ErrInvalidEmbedding = errors.New("embedding contains non-finite values")
)

// Embedding is an immutable, fixed-length face descriptor. The zero value
// represents an absent embedding.
type Embedding struct {
	values []float64
}

// NewEmbedding validates and copies values. Empty vectors and NaN/Inf
// components are rejected.
func NewEmbedding(values []float64) (Embedding, error) {
	if len(values) == 0 {
		return Embedding{}, ErrEmptyEmbedding
	}

	copied := make([]float64, len(values))
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Embedding{}, fmt.Errorf("%w: index %d", ErrInvalidEmbedding, i)
		}
		copied[i] = v
	}

	return Embedding{values: copied}, nil
}

// MustEmbedding is NewEmbedding for literals in tests and fixtures.
func MustEmbedding(values ...float64) Embedding {
	e, err := NewEmbedding(values)
	if err != nil {
		panic(err)
	}
	return e
}

// EmbeddingFromFloat32 converts a pgvector-style float32 slice.
func EmbeddingFromFloat32(values []float32) (Embedding, error) {
	floats := make([]float64, len(values))
	for i, v := range values {
		floats[i] = float64(v)
	}
	return NewEmbedding(floats)
}

func (e Embedding) IsZero() bool {
	return len(e.values) == 0
}

func (e Embedding) Dim() int {
	return len(e.values)
}

// Values returns a copy of the components.
func (e Embedding) Values() []float64 {
	out := make([]float64, len(e.values))
	copy(out, e.values)
	return out
}

func (e Embedding) Float32() []float32 {
	out := make([]float32, len(e.values))
	for i, v := range e.values {
		out[i] = float32(v)
	}
	return out
}

func (e Embedding) Norm() float64 {
	scale := e.maxAbs()
	if scale == 0 {
		return 0
	}

	var sum float64
	for _, v := range e.values {
		x := v / scale
		sum += x * x
	}
	return scale * math.Sqrt(sum)
}

// maxAbs is the largest component magnitude. Dividing by it keeps squared
// sums within [1, Dim] whatever the magnitude of the vector.
func (e Embedding) maxAbs() float64 {
	var m float64
	for _, v := range e.values {
		if a := math.Abs(v); a > m {
			m = a
		}
	}
	return m
}

// CosineDistance returns 1 - cos(a, b), in [0, 2].
// Mismatched dimensions fail with ErrDimensionMismatch; a zero-norm operand
// is treated as orthogonal (distance 1).
func CosineDistance(a, b Embedding) (float64, error) {
	if a.Dim() != b.Dim() {
		return 0, ErrDimensionMismatch.WithError(
			fmt.Errorf("expected %d dimensions, got %d", a.Dim(), b.Dim()))
	}
	if a.IsZero() {
		return 0, ErrEmptyEmbedding
	}

	scaleA, scaleB := a.maxAbs(), b.maxAbs()
	if scaleA == 0 || scaleB == 0 {
		return 1, nil
	}

	var dotProduct, normA, normB float64
	for i := range a.values {
		x := a.values[i] / scaleA
		y := b.values[i] / scaleB
		dotProduct += x * y
		normA += x * x
		normB += y * y
	}

	// sqrt(normA*normB) keeps distance(a, a) exactly zero.
	similarity := dotProduct / math.Sqrt(normA*normB)
	if math.IsNaN(similarity) || math.IsInf(similarity, 0) {
		return 0, fmt.Errorf("%w: cosine similarity is %v", ErrInvalidEmbedding, similarity)
	}
	if similarity > 1 {
		similarity = 1
	}
	if similarity < -1 {
		similarity = -1
	}

	return 1 - similarity, nil
}
