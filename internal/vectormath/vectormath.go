// Package vectormath provides the similarity primitives shared by the
// index implementations: dot products, norms, cosine similarity, and
// L2 normalization over float64 vectors.
package vectormath

import (
	"math"

	vecerr "github.com/ishitachakravarthy/vector-db/internal/errors"
)

// Dot returns the dot product of a and b.
// Callers are responsible for dimension agreement.
func Dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Norm returns the Euclidean (L2) norm of v.
func Norm(v []float64) float64 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += val * val
	}
	return math.Sqrt(sumSquares)
}

// Cosine returns the cosine similarity between a and b in [-1, 1].
// A zero vector on either side yields 0, matching the convention that a
// vector with no direction is equally dissimilar to everything.
func Cosine(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, vecerr.DimensionMismatch(len(a), len(b))
	}

	normA := Norm(a)
	normB := Norm(b)
	if normA == 0 || normB == 0 {
		return 0, nil
	}

	return Dot(a, b) / (normA * normB), nil
}

// Normalize returns a unit-length copy of v.
// Fails with a ZeroVector error when ||v|| = 0.
func Normalize(v []float64) ([]float64, error) {
	norm := Norm(v)
	if norm == 0 {
		return nil, vecerr.ZeroVector()
	}

	out := make([]float64, len(v))
	inv := 1.0 / norm
	for i, val := range v {
		out[i] = val * inv
	}
	return out, nil
}

// CheckDim validates that v has the expected dimension.
func CheckDim(v []float64, want int) error {
	if len(v) != want {
		return vecerr.DimensionMismatch(want, len(v))
	}
	return nil
}
