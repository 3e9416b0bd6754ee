// Package vector provides numerically guarded vector math for semantic matching.
package vector

import "math"

// CosineSimilarity calculates cosine similarity between two vectors.
// Mismatched lengths, empty vectors, zero-norm vectors and non-finite
// components all yield 0. The result is clipped to [-1, 1].
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dotProduct += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(sim) || math.IsInf(sim, 0) {
		return 0
	}
	return Clip(sim)
}

// Clip bounds a similarity score to [-1, 1].
func Clip(v float64) float64 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	}
	return v
}

// MaxSimilarity returns the highest cosine similarity between query and any
// candidate, and the index of that candidate. It returns (0, -1) for no candidates.
func MaxSimilarity(query []float32, candidates [][]float32) (float64, int) {
	best, bestIdx := math.Inf(-1), -1
	for i, c := range candidates {
		if sim := CosineSimilarity(query, c); sim > best {
			best, bestIdx = sim, i
		}
	}
	if bestIdx < 0 {
		return 0, -1
	}
	return best, bestIdx
}
