package ranking

import "math"

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x := float64(a[i])
		y := float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// vectorProblem returns why vec cannot be scored, or "" when it is usable.
// A dim of zero accepts any non-empty length.
func vectorProblem(vec []float32, dim int) string {
	if len(vec) == 0 {
		return "missing embedding"
	}
	if dim > 0 && len(vec) != dim {
		return "embedding dimension mismatch"
	}
	var norm float64
	for _, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "embedding contains NaN or Inf"
		}
		norm += f * f
	}
	if norm == 0 {
		return "zero-norm embedding"
	}
	return ""
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ValidEmbedding reports whether vec can be scored. A dim of zero skips the length check.
func ValidEmbedding(vec []float32, dim int) bool {
	return vectorProblem(vec, dim) == ""
}
