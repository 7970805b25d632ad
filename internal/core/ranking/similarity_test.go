package ranking

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-3, 0}), 1e-9)
	assert.Equal(t, 0.0, cosineSimilarity([]float32{1}, []float32{1, 0}))
	assert.Equal(t, 0.0, cosineSimilarity([]float32{0, 0}, []float32{1, 0}))
}

func TestVectorProblem(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))

	assert.Equal(t, "missing embedding", vectorProblem(nil, 2))
	assert.Equal(t, "embedding dimension mismatch", vectorProblem([]float32{1}, 2))
	assert.Equal(t, "embedding contains NaN or Inf", vectorProblem([]float32{nan, 1}, 2))
	assert.Equal(t, "embedding contains NaN or Inf", vectorProblem([]float32{inf, 1}, 0))
	assert.Equal(t, "zero-norm embedding", vectorProblem([]float32{0, 0}, 2))
	assert.Empty(t, vectorProblem([]float32{0.3, 0.1, 0.2}, 0))
}

func TestContainsPhrase(t *testing.T) {
	text := "the sla covers retrieval augmented generation"
	tokens := toTokenSet(text)

	assert.True(t, containsPhrase(text, tokens, "SLA"))
	assert.False(t, containsPhrase(text, tokens, "la"))
	assert.True(t, containsPhrase(text, tokens, "Retrieval Augmented"))
	assert.False(t, containsPhrase(text, tokens, "  "))
}
