package ranking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
)

func TestScoreSummariesOrdersAndLimits(t *testing.T) {
	summaries := []domain.DocumentSummary{
		{DocumentID: "d1", Summary: "one"},
		{DocumentID: "d2", Summary: "two"},
		{DocumentID: "d3", Summary: "three"},
		{DocumentID: "d4", Summary: "four"},
		{DocumentID: "d5", Summary: "broken"},
	}
	vectors := [][]float32{
		unitVec(0.2),
		unitVec(0.8),
		unitVec(0.2),
		unitVec(0.5),
		{0, 0},
	}

	got := ScoreSummaries(queryVec, summaries, vectors, 3)

	require.Len(t, got, 3)
	assert.Equal(t, "d2", got[0].DocumentID)
	assert.Equal(t, "d4", got[1].DocumentID)
	assert.Equal(t, "d1", got[2].DocumentID)
	for _, entry := range got {
		assert.Equal(t, domain.FallbackTypeSummary, entry.FallbackType)
	}
	assert.InDelta(t, 0.8, got[0].Score, 1e-5)
}

func TestScoreSummariesDefaultsLimit(t *testing.T) {
	summaries := make([]domain.DocumentSummary, 5)
	vectors := make([][]float32, 5)
	for i := range summaries {
		summaries[i] = domain.DocumentSummary{DocumentID: string(rune('a' + i))}
		vectors[i] = unitVec(0.5)
	}

	got := ScoreSummaries(queryVec, summaries, vectors, 0)

	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].DocumentID)
}

func TestSummaryDocumentIDs(t *testing.T) {
	chunks := []domain.Chunk{{DocumentID: "b"}, {DocumentID: "a"}, {DocumentID: "b"}, {DocumentID: " "}}
	assert.Equal(t, []string{"b", "a"}, SummaryDocumentIDs(chunks, domain.Scope{DocumentIDs: []string{"z"}}))
	assert.Equal(t, []string{"z"}, SummaryDocumentIDs(nil, domain.Scope{DocumentIDs: []string{"z", "z"}}))
}

func TestRankLowTopScoreNeedsSummaryFallback(t *testing.T) {
	result := newTestRanker().Rank(rankInput("refund policy", scoredChunk("c", 0.05)))

	cfg := domain.DefaultScoringConfig()
	assert.True(t, NeedsSummaryFallback(result, cfg))

	strong := newTestRanker().Rank(rankInput("refund policy", scoredChunk("c", 0.9)))
	assert.False(t, NeedsSummaryFallback(strong, cfg))
}
