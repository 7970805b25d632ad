package ranking

import (
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
)

var queryVec = []float32{1, 0}

// unitVec returns a unit vector whose cosine with queryVec is c.
func unitVec(c float64) []float32 {
	return []float32{float32(c), float32(math.Sqrt(1 - c*c))}
}

// fullText is long enough for a length factor of 1.
func fullText(prefix string) string {
	return prefix + " " + strings.Repeat("lorem ", 100)
}

func scoredChunk(id string, cosine float64) domain.Chunk {
	return domain.Chunk{
		ID:              id,
		DocumentID:      "doc-" + id,
		Order:           1,
		Text:            fullText(id),
		Embedding:       unitVec(cosine),
		EmbeddingStatus: domain.EmbeddingEmbedded,
		Fingerprint:     "fp-" + id,
	}
}

func newTestRanker() *Ranker {
	return NewRanker(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func rankInput(query string, chunks ...domain.Chunk) Input {
	return Input{
		Query:       query,
		QueryVector: queryVec,
		Chunks:      chunks,
		Config:      domain.DefaultScoringConfig(),
	}
}

func resultIDs(result *domain.RankResult) []string {
	ids := make([]string, 0, len(result.Results))
	for _, entry := range result.Results {
		ids = append(ids, entry.ChunkID)
	}
	return ids
}

func TestRankStrongMatchIsNotFallback(t *testing.T) {
	result := newTestRanker().Rank(rankInput("refund policy", scoredChunk("c1", 0.72)))

	require.Len(t, result.Results, 1)
	assert.False(t, result.FallbackUsed)
	assert.Empty(t, result.Reason)
	assert.Equal(t, "c1", result.Results[0].ChunkID)
	assert.InDelta(t, 0.72, result.Results[0].FinalScore, 1e-5)
	assert.Equal(t, "c1", result.TopChunkID)
	assert.InDelta(t, 0.72, result.TopScore, 1e-5)
}

func TestRankLowScoresFallBack(t *testing.T) {
	chunks := make([]domain.Chunk, 0, 10)
	for i := 0; i < 10; i++ {
		chunks = append(chunks, scoredChunk(string(rune('a'+i)), 0.1+0.03*float64(i)))
	}

	result := newTestRanker().Rank(rankInput("refund policy", chunks...))

	assert.True(t, result.FallbackUsed)
	assert.Equal(t, domain.ReasonLowScore, result.Reason)
	assert.Equal(t, []string{"j", "i", "h"}, resultIDs(result))
	for i := 1; i < len(result.Results); i++ {
		assert.GreaterOrEqual(t, result.Results[i-1].FinalScore, result.Results[i].FinalScore)
	}
	assert.Len(t, result.Diagnostics.FilteredOutIDs, 7)
}

func TestRankFallbackPrefersFallbackMinPool(t *testing.T) {
	result := newTestRanker().Rank(rankInput("refund policy",
		scoredChunk("low", 0.3),
		scoredChunk("mid", 0.55),
	))

	assert.Equal(t, []string{"mid"}, resultIDs(result))
	assert.Equal(t, domain.ReasonLowScore, result.Reason)

	diag := result.Diagnostics.Candidates[0]
	assert.Equal(t, domain.CandidateFiltered, diag.Status)
	assert.Equal(t, domain.ExclusionBelowThreshold, diag.ExclusionReason)
}

func TestRankEmptyCandidateSet(t *testing.T) {
	result := newTestRanker().Rank(rankInput("refund policy"))

	assert.NotNil(t, result.Results)
	assert.Empty(t, result.Results)
	assert.Empty(t, result.Reason)
	assert.Empty(t, result.TopChunkID)
	assert.Equal(t, 0, result.Diagnostics.RetrievedChunkCount)
	assert.Contains(t, result.Diagnostics.Warnings, WarningNoMatches)
}

func TestRankBlankQuery(t *testing.T) {
	result := newTestRanker().Rank(rankInput("   ", scoredChunk("c1", 0.9)))

	assert.Empty(t, result.Results)
	assert.Contains(t, result.Diagnostics.Warnings, WarningEmptyQuery)
}

func TestRankForceChunksTakesTopFallbackLimit(t *testing.T) {
	in := rankInput("anything",
		scoredChunk("a", 0.2),
		scoredChunk("b", 0.4),
		scoredChunk("c", 0.1),
		scoredChunk("d", 0.3),
	)
	in.Config.ForceChunks = true
	in.Config.FallbackLimit = 2

	result := newTestRanker().Rank(in)

	assert.Equal(t, []string{"b", "d"}, resultIDs(result))
	assert.Equal(t, domain.ReasonForcedOverride, result.Reason)
	assert.False(t, result.FallbackUsed)
	for _, entry := range result.Results {
		assert.True(t, entry.Forced)
		assert.Equal(t, domain.ReasonForcedOverride, entry.OverrideReason)
	}
	assert.Equal(t, domain.ExclusionTopK, result.Diagnostics.Candidates[0].ExclusionReason)
}

func TestRankForcingPhrase(t *testing.T) {
	result := newTestRanker().Rank(rankInput("give me the Exact Quote about refunds",
		scoredChunk("a", 0.2),
		scoredChunk("b", 0.25),
	))

	assert.Equal(t, domain.ReasonForced, result.Reason)
	assert.Equal(t, []string{"b", "a"}, resultIDs(result))
}

func TestRankTiesKeepScanOrder(t *testing.T) {
	result := newTestRanker().Rank(rankInput("refund policy",
		scoredChunk("first", 0.8),
		scoredChunk("second", 0.8),
		scoredChunk("third", 0.8),
	))

	assert.Equal(t, []string{"first", "second", "third"}, resultIDs(result))
}

func TestRankStrongMatchesAreCappedAtThree(t *testing.T) {
	result := newTestRanker().Rank(rankInput("refund policy",
		scoredChunk("a", 0.7),
		scoredChunk("b", 0.9),
		scoredChunk("c", 0.8),
		scoredChunk("d", 0.75),
	))

	assert.Equal(t, []string{"b", "c", "d"}, resultIDs(result))
	assert.Equal(t, domain.ExclusionTopK, result.Diagnostics.Candidates[0].ExclusionReason)
}

func TestRankIsDeterministic(t *testing.T) {
	in := rankInput("refund policy rp",
		scoredChunk("a", 0.4),
		scoredChunk("b", 0.4),
		scoredChunk("c", 0.7),
	)
	in.Anchors = []domain.Anchor{{ID: "1", Slug: "rp", Label: "Refund Policy"}}
	in.AnchorWeights = map[string]float64{"rp": 0.2, "other": 0.5}
	in.Chunks[0].AnchorID = "1"

	ranker := newTestRanker()
	first, err := json.Marshal(ranker.Rank(in))
	require.NoError(t, err)
	second, err := json.Marshal(ranker.Rank(in))
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

func TestRankInjectsAnchorMatches(t *testing.T) {
	anchored := scoredChunk("anchored", 0.2)
	anchored.AnchorSlug = "refund"
	in := rankInput("what is our refund policy",
		scoredChunk("a", 0.9),
		scoredChunk("b", 0.9),
		scoredChunk("c", 0.9),
		anchored,
	)
	in.Anchors = []domain.Anchor{{Slug: "refund", Label: "Refunds", IsFocusTerm: true}}

	result := newTestRanker().Rank(in)

	require.Len(t, result.Results, 4)
	last := result.Results[3]
	assert.Equal(t, "anchored", last.ChunkID)
	assert.True(t, last.Forced)
	assert.Equal(t, domain.OverrideAnchorMatch, last.OverrideReason)
	assert.Equal(t, 1.0, last.AnchorConfidence)
	// 0.2 raw + 0.05 slug in query + 0.1 anchor boost
	assert.InDelta(t, 0.35, last.FinalScore, 1e-5)
	assert.True(t, result.FallbackUsed)
	assert.Equal(t, []string{"refund"}, result.FilteredAnchorTerms)
	assert.Equal(t, []string{"anchored"}, result.Diagnostics.AnchorMatchedIDs)
	assert.Equal(t, domain.OverrideAnchorMatch, result.Diagnostics.Overrides["anchored"])
	assert.False(t, result.FocusFallback)
}

func TestRankInjectsBestAnchorMatchBelowForceFloor(t *testing.T) {
	anchored := scoredChunk("weak", 0.01)
	anchored.AnchorSlug = "rp-01"
	anchored.Fingerprint = ""
	in := rankInput("summarise the refund policy",
		scoredChunk("a", 0.9),
		anchored,
	)
	in.Anchors = []domain.Anchor{{Slug: "rp-01", Label: "refund policy"}}

	result := newTestRanker().Rank(in)

	require.Equal(t, []string{"a", "weak"}, resultIDs(result))
	assert.Equal(t, domain.OverrideAnchorMatch, result.Results[1].OverrideReason)
	// 0.01 raw - 0.05 fingerprint penalty + 0.1 anchor boost
	assert.InDelta(t, 0.06, result.Results[1].FinalScore, 1e-5)
	assert.True(t, result.FocusFallback)
	assert.Contains(t, result.Diagnostics.Warnings, WarningFocusFallback)
}

func TestRankInjectsGlossaryTermMatches(t *testing.T) {
	glossary := scoredChunk("gloss", 0.3)
	glossary.Text = fullText("SLA means service level agreement")
	glossary.Tags = []string{"Glossary"}
	glossary.GlossaryScore = 0.5
	in := rankInput("explain the SLA",
		scoredChunk("a", 0.9),
		scoredChunk("b", 0.9),
		scoredChunk("c", 0.9),
		glossary,
	)
	in.GlossaryTerms = []string{"sla"}

	result := newTestRanker().Rank(in)

	require.Len(t, result.Results, 4)
	forced := result.Results[3]
	assert.Equal(t, "gloss", forced.ChunkID)
	assert.Equal(t, domain.OverrideAnchorMatch, forced.OverrideReason)
	assert.Equal(t, domain.OverrideAnchorMatch, result.Diagnostics.Overrides["gloss"])
	// 0.3 raw + 0.15 term bonus + 0.5*0.2 glossary score
	assert.InDelta(t, 0.55, forced.FinalScore, 1e-5)
	assert.True(t, result.GlossaryForced)
	assert.True(t, result.FallbackUsed)
}

func TestRankGlossaryFlaggedUsesMinScore(t *testing.T) {
	glossary := scoredChunk("gloss", 0.22)
	glossary.IsGlossary = true
	glossary.GlossaryScore = 0.5
	glossary.GlossaryBoost = 0.1

	result := newTestRanker().Rank(rankInput("refund policy", glossary))

	require.Len(t, result.Results, 1)
	entry := result.Results[0]
	assert.True(t, entry.GlossaryHit)
	// 0.22 raw + 0.2 flag + 0.1 glossary score + 0.1 precomputed boost, below 0.65 but above 0.6
	assert.InDelta(t, 0.62, entry.FinalScore, 1e-5)
	assert.False(t, result.FallbackUsed)
	assert.True(t, result.GlossaryPresent)
	assert.GreaterOrEqual(t, entry.FinalScore, entry.RawScore)
}

func TestRankAcronymPairAndDefinitionPhrase(t *testing.T) {
	chunk := scoredChunk("def", 0.5)
	chunk.Order = 0
	chunk.Text = fullText("RAG refers to retrieval augmented generation")
	in := rankInput("what is rag", chunk)
	in.Acronyms = []domain.AcronymPair{{Short: "RAG", Long: "retrieval augmented generation"}}

	result := newTestRanker().Rank(in)

	require.Len(t, result.Results, 1)
	assert.True(t, result.Results[0].GlossaryHit)
	assert.InDelta(t, 0.15, result.Results[0].Boosts.GlossaryDetection, 1e-9)
	assert.InDelta(t, 0.65, result.Results[0].FinalScore, 1e-5)
}

func TestRankDropsWeakGlossaryUnlessForceFallback(t *testing.T) {
	weak := scoredChunk("weak", 0.8)
	weak.IsGlossary = true
	weak.GlossaryScore = 0.05

	result := newTestRanker().Rank(rankInput("refund policy", weak))
	assert.Empty(t, result.Results)
	assert.Equal(t, domain.CandidateDropped, result.Diagnostics.Candidates[0].Status)
	assert.Equal(t, dropWeakGlossary, result.Diagnostics.Candidates[0].ExclusionReason)
	assert.Equal(t, []string{"weak"}, result.Diagnostics.FilteredOutIDs)

	in := rankInput("refund policy", weak)
	in.Config.ForceFallback = true
	result = newTestRanker().Rank(in)
	assert.Equal(t, []string{"weak"}, resultIDs(result))
}

func TestRankDropsBelowMinCandidateScoreUnlessAnchored(t *testing.T) {
	weak := scoredChunk("weak", 0.03)
	anchored := scoredChunk("anchored", 0.03)
	anchored.AnchorSlug = "refund"
	in := rankInput("refund", weak, anchored)
	in.Anchors = []domain.Anchor{{Slug: "refund"}}

	result := newTestRanker().Rank(in)

	assert.Equal(t, domain.CandidateDropped, result.Diagnostics.Candidates[0].Status)
	assert.Equal(t, dropBelowMinCandidate, result.Diagnostics.Candidates[0].ExclusionReason)
	assert.Equal(t, []string{"anchored"}, resultIDs(result))
	assert.Equal(t, 1, result.Diagnostics.ScoredChunkCount)
}

func TestRankSkipsUnusableEmbeddings(t *testing.T) {
	pending := scoredChunk("pending", 0.9)
	pending.EmbeddingStatus = domain.EmbeddingPending
	wrongDim := scoredChunk("dim", 0.9)
	wrongDim.Embedding = []float32{1, 0, 0}
	nan := scoredChunk("nan", 0.9)
	nan.Embedding = []float32{float32(math.NaN()), 1}
	failed := scoredChunk("failed", 0.9)
	failed.EmbeddingStatus = domain.EmbeddingFailed
	failed.Embedding = nil

	result := newTestRanker().Rank(rankInput("refund policy", pending, wrongDim, nan, failed, scoredChunk("ok", 0.7)))

	assert.Equal(t, []string{"ok"}, resultIDs(result))
	assert.Equal(t, []string{"pending", "dim", "nan"}, result.Diagnostics.RepairChunkIDs)
	assert.Equal(t, 5, result.Diagnostics.RetrievedChunkCount)
	assert.Equal(t, 1, result.Diagnostics.ScoredChunkCount)
	for _, diag := range result.Diagnostics.Candidates[:4] {
		assert.Equal(t, domain.CandidateSkipped, diag.Status)
	}
	assert.Contains(t, result.Diagnostics.Warnings, "4 chunks skipped for unusable embeddings")
}

func TestRankAppliesAdditiveAndMultiplicativeBoosts(t *testing.T) {
	chunk := scoredChunk("c", 0.5)
	chunk.Text = strings.Repeat("a", 250) + " refund"
	chunk.AnchorID = "a1"
	chunk.Fingerprint = "  "
	in := rankInput("tell me about billing", chunk)
	in.Anchors = []domain.Anchor{{ID: "a1", Slug: "Billing-Rules"}}
	in.AnchorWeights = map[string]float64{"billing-rules": 0.5}
	in.ReflectionTerms = []string{"Refund"}
	in.Config.Keywords = []string{"REFUND"}

	result := newTestRanker().Rank(in)

	require.Len(t, result.Results, 1)
	boosts := result.Results[0].Boosts
	assert.InDelta(t, 1.5, boosts.AnchorWeightFactor, 1e-9)
	lengthFactor := 0.6 + 0.4*float64(len(chunk.Text))/500
	assert.InDelta(t, lengthFactor, boosts.LengthFactor, 1e-9)
	assert.Equal(t, 0.05, boosts.Keyword)
	assert.Equal(t, 0.15, boosts.Reflection)
	assert.Equal(t, -0.05, boosts.FingerprintPenalty)
	assert.Equal(t, 0.5, result.Results[0].AnchorConfidence)
	want := 0.5*1.5*lengthFactor + 0.05 + 0.15 - 0.05
	assert.InDelta(t, want, result.Results[0].FinalScore, 1e-5)
	assert.Equal(t, "billing-rules", result.Results[0].AnchorSlug)
}

func TestRankPreferenceVector(t *testing.T) {
	in := rankInput("refund policy", scoredChunk("c", 0.6))
	in.PreferenceVector = unitVec(0.6)

	result := newTestRanker().Rank(in)

	require.Len(t, result.Results, 1)
	assert.InDelta(t, 0.1, result.Results[0].Boosts.Preference, 1e-5)
	assert.InDelta(t, 0.7, result.Results[0].FinalScore, 1e-5)
}

func TestRankWarnsWhenAllScoresAreLow(t *testing.T) {
	result := newTestRanker().Rank(rankInput("refund policy", scoredChunk("c", 0.1)))

	assert.Contains(t, result.Diagnostics.Warnings, "all scores below 0.15")
	assert.Equal(t, []string{"c"}, resultIDs(result))
}

func TestRankAutoExpandUsesAllAnchors(t *testing.T) {
	in := rankInput("refund policy", scoredChunk("c", 0.7))
	in.Anchors = []domain.Anchor{
		{Slug: "refund", IsFocusTerm: true},
		{Slug: "policy"},
	}

	result := newTestRanker().Rank(in)
	assert.Equal(t, []string{"refund"}, result.FilteredAnchorTerms)
	assert.False(t, result.FocusFallback)

	in.Config.AutoExpand = true
	result = newTestRanker().Rank(in)
	assert.Equal(t, []string{"refund", "policy"}, result.FilteredAnchorTerms)
}

func TestRankForceChunksWinsOverForcingPhrase(t *testing.T) {
	in := rankInput("give me the exact quote",
		scoredChunk("a", 0.2),
		scoredChunk("b", 0.4),
	)
	in.Config.ForceChunks = true

	result := newTestRanker().Rank(in)

	assert.Equal(t, domain.ReasonForcedOverride, result.Reason)
	assert.Equal(t, []string{"b", "a"}, resultIDs(result))
	for _, entry := range result.Results {
		assert.Equal(t, domain.ReasonForcedOverride, entry.OverrideReason)
	}
}

func TestRankScorerDrops(t *testing.T) {
	refundAnchors := []domain.Anchor{{Slug: "refund"}}
	glossaryChunk := func(id string, cosine float64) domain.Chunk {
		c := scoredChunk(id, cosine)
		c.Tags = []string{"glossary"}
		c.GlossaryScore = 0.2
		return c
	}
	anchoredChunk := func(c domain.Chunk) domain.Chunk {
		c.AnchorSlug = "refund"
		return c
	}

	tests := []struct {
		name       string
		chunk      domain.Chunk
		anchors    []domain.Anchor
		configure  func(*domain.ScoringConfig)
		wantDrop   string
		wantIDs    []string
		wantReason string
		wantScore  float64
	}{
		{
			// 0.08 raw + 0.2*0.2 glossary score
			name:     "glossary chunk below override floor",
			chunk:    glossaryChunk("g", 0.08),
			wantDrop: dropGlossaryFloor,
			wantIDs:  []string{},
		},
		{
			name:       "force_chunks keeps glossary chunk below floor",
			chunk:      glossaryChunk("g", 0.08),
			configure:  func(cfg *domain.ScoringConfig) { cfg.ForceChunks = true },
			wantIDs:    []string{"g"},
			wantReason: domain.ReasonForcedOverride,
			wantScore:  0.12,
		},
		{
			// 0.03 raw + 0.05 slug + 0.04 glossary score + 0.1 anchor boost
			name:       "anchor match keeps glossary chunk below floor",
			chunk:      anchoredChunk(glossaryChunk("g", 0.03)),
			anchors:    refundAnchors,
			wantIDs:    []string{"g"},
			wantReason: domain.ReasonLowScore,
			wantScore:  0.22,
		},
		{
			name:     "non-positive score",
			chunk:    scoredChunk("neg", -0.2),
			wantDrop: dropNonPositive,
			wantIDs:  []string{},
		},
		{
			name:      "force_fallback still applies min candidate score",
			chunk:     scoredChunk("neg", -0.5),
			configure: func(cfg *domain.ScoringConfig) { cfg.ForceFallback = true },
			wantDrop:  dropBelowMinCandidate,
			wantIDs:   []string{},
		},
		{
			name:     "anchored non-positive without force_fallback",
			chunk:    anchoredChunk(scoredChunk("neg", -0.5)),
			anchors:  refundAnchors,
			wantDrop: dropNonPositive,
			wantIDs:  []string{},
		},
		{
			// -0.5 raw + 0.05 slug + 0.1 anchor boost, taken by the any-score pool
			name:       "force_fallback selects anchored non-positive",
			chunk:      anchoredChunk(scoredChunk("neg", -0.5)),
			anchors:    refundAnchors,
			configure:  func(cfg *domain.ScoringConfig) { cfg.ForceFallback = true },
			wantIDs:    []string{"neg"},
			wantReason: domain.ReasonLowScore,
			wantScore:  -0.35,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := rankInput("refund policy", tt.chunk)
			in.Anchors = tt.anchors
			if tt.configure != nil {
				tt.configure(&in.Config)
			}

			result := newTestRanker().Rank(in)

			assert.Equal(t, tt.wantIDs, resultIDs(result))
			diag := result.Diagnostics.Candidates[0]
			if tt.wantDrop != "" {
				assert.Equal(t, domain.CandidateDropped, diag.Status)
				assert.Equal(t, tt.wantDrop, diag.ExclusionReason)
				assert.Equal(t, []string{tt.chunk.ID}, result.Diagnostics.FilteredOutIDs)
				return
			}
			assert.NotEqual(t, domain.CandidateDropped, diag.Status)
			assert.Equal(t, tt.wantReason, result.Reason)
			require.Len(t, result.Results, 1)
			assert.InDelta(t, tt.wantScore, result.Results[0].FinalScore, 1e-5)
		})
	}
}

func TestRankRejectsUnusableQueryVector(t *testing.T) {
	tests := []struct {
		name        string
		queryVector []float32
		dimension   int
		warning     string
	}{
		{name: "nan", queryVector: []float32{float32(math.NaN()), 1}, warning: "query embedding contains NaN or Inf"},
		{name: "wrong dimension", queryVector: []float32{1, 0, 0}, dimension: 2, warning: "query embedding dimension mismatch"},
		{name: "missing", warning: "query missing embedding"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := rankInput("refund policy", scoredChunk("a", 0.9), scoredChunk("b", 0.8))
			in.QueryVector = tt.queryVector
			in.Config.EmbeddingDimension = tt.dimension

			result := newTestRanker().Rank(in)

			assert.Empty(t, result.Results)
			assert.Empty(t, result.Diagnostics.RepairChunkIDs)
			assert.Equal(t, 2, result.Diagnostics.RetrievedChunkCount)
			assert.Equal(t, []string{WarningEmbeddingUnavailable, tt.warning}, result.Diagnostics.Warnings)
		})
	}
}
