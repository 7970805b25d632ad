package ranking

import (
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
)

const (
	dropNonPositive       = "non-positive score"
	dropBelowMinCandidate = "score < min candidate score"
	dropWeakGlossary      = "weak glossary"
	dropGlossaryFloor     = "glossary below override floor"
)

// scoringContext is everything the scorer needs besides the chunk itself. It is built
// once per query.
type scoringContext struct {
	cfg         domain.ScoringConfig
	lowerQuery  string
	queryVector []float32
	dimension   int
	preference  []float32
	weights     map[string]float64
	matched     map[string]struct{}
	slugByID    map[string]string
	acronyms    []domain.AcronymPair
	queryTerms  []string
	reflection  map[string]struct{}
	keywords    []string
}

func (sc *scoringContext) resolveSlug(chunk domain.Chunk) string {
	slug := strings.TrimSpace(chunk.AnchorSlug)
	if slug == "" && chunk.AnchorID != "" {
		slug = sc.slugByID[chunk.AnchorID]
	}
	return strings.ToLower(slug)
}

func (sc *scoringContext) anchorMatched(slug string) bool {
	if slug == "" {
		return false
	}
	_, ok := sc.matched[slug]
	return ok
}

// scoreCandidates runs the per-chunk scoring pipeline in scan order. Rejected and dropped
// chunks are recorded but not returned.
func scoreCandidates(sc *scoringContext, chunks []domain.Chunk, rec *recorder, logger *slog.Logger) []domain.ScoredCandidate {
	out := make([]domain.ScoredCandidate, 0, len(chunks))
	for i, chunk := range chunks {
		candidate, dropReason, ok := scoreChunk(sc, i, chunk, rec, logger)
		if !ok {
			continue
		}
		if dropReason != "" {
			rec.drop(candidate, dropReason)
			continue
		}
		rec.scored(candidate)
		out = append(out, candidate)
	}
	return out
}

// scoreChunk returns ok=false when the chunk is rejected before scoring, and a non-empty
// drop reason when it was scored but filtered by the scorer.
func scoreChunk(
	sc *scoringContext,
	scanIndex int,
	chunk domain.Chunk,
	rec *recorder,
	logger *slog.Logger,
) (domain.ScoredCandidate, string, bool) {
	cfg := sc.cfg
	problem := vectorProblem(chunk.Embedding, sc.dimension)

	if chunk.EmbeddingStatus != domain.EmbeddingEmbedded {
		if problem == "" {
			rec.flagRepair(chunk.ID)
		}
		rec.skip(scanIndex, "embedding status "+string(chunk.EmbeddingStatus))
		logger.Debug("rank_chunk_skipped", "chunk_id", chunk.ID, "status", string(chunk.EmbeddingStatus))
		return domain.ScoredCandidate{}, "", false
	}
	if problem != "" {
		rec.flagRepair(chunk.ID)
		rec.skip(scanIndex, problem)
		logger.Warn("rank_chunk_skipped", "chunk_id", chunk.ID, "reason", problem, "length", len(chunk.Embedding))
		return domain.ScoredCandidate{}, "", false
	}

	raw := cosineSimilarity(sc.queryVector, chunk.Embedding)
	if !isFinite(raw) {
		rec.flagRepair(chunk.ID)
		rec.skip(scanIndex, "corrupt similarity")
		logger.Warn("rank_chunk_skipped", "chunk_id", chunk.ID, "reason", "corrupt similarity")
		return domain.ScoredCandidate{}, "", false
	}

	slug := sc.resolveSlug(chunk)
	c := domain.ScoredCandidate{
		Chunk:         chunk,
		ScanIndex:     scanIndex,
		RawScore:      raw,
		AnchorMatched: sc.anchorMatched(slug),
		Boosts: domain.BoostBreakdown{
			AnchorWeightFactor: 1,
			LengthFactor:       1,
		},
	}
	if c.Chunk.AnchorSlug == "" && slug != "" {
		c.Chunk.AnchorSlug = slug
	}
	score := raw

	if len(sc.preference) > 0 && len(sc.preference) == len(chunk.Embedding) {
		c.Boosts.Preference = cosineSimilarity(sc.preference, chunk.Embedding) * cfg.PreferenceWeight
		score += c.Boosts.Preference
	}

	if slug != "" {
		if weight, ok := sc.weights[slug]; ok {
			c.Boosts.AnchorWeightFactor = 1 + weight
			score *= c.Boosts.AnchorWeightFactor
		}
		if strings.Contains(sc.lowerQuery, slug) {
			c.Boosts.AnchorSlug = cfg.AnchorSlugBonus
			score += cfg.AnchorSlugBonus
		}
	}

	c.Boosts.LengthFactor = lengthFactor(chunk.Text, cfg)
	score *= c.Boosts.LengthFactor

	if score <= 0 && !cfg.ForceFallback {
		c.FinalScore = score
		return c, dropNonPositive, true
	}
	if score < cfg.MinCandidateScore && !c.AnchorMatched {
		c.FinalScore = score
		return c, dropBelowMinCandidate, true
	}

	lowerText := strings.ToLower(chunk.Text)
	tokens := toTokenSet(chunk.Text)

	for _, keyword := range sc.keywords {
		if strings.Contains(lowerText, keyword) {
			c.KeywordHit = true
			c.Boosts.Keyword = cfg.KeywordBonus
			score += cfg.KeywordBonus
			break
		}
	}

	detection, hit := detectGlossary(chunk, lowerText, tokens, sc.acronyms, sc.queryTerms, cfg)
	c.GlossaryHit = hit
	c.Boosts.GlossaryDetection = detection
	score += detection

	c.Boosts.GlossaryScore = chunk.GlossaryScore * cfg.GlossaryBoostFactor
	score += c.Boosts.GlossaryScore
	if c.GlossaryHit {
		c.GlossaryBoost = chunk.GlossaryBoost
		c.Boosts.GlossaryBoost = chunk.GlossaryBoost
		score += chunk.GlossaryBoost
	}

	if reflectionOverlap(slug, tokens, sc.reflection) {
		c.ReflectionBoost = cfg.ReflectionBoost
		c.Boosts.Reflection = cfg.ReflectionBoost
		score += cfg.ReflectionBoost
	}

	if strings.TrimSpace(chunk.Fingerprint) == "" {
		c.Boosts.FingerprintPenalty = -cfg.MissingFingerprintPenalty
		score -= cfg.MissingFingerprintPenalty
	}

	tagged := glossaryTagged(chunk)
	if tagged && !cfg.ForceFallback && (chunk.WeakGlossary || chunk.GlossaryScore < cfg.WeakGlossaryThreshold) {
		c.FinalScore = score
		return c, dropWeakGlossary, true
	}
	if tagged && score < cfg.GlossaryMinScoreOverride && !c.AnchorMatched && !cfg.ForceChunks {
		c.FinalScore = score
		return c, dropGlossaryFloor, true
	}

	switch {
	case c.AnchorMatched:
		c.AnchorConfidence = 1.0
		c.Boosts.Anchor = cfg.AnchorBoost
		score += cfg.AnchorBoost
	case slug != "" || chunk.HasAnchor():
		c.AnchorConfidence = 0.5
	default:
		c.AnchorConfidence = 0.0
	}

	c.FinalScore = score
	return c, "", true
}

// lengthFactor penalises very short chunks: base + span * min(runes/chars, 1).
func lengthFactor(text string, cfg domain.ScoringConfig) float64 {
	if cfg.LengthNormChars <= 0 {
		return 1
	}
	ratio := float64(utf8.RuneCountInString(text)) / float64(cfg.LengthNormChars)
	if ratio > 1 {
		ratio = 1
	}
	return cfg.LengthNormBase + cfg.LengthNormSpan*ratio
}

func reflectionOverlap(slug string, tokens map[string]struct{}, terms map[string]struct{}) bool {
	if len(terms) == 0 {
		return false
	}
	if slug != "" {
		if _, ok := terms[slug]; ok {
			return true
		}
	}
	for token := range tokens {
		if _, ok := terms[token]; ok {
			return true
		}
	}
	return false
}
