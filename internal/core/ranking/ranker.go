package ranking

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
	"github.com/kirillkom/grounded-rag/internal/core/ports"
)

// Input is one materialised ranking call. The ranker never fetches anything itself.
type Input struct {
	Query            string
	QueryVector      []float32
	Chunks           []domain.Chunk
	Anchors          []domain.Anchor
	AnchorWeights    map[string]float64
	PreferenceVector []float32
	ReflectionTerms  []string
	Acronyms         []domain.AcronymPair
	GlossaryTerms    []string
	Config           domain.ScoringConfig
}

// Ranker scores, filters and selects chunks for one query. It holds no per-query state and
// is safe for concurrent use.
type Ranker struct {
	fuzzy  ports.AnchorFuzzyMatcher
	logger *slog.Logger
}

func NewRanker(fuzzy ports.AnchorFuzzyMatcher, logger *slog.Logger) *Ranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ranker{fuzzy: fuzzy, logger: logger}
}

func (r *Ranker) Rank(in Input) *domain.RankResult {
	if strings.TrimSpace(in.Query) == "" {
		return EmptyResult(len(in.Chunks), WarningEmptyQuery)
	}
	if len(in.Chunks) == 0 {
		return EmptyResult(0, WarningNoMatches)
	}
	if problem := vectorProblem(in.QueryVector, in.Config.EmbeddingDimension); problem != "" {
		r.logger.Warn("rank_query_embedding_unusable", "reason", problem, "length", len(in.QueryVector))
		return EmptyResult(len(in.Chunks), WarningEmbeddingUnavailable, "query "+problem)
	}

	cfg := in.Config
	lowerQuery := strings.ToLower(in.Query)

	anchors, focusFallback := anchorSet(in.Anchors, cfg.AutoExpand)
	matchedSlugs := MatchAnchors(in.Query, anchors, r.fuzzy)

	sc := &scoringContext{
		cfg:         cfg,
		lowerQuery:  lowerQuery,
		queryVector: in.QueryVector,
		dimension:   cfg.EmbeddingDimension,
		preference:  usablePreference(in.PreferenceVector),
		weights:     make(map[string]float64, len(in.AnchorWeights)),
		matched:     make(map[string]struct{}, len(matchedSlugs)),
		slugByID:    make(map[string]string, len(in.Anchors)),
		acronyms:    in.Acronyms,
		queryTerms:  queryGlossaryTerms(in.Query, in.Acronyms, in.GlossaryTerms),
		reflection:  make(map[string]struct{}, len(in.ReflectionTerms)),
		keywords:    lowerAll(cfg.Keywords),
	}
	if sc.dimension <= 0 {
		sc.dimension = len(in.QueryVector)
	}
	for slug, weight := range in.AnchorWeights {
		sc.weights[strings.ToLower(strings.TrimSpace(slug))] = weight
	}
	for _, slug := range matchedSlugs {
		sc.matched[strings.ToLower(slug)] = struct{}{}
	}
	for _, anchor := range in.Anchors {
		if anchor.ID != "" {
			sc.slugByID[anchor.ID] = anchor.Slug
		}
	}
	for _, term := range lowerAll(in.ReflectionTerms) {
		sc.reflection[term] = struct{}{}
	}

	rec := newRecorder(in.Chunks)
	scored := scoreCandidates(sc, in.Chunks, rec, r.logger)
	sortCandidates(scored)

	result := &domain.RankResult{
		Results:             make([]domain.ResultEntry, 0),
		FocusFallback:       focusFallback,
		FilteredAnchorTerms: append(make([]string, 0, len(matchedSlugs)), matchedSlugs...),
	}
	if len(scored) > 0 {
		result.TopScore = scored[0].FinalScore
		result.TopChunkID = scored[0].Chunk.ID
	}

	sel := selectCandidates(scored, lowerQuery, cfg, rec)
	inj := injectOverrides(scored, sel, sc.queryTerms, cfg, rec)

	result.Reason = sel.reason
	result.FallbackUsed = inj.fallback
	result.GlossaryForced = inj.glossaryForced
	for _, c := range inj.results {
		reason, forced := inj.forcedReasons[c.ScanIndex]
		result.Results = append(result.Results, resultEntry(c, forced, reason))
		if c.GlossaryFlagged() {
			result.GlossaryPresent = true
		}
	}

	report := rec.report(len(scored))
	report.Reason = result.Reason
	report.FallbackUsed = result.FallbackUsed
	report.TopScore = result.TopScore
	if focusFallback && len(in.Anchors) > 0 {
		report.Warnings = append(report.Warnings, WarningFocusFallback)
	}
	switch {
	case len(scored) == 0:
		report.Warnings = append(report.Warnings, WarningNoMatches)
	case result.TopScore < cfg.LowScoreWarning:
		report.Warnings = append(report.Warnings, lowScoreWarning(cfg.LowScoreWarning))
	}
	result.Diagnostics = report

	r.logger.Debug("rank_completed",
		"retrieved", report.RetrievedChunkCount,
		"scored", report.ScoredChunkCount,
		"selected", len(result.Results),
		"reason", result.Reason,
		"fallback_used", result.FallbackUsed,
		"top_score", result.TopScore,
	)
	return result
}

func resultEntry(c domain.ScoredCandidate, forced bool, reason string) domain.ResultEntry {
	return domain.ResultEntry{
		ChunkID:          c.Chunk.ID,
		DocumentID:       c.Chunk.DocumentID,
		Order:            c.Chunk.Order,
		Text:             c.Chunk.Text,
		AnchorSlug:       c.Chunk.AnchorSlug,
		RawScore:         c.RawScore,
		FinalScore:       c.FinalScore,
		AnchorConfidence: c.AnchorConfidence,
		GlossaryHit:      c.GlossaryHit,
		Boosts:           c.Boosts,
		Forced:           forced,
		OverrideReason:   reason,
	}
}

func usablePreference(vec []float32) []float32 {
	if vectorProblem(vec, 0) != "" {
		return nil
	}
	return vec
}

func lowScoreWarning(floor float64) string {
	return "all scores below " + strconv.FormatFloat(floor, 'f', -1, 64)
}
