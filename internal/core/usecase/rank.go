package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
	"github.com/kirillkom/grounded-rag/internal/core/ports"
	"github.com/kirillkom/grounded-rag/internal/core/ranking"
)

const (
	defaultCandidateLimit   = 200
	defaultReflectionWindow = 72 * time.Hour

	warningSummaryUnavailable = "summary fallback unavailable"
)

// RankSources groups the collaborators of a ranking call. Chunks and Anchors are
// required, the rest may be nil.
type RankSources struct {
	Chunks      ports.ChunkStore
	Anchors     ports.AnchorStore
	Weights     ports.AnchorWeightSource
	Glossary    ports.GlossaryTable
	Reflection  ports.ReflectionTermSource
	Preference  ports.PreferenceVectorSource
	Summaries   ports.DocumentSummaryStore
	RepairQueue ports.ChunkRepairQueue
}

type RankSettings struct {
	Scoring          domain.ScoringConfig
	CandidateLimit   int
	ReflectionWindow time.Duration
}

type RankChunksUseCase struct {
	embedder ports.Embedder
	sources  RankSources
	ranker   *ranking.Ranker
	settings RankSettings
	logger   *slog.Logger
	now      func() time.Time
}

func NewRankChunksUseCase(
	embedder ports.Embedder,
	sources RankSources,
	ranker *ranking.Ranker,
	settings RankSettings,
	logger *slog.Logger,
) *RankChunksUseCase {
	if settings.CandidateLimit <= 0 {
		settings.CandidateLimit = defaultCandidateLimit
	}
	if settings.ReflectionWindow <= 0 {
		settings.ReflectionWindow = defaultReflectionWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RankChunksUseCase{
		embedder: embedder,
		sources:  sources,
		ranker:   ranker,
		settings: settings,
		logger:   logger,
		now:      time.Now,
	}
}

// rankInputs is what the concurrent loaders fill in.
type rankInputs struct {
	anchors     []domain.Anchor
	weights     map[string]float64
	preference  []float32
	reflection  []string
	queryVector []float32
	embedErr    error
}

func (uc *RankChunksUseCase) RankChunks(ctx context.Context, req domain.RankRequest) (*domain.RankResult, error) {
	cfg := uc.settings.Scoring.Apply(req.Overrides)
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return ranking.EmptyResult(0, ranking.WarningEmptyQuery), nil
	}
	if req.Scope.IsEmpty() {
		return ranking.EmptyResult(0, ranking.WarningNoMatches), nil
	}

	chunks, err := uc.sources.Chunks.ListCandidates(ctx, req.Scope, uc.settings.CandidateLimit)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "list candidates", err)
	}
	if len(chunks) == 0 {
		return ranking.EmptyResult(0, ranking.WarningNoMatches), nil
	}

	inputs, err := uc.loadInputs(ctx, req, query, cfg.EmbeddingDimension)
	if err != nil {
		return nil, err
	}
	if inputs.embedErr != nil {
		uc.logger.Error("rank_embedding_failed", "error", inputs.embedErr)
		return ranking.EmptyResult(len(chunks), ranking.WarningEmbeddingUnavailable), nil
	}

	in := ranking.Input{
		Query:            query,
		QueryVector:      inputs.queryVector,
		Chunks:           chunks,
		Anchors:          inputs.anchors,
		AnchorWeights:    inputs.weights,
		PreferenceVector: inputs.preference,
		ReflectionTerms:  inputs.reflection,
		Config:           cfg,
	}
	if uc.sources.Glossary != nil {
		in.Acronyms = uc.sources.Glossary.AcronymPairs()
		in.GlossaryTerms = uc.sources.Glossary.Terms()
	}
	result := uc.ranker.Rank(in)

	if ranking.NeedsSummaryFallback(result, cfg) && uc.sources.Summaries != nil {
		summaries, err := uc.summaryFallback(ctx, inputs.queryVector, chunks, req.Scope, cfg.SummaryLimit)
		if err != nil {
			uc.logger.Warn("rank_summary_fallback_failed", "error", err)
			result.Diagnostics.Warnings = append(result.Diagnostics.Warnings, warningSummaryUnavailable)
		} else {
			result.Diagnostics.FallbackSummaries = summaries
		}
	}

	uc.publishRepairs(ctx, result.Diagnostics.RepairChunkIDs)
	return result, nil
}

func (uc *RankChunksUseCase) loadInputs(ctx context.Context, req domain.RankRequest, query string, dim int) (rankInputs, error) {
	var out rankInputs
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		anchors, err := uc.sources.Anchors.ListAnchors(gctx, req.Scope)
		if err != nil {
			return domain.WrapError(domain.ErrTemporary, "list anchors", err)
		}
		out.anchors = anchors
		return nil
	})
	g.Go(func() error {
		vector, err := uc.embedder.EmbedQuery(gctx, query)
		if err == nil && !ranking.ValidEmbedding(vector, dim) {
			err = fmt.Errorf("unusable query embedding of length %d", len(vector))
		}
		out.queryVector, out.embedErr = vector, err
		return nil
	})
	if uc.sources.Weights != nil && req.CallerID != "" {
		g.Go(func() error {
			weights, err := uc.sources.Weights.AnchorWeights(gctx, req.CallerID)
			if err != nil {
				uc.logger.Warn("rank_optional_source_failed", "source", "anchor_weights", "error", err)
				return nil
			}
			out.weights = weights
			return nil
		})
	}
	if uc.sources.Preference != nil && req.CallerID != "" {
		g.Go(func() error {
			vector, err := uc.sources.Preference.PreferenceVector(gctx, req.CallerID)
			if err != nil {
				uc.logger.Warn("rank_optional_source_failed", "source", "preference_vector", "error", err)
				return nil
			}
			out.preference = vector
			return nil
		})
	}
	if uc.sources.Reflection != nil && req.CallerID != "" {
		now := req.Now
		if now.IsZero() {
			now = uc.now()
		}
		since := now.Add(-uc.settings.ReflectionWindow)
		g.Go(func() error {
			terms, err := uc.sources.Reflection.RecentTerms(gctx, req.CallerID, since)
			if err != nil {
				uc.logger.Warn("rank_optional_source_failed", "source", "reflection_terms", "error", err)
				return nil
			}
			out.reflection = terms
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return rankInputs{}, err
	}
	return out, nil
}

func (uc *RankChunksUseCase) summaryFallback(
	ctx context.Context,
	queryVector []float32,
	chunks []domain.Chunk,
	scope domain.Scope,
	limit int,
) ([]domain.SummaryFallbackEntry, error) {
	ids := ranking.SummaryDocumentIDs(chunks, scope)
	if len(ids) == 0 {
		return make([]domain.SummaryFallbackEntry, 0), nil
	}

	summaries, err := uc.sources.Summaries.ListSummaries(ctx, ids)
	if err != nil {
		return nil, err
	}
	usable := make([]domain.DocumentSummary, 0, len(summaries))
	texts := make([]string, 0, len(summaries))
	for _, summary := range summaries {
		if strings.TrimSpace(summary.Summary) == "" {
			continue
		}
		usable = append(usable, summary)
		texts = append(texts, summary.Summary)
	}
	if len(texts) == 0 {
		return make([]domain.SummaryFallbackEntry, 0), nil
	}

	vectors, err := uc.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	return ranking.ScoreSummaries(queryVector, usable, vectors, limit), nil
}

func (uc *RankChunksUseCase) publishRepairs(ctx context.Context, chunkIDs []string) {
	if uc.sources.RepairQueue == nil {
		return
	}
	for _, id := range chunkIDs {
		if err := uc.sources.RepairQueue.PublishChunkRepair(ctx, id); err != nil {
			uc.logger.Warn("chunk_repair_publish_failed", "chunk_id", id, "error", err)
		}
	}
}
