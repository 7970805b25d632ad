package ranking

import (
	"sort"
	"strings"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
)

// NeedsSummaryFallback reports whether the chunk-level answer is too weak to stand alone.
func NeedsSummaryFallback(result *domain.RankResult, cfg domain.ScoringConfig) bool {
	return result != nil && result.TopScore < cfg.MinRAGScore
}

// SummaryDocumentIDs lists the distinct parent documents of chunks in first-seen order.
// Without chunks the scope's document ids are used.
func SummaryDocumentIDs(chunks []domain.Chunk, scope domain.Scope) []string {
	ids := make([]string, 0)
	seen := make(map[string]struct{})
	add := func(id string) {
		id = strings.TrimSpace(id)
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for _, chunk := range chunks {
		add(chunk.DocumentID)
	}
	if len(ids) == 0 {
		for _, id := range scope.DocumentIDs {
			add(id)
		}
	}
	return ids
}

// ScoreSummaries ranks document summaries against the query vector. vectors[i] belongs to
// summaries[i]; unusable vectors are ignored.
func ScoreSummaries(queryVector []float32, summaries []domain.DocumentSummary, vectors [][]float32, limit int) []domain.SummaryFallbackEntry {
	type scored struct {
		entry domain.SummaryFallbackEntry
		index int
	}
	items := make([]scored, 0, len(summaries))
	for i, summary := range summaries {
		if i >= len(vectors) || vectorProblem(vectors[i], len(queryVector)) != "" {
			continue
		}
		score := cosineSimilarity(queryVector, vectors[i])
		if !isFinite(score) {
			continue
		}
		items = append(items, scored{
			entry: domain.SummaryFallbackEntry{
				DocumentID:   summary.DocumentID,
				Title:        summary.Title,
				Summary:      summary.Summary,
				Score:        score,
				FallbackType: domain.FallbackTypeSummary,
			},
			index: i,
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].entry.Score != items[j].entry.Score {
			return items[i].entry.Score > items[j].entry.Score
		}
		return items[i].index < items[j].index
	})

	limit = selectionLimit(limit)
	out := make([]domain.SummaryFallbackEntry, 0, limit)
	for _, item := range items {
		if len(out) >= limit {
			break
		}
		out = append(out, item.entry)
	}
	return out
}
