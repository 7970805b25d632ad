package ranking

import (
	"sort"
	"strings"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
)

const defaultSelectionLimit = 3

type selection struct {
	kept     []domain.ScoredCandidate
	reason   string
	fallback bool
	// forcedReason is set when the whole selection was forced by policy.
	forcedReason string
}

// sortCandidates orders by final score descending, breaking ties by scan order.
func sortCandidates(candidates []domain.ScoredCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].FinalScore != candidates[j].FinalScore {
			return candidates[i].FinalScore > candidates[j].FinalScore
		}
		return candidates[i].ScanIndex < candidates[j].ScanIndex
	})
}

func selectionLimit(n int) int {
	if n <= 0 {
		return defaultSelectionLimit
	}
	return n
}

// selectCandidates applies the selection policies in priority order. sorted must already
// be ordered by sortCandidates.
func selectCandidates(sorted []domain.ScoredCandidate, lowerQuery string, cfg domain.ScoringConfig, rec *recorder) selection {
	if len(sorted) == 0 {
		return selection{}
	}

	if cfg.ForceChunks {
		return takeForced(sorted, selectionLimit(cfg.FallbackLimit), domain.ReasonForcedOverride, rec)
	}
	if hasForcingPhrase(lowerQuery, cfg.ForcingPhrases) {
		return takeForced(sorted, selectionLimit(cfg.FallbackLimit), domain.ReasonForced, rec)
	}

	strong := func(c domain.ScoredCandidate) bool {
		return c.FinalScore >= cfg.ScoreThreshold || (c.GlossaryFlagged() && c.FinalScore >= cfg.MinScore)
	}
	if anyCandidate(sorted, strong) {
		return selection{kept: takeFrom(sorted, strong, selectionLimit(cfg.StrongLimit), rec)}
	}

	pool := func(c domain.ScoredCandidate) bool { return c.FinalScore >= cfg.FallbackMin }
	if !anyCandidate(sorted, pool) {
		pool = func(c domain.ScoredCandidate) bool { return c.FinalScore > 0 }
		if cfg.ForceFallback && !anyCandidate(sorted, pool) {
			pool = func(domain.ScoredCandidate) bool { return true }
		}
	}
	return selection{
		kept:     takeFrom(sorted, pool, selectionLimit(cfg.FallbackLimit), rec),
		reason:   domain.ReasonLowScore,
		fallback: true,
	}
}

func takeForced(sorted []domain.ScoredCandidate, limit int, reason string, rec *recorder) selection {
	kept := make([]domain.ScoredCandidate, 0, limit)
	for _, c := range sorted {
		if len(kept) < limit {
			kept = append(kept, c)
			rec.forced(c.ScanIndex, reason)
			continue
		}
		rec.exclude(c.ScanIndex, domain.ExclusionTopK)
	}
	return selection{kept: kept, reason: reason, forcedReason: reason}
}

// takeFrom keeps the first limit candidates accepted by eligible. The rest are recorded
// as below threshold or cut by the limit.
func takeFrom(sorted []domain.ScoredCandidate, eligible func(domain.ScoredCandidate) bool, limit int, rec *recorder) []domain.ScoredCandidate {
	kept := make([]domain.ScoredCandidate, 0, limit)
	for _, c := range sorted {
		switch {
		case !eligible(c):
			rec.exclude(c.ScanIndex, domain.ExclusionBelowThreshold)
		case len(kept) >= limit:
			rec.exclude(c.ScanIndex, domain.ExclusionTopK)
		default:
			kept = append(kept, c)
			rec.selected(c.ScanIndex)
		}
	}
	return kept
}

func anyCandidate(candidates []domain.ScoredCandidate, fn func(domain.ScoredCandidate) bool) bool {
	for _, c := range candidates {
		if fn(c) {
			return true
		}
	}
	return false
}

func hasForcingPhrase(lowerQuery string, phrases []string) bool {
	for _, phrase := range phrases {
		phrase = strings.ToLower(strings.TrimSpace(phrase))
		if phrase != "" && strings.Contains(lowerQuery, phrase) {
			return true
		}
	}
	return false
}
