package ranking

import (
	"strings"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
)

type injection struct {
	results        []domain.ScoredCandidate
	forcedReasons  map[int]string
	fallback       bool
	glossaryForced bool
}

// injectOverrides appends anchor and glossary matches that selection left out, then
// re-sorts. sorted is the full scored set in rank order.
func injectOverrides(
	sorted []domain.ScoredCandidate,
	sel selection,
	queryTerms []string,
	cfg domain.ScoringConfig,
	rec *recorder,
) injection {
	out := injection{
		results:       append(make([]domain.ScoredCandidate, 0, len(sel.kept)), sel.kept...),
		forcedReasons: make(map[int]string),
		fallback:      sel.fallback,
	}
	present := make(map[int]struct{}, len(sorted))
	for _, c := range sel.kept {
		present[c.ScanIndex] = struct{}{}
		if sel.forcedReason != "" {
			out.forcedReasons[c.ScanIndex] = sel.forcedReason
		}
	}
	inject := func(c domain.ScoredCandidate, reason string) {
		present[c.ScanIndex] = struct{}{}
		out.results = append(out.results, c)
		out.forcedReasons[c.ScanIndex] = reason
		out.fallback = true
		rec.forced(c.ScanIndex, reason)
	}

	for _, c := range sorted {
		if _, ok := present[c.ScanIndex]; ok {
			continue
		}
		if c.AnchorMatched && c.FinalScore >= cfg.AnchorForceMinScore {
			inject(c, domain.OverrideAnchorMatch)
		}
	}

	for _, c := range sorted {
		if _, ok := present[c.ScanIndex]; ok {
			continue
		}
		if !glossaryTagged(c.Chunk) || c.FinalScore < cfg.GlossaryMinScoreOverride {
			continue
		}
		if c.AnchorMatched || (len(queryTerms) > 0 && mentionsAnyTerm(strings.ToLower(c.Chunk.Text), toTokenSet(c.Chunk.Text), queryTerms)) {
			inject(c, domain.OverrideAnchorMatch)
			out.glossaryForced = true
		}
	}

	if best, ok := bestAnchorMatch(sorted); ok && !anyCandidate(out.results, isAnchorMatched) {
		inject(best, domain.OverrideAnchorMatch)
	}

	sortCandidates(out.results)
	return out
}

func isAnchorMatched(c domain.ScoredCandidate) bool { return c.AnchorMatched }

func bestAnchorMatch(sorted []domain.ScoredCandidate) (domain.ScoredCandidate, bool) {
	for _, c := range sorted {
		if c.AnchorMatched {
			return c, true
		}
	}
	return domain.ScoredCandidate{}, false
}
