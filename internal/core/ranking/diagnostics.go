package ranking

import (
	"fmt"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
)

const (
	WarningEmptyQuery           = "empty query"
	WarningNoMatches            = "no matches"
	WarningFocusFallback        = "no focus terms configured, matched against all anchors"
	WarningEmbeddingUnavailable = "embedding provider unavailable"
)

// recorder keeps one diagnostic entry per candidate, indexed by scan position.
type recorder struct {
	candidates []domain.CandidateDiagnostic
	repair     []string
	repairSeen map[string]struct{}
	skipped    int
}

func newRecorder(chunks []domain.Chunk) *recorder {
	r := &recorder{
		candidates: make([]domain.CandidateDiagnostic, len(chunks)),
		repair:     make([]string, 0),
		repairSeen: make(map[string]struct{}),
	}
	for i, chunk := range chunks {
		r.candidates[i] = domain.CandidateDiagnostic{
			ChunkID:    chunk.ID,
			DocumentID: chunk.DocumentID,
			ScanIndex:  i,
		}
	}
	return r
}

func (r *recorder) skip(scanIndex int, reason string) {
	d := &r.candidates[scanIndex]
	d.Status = domain.CandidateSkipped
	d.ExclusionReason = reason
	r.skipped++
}

func (r *recorder) fill(c domain.ScoredCandidate, status domain.CandidateStatus) *domain.CandidateDiagnostic {
	d := &r.candidates[c.ScanIndex]
	d.Status = status
	d.RawScore = c.RawScore
	d.FinalScore = c.FinalScore
	d.Boosts = c.Boosts
	d.GlossaryHit = c.GlossaryHit
	d.AnchorMatched = c.AnchorMatched
	d.KeywordHit = c.KeywordHit
	return d
}

func (r *recorder) drop(c domain.ScoredCandidate, reason string) {
	d := r.fill(c, domain.CandidateDropped)
	d.ExclusionReason = reason
}

// scored records a candidate that survived the scorer. It stays "filtered" until the
// selector or the override injector keeps it.
func (r *recorder) scored(c domain.ScoredCandidate) {
	r.fill(c, domain.CandidateFiltered)
}

func (r *recorder) exclude(scanIndex int, reason string) {
	d := &r.candidates[scanIndex]
	d.Status = domain.CandidateFiltered
	d.ExclusionReason = reason
}

func (r *recorder) selected(scanIndex int) {
	d := &r.candidates[scanIndex]
	d.Status = domain.CandidateSelected
	d.ExclusionReason = ""
}

func (r *recorder) forced(scanIndex int, reason string) {
	d := &r.candidates[scanIndex]
	d.Status = domain.CandidateForced
	d.ExclusionReason = ""
	d.ForcedReason = reason
}

func (r *recorder) flagRepair(chunkID string) {
	if chunkID == "" {
		return
	}
	if _, ok := r.repairSeen[chunkID]; ok {
		return
	}
	r.repairSeen[chunkID] = struct{}{}
	r.repair = append(r.repair, chunkID)
}

// report assembles the query-level diagnostics. Ids are listed in scan order.
func (r *recorder) report(scoredCount int) domain.DiagnosticReport {
	report := emptyReport()
	report.RetrievedChunkCount = len(r.candidates)
	report.ScoredChunkCount = scoredCount
	report.Candidates = append(report.Candidates, r.candidates...)
	report.RepairChunkIDs = append([]string(nil), r.repair...)

	for _, d := range r.candidates {
		if d.AnchorMatched {
			report.AnchorMatchedIDs = append(report.AnchorMatchedIDs, d.ChunkID)
		}
		switch d.Status {
		case domain.CandidateDropped, domain.CandidateFiltered:
			report.FilteredOutIDs = append(report.FilteredOutIDs, d.ChunkID)
		case domain.CandidateForced:
			report.Overrides[d.ChunkID] = d.ForcedReason
		}
	}
	if r.skipped > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("%d chunks skipped for unusable embeddings", r.skipped))
	}
	return report
}

func emptyReport() domain.DiagnosticReport {
	return domain.DiagnosticReport{
		AnchorMatchedIDs:  make([]string, 0),
		FilteredOutIDs:    make([]string, 0),
		Overrides:         make(map[string]string),
		FallbackSummaries: make([]domain.SummaryFallbackEntry, 0),
		Warnings:          make([]string, 0),
		Candidates:        make([]domain.CandidateDiagnostic, 0),
	}
}

// EmptyResult is the answer for queries that cannot be ranked at all.
func EmptyResult(retrieved int, warnings ...string) *domain.RankResult {
	report := emptyReport()
	report.RetrievedChunkCount = retrieved
	report.Warnings = append(report.Warnings, warnings...)
	return &domain.RankResult{
		Results:             make([]domain.ResultEntry, 0),
		FilteredAnchorTerms: make([]string, 0),
		Diagnostics:         report,
	}
}
